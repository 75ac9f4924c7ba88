package simplemusic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/simple-music/pkg/simplemusic/staging"
)

// Default folders and limits.
const (
	DefaultAudioFolder   = "songs/audio"
	DefaultImageFolder   = "songs/images"
	DefaultProfileFolder = "profile_images"
	DefaultRecentWindow  = 50
	DefaultRecentLimit   = 20
	DefaultBlobTimeout   = 30 * time.Second
)

// service implements the Service interface
type service struct {
	repository Repository
	blobStore  BlobStore
	stager     Stager
	eventSink  EventSink
	revoker    SessionRevoker
	logger     *slog.Logger
	observer   func(*Operation)
	now        func() time.Time

	audioFolder   string
	imageFolder   string
	profileFolder string
	recentWindow  int
	recentLimit   int
	blobTimeout   time.Duration
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the document store for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the remote object store for the service
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithStager sets the local staging area used for inbound uploads
func WithStager(stager Stager) Option {
	return func(s *service) {
		s.stager = stager
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithSessionRevoker sets the collaborator that invalidates sessions on
// account deletion
func WithSessionRevoker(revoker SessionRevoker) Option {
	return func(s *service) {
		s.revoker = revoker
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFolders overrides the blob store folder hints. Empty values keep the
// defaults.
func WithFolders(audio, image, profile string) Option {
	return func(s *service) {
		if audio != "" {
			s.audioFolder = audio
		}
		if image != "" {
			s.imageFolder = image
		}
		if profile != "" {
			s.profileFolder = profile
		}
	}
}

// WithRecentWindow sets how many play events are read per recent-songs query
func WithRecentWindow(n int) Option {
	return func(s *service) {
		s.recentWindow = n
	}
}

// WithRecentLimit sets the maximum number of songs returned by RecentSongs
func WithRecentLimit(n int) Option {
	return func(s *service) {
		s.recentLimit = n
	}
}

// WithBlobTimeout bounds every blob store call
func WithBlobTimeout(d time.Duration) Option {
	return func(s *service) {
		s.blobTimeout = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOperationObserver registers a callback receiving every finished
// lifecycle operation trace
func WithOperationObserver(fn func(*Operation)) Option {
	return func(s *service) {
		s.observer = fn
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		eventSink:     NewNoopEventSink(),
		logger:        slog.Default(),
		now:           func() time.Time { return time.Now().UTC() },
		audioFolder:   DefaultAudioFolder,
		imageFolder:   DefaultImageFolder,
		profileFolder: DefaultProfileFolder,
		recentWindow:  DefaultRecentWindow,
		recentLimit:   DefaultRecentLimit,
		blobTimeout:   DefaultBlobTimeout,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.stager == nil {
		area, err := staging.New(staging.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create default staging area: %w", err)
		}
		s.stager = area
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.recentWindow <= 0 {
		return nil, fmt.Errorf("recent window must be positive")
	}
	if s.recentLimit <= 0 {
		return nil, fmt.Errorf("recent limit must be positive")
	}
	if s.blobTimeout <= 0 {
		s.blobTimeout = DefaultBlobTimeout
	}

	return s, nil
}

// uploadAsset stages u, sends it to the blob store and releases the staged
// file on every path.
func (s *service) uploadAsset(ctx context.Context, u *Upload, class ContentClass, folder string) (*UploadResult, error) {
	h, err := s.stager.Stage(ctx, u.FileName, u.Reader)
	if err != nil {
		if errors.Is(err, staging.ErrTooLarge) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, &StorageError{Op: "stage", Class: class, Err: err}
	}
	defer func() {
		if err := h.Release(); err != nil {
			s.logger.Warn("failed to release staged file", "path", h.Path(), "error", err)
		}
	}()

	bctx, cancel := context.WithTimeout(ctx, s.blobTimeout)
	defer cancel()

	res, err := s.blobStore.Upload(bctx, h.Path(), class, folder)
	if err != nil {
		return nil, asStorageError("upload", "", class, err)
	}
	if res == nil || res.URL == "" {
		return nil, &StorageError{Op: "upload", Class: class, Err: errors.New("blob store returned no url")}
	}
	return res, nil
}

// deleteBlob deletes url with the blob timeout. An absent object is a
// successful delete.
func (s *service) deleteBlob(ctx context.Context, url string, class ContentClass) error {
	if url == "" {
		return nil
	}
	bctx, cancel := context.WithTimeout(ctx, s.blobTimeout)
	defer cancel()

	if err := s.blobStore.Delete(bctx, url, class); err != nil {
		if isAbsent(err) {
			return nil
		}
		return asStorageError("delete", url, class, err)
	}
	return nil
}

// deleteBestEffort deletes url and logs any failure. It reports whether the
// object is gone.
func (s *service) deleteBestEffort(ctx context.Context, url string, class ContentClass, attrs ...any) bool {
	if err := s.deleteBlob(ctx, url, class); err != nil {
		s.logger.Error("failed to delete blob object",
			append([]any{"url", url, "class", class, "error", err}, attrs...)...)
		return false
	}
	return true
}

// compensate deletes an object uploaded by a failed operation. It runs even
// when ctx is already cancelled and never returns an error; failures are
// logged and reported to the event sink.
func (s *service) compensate(ctx context.Context, op *Operation, url string, class ContentClass) {
	cctx := context.WithoutCancel(ctx)
	err := s.deleteBlob(cctx, url, class)
	op.Compensations = append(op.Compensations, Compensation{URL: url, Class: class, Err: err})
	if err != nil {
		s.logger.Error("compensating delete failed",
			"op", op.Name, "url", url, "class", class, "error", err)
	} else {
		s.logger.Info("compensating delete succeeded", "op", op.Name, "url", url, "class", class)
	}
	if sinkErr := s.eventSink.CompensationRan(cctx, op.Name, class, err); sinkErr != nil {
		s.logger.Warn("event sink failed", "event", "compensation_ran", "error", sinkErr)
	}
}

func asStorageError(op, url string, class ContentClass, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, URL: url, Class: class, Err: err}
}

func (s *service) emit(event string, err error) {
	if err != nil {
		s.logger.Warn("event sink failed", "event", event, "error", err)
	}
}
