package simplemusic_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-music/pkg/simplemusic"
	"github.com/tendant/simple-music/pkg/simplemusic/mediaprobe"
	"github.com/tendant/simple-music/pkg/simplemusic/repo/memory"
	"github.com/tendant/simple-music/pkg/simplemusic/staging"
	memorystorage "github.com/tendant/simple-music/pkg/simplemusic/storage/memory"
)

const testDuration = 187.5

// faultyStore wraps the memory backend with per-class failure injection.
type faultyStore struct {
	*memorystorage.Backend

	mu          sync.Mutex
	failUpload  map[simplemusic.ContentClass]error
	failDelete  error
	uploadDelay time.Duration
	uploads     []simplemusic.ContentClass
	deletes     []string
}

func (f *faultyStore) Upload(ctx context.Context, localPath string, class simplemusic.ContentClass, folder string) (*simplemusic.UploadResult, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, class)
	err := f.failUpload[class]
	delay := f.uploadDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return f.Backend.Upload(ctx, localPath, class, folder)
}

func (f *faultyStore) Delete(ctx context.Context, url string, class simplemusic.ContentClass) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, url)
	err := f.failDelete
	f.mu.Unlock()

	if err != nil {
		return err
	}
	return f.Backend.Delete(ctx, url, class)
}

func (f *faultyStore) setUploadFailure(class simplemusic.ContentClass, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload == nil {
		f.failUpload = map[simplemusic.ContentClass]error{}
	}
	f.failUpload[class] = err
}

func (f *faultyStore) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

// faultyRepo wraps the memory repository with failure injection on the
// writes the lifecycle depends on.
type faultyRepo struct {
	*memory.Repository

	createSongErr   error
	updateSongErr   error
	createUserErr   error
	appendPlayErr   error
	stripErr        error
	deleteSongErrOn map[uuid.UUID]error
}

func (r *faultyRepo) CreateSong(ctx context.Context, song *simplemusic.Song) error {
	if r.createSongErr != nil {
		return r.createSongErr
	}
	return r.Repository.CreateSong(ctx, song)
}

func (r *faultyRepo) UpdateSong(ctx context.Context, song *simplemusic.Song) error {
	if r.updateSongErr != nil {
		return r.updateSongErr
	}
	return r.Repository.UpdateSong(ctx, song)
}

func (r *faultyRepo) CreateUser(ctx context.Context, user *simplemusic.User) error {
	if r.createUserErr != nil {
		return r.createUserErr
	}
	return r.Repository.CreateUser(ctx, user)
}

func (r *faultyRepo) AppendPlay(ctx context.Context, event *simplemusic.PlayEvent) error {
	if r.appendPlayErr != nil {
		return r.appendPlayErr
	}
	return r.Repository.AppendPlay(ctx, event)
}

func (r *faultyRepo) RemoveSongFromPlaylists(ctx context.Context, songIDs ...uuid.UUID) (int64, error) {
	if r.stripErr != nil {
		return 0, r.stripErr
	}
	return r.Repository.RemoveSongFromPlaylists(ctx, songIDs...)
}

func (r *faultyRepo) DeleteSong(ctx context.Context, id uuid.UUID) error {
	if err := r.deleteSongErrOn[id]; err != nil {
		return err
	}
	return r.Repository.DeleteSong(ctx, id)
}

// recordingSink counts events.
type recordingSink struct {
	*simplemusic.NoopEventSink

	mu            sync.Mutex
	created       []uuid.UUID
	updated       []uuid.UUID
	deleted       []uuid.UUID
	plays         []*simplemusic.PlayEvent
	compensations []error
	cascades      []*simplemusic.CascadeResult
}

func (s *recordingSink) SongCreated(ctx context.Context, song *simplemusic.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, song.ID)
	return nil
}

func (s *recordingSink) SongUpdated(ctx context.Context, song *simplemusic.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, song.ID)
	return nil
}

func (s *recordingSink) SongDeleted(ctx context.Context, songID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, songID)
	return nil
}

func (s *recordingSink) PlayRecorded(ctx context.Context, event *simplemusic.PlayEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays = append(s.plays, event)
	return nil
}

func (s *recordingSink) CompensationRan(ctx context.Context, op string, class simplemusic.ContentClass, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compensations = append(s.compensations, err)
	return nil
}

func (s *recordingSink) CascadeCompleted(ctx context.Context, result *simplemusic.CascadeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cascades = append(s.cascades, result)
	return nil
}

type fakeRevoker struct {
	mu      sync.Mutex
	revoked []uuid.UUID
	err     error
}

func (r *fakeRevoker) Revoke(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, userID)
	return r.err
}

// testClock advances one second per reading. Set makes the next reading t.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.Add(-time.Second)
}

type testEnv struct {
	svc     simplemusic.Service
	repo    *faultyRepo
	blobs   *faultyStore
	sink    *recordingSink
	revoker *fakeRevoker
	clock   *testClock

	opsMu sync.Mutex
	ops   []*simplemusic.Operation
}

func (e *testEnv) lastOp(name string) *simplemusic.Operation {
	e.opsMu.Lock()
	defer e.opsMu.Unlock()
	for i := len(e.ops) - 1; i >= 0; i-- {
		if e.ops[i].Name == name {
			return e.ops[i]
		}
	}
	return nil
}

func setupTestService(t *testing.T, opts ...simplemusic.Option) *testEnv {
	t.Helper()

	area, err := staging.New(staging.Config{Dir: t.TempDir()})
	require.NoError(t, err)

	env := &testEnv{
		repo:    &faultyRepo{Repository: memory.New(), deleteSongErrOn: map[uuid.UUID]error{}},
		blobs:   &faultyStore{Backend: memorystorage.New(memorystorage.WithProber(mediaprobe.Fixed(testDuration)))},
		sink:    &recordingSink{NoopEventSink: &simplemusic.NoopEventSink{}},
		revoker: &fakeRevoker{},
		clock:   &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}

	base := []simplemusic.Option{
		simplemusic.WithRepository(env.repo),
		simplemusic.WithBlobStore(env.blobs),
		simplemusic.WithStager(area),
		simplemusic.WithEventSink(env.sink),
		simplemusic.WithSessionRevoker(env.revoker),
		simplemusic.WithClock(env.clock.Now),
		simplemusic.WithOperationObserver(func(op *simplemusic.Operation) {
			env.opsMu.Lock()
			defer env.opsMu.Unlock()
			env.ops = append(env.ops, op)
		}),
	}

	svc, err := simplemusic.New(append(base, opts...)...)
	require.NoError(t, err)
	env.svc = svc
	return env
}

func upload(name, content string) *simplemusic.Upload {
	return &simplemusic.Upload{FileName: name, Reader: strings.NewReader(content)}
}

func (e *testEnv) listener(t *testing.T, email string) simplemusic.Caller {
	t.Helper()
	user, err := e.svc.RegisterUser(context.Background(), simplemusic.RegisterUserRequest{
		Name:         "listener " + email[:3],
		Email:        email,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return user.Caller()
}

func (e *testEnv) creator(t *testing.T, email string) simplemusic.Caller {
	t.Helper()
	caller := e.listener(t, email)
	user, err := e.svc.UpgradeToCreator(context.Background(), caller)
	require.NoError(t, err)
	return user.Caller()
}

func (e *testEnv) publish(t *testing.T, caller simplemusic.Caller, title string) *simplemusic.Song {
	t.Helper()
	song, err := e.svc.CreateSong(context.Background(), caller, simplemusic.CreateSongRequest{
		Title:  title,
		Artist: "Artist",
		Audio:  upload(title+".mp3", "audio-"+title),
		Cover:  upload(title+".png", "cover-"+title),
	})
	require.NoError(t, err)
	return song
}

// eofReader fails every read.
type eofReader struct{ err error }

func (r eofReader) Read(p []byte) (int, error) { return 0, r.err }

var _ io.Reader = eofReader{}
