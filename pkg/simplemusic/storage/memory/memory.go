package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-music/pkg/simplemusic"
	"github.com/tendant/simple-music/pkg/simplemusic/mediaprobe"
	"github.com/tendant/simple-music/pkg/simplemusic/objectkey"
)

// URLScheme prefixes every URL handed out by the memory backend.
const URLScheme = "memory://"

// Backend is an in-memory implementation of the simplemusic.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	prober  mediaprobe.Prober
	keys    objectkey.Generator
	now     func() time.Time
}

type object struct {
	data    []byte
	class   simplemusic.ContentClass
	modTime time.Time
}

// Option configures the memory backend
type Option func(*Backend)

// WithProber sets the audio duration prober
func WithProber(p mediaprobe.Prober) Option {
	return func(b *Backend) {
		b.prober = p
	}
}

// WithKeyGenerator sets the object key strategy
func WithKeyGenerator(g objectkey.Generator) Option {
	return func(b *Backend) {
		b.keys = g
	}
}

// WithClock overrides the modification time source
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

// New creates a new in-memory storage backend
func New(opts ...Option) *Backend {
	b := &Backend{
		objects: make(map[string]object),
		prober:  mediaprobe.NewBeepProber(),
		keys:    objectkey.NewRecommendedGenerator(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var (
	_ simplemusic.BlobStore    = (*Backend)(nil)
	_ simplemusic.ObjectLister = (*Backend)(nil)
)

// Upload copies the staged file into memory
func (b *Backend) Upload(ctx context.Context, localPath string, class simplemusic.ContentClass, folder string) (*simplemusic.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !class.IsValid() {
		return nil, fmt.Errorf("unsupported content class %q", class)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read staged file: %w", err)
	}

	result := &simplemusic.UploadResult{}
	if class == simplemusic.ContentClassAudio {
		d, err := b.prober.Duration(ctx, localPath)
		if err != nil {
			return nil, fmt.Errorf("failed to probe audio: %w", err)
		}
		result.DurationSeconds = d
	}

	key := b.keys.GenerateKey(folder, uuid.New(), filepath.Base(localPath))

	b.mu.Lock()
	b.objects[key] = object{data: data, class: class, modTime: b.now()}
	b.mu.Unlock()

	result.URL = URLScheme + key
	return result, nil
}

// Delete removes an object; a missing object yields simplemusic.ErrObjectAbsent
func (b *Backend) Delete(ctx context.Context, url string, class simplemusic.ContentClass) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, ok := strings.CutPrefix(url, URLScheme)
	if !ok {
		return fmt.Errorf("url %q does not belong to the memory backend", url)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return simplemusic.ErrObjectAbsent
	}
	delete(b.objects, key)
	return nil
}

// List returns the objects stored under folder
func (b *Backend) List(ctx context.Context, folder string) ([]simplemusic.ObjectInfo, error) {
	prefix := strings.Trim(folder, "/") + "/"

	b.mu.RLock()
	defer b.mu.RUnlock()

	var infos []simplemusic.ObjectInfo
	for key, obj := range b.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, simplemusic.ObjectInfo{
				URL:        URLScheme + key,
				Size:       int64(len(obj.data)),
				ModifiedAt: obj.modTime,
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].URL < infos[j].URL })
	return infos, nil
}

// Has reports whether an object exists at url
func (b *Backend) Has(url string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.objects[strings.TrimPrefix(url, URLScheme)]
	return exists
}

// Len returns the number of stored objects
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// Data returns a copy of the bytes stored at url
func (b *Backend) Data(url string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, exists := b.objects[strings.TrimPrefix(url, URLScheme)]
	if !exists {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}
