package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tendant/simple-music/pkg/simplemusic"
	"github.com/tendant/simple-music/pkg/simplemusic/mediaprobe"
	"github.com/tendant/simple-music/pkg/simplemusic/objectkey"
)

// Backend is a filesystem implementation of the simplemusic.BlobStore interface
type Backend struct {
	mu        sync.RWMutex
	baseDir   string
	urlPrefix string
	prober    mediaprobe.Prober
	keys      objectkey.Generator
}

// Config options for the filesystem backend
type Config struct {
	BaseDir   string            // Base directory for storing files
	URLPrefix string            // Public URL prefix; defaults to file://<abs BaseDir>
	Prober    mediaprobe.Prober // Optional; defaults to the beep prober
	Keys      objectkey.Generator
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	abs, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	prefix := strings.TrimRight(config.URLPrefix, "/")
	if prefix == "" {
		prefix = "file://" + filepath.ToSlash(abs)
	}

	b := &Backend{
		baseDir:   abs,
		urlPrefix: prefix,
		prober:    config.Prober,
		keys:      config.Keys,
	}
	if b.prober == nil {
		b.prober = mediaprobe.NewBeepProber()
	}
	if b.keys == nil {
		b.keys = objectkey.NewRecommendedGenerator()
	}
	return b, nil
}

var (
	_ simplemusic.BlobStore    = (*Backend)(nil)
	_ simplemusic.ObjectLister = (*Backend)(nil)
)

// BaseDir returns the absolute storage root
func (b *Backend) BaseDir() string {
	return b.baseDir
}

// Handler serves stored objects; mount it at the path of URLPrefix
func (b *Backend) Handler() http.Handler {
	return http.FileServer(http.Dir(b.baseDir))
}

// Upload copies the staged file under baseDir
func (b *Backend) Upload(ctx context.Context, localPath string, class simplemusic.ContentClass, folder string) (*simplemusic.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !class.IsValid() {
		return nil, fmt.Errorf("unsupported content class %q", class)
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
	filePath := b.pathFor(key)

	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open staged file: %w", err)
	}
	defer src.Close()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dst, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	result.URL = b.urlFor(key)
	return result, nil
}

// Delete removes the file behind url; a missing file yields simplemusic.ErrObjectAbsent
func (b *Backend) Delete(ctx context.Context, url string, class simplemusic.ContentClass) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := b.keyFor(url)
	if err != nil {
		return err
	}
	filePath := b.pathFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return simplemusic.ErrObjectAbsent
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// List walks folder and reports every regular file
func (b *Backend) List(ctx context.Context, folder string) ([]simplemusic.ObjectInfo, error) {
	root := b.pathFor(strings.Trim(folder, "/"))

	b.mu.RLock()
	defer b.mu.RUnlock()

	var infos []simplemusic.ObjectInfo
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.baseDir, path)
		if err != nil {
			return err
		}
		infos = append(infos, simplemusic.ObjectInfo{
			URL:        b.urlFor(filepath.ToSlash(rel)),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", folder, err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].URL < infos[j].URL })
	return infos, nil
}

func (b *Backend) urlFor(key string) string {
	return b.urlPrefix + "/" + key
}

func (b *Backend) keyFor(url string) (string, error) {
	key, ok := strings.CutPrefix(url, b.urlPrefix+"/")
	if !ok || key == "" {
		return "", fmt.Errorf("url %q does not belong to this filesystem backend", url)
	}
	clean := filepath.ToSlash(filepath.Clean("/" + key))[1:]
	if clean != key {
		return "", fmt.Errorf("url %q escapes the storage root", url)
	}
	return key, nil
}

func (b *Backend) pathFor(key string) string {
	return filepath.Join(b.baseDir, filepath.FromSlash(key))
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir || !strings.HasPrefix(dir, b.baseDir) {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
