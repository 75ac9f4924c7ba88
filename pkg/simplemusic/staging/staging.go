// Package staging spools inbound upload streams to uniquely named local files
// that are owned by exactly one request and removed on every exit path.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrTooLarge is returned when a stream exceeds the configured size limit.
var ErrTooLarge = errors.New("staged upload exceeds size limit")

// Staged names keep at most this much of the client supplied name, so
// base, underscore, id and extension stay well under NAME_MAX.
const (
	MaxBaseLen = 64
	MaxExtLen  = 16
)

// Config options for the staging area
type Config struct {
	Dir      string // Directory holding staged files; os.TempDir() when empty
	MaxBytes int64  // Optional per-file size limit; 0 disables the check
}

// Area is a local directory holding staged uploads. An Area is safe for
// concurrent use; each staged file belongs to the caller that created it.
type Area struct {
	dir      string
	maxBytes int64
}

// New creates the staging directory if needed and returns an Area over it.
func New(config Config) (*Area, error) {
	dir := config.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "simple-music-staging")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Area{dir: dir, maxBytes: config.MaxBytes}, nil
}

// Dir returns the staging directory.
func (a *Area) Dir() string {
	return a.dir
}

// Stage writes r to a new file named after name and returns its handle.
// On any error the partial file is removed before returning.
func (a *Area) Stage(ctx context.Context, name string, r io.Reader) (*Handle, error) {
	if r == nil {
		return nil, errors.New("staging: nil reader")
	}

	path := filepath.Join(a.dir, StagedName(name))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file: %w", err)
	}

	h := &Handle{path: path}

	src := io.Reader(&ctxReader{ctx: ctx, r: r})
	if a.maxBytes > 0 {
		src = io.LimitReader(src, a.maxBytes+1)
	}

	n, copyErr := io.Copy(file, src)
	closeErr := file.Close()

	switch {
	case copyErr != nil:
		return nil, errors.Join(fmt.Errorf("failed to write staged file: %w", copyErr), h.Release())
	case closeErr != nil:
		return nil, errors.Join(fmt.Errorf("failed to close staged file: %w", closeErr), h.Release())
	case a.maxBytes > 0 && n > a.maxBytes:
		return nil, errors.Join(ErrTooLarge, h.Release())
	}

	h.size = n
	return h, nil
}

// With stages r, calls fn with the staged path and releases the file
// whatever fn returns. A failed release is joined to the result of fn.
func (a *Area) With(ctx context.Context, name string, r io.Reader, fn func(path string) error) (err error) {
	h, err := a.Stage(ctx, name, r)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := h.Release(); releaseErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release staged file: %w", releaseErr))
		}
	}()
	return fn(h.Path())
}

// Handle owns one staged file.
type Handle struct {
	path string
	size int64
	once sync.Once
	err  error
}

// Path returns the local path of the staged file.
func (h *Handle) Path() string {
	return h.path
}

// Size returns the number of bytes staged.
func (h *Handle) Size() int64 {
	return h.size
}

// Release removes the staged file. It is safe to call more than once and
// treats an already missing file as released.
func (h *Handle) Release() error {
	h.once.Do(func() {
		if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.err = err
		}
	})
	return h.err
}

// StagedName derives a collision-free local file name from a client supplied
// name: sanitized base, underscore, random id, original extension. The base
// is cut to MaxBaseLen bytes and the extension to MaxExtLen.
func StagedName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	base = strings.Trim(truncate(sanitize(base), MaxBaseLen), "._")
	if base == "" {
		base = "upload"
	}
	ext = truncate(sanitize(ext), MaxExtLen)
	if ext == "." {
		ext = ""
	}

	return fmt.Sprintf("%s_%s%s", base, uuid.NewString(), ext)
}

// truncate cuts s to n bytes; sanitize leaves only ASCII so no rune is split.
func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

// ctxReader aborts a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
