package staging_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-music/pkg/simplemusic/staging"
)

func newArea(t *testing.T, maxBytes int64) *staging.Area {
	t.Helper()
	area, err := staging.New(staging.Config{Dir: t.TempDir(), MaxBytes: maxBytes})
	require.NoError(t, err)
	return area
}

func TestStage(t *testing.T) {
	area := newArea(t, 0)
	ctx := context.Background()

	h, err := area.Stage(ctx, "My Song.mp3", strings.NewReader("audio-bytes"))
	require.NoError(t, err)

	data, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
	assert.Equal(t, int64(11), h.Size())
	assert.Equal(t, area.Dir(), filepath.Dir(h.Path()))
	assert.True(t, strings.HasPrefix(filepath.Base(h.Path()), "My_Song_"))
	assert.Equal(t, ".mp3", filepath.Ext(h.Path()))

	require.NoError(t, h.Release())
	_, err = os.Stat(h.Path())
	assert.True(t, os.IsNotExist(err))

	// Release is idempotent
	assert.NoError(t, h.Release())
}

func TestStage_LongClientName(t *testing.T) {
	area := newArea(t, 0)

	h, err := area.Stage(context.Background(), strings.Repeat("a", 240)+".mp3", strings.NewReader("x"))
	require.NoError(t, err)
	defer h.Release()

	base := filepath.Base(h.Path())
	assert.LessOrEqual(t, len(base), 255)
	assert.Equal(t, ".mp3", filepath.Ext(base))
	assert.True(t, strings.HasPrefix(base, strings.Repeat("a", staging.MaxBaseLen)+"_"))
}

func TestStage_UniqueNames(t *testing.T) {
	area := newArea(t, 0)
	ctx := context.Background()

	a, err := area.Stage(ctx, "cover.png", strings.NewReader("a"))
	require.NoError(t, err)
	defer a.Release()
	b, err := area.Stage(ctx, "cover.png", strings.NewReader("b"))
	require.NoError(t, err)
	defer b.Release()

	assert.NotEqual(t, a.Path(), b.Path())
}

func TestStage_TooLarge(t *testing.T) {
	area := newArea(t, 4)

	_, err := area.Stage(context.Background(), "big.wav", strings.NewReader("12345"))
	assert.ErrorIs(t, err, staging.ErrTooLarge)

	entries, err := os.ReadDir(area.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file must be removed")
}

func TestStage_CancelledContext(t *testing.T) {
	area := newArea(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := area.Stage(ctx, "a.mp3", strings.NewReader("data"))
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(area.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWith_ReleasesOnError(t *testing.T) {
	area := newArea(t, 0)
	boom := errors.New("boom")

	var staged string
	err := area.With(context.Background(), "a.mp3", strings.NewReader("data"), func(path string) error {
		staged = path
		_, statErr := os.Stat(path)
		require.NoError(t, statErr)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = os.Stat(staged)
	assert.True(t, os.IsNotExist(err))
}

func TestWith_ReportsReleaseFailure(t *testing.T) {
	area := newArea(t, 0)

	// swap the staged file for a non-empty directory so it cannot be removed
	var staged string
	err := area.With(context.Background(), "a.mp3", strings.NewReader("data"), func(path string) error {
		staged = path
		require.NoError(t, os.Remove(path))
		require.NoError(t, os.Mkdir(path, 0o755))
		return os.WriteFile(filepath.Join(path, "keep"), []byte("x"), 0o600)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to release staged file")

	_, statErr := os.Stat(staged)
	assert.NoError(t, statErr)
}

func TestStagedName(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantPrefix string
		wantExt    string
	}{
		{"plain", "track.mp3", "track_", ".mp3"},
		{"path traversal", "../../etc/passwd", "passwd_", ""},
		{"windows path", `C:\music\loud song.flac`, "loud_song_", ".flac"},
		{"empty", "", "upload_", ""},
		{"only symbols", "???.ogg", "upload_", ".ogg"},
		{"long base", strings.Repeat("b", 300) + ".flac", strings.Repeat("b", staging.MaxBaseLen) + "_", ".flac"},
		{"long extension", "clip." + strings.Repeat("x", 40), "clip_", "." + strings.Repeat("x", staging.MaxExtLen-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := staging.StagedName(tt.input)
			assert.True(t, strings.HasPrefix(got, tt.wantPrefix), "got %s", got)
			assert.Equal(t, tt.wantExt, filepath.Ext(got))
			assert.NotContains(t, got, "/")
			assert.LessOrEqual(t, len(got), staging.MaxBaseLen+1+36+staging.MaxExtLen)
		})
	}
}
