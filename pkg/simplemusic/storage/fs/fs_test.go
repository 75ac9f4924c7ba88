package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tendant/simple-music/pkg/simplemusic"
	"github.com/tendant/simple-music/pkg/simplemusic/mediaprobe"
)

func stage(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write staged file: %v", err)
	}
	return path
}

func TestFSBackend_BasicOps(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: tmp, URLPrefix: "http://localhost:8080/media/", Prober: mediaprobe.Fixed(42)})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	ctx := context.Background()

	res, err := backend.Upload(ctx, stage(t, "track.mp3", "hello fs"), simplemusic.ContentClassAudio, "songs/audio")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(res.URL, "http://localhost:8080/media/songs/audio/") {
		t.Fatalf("unexpected url %q", res.URL)
	}
	if res.DurationSeconds != 42 {
		t.Fatalf("expected duration 42, got %v", res.DurationSeconds)
	}

	key := strings.TrimPrefix(res.URL, "http://localhost:8080/media/")
	got, err := os.ReadFile(filepath.Join(tmp, key))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(got) != "hello fs" {
		t.Fatalf("content mismatch: %q", string(got))
	}

	infos, err := backend.List(ctx, "songs/audio")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].URL != res.URL || infos[0].Size != 8 {
		t.Fatalf("unexpected listing %+v", infos)
	}

	if err := backend.Delete(ctx, res.URL, simplemusic.ContentClassAudio); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, "songs")); !os.IsNotExist(err) {
		t.Fatalf("expected empty directories removed, stat err=%v", err)
	}

	if err := backend.Delete(ctx, res.URL, simplemusic.ContentClassAudio); !errors.Is(err, simplemusic.ErrObjectAbsent) {
		t.Fatalf("expected ErrObjectAbsent, got %v", err)
	}
}

func TestFSBackend_DefaultPrefixAndImages(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: tmp})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}

	res, err := backend.Upload(context.Background(), stage(t, "cover.png", "png"), simplemusic.ContentClassImage, "songs/images")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(res.URL, "file://") {
		t.Fatalf("expected file:// url, got %q", res.URL)
	}
	if res.DurationSeconds != 0 {
		t.Fatalf("images carry no duration")
	}
}

func TestFSBackend_RejectsForeignURLs(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir(), URLPrefix: "http://media"})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	ctx := context.Background()

	for _, url := range []string{
		"http://other/songs/a.mp3",
		"http://media/",
		"http://media/../etc/passwd",
		"http://media/songs/../../x",
	} {
		err := backend.Delete(ctx, url, simplemusic.ContentClassAudio)
		if err == nil || errors.Is(err, simplemusic.ErrObjectAbsent) {
			t.Fatalf("expected rejection for %q, got %v", url, err)
		}
	}
}

func TestFSBackend_ListMissingFolder(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	infos, err := backend.List(context.Background(), "profile_images")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected no objects, got %d", len(infos))
	}
}

func TestFSBackend_RequiresBaseDir(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without base dir")
	}
}
