package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.DatabaseType != "memory" || cfg.DefaultStorageBackend != "memory" {
		t.Errorf("expected memory defaults, got %s/%s", cfg.DatabaseType, cfg.DefaultStorageBackend)
	}
	if cfg.AudioFolder != "songs/audio" || cfg.ImageFolder != "songs/images" || cfg.ProfileFolder != "profile_images" {
		t.Errorf("unexpected default folders: %s %s %s", cfg.AudioFolder, cfg.ImageFolder, cfg.ProfileFolder)
	}
	if cfg.RecentWindow != 50 || cfg.RecentLimit != 20 {
		t.Errorf("expected recent 50/20, got %d/%d", cfg.RecentWindow, cfg.RecentLimit)
	}
	if cfg.ReconcileSchedule != "" {
		t.Errorf("expected reconciliation disabled by default, got %q", cfg.ReconcileSchedule)
	}
}

func TestWithPort(t *testing.T) {
	cfg, err := Load(WithPort("9090"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got: %s", cfg.Port)
	}

	if _, err := Load(WithPort("")); err == nil {
		t.Error("expected error for empty port, got nil")
	}
}

func TestWithEnvironment(t *testing.T) {
	cfg, err := Load(WithEnvironment("testing"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Environment != "testing" {
		t.Errorf("expected environment testing, got: %s", cfg.Environment)
	}

	if _, err := Load(WithEnvironment("production")); err == nil {
		t.Error("expected error for production with the development secret")
	}
	if _, err := Load(WithEnvironment("production"), WithJWT("prod-secret", time.Hour)); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestWithDatabase(t *testing.T) {
	tests := []struct {
		name      string
		dbType    string
		url       string
		wantError bool
	}{
		{"memory valid", "memory", "", false},
		{"postgres valid", "postgres", "postgresql://localhost/test", false},
		{"mongodb valid", "mongodb", "mongodb://localhost:27017", false},
		{"postgres missing url", "postgres", "", true},
		{"mongodb missing url", "mongodb", "", true},
		{"invalid type", "mysql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(WithDatabase(tt.dbType, tt.url))
			if tt.wantError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if cfg.DatabaseType != tt.dbType {
				t.Errorf("expected database type %s, got: %s", tt.dbType, cfg.DatabaseType)
			}
			if cfg.DatabaseURL != tt.url {
				t.Errorf("expected database URL %s, got: %s", tt.url, cfg.DatabaseURL)
			}
		})
	}
}

func TestWithFilesystemStorage(t *testing.T) {
	cfg, err := Load(
		WithFilesystemStorage("", "./data", "/media"),
		WithDefaultStorage("fs"),
	)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	backend, ok := cfg.storageBackend("fs")
	if !ok {
		t.Fatal("expected fs backend to be added")
	}
	if backend.Type != "fs" {
		t.Errorf("expected type fs, got: %s", backend.Type)
	}
	if got := getString(backend.Config, "url_prefix", ""); got != "/media" {
		t.Errorf("expected url_prefix /media, got: %s", got)
	}

	if _, err := Load(WithFilesystemStorage("", "", "")); err == nil {
		t.Error("expected error for empty base dir")
	}
}

func TestWithS3Storage(t *testing.T) {
	cfg, err := Load(
		WithS3Storage("", "tracks", ""),
		WithS3Endpoint("", "http://localhost:9000", true),
		WithDefaultStorage("s3"),
	)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	backend, _ := cfg.storageBackend("s3")
	if got := getString(backend.Config, "region", ""); got != "us-east-1" {
		t.Errorf("expected default region, got: %s", got)
	}
	if got := getString(backend.Config, "endpoint", ""); got != "http://localhost:9000" {
		t.Errorf("expected endpoint, got: %s", got)
	}

	if _, err := Load(WithS3Endpoint("missing", "http://x", false)); err == nil {
		t.Error("expected error for endpoint on unknown backend")
	}
}

func TestWithDefaultStorageUnknown(t *testing.T) {
	if _, err := Load(WithDefaultStorage("nope")); err == nil {
		t.Error("expected error for unknown default backend")
	}
}

func TestWithTuning(t *testing.T) {
	cfg, err := Load(
		WithFolders("a", "b", "c"),
		WithRecent(10, 5),
		WithBlobTimeout(time.Second),
		WithStaging("/tmp/stage", 2048),
		WithReconcile("@daily", 3*time.Hour, true),
	)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.RecentWindow != 10 || cfg.RecentLimit != 5 {
		t.Errorf("unexpected recent settings %d/%d", cfg.RecentWindow, cfg.RecentLimit)
	}
	folders := cfg.ReconcileFolders()
	if len(folders) != 3 || folders["a"] != "audio" || folders["c"] != "image" {
		t.Errorf("unexpected reconcile folders: %v", folders)
	}
	if !cfg.ReconcileDryRun || cfg.ReconcileGrace != 3*time.Hour {
		t.Errorf("unexpected reconcile settings")
	}

	if _, err := Load(WithRecent(0, 5)); err == nil {
		t.Error("expected error for zero window")
	}
	if _, err := Load(WithBlobTimeout(0)); err == nil {
		t.Error("expected error for zero timeout")
	}
	if _, err := Load(WithFolders("", "b", "c")); err == nil {
		t.Error("expected error for empty folder")
	}
}

func TestWithFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "music.yaml")
	content := `port: "7070"
storage_url: "file://` + filepath.ToSlash(dir) + `/objects"
recent_limit: 5
blob_timeout: 10s
enable_metrics: false
reconcile_schedule: "@daily"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(WithFile(path))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Port)
	}
	if cfg.DefaultStorageBackend != "fs" {
		t.Errorf("expected fs backend, got %s", cfg.DefaultStorageBackend)
	}
	if cfg.RecentLimit != 5 || cfg.RecentWindow != 50 {
		t.Errorf("expected recent 50/5, got %d/%d", cfg.RecentWindow, cfg.RecentLimit)
	}
	if cfg.BlobTimeout != 10*time.Second {
		t.Errorf("expected blob timeout 10s, got %s", cfg.BlobTimeout)
	}
	if cfg.EnableMetrics {
		t.Error("expected metrics disabled by file")
	}
	if cfg.ReconcileSchedule != "@daily" {
		t.Errorf("expected schedule @daily, got %q", cfg.ReconcileSchedule)
	}

	if _, err := Load(WithFile(filepath.Join(dir, "missing.yaml"))); err == nil {
		t.Error("expected error for missing file")
	}
}
