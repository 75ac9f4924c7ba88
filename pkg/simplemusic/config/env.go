package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Server:
//
//	PORT - Server port (default: "8080")
//	ENVIRONMENT - Runtime environment (default: "development")
//	JWT_SECRET - Session token signing secret
//	SESSION_TTL - Session lifetime, e.g. "24h"
//
// Database:
//
//	DATABASE_URL - Connection string (one of):
//	               - "" or "memory" - In-memory repository (default)
//	               - "postgres://..." or "postgresql://..." - Postgres
//	               - "mongodb://..." or "mongodb+srv://..." - MongoDB
//	DB_SCHEMA - Postgres schema (default: "music")
//	MONGO_DATABASE - Mongo database name (default: "simple_music")
//	AUTO_MIGRATE - Create tables or indexes on startup
//
// Storage:
//
//	STORAGE_URL - Storage connection string (one of):
//	              - "memory://" - In-memory storage (default)
//	              - "file:///path/to/data" - Filesystem storage
//	              - "s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true"
//	STORAGE_PUBLIC_URL - Public URL prefix for stored objects
//	STAGING_DIR, MAX_UPLOAD_BYTES - Local staging area
//
// Tuning:
//
//	RECENT_WINDOW, RECENT_LIMIT, BLOB_TIMEOUT
//	ENABLE_METRICS, ENABLE_EVENT_LOGGING
//	RECONCILE_SCHEDULE, RECONCILE_GRACE, RECONCILE_DRY_RUN
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}
		if v, ok := lookupEnv(prefix, "JWT_SECRET"); ok && v != "" {
			c.JWTSecret = v
		}

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}

		if err := applyStorageEnv(prefix, c); err != nil {
			return err
		}

		return applyTuningEnv(prefix, c)
	}
}

// applyDatabaseEnv applies database configuration from environment
func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	if v, ok := lookupEnv(prefix, "DB_SCHEMA"); ok && v != "" {
		c.DBSchema = v
	}
	if v, ok := lookupEnv(prefix, "MONGO_DATABASE"); ok && v != "" {
		c.MongoDatabase = v
	}
	if v, ok, err := parseBoolEnv(prefix, "AUTO_MIGRATE"); err != nil {
		return err
	} else if ok {
		c.AutoMigrate = v
	}

	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")
	if !hasURL {
		return nil
	}
	return applyDatabaseURL(c, dbURL)
}

// applyDatabaseURL auto-detects the database type from the URL scheme
func applyDatabaseURL(c *ServerConfig, dbURL string) error {
	switch {
	case dbURL == "" || dbURL == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	case strings.HasPrefix(dbURL, "mongodb://"), strings.HasPrefix(dbURL, "mongodb+srv://"):
		c.DatabaseType = "mongodb"
		c.DatabaseURL = dbURL
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgresql://...' or 'mongodb://...')", dbURL)
	}
	return nil
}

// applyStorageEnv applies storage configuration from environment
func applyStorageEnv(prefix string, c *ServerConfig) error {
	if v, ok := lookupEnv(prefix, "STAGING_DIR"); ok && v != "" {
		c.StagingDir = v
	}
	if v, ok, err := parseInt64Env(prefix, "MAX_UPLOAD_BYTES"); err != nil {
		return err
	} else if ok {
		c.MaxUploadBytes = v
	}

	storageURL, hasURL := lookupEnv(prefix, "STORAGE_URL")
	if !hasURL {
		return nil
	}
	publicURL, _ := lookupEnv(prefix, "STORAGE_PUBLIC_URL")
	return applyStorageURL(c, storageURL, publicURL)
}

// applyStorageURL selects the default backend from a storage URL
func applyStorageURL(c *ServerConfig, storageURL, publicURL string) error {
	switch {
	case storageURL == "" || storageURL == "memory" || storageURL == "memory://":
		c.DefaultStorageBackend = "memory"
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: "memory",
			Type: "memory",
		})
		return nil
	case strings.HasPrefix(storageURL, "file://"):
		return applyFilesystemStorage(storageURL, publicURL, c)
	case strings.HasPrefix(storageURL, "s3://"):
		return applyS3Storage(storageURL, publicURL, c)
	}

	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
}

// applyFilesystemStorage configures filesystem storage from URL
// Format: file:///path/to/data
func applyFilesystemStorage(rawURL, publicURL string, c *ServerConfig) error {
	path := strings.TrimPrefix(rawURL, "file://")
	if path == "" {
		return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
	}

	backend := StorageBackendConfig{
		Name: "fs",
		Type: "fs",
		Config: map[string]interface{}{
			"base_dir": path,
		},
	}
	if publicURL != "" {
		backend.Config["url_prefix"] = publicURL
	}

	c.DefaultStorageBackend = "fs"
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
	return nil
}

// applyS3Storage configures S3 storage from URL
// Format: s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true
func applyS3Storage(rawURL, publicURL string, c *ServerConfig) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
	}

	backend := StorageBackendConfig{
		Name: "s3",
		Type: "s3",
		Config: map[string]interface{}{
			"bucket": u.Host,
			"region": "us-east-1", // Default
		},
	}

	q := u.Query()
	if v := q.Get("region"); v != "" {
		backend.Config["region"] = v
	}
	if v := q.Get("endpoint"); v != "" {
		backend.Config["endpoint"] = v
	}
	if v := q.Get("path_style"); v != "" {
		backend.Config["use_path_style"] = v
	}
	if v := q.Get("create_bucket"); v != "" {
		backend.Config["create_bucket_if_not_exist"] = v
	}
	if v := q.Get("sse"); v != "" {
		backend.Config["enable_sse"] = "true"
		backend.Config["sse_algorithm"] = v
	}
	if v := q.Get("key_layout"); v != "" {
		backend.Config["key_layout"] = v
	}
	if publicURL != "" {
		backend.Config["public_base_url"] = publicURL
	}

	// Check for AWS credentials in environment
	if accessKey, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok && accessKey != "" {
		backend.Config["access_key_id"] = accessKey
	}
	if secretKey, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok && secretKey != "" {
		backend.Config["secret_access_key"] = secretKey
	}
	if region, ok := os.LookupEnv("AWS_REGION"); ok && region != "" && q.Get("region") == "" {
		backend.Config["region"] = region
	}

	c.DefaultStorageBackend = "s3"
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
	return nil
}

func applyTuningEnv(prefix string, c *ServerConfig) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"RECENT_WINDOW", &c.RecentWindow},
		{"RECENT_LIMIT", &c.RecentLimit},
	}
	for _, item := range ints {
		v, ok, err := parseIntEnv(prefix, item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.dst = v
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"BLOB_TIMEOUT", &c.BlobTimeout},
		{"SESSION_TTL", &c.SessionTTL},
		{"RECONCILE_GRACE", &c.ReconcileGrace},
	}
	for _, item := range durations {
		v, ok, err := parseDurationEnv(prefix, item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.dst = v
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"ENABLE_METRICS", &c.EnableMetrics},
		{"ENABLE_EVENT_LOGGING", &c.EnableEventLogging},
		{"RECONCILE_DRY_RUN", &c.ReconcileDryRun},
	}
	for _, item := range bools {
		v, ok, err := parseBoolEnv(prefix, item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.dst = v
		}
	}

	if v, ok := lookupEnv(prefix, "RECONCILE_SCHEDULE"); ok {
		c.ReconcileSchedule = v
	}
	return nil
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func parseBoolEnv(prefix, key string) (bool, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseIntEnv(prefix, key string) (int, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseInt64Env(prefix, key string) (int64, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseDurationEnv(prefix, key string) (time.Duration, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid duration for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func upsertStorageBackend(backends []StorageBackendConfig, backend StorageBackendConfig) []StorageBackendConfig {
	if backend.Config == nil {
		backend.Config = map[string]interface{}{}
	}
	for i := range backends {
		if backends[i].Name == backend.Name {
			backends[i] = backend
			return backends
		}
	}
	return append(backends, backend)
}
