package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// FileConfig is the on-disk configuration format. Any field left empty keeps
// the value already loaded. Plain environment variables named in the env
// tags take precedence over the file.
type FileConfig struct {
	Port        string `yaml:"port" json:"port" toml:"port" env:"PORT"`
	Environment string `yaml:"environment" json:"environment" toml:"environment" env:"ENVIRONMENT"`

	DatabaseURL   string `yaml:"database_url" json:"database_url" toml:"database_url" env:"DATABASE_URL"`
	DBSchema      string `yaml:"db_schema" json:"db_schema" toml:"db_schema" env:"DB_SCHEMA"`
	MongoDatabase string `yaml:"mongo_database" json:"mongo_database" toml:"mongo_database" env:"MONGO_DATABASE"`
	AutoMigrate   *bool  `yaml:"auto_migrate" json:"auto_migrate" toml:"auto_migrate"`

	StorageURL       string `yaml:"storage_url" json:"storage_url" toml:"storage_url" env:"STORAGE_URL"`
	StoragePublicURL string `yaml:"storage_public_url" json:"storage_public_url" toml:"storage_public_url" env:"STORAGE_PUBLIC_URL"`
	StagingDir       string `yaml:"staging_dir" json:"staging_dir" toml:"staging_dir" env:"STAGING_DIR"`
	MaxUploadBytes   int64  `yaml:"max_upload_bytes" json:"max_upload_bytes" toml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`

	AudioFolder   string `yaml:"audio_folder" json:"audio_folder" toml:"audio_folder"`
	ImageFolder   string `yaml:"image_folder" json:"image_folder" toml:"image_folder"`
	ProfileFolder string `yaml:"profile_folder" json:"profile_folder" toml:"profile_folder"`
	RecentWindow  int    `yaml:"recent_window" json:"recent_window" toml:"recent_window" env:"RECENT_WINDOW"`
	RecentLimit   int    `yaml:"recent_limit" json:"recent_limit" toml:"recent_limit" env:"RECENT_LIMIT"`
	BlobTimeout   string `yaml:"blob_timeout" json:"blob_timeout" toml:"blob_timeout" env:"BLOB_TIMEOUT"`

	JWTSecret  string `yaml:"jwt_secret" json:"jwt_secret" toml:"jwt_secret" env:"JWT_SECRET"`
	SessionTTL string `yaml:"session_ttl" json:"session_ttl" toml:"session_ttl" env:"SESSION_TTL"`

	EnableMetrics      *bool `yaml:"enable_metrics" json:"enable_metrics" toml:"enable_metrics"`
	EnableEventLogging *bool `yaml:"enable_event_logging" json:"enable_event_logging" toml:"enable_event_logging"`

	ReconcileSchedule string `yaml:"reconcile_schedule" json:"reconcile_schedule" toml:"reconcile_schedule" env:"RECONCILE_SCHEDULE"`
	ReconcileGrace    string `yaml:"reconcile_grace" json:"reconcile_grace" toml:"reconcile_grace" env:"RECONCILE_GRACE"`
	ReconcileDryRun   *bool  `yaml:"reconcile_dry_run" json:"reconcile_dry_run" toml:"reconcile_dry_run"`
}

// WithFile reads a yaml, json, toml or .env file (chosen by extension) and
// applies its non-empty values.
func WithFile(path string) Option {
	return func(c *ServerConfig) error {
		var fc FileConfig
		if err := cleanenv.ReadConfig(path, &fc); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return fc.apply(c)
	}
}

func (fc *FileConfig) apply(c *ServerConfig) error {
	setString(&c.Port, fc.Port)
	setString(&c.Environment, fc.Environment)
	setString(&c.DBSchema, fc.DBSchema)
	setString(&c.MongoDatabase, fc.MongoDatabase)
	setString(&c.StagingDir, fc.StagingDir)
	setString(&c.AudioFolder, fc.AudioFolder)
	setString(&c.ImageFolder, fc.ImageFolder)
	setString(&c.ProfileFolder, fc.ProfileFolder)
	setString(&c.JWTSecret, fc.JWTSecret)
	setString(&c.ReconcileSchedule, fc.ReconcileSchedule)

	setBool(&c.AutoMigrate, fc.AutoMigrate)
	setBool(&c.EnableMetrics, fc.EnableMetrics)
	setBool(&c.EnableEventLogging, fc.EnableEventLogging)
	setBool(&c.ReconcileDryRun, fc.ReconcileDryRun)

	if fc.MaxUploadBytes != 0 {
		c.MaxUploadBytes = fc.MaxUploadBytes
	}
	if fc.RecentWindow != 0 {
		c.RecentWindow = fc.RecentWindow
	}
	if fc.RecentLimit != 0 {
		c.RecentLimit = fc.RecentLimit
	}

	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"blob_timeout", fc.BlobTimeout, &c.BlobTimeout},
		{"session_ttl", fc.SessionTTL, &c.SessionTTL},
		{"reconcile_grace", fc.ReconcileGrace, &c.ReconcileGrace},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	if fc.DatabaseURL != "" {
		if err := applyDatabaseURL(c, fc.DatabaseURL); err != nil {
			return err
		}
	}
	if fc.StorageURL != "" {
		if err := applyStorageURL(c, fc.StorageURL, fc.StoragePublicURL); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
