package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case "memory":
		case "postgres", "mongodb":
			if url == "" {
				return fmt.Errorf("database URL is required for %s", dbType)
			}
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'mongodb', got: %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMongoDatabase sets the database name (for MongoDB)
func WithMongoDatabase(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("mongo database name cannot be empty")
		}
		c.MongoDatabase = name
		return nil
	}
}

// WithAutoMigrate creates tables or indexes when the repository connects
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithDefaultStorage sets the default storage backend name
func WithDefaultStorage(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("default storage backend name cannot be empty")
		}
		c.DefaultStorageBackend = name
		return nil
	}
}

// WithMemoryStorage adds an in-memory storage backend
// If name is empty, defaults to "memory"
func WithMemoryStorage(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "memory"
		}
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: name,
			Type: "memory",
		})
		return nil
	}
}

// WithFilesystemStorage adds a filesystem storage backend
// If name is empty, defaults to "fs"
func WithFilesystemStorage(name, baseDir, urlPrefix string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "fs"
		}
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}

		backend := StorageBackendConfig{
			Name: name,
			Type: "fs",
			Config: map[string]interface{}{
				"base_dir": baseDir,
			},
		}
		if urlPrefix != "" {
			backend.Config["url_prefix"] = urlPrefix
		}

		c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
		return nil
	}
}

// WithS3Storage adds an S3 storage backend
// If name is empty, defaults to "s3"
func WithS3Storage(name, bucket, region string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "s3"
		}
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1" // Default region
		}

		backend := StorageBackendConfig{
			Name: name,
			Type: "s3",
			Config: map[string]interface{}{
				"bucket": bucket,
				"region": region,
			},
		}

		c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
		return nil
	}
}

// WithS3Endpoint sets a custom S3 endpoint (for MinIO, LocalStack, etc.)
// on an S3 backend added earlier
func WithS3Endpoint(name, endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "s3"
		}
		for i := range c.StorageBackends {
			if c.StorageBackends[i].Name == name && c.StorageBackends[i].Type == "s3" {
				c.StorageBackends[i].Config["endpoint"] = endpoint
				c.StorageBackends[i].Config["use_path_style"] = usePathStyle
				return nil
			}
		}
		return fmt.Errorf("s3 storage backend '%s' not configured", name)
	}
}

// WithStaging sets the staging directory and per-file upload limit
func WithStaging(dir string, maxBytes int64) Option {
	return func(c *ServerConfig) error {
		if maxBytes < 0 {
			return fmt.Errorf("max upload bytes cannot be negative")
		}
		c.StagingDir = dir
		c.MaxUploadBytes = maxBytes
		return nil
	}
}

// WithFolders overrides the blob store folder hints
func WithFolders(audio, image, profile string) Option {
	return func(c *ServerConfig) error {
		if audio == "" || image == "" || profile == "" {
			return fmt.Errorf("folders cannot be empty")
		}
		c.AudioFolder = audio
		c.ImageFolder = image
		c.ProfileFolder = profile
		return nil
	}
}

// WithRecent sets how many play events are read and how many songs are
// returned by a recent-songs query
func WithRecent(window, limit int) Option {
	return func(c *ServerConfig) error {
		c.RecentWindow = window
		c.RecentLimit = limit
		return nil
	}
}

// WithBlobTimeout bounds every blob store call
func WithBlobTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("blob timeout must be positive")
		}
		c.BlobTimeout = d
		return nil
	}
}

// WithJWT sets the session signing secret and lifetime
func WithJWT(secret string, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if secret == "" {
			return fmt.Errorf("jwt secret cannot be empty")
		}
		c.JWTSecret = secret
		if ttl > 0 {
			c.SessionTTL = ttl
		}
		return nil
	}
}

// WithEventLogging enables or disables the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithMetrics enables or disables Prometheus metrics
func WithMetrics(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableMetrics = enabled
		return nil
	}
}

// WithReconcile schedules the orphan reconciliation job
func WithReconcile(schedule string, grace time.Duration, dryRun bool) Option {
	return func(c *ServerConfig) error {
		c.ReconcileSchedule = schedule
		if grace > 0 {
			c.ReconcileGrace = grace
		}
		c.ReconcileDryRun = dryRun
		return nil
	}
}
