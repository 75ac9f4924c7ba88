package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tendant/simple-music/pkg/simplemusic"
	"github.com/tendant/simple-music/pkg/simplemusic/metrics"
	"github.com/tendant/simple-music/pkg/simplemusic/objectkey"
	"github.com/tendant/simple-music/pkg/simplemusic/reconcile"
	"github.com/tendant/simple-music/pkg/simplemusic/repo/memory"
	repomongo "github.com/tendant/simple-music/pkg/simplemusic/repo/mongodb"
	repopg "github.com/tendant/simple-music/pkg/simplemusic/repo/postgres"
	"github.com/tendant/simple-music/pkg/simplemusic/staging"
	fsstorage "github.com/tendant/simple-music/pkg/simplemusic/storage/fs"
	memorystorage "github.com/tendant/simple-music/pkg/simplemusic/storage/memory"
	s3storage "github.com/tendant/simple-music/pkg/simplemusic/storage/s3"
)

// DevJWTSecret is the signing secret used when none is configured. It is
// rejected in production.
const DevJWTSecret = "simple-music-dev-secret"

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                  "8080",
		Environment:           "development",
		DatabaseType:          "memory",
		DBSchema:              "music",
		MongoDatabase:         "simple_music",
		DefaultStorageBackend: "memory",
		StorageBackends: []StorageBackendConfig{
			{
				Name:   "memory",
				Type:   "memory",
				Config: map[string]interface{}{},
			},
		},
		AudioFolder:        simplemusic.DefaultAudioFolder,
		ImageFolder:        simplemusic.DefaultImageFolder,
		ProfileFolder:      simplemusic.DefaultProfileFolder,
		RecentWindow:       simplemusic.DefaultRecentWindow,
		RecentLimit:        simplemusic.DefaultRecentLimit,
		BlobTimeout:        simplemusic.DefaultBlobTimeout,
		MaxUploadBytes:     100 << 20,
		JWTSecret:          DevJWTSecret,
		SessionTTL:         24 * time.Hour,
		EnableEventLogging: true,
		EnableMetrics:      true,
		ReconcileGrace:     reconcile.DefaultGrace,
	}
}

// ServerConfig represents server configuration for the simple-music service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL   string
	DatabaseType  string // "memory", "postgres", "mongodb"
	DBSchema      string // Postgres schema to use (default: music)
	MongoDatabase string // Mongo database name (default: simple_music)
	AutoMigrate   bool   // Create tables or indexes when connecting

	// Storage configuration
	DefaultStorageBackend string
	StorageBackends       []StorageBackendConfig

	// Staging area for inbound uploads
	StagingDir     string
	MaxUploadBytes int64 // 0 disables the per-file limit

	// Service tuning
	AudioFolder   string
	ImageFolder   string
	ProfileFolder string
	RecentWindow  int
	RecentLimit   int
	BlobTimeout   time.Duration

	// Authentication
	JWTSecret  string
	SessionTTL time.Duration

	// Server options
	EnableEventLogging bool
	EnableMetrics      bool

	// Orphan reconciliation; an empty schedule disables the job
	ReconcileSchedule string
	ReconcileGrace    time.Duration
	ReconcileDryRun   bool
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres", "mongodb":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when using %s", c.DatabaseType)
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'mongodb'")
	}

	if c.DatabaseType == "mongodb" && c.MongoDatabase == "" {
		return errors.New("mongo_database is required when using mongodb")
	}

	// Ensure default storage backend exists in configured backends
	if _, ok := c.storageBackend(c.DefaultStorageBackend); !ok {
		return fmt.Errorf("default storage backend '%s' not found in configured backends", c.DefaultStorageBackend)
	}

	if c.RecentWindow <= 0 {
		return errors.New("recent_window must be positive")
	}
	if c.RecentLimit <= 0 {
		return errors.New("recent_limit must be positive")
	}
	if c.MaxUploadBytes < 0 {
		return errors.New("max_upload_bytes cannot be negative")
	}

	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.Environment == "production" && c.JWTSecret == DevJWTSecret {
		return errors.New("jwt_secret must be set in production")
	}

	return nil
}

func (c *ServerConfig) storageBackend(name string) (StorageBackendConfig, bool) {
	for _, backend := range c.StorageBackends {
		if backend.Name == name {
			return backend, true
		}
	}
	return StorageBackendConfig{}, false
}

// Components holds the collaborators built from the configuration. Close
// releases database connections.
type Components struct {
	Repository simplemusic.Repository
	Store      reconcile.Store
	Stager     *staging.Area

	// Media serves stored objects when the filesystem backend is in use
	Media http.Handler

	closers []func()
}

// Close releases every resource held by the components
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// BuildComponents connects the repository and blob store selected by the
// configuration and prepares the staging area.
func (c *ServerConfig) BuildComponents(ctx context.Context) (*Components, error) {
	comps := &Components{}

	repo, closer, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	comps.Repository = repo
	if closer != nil {
		comps.closers = append(comps.closers, closer)
	}

	backendConfig, ok := c.storageBackend(c.DefaultStorageBackend)
	if !ok {
		comps.Close()
		return nil, fmt.Errorf("default storage backend '%s' not found", c.DefaultStorageBackend)
	}
	store, media, err := c.buildStorageBackend(backendConfig)
	if err != nil {
		comps.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", backendConfig.Name, err)
	}
	comps.Store = store
	comps.Media = media

	area, err := staging.New(staging.Config{Dir: c.StagingDir, MaxBytes: c.MaxUploadBytes})
	if err != nil {
		comps.Close()
		return nil, err
	}
	comps.Stager = area

	return comps, nil
}

// BuildService creates a Service instance over comps. Extra options are
// applied last, so callers can supply a session revoker or override defaults.
func (c *ServerConfig) BuildService(comps *Components, logger *slog.Logger, extra ...simplemusic.Option) (simplemusic.Service, error) {
	if comps == nil {
		return nil, errors.New("components are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	options := []simplemusic.Option{
		simplemusic.WithRepository(comps.Repository),
		simplemusic.WithBlobStore(comps.Store),
		simplemusic.WithStager(comps.Stager),
		simplemusic.WithLogger(logger),
		simplemusic.WithFolders(c.AudioFolder, c.ImageFolder, c.ProfileFolder),
		simplemusic.WithRecentWindow(c.RecentWindow),
		simplemusic.WithRecentLimit(c.RecentLimit),
		simplemusic.WithBlobTimeout(c.BlobTimeout),
	}

	var sinks simplemusic.MultiEventSink
	if c.EnableEventLogging {
		sinks = append(sinks, simplemusic.NewLoggingEventSink(logger))
	}
	if c.EnableMetrics {
		metrics.Register()
		sinks = append(sinks, metrics.NewSink())
		options = append(options, simplemusic.WithOperationObserver(metrics.ObserveOperation))
	}
	if len(sinks) > 0 {
		options = append(options, simplemusic.WithEventSink(sinks))
	}

	options = append(options, extra...)
	return simplemusic.New(options...)
}

// ReconcileFolders maps the configured folders onto their content class.
func (c *ServerConfig) ReconcileFolders() map[string]simplemusic.ContentClass {
	return map[string]simplemusic.ContentClass{
		c.AudioFolder:   simplemusic.ContentClassAudio,
		c.ImageFolder:   simplemusic.ContentClassImage,
		c.ProfileFolder: simplemusic.ContentClassImage,
	}
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (simplemusic.Repository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil, nil
	case "postgres":
		pool, err := newPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		repo := repopg.NewWithPool(pool)
		if c.AutoMigrate {
			if err := repo.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return repo, pool.Close, nil
	case "mongodb":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.DatabaseURL))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		disconnect := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		repo := repomongo.New(client.Database(c.MongoDatabase))
		if c.AutoMigrate {
			if err := repo.EnsureIndexes(ctx); err != nil {
				disconnect()
				return nil, nil, err
			}
		}
		return repo, disconnect, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func newPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required for postgres")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres and optionally sets search_path for the session.
// It fails if the schema (when provided) does not exist.
func PingPostgres(databaseURL, schema string) error {
	pool, err := newPool(context.Background(), databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// buildStorageBackend creates a blob store based on the backend configuration.
// The returned handler is non-nil only for the filesystem backend.
func (c *ServerConfig) buildStorageBackend(config StorageBackendConfig) (reconcile.Store, http.Handler, error) {
	keys, err := keyGenerator(getString(config.Config, "key_layout", "recommended"))
	if err != nil {
		return nil, nil, err
	}

	switch config.Type {
	case "memory":
		return memorystorage.New(memorystorage.WithKeyGenerator(keys)), nil, nil

	case "fs":
		fsConfig := fsstorage.Config{
			BaseDir:   getString(config.Config, "base_dir", "./data/storage"),
			URLPrefix: getString(config.Config, "url_prefix", ""),
			Keys:      keys,
		}
		backend, err := fsstorage.New(fsConfig)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Handler(), nil

	case "s3":
		s3Config := s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			PublicBaseURL:          getString(config.Config, "public_base_url", ""),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
			Keys:                   keys,
		}
		backend, err := s3storage.New(s3Config)
		if err != nil {
			return nil, nil, err
		}
		return backend, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func keyGenerator(layout string) (objectkey.Generator, error) {
	switch layout {
	case "", "recommended":
		return objectkey.NewRecommendedGenerator(), nil
	case "flat":
		return objectkey.NewFlatGenerator(), nil
	case "sharded":
		return objectkey.NewShardedGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported key_layout: %s", layout)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
