package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/tendant/simple-music/internal/logging"
	"github.com/tendant/simple-music/pkg/simplemusic"
	"github.com/tendant/simple-music/pkg/simplemusic/api"
	"github.com/tendant/simple-music/pkg/simplemusic/config"
	"github.com/tendant/simple-music/pkg/simplemusic/reconcile"
)

// ProcessConfig holds the settings of the process itself. Service settings
// are read by config.Load.
type ProcessConfig struct {
	ConfigFile       string        `env:"CONFIG_FILE" env-default:""`
	EnvPrefix        string        `env:"ENV_PREFIX" env-default:""`
	LogLevel         string        `env:"LOG_LEVEL" env-default:"info"`
	LogFormat        string        `env:"LOG_FORMAT" env-default:"text"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	ReconcileTimeout time.Duration `env:"RECONCILE_TIMEOUT" env-default:"1h"`
}

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	var process ProcessConfig
	if err := cleanenv.ReadEnv(&process); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read process environment: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(process.LogLevel, process.LogFormat, os.Stdout)

	if err := run(process, logger); err != nil {
		logger.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run(process ProcessConfig, logger *slog.Logger) error {
	var opts []config.Option
	if process.ConfigFile != "" {
		opts = append(opts, config.WithFile(process.ConfigFile))
	}
	opts = append(opts, config.WithEnv(process.EnvPrefix))

	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := context.Background()
	comps, err := cfg.BuildComponents(ctx)
	if err != nil {
		return fmt.Errorf("failed to build components: %w", err)
	}
	defer comps.Close()

	sessions := api.NewSessions(cfg.SessionTTL)
	svc, err := cfg.BuildService(comps, logger, simplemusic.WithSessionRevoker(sessions))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	auth := api.NewAuth(cfg.JWTSecret, cfg.SessionTTL, sessions, svc)
	auth.SecureCookies(cfg.Environment == "production")

	// audio and cover together, plus room for the form fields
	var maxBody int64
	if cfg.MaxUploadBytes > 0 {
		maxBody = 2*cfg.MaxUploadBytes + 1<<20
	}

	handler := api.NewRouter(api.RouterConfig{
		Service:       svc,
		Auth:          auth,
		Logger:        logger,
		Media:         comps.Media,
		EnableMetrics: cfg.EnableMetrics,
		MaxBodyBytes:  maxBody,
	})

	var scheduler *reconcile.Scheduler
	if cfg.ReconcileSchedule != "" {
		reconciler := reconcile.New(comps.Repository, comps.Store, logger)
		scheduler, err = reconcile.NewScheduler(reconciler, cfg.ReconcileSchedule, reconcile.Options{
			Folders: cfg.ReconcileFolders(),
			Grace:   cfg.ReconcileGrace,
			DryRun:  cfg.ReconcileDryRun,
		}, process.ReconcileTimeout, logger)
		if err != nil {
			return fmt.Errorf("failed to create reconcile scheduler: %w", err)
		}
		scheduler.Start()
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"database", cfg.DatabaseType,
			"storage", cfg.DefaultStorageBackend,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-stop:
		logger.Info("Shutting down server", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), process.ShutdownTimeout)
	defer cancel()

	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("Reconcile scheduler did not stop cleanly", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}
