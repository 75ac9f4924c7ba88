// Package api exposes the simple-music service over HTTP. It resolves the
// caller from the session token and maps service errors onto status codes;
// all invariants live in the service.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/tendant/simple-music/pkg/simplemusic"
	"github.com/tendant/simple-music/pkg/simplemusic/metrics"
)

// MediaPrefix is where stored objects are served when a media handler is set
const MediaPrefix = "/media"

// RouterConfig holds the collaborators of the HTTP surface
type RouterConfig struct {
	Service simplemusic.Service
	Auth    *Auth
	Logger  *slog.Logger

	// Media serves stored objects under MediaPrefix (optional)
	Media http.Handler

	// EnableMetrics mounts /metrics and records request metrics
	EnableMetrics bool

	// MaxBodyBytes bounds every request body; 0 disables the limit
	MaxBodyBytes int64

	// PasswordCost is the bcrypt cost for new passwords (default: bcrypt.DefaultCost)
	PasswordCost int
}

// NewRouter builds the HTTP handler
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(Recoverer(cfg.Logger))
	if cfg.EnableMetrics {
		metrics.Register()
		r.Use(metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	if cfg.EnableMetrics {
		r.Handle("/metrics", metrics.Handler())
	}
	if cfg.Media != nil {
		r.Handle(MediaPrefix+"/*", http.StripPrefix(MediaPrefix, cfg.Media))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RequestSizeLimit(cfg.MaxBodyBytes))
		r.Mount("/users", NewUsersHandler(cfg.Service, cfg.Auth, cfg.PasswordCost).Routes())
		r.Mount("/songs", NewSongsHandler(cfg.Service, cfg.Auth).Routes())
		r.Mount("/playlists", NewPlaylistsHandler(cfg.Service, cfg.Auth).Routes())
	})

	return r
}
