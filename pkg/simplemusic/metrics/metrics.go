// Package metrics defines the Prometheus collectors for simple-music and an
// EventSink that feeds them.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/simple-music/pkg/simplemusic"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// HTTP metrics.
var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplemusic_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simplemusic_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Lifecycle metrics.
var (
	// OperationsTotal counts finished lifecycle operations by name and outcome.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplemusic_operations_total",
			Help: "Lifecycle operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	// OperationDuration observes lifecycle operation latency in seconds.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simplemusic_operation_duration_seconds",
			Help:    "Lifecycle operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// SongEventsTotal counts song catalogue changes.
	SongEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplemusic_song_events_total",
			Help: "Songs created, updated and deleted",
		},
		[]string{"event"},
	)

	// PlaysTotal counts recorded plays.
	PlaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simplemusic_plays_total",
			Help: "Plays recorded in history",
		},
	)

	// CompensationsTotal counts compensating deletes by operation, content
	// class and outcome. A failed compensation leaves an orphan object.
	CompensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplemusic_compensations_total",
			Help: "Compensating deletes after failed operations",
		},
		[]string{"op", "class", "outcome"},
	)

	// CascadesTotal counts user-deletion cascades by role and outcome.
	CascadesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplemusic_cascades_total",
			Help: "User deletion cascades",
		},
		[]string{"role", "outcome"},
	)

	// CascadeSongDeletionsTotal counts per-song deletions inside cascades.
	CascadeSongDeletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplemusic_cascade_song_deletions_total",
			Help: "Song deletions performed by user cascades",
		},
		[]string{"outcome"},
	)
)

// Register registers all collectors with the default registry. It is safe
// to call multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			OperationsTotal,
			OperationDuration,
			SongEventsTotal,
			PlaysTotal,
			CompensationsTotal,
			CascadesTotal,
			CascadeSongDeletionsTotal,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency labelled with the chi route
// pattern, keeping label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveOperation is a simplemusic.WithOperationObserver callback.
func ObserveOperation(op *simplemusic.Operation) {
	outcome := "success"
	if op.Err != nil {
		outcome = "failure"
	}
	OperationsTotal.WithLabelValues(op.Name, outcome).Inc()
	if !op.StartedAt.IsZero() && !op.FinishedAt.IsZero() {
		OperationDuration.WithLabelValues(op.Name).Observe(op.FinishedAt.Sub(op.StartedAt).Seconds())
	}
}

// Sink is an EventSink that updates the collectors above.
type Sink struct{}

// NewSink creates a metrics event sink.
func NewSink() *Sink {
	return &Sink{}
}

var _ simplemusic.EventSink = (*Sink)(nil)

func (s *Sink) SongCreated(ctx context.Context, song *simplemusic.Song) error {
	SongEventsTotal.WithLabelValues("created").Inc()
	return nil
}

func (s *Sink) SongUpdated(ctx context.Context, song *simplemusic.Song) error {
	SongEventsTotal.WithLabelValues("updated").Inc()
	return nil
}

func (s *Sink) SongDeleted(ctx context.Context, songID uuid.UUID) error {
	SongEventsTotal.WithLabelValues("deleted").Inc()
	return nil
}

func (s *Sink) PlayRecorded(ctx context.Context, event *simplemusic.PlayEvent) error {
	PlaysTotal.Inc()
	return nil
}

func (s *Sink) CompensationRan(ctx context.Context, op string, class simplemusic.ContentClass, err error) error {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	CompensationsTotal.WithLabelValues(op, string(class), outcome).Inc()
	return nil
}

func (s *Sink) CascadeCompleted(ctx context.Context, result *simplemusic.CascadeResult) error {
	outcome := "complete"
	if result.Failed > 0 {
		outcome = "partial"
	}
	CascadesTotal.WithLabelValues(string(result.Role), outcome).Inc()
	CascadeSongDeletionsTotal.WithLabelValues("success").Add(float64(result.Succeeded))
	CascadeSongDeletionsTotal.WithLabelValues("failure").Add(float64(result.Failed))
	return nil
}
