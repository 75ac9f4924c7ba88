package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-music/pkg/simplemusic"
)

func TestRegisterIsIdempotent(t *testing.T) {
	Register()
	assert.NotPanics(t, Register)
}

func TestSink(t *testing.T) {
	ctx := context.Background()
	sink := NewSink()

	created := testutil.ToFloat64(SongEventsTotal.WithLabelValues("created"))
	require.NoError(t, sink.SongCreated(ctx, &simplemusic.Song{}))
	assert.Equal(t, created+1, testutil.ToFloat64(SongEventsTotal.WithLabelValues("created")))

	deleted := testutil.ToFloat64(SongEventsTotal.WithLabelValues("deleted"))
	require.NoError(t, sink.SongDeleted(ctx, uuid.New()))
	assert.Equal(t, deleted+1, testutil.ToFloat64(SongEventsTotal.WithLabelValues("deleted")))

	plays := testutil.ToFloat64(PlaysTotal)
	require.NoError(t, sink.PlayRecorded(ctx, &simplemusic.PlayEvent{}))
	assert.Equal(t, plays+1, testutil.ToFloat64(PlaysTotal))

	failed := testutil.ToFloat64(CompensationsTotal.WithLabelValues("create_song", "audio", "failure"))
	require.NoError(t, sink.CompensationRan(ctx, "create_song", simplemusic.ContentClassAudio, errors.New("boom")))
	assert.Equal(t, failed+1, testutil.ToFloat64(CompensationsTotal.WithLabelValues("create_song", "audio", "failure")))

	partial := testutil.ToFloat64(CascadesTotal.WithLabelValues("creator", "partial"))
	songFailures := testutil.ToFloat64(CascadeSongDeletionsTotal.WithLabelValues("failure"))
	require.NoError(t, sink.CascadeCompleted(ctx, &simplemusic.CascadeResult{
		Role: simplemusic.RoleCreator, Attempted: 3, Succeeded: 1, Failed: 2,
	}))
	assert.Equal(t, partial+1, testutil.ToFloat64(CascadesTotal.WithLabelValues("creator", "partial")))
	assert.Equal(t, songFailures+2, testutil.ToFloat64(CascadeSongDeletionsTotal.WithLabelValues("failure")))
}

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("delete_song", "failure"))
	start := time.Now()
	ObserveOperation(&simplemusic.Operation{
		Name:       "delete_song",
		Err:        errors.New("sweep failed"),
		StartedAt:  start,
		FinishedAt: start.Add(10 * time.Millisecond),
	})
	assert.Equal(t, before+1, testutil.ToFloat64(OperationsTotal.WithLabelValues("delete_song", "failure")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/songs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/songs/{id}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/songs/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/songs/{id}", "418")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	Register()
	PlaysTotal.Add(0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "simplemusic_plays_total"))
}
