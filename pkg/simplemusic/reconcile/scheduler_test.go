package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-music/pkg/simplemusic"
	"github.com/tendant/simple-music/pkg/simplemusic/mediaprobe"
	"github.com/tendant/simple-music/pkg/simplemusic/reconcile"
	memorystorage "github.com/tendant/simple-music/pkg/simplemusic/storage/memory"
)

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	r := reconcile.New(stubRefs{}, memorystorage.New(), nil)

	_, err := reconcile.NewScheduler(r, "every now and then", reconcile.Options{}, time.Minute, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid reconcile schedule")
}

func TestScheduler_RunNowAndStop(t *testing.T) {
	ctx := context.Background()
	store := memorystorage.New(
		memorystorage.WithProber(mediaprobe.Fixed(1)),
		memorystorage.WithClock(func() time.Time { return epoch }),
	)
	orphan := put(t, store, simplemusic.ContentClassImage, simplemusic.DefaultImageFolder)

	r := reconcile.New(stubRefs{}, store, nil)
	s, err := reconcile.NewScheduler(r, "@daily", reconcile.Options{
		DryRun: true,
		Now:    func() time.Time { return later },
	}, time.Minute, nil)
	require.NoError(t, err)

	s.Start()

	result, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Orphaned)
	assert.Equal(t, int64(0), result.Deleted)
	assert.Equal(t, []string{orphan}, result.OrphanURLs)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(stopCtx))
}
