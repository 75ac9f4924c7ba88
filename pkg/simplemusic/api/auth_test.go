package api

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions_RevokePrunesExpired(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := start

	s := NewSessions(time.Hour)
	s.now = func() time.Time { return clock }

	old := uuid.New()
	require.NoError(t, s.Revoke(ctx, old))
	assert.False(t, s.Valid(old, start.Add(-time.Minute)))

	clock = start.Add(30 * time.Minute)
	recent := uuid.New()
	require.NoError(t, s.Revoke(ctx, recent))
	assert.Equal(t, 2, s.Len(), "revocations inside the token lifetime are kept")

	clock = start.Add(80 * time.Minute)
	fresh := uuid.New()
	require.NoError(t, s.Revoke(ctx, fresh))
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Valid(old, start.Add(-time.Minute)), "pruned user has no revocation left")
	assert.False(t, s.Valid(recent, start.Add(29*time.Minute)))
	assert.False(t, s.Valid(fresh, clock.Add(-time.Minute)))
}

func TestSessions_NoTTLKeepsEverything(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	s := NewSessions(0)
	s.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Revoke(ctx, uuid.New()))
		clock = clock.Add(48 * time.Hour)
	}
	assert.Equal(t, 3, s.Len())
}
