package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-music/pkg/simplemusic"
	"github.com/tendant/simple-music/pkg/simplemusic/repo/memory"
	"github.com/tendant/simple-music/pkg/simplemusic/repo/repotest"
)

func TestMemoryRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) simplemusic.Repository {
		return memory.New()
	})
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	playlist := repotest.NewPlaylist(uuid.New(), "Mine", 0)
	require.NoError(t, repo.CreatePlaylist(ctx, playlist))
	require.NoError(t, repo.AddSongToPlaylist(ctx, playlist.ID, uuid.New()))

	got, err := repo.GetPlaylist(ctx, playlist.ID)
	require.NoError(t, err)
	got.SongIDs[0] = uuid.Nil
	got.Name = "changed"

	again, err := repo.GetPlaylist(ctx, playlist.ID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, again.SongIDs[0])
	assert.Equal(t, "Mine", again.Name)
}

func TestMemoryRepositoryConcurrency(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	song := repotest.NewSong(uuid.New(), "Hot", 0)
	require.NoError(t, repo.CreateSong(ctx, song))
	playlist := repotest.NewPlaylist(uuid.New(), "Shared", 0)
	require.NoError(t, repo.CreatePlaylist(ctx, playlist))

	const workers = 50
	var wg sync.WaitGroup
	var addErrs sync.Map
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.IncrementPlayCount(ctx, song.ID)
			assert.NoError(t, err)
			if err := repo.AddSongToPlaylist(ctx, playlist.ID, song.ID); err != nil {
				addErrs.Store(i, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := repo.GetSong(ctx, song.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), got.PlayCount)

	p, err := repo.GetPlaylist(ctx, playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{song.ID}, p.SongIDs, "concurrent adds never duplicate")

	rejected := 0
	addErrs.Range(func(_, v any) bool {
		assert.ErrorIs(t, v.(error), simplemusic.ErrSongAlreadyInPlaylist)
		rejected++
		return true
	})
	assert.Equal(t, workers-1, rejected)
}
