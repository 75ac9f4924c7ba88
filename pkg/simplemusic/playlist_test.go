package simplemusic_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-music/pkg/simplemusic"
)

func TestPlaylists(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t)
	creator := env.creator(t, "cre@example.com")
	fan := env.listener(t, "fan@example.com")
	a := env.publish(t, creator, "a")
	b := env.publish(t, creator, "b")

	playlist, err := env.svc.CreatePlaylist(ctx, fan, simplemusic.CreatePlaylistRequest{Name: " Road trip ", Description: "loud"})
	require.NoError(t, err)
	assert.Equal(t, "Road trip", playlist.Name)
	assert.Empty(t, playlist.SongIDs)

	user, err := env.svc.GetUser(ctx, fan.UserID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{playlist.ID}, user.PlaylistIDs)

	t.Run("name required", func(t *testing.T) {
		_, err := env.svc.CreatePlaylist(ctx, fan, simplemusic.CreatePlaylistRequest{Name: "  "})
		assert.ErrorIs(t, err, simplemusic.ErrMissingPlaylistName)
	})

	t.Run("add keeps insertion order", func(t *testing.T) {
		_, err := env.svc.AddSongToPlaylist(ctx, fan, playlist.ID, b.ID)
		require.NoError(t, err)
		updated, err := env.svc.AddSongToPlaylist(ctx, fan, playlist.ID, a.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{b.ID, a.ID}, updated.SongIDs)

		view, err := env.svc.GetPlaylist(ctx, playlist.ID)
		require.NoError(t, err)
		require.Len(t, view.Songs, 2)
		assert.Equal(t, "b", view.Songs[0].Title)
		assert.Equal(t, "a", view.Songs[1].Title)
	})

	t.Run("duplicate add is rejected without mutation", func(t *testing.T) {
		_, err := env.svc.AddSongToPlaylist(ctx, fan, playlist.ID, a.ID)
		assert.ErrorIs(t, err, simplemusic.ErrSongAlreadyInPlaylist)

		view, err := env.svc.GetPlaylist(ctx, playlist.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{b.ID, a.ID}, view.SongIDs)
	})

	t.Run("missing song cannot be added", func(t *testing.T) {
		_, err := env.svc.AddSongToPlaylist(ctx, fan, playlist.ID, uuid.New())
		assert.ErrorIs(t, err, simplemusic.ErrSongNotFound)
	})

	t.Run("other users cannot modify", func(t *testing.T) {
		_, err := env.svc.AddSongToPlaylist(ctx, creator, playlist.ID, a.ID)
		assert.ErrorIs(t, err, simplemusic.ErrNotOwner)
		_, err = env.svc.RemoveSongFromPlaylist(ctx, creator, playlist.ID, a.ID)
		assert.ErrorIs(t, err, simplemusic.ErrNotOwner)
		err = env.svc.DeletePlaylist(ctx, creator, playlist.ID)
		assert.ErrorIs(t, err, simplemusic.ErrNotOwner)
		name := "hijacked"
		_, err = env.svc.UpdatePlaylist(ctx, creator, simplemusic.UpdatePlaylistRequest{PlaylistID: playlist.ID, Name: &name})
		assert.ErrorIs(t, err, simplemusic.ErrNotOwner)
	})

	t.Run("remove", func(t *testing.T) {
		updated, err := env.svc.RemoveSongFromPlaylist(ctx, fan, playlist.ID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{a.ID}, updated.SongIDs)

		_, err = env.svc.RemoveSongFromPlaylist(ctx, fan, playlist.ID, b.ID)
		assert.ErrorIs(t, err, simplemusic.ErrSongNotInPlaylist)
	})

	t.Run("update leaves songs alone", func(t *testing.T) {
		name := "Night drive"
		updated, err := env.svc.UpdatePlaylist(ctx, fan, simplemusic.UpdatePlaylistRequest{PlaylistID: playlist.ID, Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "Night drive", updated.Name)
		assert.Equal(t, "loud", updated.Description)

		view, err := env.svc.GetPlaylist(ctx, playlist.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{a.ID}, view.SongIDs)
	})

	t.Run("list resolves songs", func(t *testing.T) {
		second, err := env.svc.CreatePlaylist(ctx, fan, simplemusic.CreatePlaylistRequest{Name: "empty"})
		require.NoError(t, err)

		views, err := env.svc.ListPlaylists(ctx, fan)
		require.NoError(t, err)
		require.Len(t, views, 2)
		assert.Equal(t, second.ID, views[0].ID, "newest first")
		assert.Empty(t, views[0].Songs)
		require.Len(t, views[1].Songs, 1)
		assert.Equal(t, a.ID, views[1].Songs[0].ID)
	})

	t.Run("dangling references are skipped on read", func(t *testing.T) {
		ghost := uuid.New()
		require.NoError(t, env.repo.Repository.AddSongToPlaylist(ctx, playlist.ID, ghost))

		view, err := env.svc.GetPlaylist(ctx, playlist.ID)
		require.NoError(t, err)
		assert.Contains(t, view.SongIDs, ghost)
		assert.Len(t, view.Songs, 1)
	})

	t.Run("delete drops the back-reference", func(t *testing.T) {
		require.NoError(t, env.svc.DeletePlaylist(ctx, fan, playlist.ID))
		_, err := env.svc.GetPlaylist(ctx, playlist.ID)
		assert.ErrorIs(t, err, simplemusic.ErrPlaylistNotFound)

		user, err := env.svc.GetUser(ctx, fan.UserID)
		require.NoError(t, err)
		assert.NotContains(t, user.PlaylistIDs, playlist.ID)
	})
}
