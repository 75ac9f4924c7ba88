package simplemusic_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-music/pkg/simplemusic"
	"github.com/tendant/simple-music/pkg/simplemusic/repo/memory"
	memorystorage "github.com/tendant/simple-music/pkg/simplemusic/storage/memory"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []simplemusic.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []simplemusic.Option{},
			expectError: true,
		},
		{
			name: "repository without blob store should fail",
			options: []simplemusic.Option{
				simplemusic.WithRepository(memory.New()),
			},
			expectError: true,
		},
		{
			name: "with repository and blob store should succeed",
			options: []simplemusic.Option{
				simplemusic.WithRepository(memory.New()),
				simplemusic.WithBlobStore(memorystorage.New()),
			},
			expectError: false,
		},
		{
			name: "non-positive recent limit should fail",
			options: []simplemusic.Option{
				simplemusic.WithRepository(memory.New()),
				simplemusic.WithBlobStore(memorystorage.New()),
				simplemusic.WithRecentLimit(0),
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := simplemusic.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestCreateSong(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes audio and cover", func(t *testing.T) {
		env := setupTestService(t)
		creator := env.creator(t, "cre@example.com")

		song, err := env.svc.CreateSong(ctx, creator, simplemusic.CreateSongRequest{
			Title:    "  Blue Monday  ",
			Artist:   "New Order",
			Category: "synth",
			Audio:    upload("blue.mp3", "audio bytes"),
			Cover:    upload("blue.png", "cover bytes"),
		})
		require.NoError(t, err)

		assert.Equal(t, "Blue Monday", song.Title)
		assert.Equal(t, creator.UserID, song.OwnerID)
		assert.Equal(t, testDuration, song.Duration)
		assert.True(t, strings.HasPrefix(song.AudioURL, "memory://songs/audio/"))
		assert.True(t, strings.HasPrefix(song.CoverURL, "memory://songs/images/"))
		assert.True(t, env.blobs.Has(song.AudioURL))
		assert.True(t, env.blobs.Has(song.CoverURL))
		assert.Zero(t, song.PlayCount)

		stored, err := env.svc.GetSong(ctx, song.ID)
		require.NoError(t, err)
		assert.Equal(t, song.AudioURL, stored.AudioURL)

		assert.Equal(t, []uuid.UUID{song.ID}, env.sink.created)
		op := env.lastOp("create_song")
		require.NotNil(t, op)
		assert.Equal(t, []simplemusic.OpState{
			simplemusic.StateValidating,
			simplemusic.StateUploading,
			simplemusic.StatePersisting,
			simplemusic.StateDone,
		}, op.States)
	})

	t.Run("validation order", func(t *testing.T) {
		tests := []struct {
			name    string
			listen  bool
			req     simplemusic.CreateSongRequest
			wantErr error
		}{
			{
				name:    "listener rejected before anything else",
				listen:  true,
				req:     simplemusic.CreateSongRequest{},
				wantErr: simplemusic.ErrCreatorRequired,
			},
			{
				name:    "missing audio",
				req:     simplemusic.CreateSongRequest{Title: "x", Cover: upload("c.png", "c")},
				wantErr: simplemusic.ErrMissingAudio,
			},
			{
				name:    "missing cover",
				req:     simplemusic.CreateSongRequest{Title: "x", Audio: upload("a.mp3", "a")},
				wantErr: simplemusic.ErrMissingCover,
			},
			{
				name:    "blank title",
				req:     simplemusic.CreateSongRequest{Title: "   ", Audio: upload("a.mp3", "a"), Cover: upload("c.png", "c")},
				wantErr: simplemusic.ErrMissingTitle,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				env := setupTestService(t)
				caller := env.creator(t, "cre@example.com")
				if tt.listen {
					caller = env.listener(t, "lis@example.com")
				}

				_, err := env.svc.CreateSong(ctx, caller, tt.req)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, env.blobs.uploadCount(), "no upload before validation passes")
				assert.Zero(t, env.blobs.Len())
			})
		}
	})

	t.Run("error classes are distinct", func(t *testing.T) {
		env := setupTestService(t)
		_, err := env.svc.CreateSong(ctx, env.listener(t, "lis@example.com"), simplemusic.CreateSongRequest{})
		assert.ErrorIs(t, err, simplemusic.ErrUnauthorized)
		assert.NotErrorIs(t, err, simplemusic.ErrValidation)
	})

	t.Run("cover failure removes uploaded audio", func(t *testing.T) {
		env := setupTestService(t)
		creator := env.creator(t, "cre@example.com")
		env.blobs.setUploadFailure(simplemusic.ContentClassImage, errors.New("quota exceeded"))

		_, err := env.svc.CreateSong(ctx, creator, simplemusic.CreateSongRequest{
			Title: "Doomed",
			Audio: upload("d.mp3", "a"),
			Cover: upload("d.png", "c"),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, simplemusic.ErrUpstreamStorage)

		var storageErr *simplemusic.StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, simplemusic.ContentClassImage, storageErr.Class)

		assert.Zero(t, env.blobs.Len(), "audio compensated")
		songs, err := env.svc.SearchSongs(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, songs)
		assert.Empty(t, env.sink.created)
		assert.Equal(t, []error{nil}, env.sink.compensations)

		op := env.lastOp("create_song")
		require.NotNil(t, op)
		assert.Equal(t, []simplemusic.OpState{
			simplemusic.StateValidating,
			simplemusic.StateUploading,
			simplemusic.StateCompensating,
			simplemusic.StateFailed,
		}, op.States)
		require.Len(t, op.Compensations, 1)
		assert.Equal(t, simplemusic.ContentClassAudio, op.Compensations[0].Class)
	})

	t.Run("audio failure uploads nothing else", func(t *testing.T) {
		env := setupTestService(t)
		creator := env.creator(t, "cre@example.com")
		env.blobs.setUploadFailure(simplemusic.ContentClassAudio, errors.New("network down"))

		_, err := env.svc.CreateSong(ctx, creator, simplemusic.CreateSongRequest{
			Title: "Doomed",
			Audio: upload("d.mp3", "a"),
			Cover: upload("d.png", "c"),
		})
		assert.ErrorIs(t, err, simplemusic.ErrUpstreamStorage)
		assert.Equal(t, 1, env.blobs.uploadCount())
		assert.Zero(t, env.blobs.Len())
	})

	t.Run("record failure removes both objects", func(t *testing.T) {
		env := setupTestService(t)
		creator := env.creator(t, "cre@example.com")
		env.repo.createSongErr = errors.New("disk full")

		_, err := env.svc.CreateSong(ctx, creator, simplemusic.CreateSongRequest{
			Title: "Doomed",
			Audio: upload("d.mp3", "a"),
			Cover: upload("d.png", "c"),
		})
		var songErr *simplemusic.SongError
		require.ErrorAs(t, err, &songErr)
		assert.Equal(t, "create", songErr.Op)
		assert.Zero(t, env.blobs.Len())
		assert.Len(t, env.lastOp("create_song").Compensations, 2)
	})

	t.Run("staging failure is a storage failure", func(t *testing.T) {
		env := setupTestService(t)
		creator := env.creator(t, "cre@example.com")

		_, err := env.svc.CreateSong(ctx, creator, simplemusic.CreateSongRequest{
			Title: "Broken pipe",
			Audio: &simplemusic.Upload{FileName: "a.mp3", Reader: eofReader{err: errors.New("client went away")}},
			Cover: upload("c.png", "c"),
		})
		assert.ErrorIs(t, err, simplemusic.ErrUpstreamStorage)
		assert.Zero(t, env.blobs.uploadCount())
	})

	t.Run("slow blob store times out", func(t *testing.T) {
		env := setupTestService(t, simplemusic.WithBlobTimeout(20*time.Millisecond))
		creator := env.creator(t, "cre@example.com")
		env.blobs.uploadDelay = time.Second

		start := time.Now()
		_, err := env.svc.CreateSong(ctx, creator, simplemusic.CreateSongRequest{
			Title: "Slow",
			Audio: upload("s.mp3", "a"),
			Cover: upload("s.png", "c"),
		})
		assert.ErrorIs(t, err, simplemusic.ErrUpstreamStorage)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})
}

func TestUpdateSong(t *testing.T) {
	ctx := context.Background()

	t.Run("cover replacement keeps audio and duration", func(t *testing.T) {
		env := setupTestService(t)
		creator := env.creator(t, "cre@example.com")
		song := env.publish(t, creator, "first")

		_, err := env.svc.RecordPlay(ctx, creator, song.ID)
		require.NoError(t, err)

		title := "renamed"
		updated, err := env.svc.UpdateSong(ctx, creator, simplemusic.UpdateSongRequest{
			SongID: song.ID,
			Title:  &title,
			Cover:  upload("new.png", "new cover"),
		})
		require.NoError(t, err)

		assert.Equal(t, "renamed", updated.Title)
		assert.Equal(t, "Artist", updated.Artist, "absent fields are untouched")
		assert.Equal(t, song.AudioURL, updated.AudioURL)
		assert.Equal(t, song.Duration, updated.Duration)
		assert.NotEqual(t, song.CoverURL, updated.CoverURL)
		assert.False(t, env.blobs.Has(song.CoverURL), "previous cover deleted")
		assert.True(t, env.blobs.Has(updated.CoverURL))

		stored, err := env.svc.GetSong(ctx, song.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.PlayCount, "update never resets the play counter")
		assert.Equal(t, []uuid.UUID{song.ID}, env.sink.updated)
	})

	t.Run("audio replacement updates duration", func(t *testing.T) {
		env := setupTestService(t)
		creator := env.creator(t, "cre@example.com")
		song := env.publish(t, creator, "first")

		updated, err := env.svc.UpdateSong(ctx, creator, simplemusic.UpdateSongRequest{
			SongID: song.ID,
			Audio:  upload("new.mp3", "new audio"),
		})
		require.NoError(t, err)
		assert.NotEqual(t, song.AudioURL, updated.AudioURL)
		assert.Equal(t, testDuration, updated.Duration)
		assert.False(t, env.blobs.Has(song.AudioURL))
		assert.Equal(t, song.CoverURL, updated.CoverURL)
		assert.Equal(t, 2, env.blobs.Len())
	})

	t.Run("failed cover upload leaves the old objects", func(t *testing.T) {
		env := setupTestService(t)
		creator := env.creator(t, "cre@example.com")
		song := env.publish(t, creator, "first")
		env.blobs.setUploadFailure(simplemusic.ContentClassImage, errors.New("quota"))

		_, err := env.svc.UpdateSong(ctx, creator, simplemusic.UpdateSongRequest{
			SongID: song.ID,
			Audio:  upload("new.mp3", "new audio"),
			Cover:  upload("new.png", "new cover"),
		})
		assert.ErrorIs(t, err, simplemusic.ErrUpstreamStorage)

		stored, err := env.svc.GetSong(ctx, song.ID)
		require.NoError(t, err)
		assert.Equal(t, song.AudioURL, stored.AudioURL)
		assert.Equal(t, song.CoverURL, stored.CoverURL)
		assert.True(t, env.blobs.Has(song.AudioURL))
		assert.True(t, env.blobs.Has(song.CoverURL))
		assert.Equal(t, 2, env.blobs.Len(), "new audio compensated")
	})

	t.Run("record failure keeps new objects", func(t *testing.T) {
		env := setupTestService(t)
		creator := env.creator(t, "cre@example.com")
		song := env.publish(t, creator, "first")
		env.repo.updateSongErr = errors.New("write conflict")

		_, err := env.svc.UpdateSong(ctx, creator, simplemusic.UpdateSongRequest{
			SongID: song.ID,
			Cover:  upload("new.png", "new cover"),
		})
		var songErr *simplemusic.SongError
		require.ErrorAs(t, err, &songErr)
		assert.Equal(t, "update", songErr.Op)
		assert.Equal(t, 2, env.blobs.Len())
	})

	t.Run("only the owner may update", func(t *testing.T) {
		env := setupTestService(t)
		owner := env.creator(t, "own@example.com")
		other := env.creator(t, "oth@example.com")
		song := env.publish(t, owner, "mine")

		_, err := env.svc.UpdateSong(ctx, other, simplemusic.UpdateSongRequest{
			SongID: song.ID,
			Cover:  upload("x.png", "x"),
		})
		assert.ErrorIs(t, err, simplemusic.ErrNotOwner)
		assert.Equal(t, 2, env.blobs.Len(), "nothing uploaded for a rejected caller")
	})

	t.Run("missing song", func(t *testing.T) {
		env := setupTestService(t)
		_, err := env.svc.UpdateSong(ctx, env.creator(t, "cre@example.com"), simplemusic.UpdateSongRequest{SongID: uuid.New()})
		assert.ErrorIs(t, err, simplemusic.ErrNotFound)
	})
}

func TestDeleteSong(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the song from every playlist", func(t *testing.T) {
		env := setupTestService(t)
		creator := env.creator(t, "cre@example.com")
		fan := env.listener(t, "fan@example.com")
		song := env.publish(t, creator, "hit")
		keep := env.publish(t, creator, "keeper")

		var playlistIDs []uuid.UUID
		for _, caller := range []simplemusic.Caller{creator, fan} {
			p, err := env.svc.CreatePlaylist(ctx, caller, simplemusic.CreatePlaylistRequest{Name: "mix"})
			require.NoError(t, err)
			_, err = env.svc.AddSongToPlaylist(ctx, caller, p.ID, song.ID)
			require.NoError(t, err)
			_, err = env.svc.AddSongToPlaylist(ctx, caller, p.ID, keep.ID)
			require.NoError(t, err)
			playlistIDs = append(playlistIDs, p.ID)
		}
		_, err := env.svc.RecordPlay(ctx, fan, song.ID)
		require.NoError(t, err)

		require.NoError(t, env.svc.DeleteSong(ctx, creator, song.ID))

		for _, id := range playlistIDs {
			view, err := env.svc.GetPlaylist(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, []uuid.UUID{keep.ID}, view.SongIDs)
		}
		_, err = env.svc.GetSong(ctx, song.ID)
		assert.ErrorIs(t, err, simplemusic.ErrSongNotFound)
		assert.False(t, env.blobs.Has(song.AudioURL))
		assert.False(t, env.blobs.Has(song.CoverURL))
		assert.Equal(t, 2, env.blobs.Len())

		recent, err := env.svc.RecentSongs(ctx, fan.UserID)
		require.NoError(t, err)
		assert.Empty(t, recent)
		assert.Equal(t, []uuid.UUID{song.ID}, env.sink.deleted)

		op := env.lastOp("delete_song")
		require.NotNil(t, op)
		assert.Equal(t, []simplemusic.OpState{
			simplemusic.StateValidating,
			simplemusic.StateSweeping,
			simplemusic.StateDeleting,
			simplemusic.StatePersisting,
			simplemusic.StateDone,
		}, op.States)
	})

	t.Run("sweep failure aborts before anything is deleted", func(t *testing.T) {
		env := setupTestService(t)
		creator := env.creator(t, "cre@example.com")
		song := env.publish(t, creator, "hit")
		env.repo.stripErr = errors.New("timeout")

		err := env.svc.DeleteSong(ctx, creator, song.ID)
		var songErr *simplemusic.SongError
		require.ErrorAs(t, err, &songErr)
		assert.Equal(t, "sweep", songErr.Op)

		_, err = env.svc.GetSong(ctx, song.ID)
		assert.NoError(t, err)
		assert.Equal(t, 2, env.blobs.Len())
	})

	t.Run("blob failures do not keep the record", func(t *testing.T) {
		env := setupTestService(t)
		creator := env.creator(t, "cre@example.com")
		song := env.publish(t, creator, "hit")
		env.blobs.failDelete = errors.New("access denied")

		require.NoError(t, env.svc.DeleteSong(ctx, creator, song.ID))
		_, err := env.svc.GetSong(ctx, song.ID)
		assert.ErrorIs(t, err, simplemusic.ErrSongNotFound)
	})

	t.Run("already absent objects are fine", func(t *testing.T) {
		env := setupTestService(t)
		creator := env.creator(t, "cre@example.com")
		song := env.publish(t, creator, "hit")
		require.NoError(t, env.blobs.Backend.Delete(ctx, song.CoverURL, simplemusic.ContentClassImage))

		require.NoError(t, env.svc.DeleteSong(ctx, creator, song.ID))
		assert.Zero(t, env.blobs.Len())
	})

	t.Run("only the owner may delete", func(t *testing.T) {
		env := setupTestService(t)
		owner := env.creator(t, "own@example.com")
		song := env.publish(t, owner, "mine")

		err := env.svc.DeleteSong(ctx, env.creator(t, "oth@example.com"), song.ID)
		assert.ErrorIs(t, err, simplemusic.ErrNotOwner)
		assert.Equal(t, 2, env.blobs.Len())
	})

	t.Run("stripping an unreferenced song is a no-op", func(t *testing.T) {
		env := setupTestService(t)
		n, err := env.svc.StripSongFromAllPlaylists(ctx, uuid.New())
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestSearchAndListSongs(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t)
	creator := env.creator(t, "cre@example.com")
	env.publish(t, creator, "Morning Jazz")
	env.publish(t, creator, "Evening Rock")

	songs, err := env.svc.SearchSongs(ctx, "  JAZZ ")
	require.NoError(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, "Morning Jazz", songs[0].Title)

	all, err := env.svc.SearchSongs(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := env.svc.ListCreatorSongs(ctx, creator)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = env.svc.ListCreatorSongs(ctx, env.listener(t, "lis@example.com"))
	assert.ErrorIs(t, err, simplemusic.ErrCreatorRequired)
}
