// Package repotest holds the behavioural test suite every
// simplemusic.Repository implementation must pass.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-music/pkg/simplemusic"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) simplemusic.Repository

// Run executes the suite against repositories built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("Songs", func(t *testing.T) { testSongs(t, newRepo(t)) })
	t.Run("Search", func(t *testing.T) { testSearch(t, newRepo(t)) })
	t.Run("PlayCount", func(t *testing.T) { testPlayCount(t, newRepo(t)) })
	t.Run("Playlists", func(t *testing.T) { testPlaylists(t, newRepo(t)) })
	t.Run("BulkRemove", func(t *testing.T) { testBulkRemove(t, newRepo(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newRepo(t)) })
	t.Run("History", func(t *testing.T) { testHistory(t, newRepo(t)) })
	t.Run("ReferencedObjectURLs", func(t *testing.T) { testReferenced(t, newRepo(t)) })
}

// base is truncated to microseconds so every backend round-trips it exactly.
var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// NewSong returns a song owned by owner created offset after a fixed base time.
func NewSong(owner uuid.UUID, title string, offset time.Duration) *simplemusic.Song {
	id := uuid.New()
	return &simplemusic.Song{
		ID:        id,
		Title:     title,
		Artist:    "Artist " + title,
		Album:     "Album",
		Category:  "pop",
		Duration:  180.5,
		AudioURL:  "memory://songs/audio/" + id.String() + ".mp3",
		CoverURL:  "memory://songs/images/" + id.String() + ".png",
		OwnerID:   owner,
		CreatedAt: base.Add(offset),
		UpdatedAt: base.Add(offset),
	}
}

// NewPlaylist returns an empty playlist owned by owner.
func NewPlaylist(owner uuid.UUID, name string, offset time.Duration) *simplemusic.Playlist {
	return &simplemusic.Playlist{
		ID:        uuid.New(),
		Name:      name,
		OwnerID:   owner,
		SongIDs:   []uuid.UUID{},
		CreatedAt: base.Add(offset),
		UpdatedAt: base.Add(offset),
	}
}

// NewUser returns a listener with the given email.
func NewUser(email string) *simplemusic.User {
	return &simplemusic.User{
		ID:           uuid.New(),
		Name:         "Test User",
		Email:        email,
		PasswordHash: "hash",
		Role:         simplemusic.RoleListener,
		PlaylistIDs:  []uuid.UUID{},
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

func testSongs(t *testing.T, repo simplemusic.Repository) {
	ctx := context.Background()
	owner := uuid.New()

	song := NewSong(owner, "First", 0)
	require.NoError(t, repo.CreateSong(ctx, song))

	got, err := repo.GetSong(ctx, song.ID)
	require.NoError(t, err)
	assert.Equal(t, song.Title, got.Title)
	assert.Equal(t, song.AudioURL, got.AudioURL)
	assert.Equal(t, song.CoverURL, got.CoverURL)
	assert.Equal(t, song.OwnerID, got.OwnerID)
	assert.InDelta(t, song.Duration, got.Duration, 0.0001)

	got.Title = "Renamed"
	got.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, repo.UpdateSong(ctx, got))
	got, err = repo.GetSong(ctx, song.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	later := NewSong(owner, "Second", time.Minute)
	require.NoError(t, repo.CreateSong(ctx, later))
	require.NoError(t, repo.CreateSong(ctx, NewSong(uuid.New(), "Other", 2*time.Minute)))

	owned, err := repo.ListSongsByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, later.ID, owned[0].ID, "newest first")

	byIDs, err := repo.ListSongsByIDs(ctx, []uuid.UUID{song.ID, uuid.New(), later.ID})
	require.NoError(t, err)
	assert.Len(t, byIDs, 2, "unknown ids are skipped")

	require.NoError(t, repo.DeleteSong(ctx, song.ID))
	_, err = repo.GetSong(ctx, song.ID)
	assert.ErrorIs(t, err, simplemusic.ErrSongNotFound)
	assert.ErrorIs(t, err, simplemusic.ErrNotFound)

	assert.ErrorIs(t, repo.DeleteSong(ctx, song.ID), simplemusic.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateSong(ctx, song), simplemusic.ErrNotFound)
}

func testSearch(t *testing.T, repo simplemusic.Repository) {
	ctx := context.Background()
	owner := uuid.New()

	a := NewSong(owner, "Midnight Drive", 0)
	a.Artist, a.Album, a.Category = "Neon", "Roads", "synthwave"
	b := NewSong(owner, "Morning", time.Minute)
	b.Artist, b.Album, b.Category = "Birds", "Daybreak", "Folk"
	require.NoError(t, repo.CreateSong(ctx, a))
	require.NoError(t, repo.CreateSong(ctx, b))

	tests := []struct {
		query string
		want  []uuid.UUID
	}{
		{"midnight", []uuid.UUID{a.ID}},
		{"NEON", []uuid.UUID{a.ID}},
		{"break", []uuid.UUID{b.ID}},
		{"folk", []uuid.UUID{b.ID}},
		{"m", []uuid.UUID{b.ID, a.ID}},
		{"", []uuid.UUID{b.ID, a.ID}},
		{"nothing-matches", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			songs, err := repo.SearchSongs(ctx, tt.query)
			require.NoError(t, err)
			var ids []uuid.UUID
			for _, s := range songs {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func testPlayCount(t *testing.T, repo simplemusic.Repository) {
	ctx := context.Background()
	song := NewSong(uuid.New(), "Counted", 0)
	require.NoError(t, repo.CreateSong(ctx, song))

	for i := 1; i <= 3; i++ {
		got, err := repo.IncrementPlayCount(ctx, song.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(i), got.PlayCount)
	}

	// A metadata update never resets the counter.
	stale := *song
	stale.Title = "Still Counted"
	require.NoError(t, repo.UpdateSong(ctx, &stale))
	got, err := repo.GetSong(ctx, song.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.PlayCount)

	_, err = repo.IncrementPlayCount(ctx, uuid.New())
	assert.ErrorIs(t, err, simplemusic.ErrSongNotFound)
}

func testPlaylists(t *testing.T, repo simplemusic.Repository) {
	ctx := context.Background()
	owner := uuid.New()
	songA, songB := uuid.New(), uuid.New()

	first := NewPlaylist(owner, "Workout", 0)
	second := NewPlaylist(owner, "Chill", time.Minute)
	require.NoError(t, repo.CreatePlaylist(ctx, first))
	require.NoError(t, repo.CreatePlaylist(ctx, second))
	require.NoError(t, repo.CreatePlaylist(ctx, NewPlaylist(uuid.New(), "Foreign", 0)))

	require.NoError(t, repo.AddSongToPlaylist(ctx, first.ID, songA))
	require.NoError(t, repo.AddSongToPlaylist(ctx, first.ID, songB))
	assert.ErrorIs(t, repo.AddSongToPlaylist(ctx, first.ID, songA), simplemusic.ErrSongAlreadyInPlaylist)

	got, err := repo.GetPlaylist(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{songA, songB}, got.SongIDs, "insertion order kept, no duplicate")

	got.Name = "Heavy Workout"
	got.Description = "loud"
	got.SongIDs = nil // ignored by UpdatePlaylist
	require.NoError(t, repo.UpdatePlaylist(ctx, got))
	got, err = repo.GetPlaylist(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Heavy Workout", got.Name)
	assert.Equal(t, "loud", got.Description)
	assert.Len(t, got.SongIDs, 2)

	containing, err := repo.ListPlaylistsContaining(ctx, songB)
	require.NoError(t, err)
	require.Len(t, containing, 1)
	assert.Equal(t, first.ID, containing[0].ID)

	require.NoError(t, repo.RemoveSongFromPlaylist(ctx, first.ID, songA))
	assert.ErrorIs(t, repo.RemoveSongFromPlaylist(ctx, first.ID, songA), simplemusic.ErrSongNotInPlaylist)

	owned, err := repo.ListPlaylistsByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, second.ID, owned[0].ID, "newest first")

	require.NoError(t, repo.DeletePlaylist(ctx, second.ID))
	_, err = repo.GetPlaylist(ctx, second.ID)
	assert.ErrorIs(t, err, simplemusic.ErrPlaylistNotFound)

	n, err := repo.DeletePlaylistsByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.ErrorIs(t, repo.AddSongToPlaylist(ctx, first.ID, songA), simplemusic.ErrPlaylistNotFound)
}

func testBulkRemove(t *testing.T, repo simplemusic.Repository) {
	ctx := context.Background()
	gone, other, alsoGone := uuid.New(), uuid.New(), uuid.New()

	p1 := NewPlaylist(uuid.New(), "one", 0)
	p2 := NewPlaylist(uuid.New(), "two", 0)
	p3 := NewPlaylist(uuid.New(), "three", 0)
	for _, p := range []*simplemusic.Playlist{p1, p2, p3} {
		require.NoError(t, repo.CreatePlaylist(ctx, p))
	}
	require.NoError(t, repo.AddSongToPlaylist(ctx, p1.ID, gone))
	require.NoError(t, repo.AddSongToPlaylist(ctx, p1.ID, other))
	require.NoError(t, repo.AddSongToPlaylist(ctx, p2.ID, alsoGone))
	require.NoError(t, repo.AddSongToPlaylist(ctx, p3.ID, other))

	n, err := repo.RemoveSongFromPlaylists(ctx, gone, alsoGone)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "only playlists holding an id are modified")

	got, err := repo.GetPlaylist(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{other}, got.SongIDs)
	got, err = repo.GetPlaylist(ctx, p2.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SongIDs)

	// Idempotent
	n, err = repo.RemoveSongFromPlaylists(ctx, gone)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = repo.RemoveSongFromPlaylists(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func testUsers(t *testing.T, repo simplemusic.Repository) {
	ctx := context.Background()

	user := NewUser("ada@example.com")
	require.NoError(t, repo.CreateUser(ctx, user))
	assert.ErrorIs(t, repo.CreateUser(ctx, NewUser("ada@example.com")), simplemusic.ErrEmailTaken)

	got, err := repo.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, simplemusic.RoleListener, got.Role)

	playlistID := uuid.New()
	got.Role = simplemusic.RoleCreator
	got.PlaylistIDs = []uuid.UUID{playlistID}
	got.ProfileImageURL = "memory://profile_images/a.png"
	require.NoError(t, repo.UpdateUser(ctx, got))

	got, err = repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, simplemusic.RoleCreator, got.Role)
	assert.Equal(t, []uuid.UUID{playlistID}, got.PlaylistIDs)
	assert.Equal(t, "memory://profile_images/a.png", got.ProfileImageURL)

	require.NoError(t, repo.DeleteUser(ctx, user.ID))
	_, err = repo.GetUser(ctx, user.ID)
	assert.ErrorIs(t, err, simplemusic.ErrUserNotFound)
	_, err = repo.GetUserByEmail(ctx, "ada@example.com")
	assert.ErrorIs(t, err, simplemusic.ErrUserNotFound)

	// Email is free again after deletion.
	assert.NoError(t, repo.CreateUser(ctx, NewUser("ada@example.com")))
}

func testHistory(t *testing.T, repo simplemusic.Repository) {
	ctx := context.Background()
	user, other := uuid.New(), uuid.New()
	songA, songB := uuid.New(), uuid.New()

	play := func(u, s uuid.UUID, at time.Duration) {
		require.NoError(t, repo.AppendPlay(ctx, &simplemusic.PlayEvent{
			ID: uuid.New(), UserID: u, SongID: s, PlayedAt: base.Add(at),
		}))
	}
	play(user, songA, 1*time.Second)
	play(user, songB, 3*time.Second)
	play(user, songA, 2*time.Second)
	play(other, songA, 10*time.Second)

	events, err := repo.ListRecentPlays(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, songB, events[0].SongID)
	assert.Equal(t, songA, events[1].SongID)
	assert.True(t, events[1].PlayedAt.Equal(base.Add(2*time.Second)))

	limited, err := repo.ListRecentPlays(ctx, user, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	n, err := repo.DeletePlaysBySong(ctx, songA)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	events, err = repo.ListRecentPlays(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, songB, events[0].SongID)

	n, err = repo.DeletePlaysByUser(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testReferenced(t *testing.T, repo simplemusic.Repository) {
	ctx := context.Background()

	song := NewSong(uuid.New(), "Ref", 0)
	noCover := NewSong(uuid.New(), "NoCover", 0)
	noCover.CoverURL = ""
	require.NoError(t, repo.CreateSong(ctx, song))
	require.NoError(t, repo.CreateSong(ctx, noCover))

	user := NewUser("ref@example.com")
	user.ProfileImageURL = "memory://profile_images/face.jpg"
	require.NoError(t, repo.CreateUser(ctx, user))

	urls, err := repo.ReferencedObjectURLs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		song.AudioURL, song.CoverURL, noCover.AudioURL, user.ProfileImageURL,
	}, urls)
}
