package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-music/pkg/simplemusic"
)

// Repository implements simplemusic.Repository using in-memory storage
type Repository struct {
	mu        sync.RWMutex
	songs     map[uuid.UUID]*simplemusic.Song
	playlists map[uuid.UUID]*simplemusic.Playlist
	users     map[uuid.UUID]*simplemusic.User
	byEmail   map[string]uuid.UUID // normalized email -> user id
	plays     []playRecord         // append order
	seq       int64
}

type playRecord struct {
	seq   int64
	event simplemusic.PlayEvent
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		songs:     make(map[uuid.UUID]*simplemusic.Song),
		playlists: make(map[uuid.UUID]*simplemusic.Playlist),
		users:     make(map[uuid.UUID]*simplemusic.User),
		byEmail:   make(map[string]uuid.UUID),
	}
}

var _ simplemusic.Repository = (*Repository)(nil)

// Song operations

func (r *Repository) CreateSong(ctx context.Context, song *simplemusic.Song) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	songCopy := *song
	r.songs[song.ID] = &songCopy
	return nil
}

func (r *Repository) GetSong(ctx context.Context, id uuid.UUID) (*simplemusic.Song, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	song, exists := r.songs[id]
	if !exists {
		return nil, simplemusic.ErrSongNotFound
	}
	songCopy := *song
	return &songCopy, nil
}

func (r *Repository) UpdateSong(ctx context.Context, song *simplemusic.Song) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.songs[song.ID]
	if !exists {
		return simplemusic.ErrSongNotFound
	}

	songCopy := *song
	// The counter only moves through IncrementPlayCount.
	songCopy.PlayCount = existing.PlayCount
	r.songs[song.ID] = &songCopy
	return nil
}

func (r *Repository) DeleteSong(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.songs[id]; !exists {
		return simplemusic.ErrSongNotFound
	}
	delete(r.songs, id)
	return nil
}

func (r *Repository) ListSongsByIDs(ctx context.Context, ids []uuid.UUID) ([]*simplemusic.Song, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*simplemusic.Song, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if song, ok := r.songs[id]; ok {
			songCopy := *song
			result = append(result, &songCopy)
		}
	}
	return result, nil
}

func (r *Repository) ListSongsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*simplemusic.Song, error) {
	return r.filterSongs(func(s *simplemusic.Song) bool { return s.OwnerID == ownerID }), nil
}

func (r *Repository) SearchSongs(ctx context.Context, query string) ([]*simplemusic.Song, error) {
	q := strings.ToLower(query)
	return r.filterSongs(func(s *simplemusic.Song) bool {
		if q == "" {
			return true
		}
		for _, field := range []string{s.Title, s.Artist, s.Album, s.Category} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	}), nil
}

// filterSongs returns copies of matching songs sorted by created_at descending
func (r *Repository) filterSongs(match func(*simplemusic.Song) bool) []*simplemusic.Song {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplemusic.Song
	for _, song := range r.songs {
		if match(song) {
			songCopy := *song
			result = append(result, &songCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (r *Repository) IncrementPlayCount(ctx context.Context, id uuid.UUID) (*simplemusic.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	song, exists := r.songs[id]
	if !exists {
		return nil, simplemusic.ErrSongNotFound
	}
	song.PlayCount++
	songCopy := *song
	return &songCopy, nil
}

// Playlist operations

func (r *Repository) CreatePlaylist(ctx context.Context, playlist *simplemusic.Playlist) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.playlists[playlist.ID] = copyPlaylist(playlist)
	return nil
}

func (r *Repository) GetPlaylist(ctx context.Context, id uuid.UUID) (*simplemusic.Playlist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	playlist, exists := r.playlists[id]
	if !exists {
		return nil, simplemusic.ErrPlaylistNotFound
	}
	return copyPlaylist(playlist), nil
}

func (r *Repository) UpdatePlaylist(ctx context.Context, playlist *simplemusic.Playlist) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.playlists[playlist.ID]
	if !exists {
		return simplemusic.ErrPlaylistNotFound
	}
	existing.Name = playlist.Name
	existing.Description = playlist.Description
	existing.UpdatedAt = playlist.UpdatedAt
	return nil
}

func (r *Repository) DeletePlaylist(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.playlists[id]; !exists {
		return simplemusic.ErrPlaylistNotFound
	}
	delete(r.playlists, id)
	return nil
}

func (r *Repository) ListPlaylistsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*simplemusic.Playlist, error) {
	return r.filterPlaylists(func(p *simplemusic.Playlist) bool { return p.OwnerID == ownerID }), nil
}

func (r *Repository) ListPlaylistsContaining(ctx context.Context, songID uuid.UUID) ([]*simplemusic.Playlist, error) {
	return r.filterPlaylists(func(p *simplemusic.Playlist) bool { return p.Contains(songID) }), nil
}

func (r *Repository) filterPlaylists(match func(*simplemusic.Playlist) bool) []*simplemusic.Playlist {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplemusic.Playlist
	for _, playlist := range r.playlists {
		if match(playlist) {
			result = append(result, copyPlaylist(playlist))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (r *Repository) DeletePlaylistsByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, playlist := range r.playlists {
		if playlist.OwnerID == ownerID {
			delete(r.playlists, id)
			n++
		}
	}
	return n, nil
}

func (r *Repository) AddSongToPlaylist(ctx context.Context, playlistID, songID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	playlist, exists := r.playlists[playlistID]
	if !exists {
		return simplemusic.ErrPlaylistNotFound
	}
	if playlist.Contains(songID) {
		return simplemusic.ErrSongAlreadyInPlaylist
	}
	playlist.SongIDs = append(playlist.SongIDs, songID)
	return nil
}

func (r *Repository) RemoveSongFromPlaylist(ctx context.Context, playlistID, songID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	playlist, exists := r.playlists[playlistID]
	if !exists {
		return simplemusic.ErrPlaylistNotFound
	}
	if !playlist.Contains(songID) {
		return simplemusic.ErrSongNotInPlaylist
	}
	playlist.SongIDs = without(playlist.SongIDs, map[uuid.UUID]bool{songID: true})
	return nil
}

func (r *Repository) RemoveSongFromPlaylists(ctx context.Context, songIDs ...uuid.UUID) (int64, error) {
	if len(songIDs) == 0 {
		return 0, nil
	}
	remove := make(map[uuid.UUID]bool, len(songIDs))
	for _, id := range songIDs {
		remove[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, playlist := range r.playlists {
		kept := without(playlist.SongIDs, remove)
		if len(kept) != len(playlist.SongIDs) {
			playlist.SongIDs = kept
			n++
		}
	}
	return n, nil
}

// User operations

func (r *Repository) CreateUser(ctx context.Context, user *simplemusic.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return simplemusic.ErrEmailTaken
	}
	r.users[user.ID] = copyUser(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*simplemusic.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, simplemusic.ErrUserNotFound
	}
	return copyUser(user), nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*simplemusic.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byEmail[email]
	if !exists {
		return nil, simplemusic.ErrUserNotFound
	}
	return copyUser(r.users[id]), nil
}

func (r *Repository) UpdateUser(ctx context.Context, user *simplemusic.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.users[user.ID]
	if !exists {
		return simplemusic.ErrUserNotFound
	}
	if existing.Email != user.Email {
		if other, taken := r.byEmail[user.Email]; taken && other != user.ID {
			return simplemusic.ErrEmailTaken
		}
		delete(r.byEmail, existing.Email)
		r.byEmail[user.Email] = user.ID
	}
	r.users[user.ID] = copyUser(user)
	return nil
}

func (r *Repository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[id]
	if !exists {
		return simplemusic.ErrUserNotFound
	}
	delete(r.byEmail, user.Email)
	delete(r.users, id)
	return nil
}

// Play history operations

func (r *Repository) AppendPlay(ctx context.Context, event *simplemusic.PlayEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.plays = append(r.plays, playRecord{seq: r.seq, event: *event})
	return nil
}

func (r *Repository) ListRecentPlays(ctx context.Context, userID uuid.UUID, limit int) ([]*simplemusic.PlayEvent, error) {
	r.mu.RLock()
	var records []playRecord
	for _, rec := range r.plays {
		if rec.event.UserID == userID {
			records = append(records, rec)
		}
	}
	r.mu.RUnlock()

	// Newest first; later appends win ties.
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.event.PlayedAt.Equal(b.event.PlayedAt) {
			return a.event.PlayedAt.After(b.event.PlayedAt)
		}
		return a.seq > b.seq
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	result := make([]*simplemusic.PlayEvent, 0, len(records))
	for _, rec := range records {
		event := rec.event
		result = append(result, &event)
	}
	return result, nil
}

func (r *Repository) DeletePlaysBySong(ctx context.Context, songID uuid.UUID) (int64, error) {
	return r.prunePlays(func(e simplemusic.PlayEvent) bool { return e.SongID == songID }), nil
}

func (r *Repository) DeletePlaysByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.prunePlays(func(e simplemusic.PlayEvent) bool { return e.UserID == userID }), nil
}

func (r *Repository) prunePlays(match func(simplemusic.PlayEvent) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.plays[:0]
	var n int64
	for _, rec := range r.plays {
		if match(rec.event) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.plays = kept
	return n
}

func (r *Repository) ReferencedObjectURLs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var urls []string
	for _, song := range r.songs {
		urls = appendNonEmpty(urls, song.AudioURL, song.CoverURL)
	}
	for _, user := range r.users {
		urls = appendNonEmpty(urls, user.ProfileImageURL)
	}
	return urls, nil
}

// PlayCount returns the number of history events stored. Intended for tests.
func (r *Repository) PlayCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plays)
}

func copyPlaylist(p *simplemusic.Playlist) *simplemusic.Playlist {
	playlistCopy := *p
	playlistCopy.SongIDs = append([]uuid.UUID{}, p.SongIDs...)
	return &playlistCopy
}

func copyUser(u *simplemusic.User) *simplemusic.User {
	userCopy := *u
	userCopy.PlaylistIDs = append([]uuid.UUID{}, u.PlaylistIDs...)
	return &userCopy
}

func without(ids []uuid.UUID, remove map[uuid.UUID]bool) []uuid.UUID {
	kept := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !remove[id] {
			kept = append(kept, id)
		}
	}
	return kept
}

func appendNonEmpty(dst []string, values ...string) []string {
	for _, v := range values {
		if v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}
