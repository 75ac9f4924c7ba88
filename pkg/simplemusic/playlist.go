package simplemusic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// CreatePlaylist creates an empty playlist owned by the caller.
func (s *service) CreatePlaylist(ctx context.Context, caller Caller, req CreatePlaylistRequest) (*Playlist, error) {
	name := normalizeText(req.Name)
	if name == "" {
		return nil, ErrMissingPlaylistName
	}

	now := s.now()
	playlist := &Playlist{
		ID:          uuid.New(),
		Name:        name,
		Description: normalizeText(req.Description),
		OwnerID:     caller.UserID,
		SongIDs:     []uuid.UUID{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repository.CreatePlaylist(ctx, playlist); err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	s.updateBackReference(ctx, caller.UserID, func(ids []uuid.UUID) []uuid.UUID {
		return lo.Uniq(append(ids, playlist.ID))
	})
	return playlist, nil
}

// GetPlaylist returns a playlist with its songs resolved in insertion order.
// References to songs that no longer exist are skipped.
func (s *service) GetPlaylist(ctx context.Context, id uuid.UUID) (*PlaylistView, error) {
	playlist, err := s.repository.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := s.resolve(ctx, []*Playlist{playlist})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// ListPlaylists returns the caller's playlists, newest first, each resolved.
func (s *service) ListPlaylists(ctx context.Context, caller Caller) ([]*PlaylistView, error) {
	playlists, err := s.repository.ListPlaylistsByOwner(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	return s.resolve(ctx, playlists)
}

// resolve batch-fetches the songs of every playlist in one read and merges
// them back in each playlist's own order.
func (s *service) resolve(ctx context.Context, playlists []*Playlist) ([]*PlaylistView, error) {
	ids := lo.Uniq(lo.FlatMap(playlists, func(p *Playlist, _ int) []uuid.UUID { return p.SongIDs }))

	byID := map[uuid.UUID]*Song{}
	if len(ids) > 0 {
		songs, err := s.repository.ListSongsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load playlist songs: %w", err)
		}
		byID = lo.KeyBy(songs, func(song *Song) uuid.UUID { return song.ID })
	}

	views := make([]*PlaylistView, 0, len(playlists))
	for _, p := range playlists {
		view := &PlaylistView{Playlist: *p, Songs: make([]*Song, 0, len(p.SongIDs))}
		for _, id := range p.SongIDs {
			if song, ok := byID[id]; ok {
				view.Songs = append(view.Songs, song)
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// UpdatePlaylist renames or re-describes a playlist owned by the caller.
func (s *service) UpdatePlaylist(ctx context.Context, caller Caller, req UpdatePlaylistRequest) (*Playlist, error) {
	playlist, err := s.ownedPlaylist(ctx, caller, req.PlaylistID)
	if err != nil {
		return nil, err
	}

	applyText(&playlist.Name, req.Name)
	applyText(&playlist.Description, req.Description)
	playlist.UpdatedAt = s.now()

	if err := s.repository.UpdatePlaylist(ctx, playlist); err != nil {
		return nil, fmt.Errorf("failed to update playlist: %w", err)
	}
	return playlist, nil
}

// DeletePlaylist deletes a playlist owned by the caller.
func (s *service) DeletePlaylist(ctx context.Context, caller Caller, id uuid.UUID) error {
	if _, err := s.ownedPlaylist(ctx, caller, id); err != nil {
		return err
	}
	if err := s.repository.DeletePlaylist(ctx, id); err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}

	s.updateBackReference(ctx, caller.UserID, func(ids []uuid.UUID) []uuid.UUID {
		return lo.Without(ids, id)
	})
	return nil
}

// AddSongToPlaylist appends a song to a playlist owned by the caller. The
// song must exist at the time of the call; a song already present is
// rejected with ErrSongAlreadyInPlaylist and the playlist is left unchanged.
func (s *service) AddSongToPlaylist(ctx context.Context, caller Caller, playlistID, songID uuid.UUID) (*Playlist, error) {
	playlist, err := s.ownedPlaylist(ctx, caller, playlistID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repository.GetSong(ctx, songID); err != nil {
		return nil, err
	}
	if playlist.Contains(songID) {
		return nil, ErrSongAlreadyInPlaylist
	}

	if err := s.repository.AddSongToPlaylist(ctx, playlistID, songID); err != nil {
		return nil, err
	}
	return s.repository.GetPlaylist(ctx, playlistID)
}

// RemoveSongFromPlaylist removes a song from a playlist owned by the caller.
func (s *service) RemoveSongFromPlaylist(ctx context.Context, caller Caller, playlistID, songID uuid.UUID) (*Playlist, error) {
	playlist, err := s.ownedPlaylist(ctx, caller, playlistID)
	if err != nil {
		return nil, err
	}
	if !playlist.Contains(songID) {
		return nil, ErrSongNotInPlaylist
	}

	if err := s.repository.RemoveSongFromPlaylist(ctx, playlistID, songID); err != nil {
		return nil, err
	}
	return s.repository.GetPlaylist(ctx, playlistID)
}

func (s *service) ownedPlaylist(ctx context.Context, caller Caller, id uuid.UUID) (*Playlist, error) {
	playlist, err := s.repository.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	if playlist.OwnerID != caller.UserID {
		return nil, ErrNotOwner
	}
	return playlist, nil
}

// updateBackReference rewrites the user's playlist back-reference set. The
// set is only a planning aid, so failures are logged.
func (s *service) updateBackReference(ctx context.Context, userID uuid.UUID, fn func([]uuid.UUID) []uuid.UUID) {
	user, err := s.repository.GetUser(ctx, userID)
	if err != nil {
		s.logger.Warn("playlist back-reference not updated", "user_id", userID, "error", err)
		return
	}
	user.PlaylistIDs = fn(user.PlaylistIDs)
	user.UpdatedAt = s.now()
	if err := s.repository.UpdateUser(ctx, user); err != nil {
		s.logger.Warn("playlist back-reference not updated", "user_id", userID, "error", err)
	}
}
