package simplemusic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// CascadeResult is the outcome of a user-deletion cascade.
type CascadeResult struct {
	UserID uuid.UUID
	Role   Role

	// Per-song deletions (creator cascade only)
	Attempted int
	Succeeded int
	Failed    int
	Errors    []error

	// StaleReferences holds the song ids stripped system-wide during a
	// listener cascade.
	StaleReferences  []uuid.UUID
	PlaylistsDeleted int64
}

// StripSongFromAllPlaylists removes songID from every playlist holding it.
// Calling it for an unreferenced id is a no-op.
func (s *service) StripSongFromAllPlaylists(ctx context.Context, songID uuid.UUID) (int64, error) {
	n, err := s.repository.RemoveSongFromPlaylists(ctx, songID)
	if err != nil {
		return 0, fmt.Errorf("failed to strip song %s from playlists: %w", songID, err)
	}
	if n > 0 {
		s.logger.Debug("stripped song from playlists", "song_id", songID, "playlists", n)
	}
	return n, nil
}

// CascadeOnUserDeletion removes everything a user owns ahead of the user
// record itself. Creators have every song deleted through the full song
// delete path; per-song failures are collected and the cascade continues.
// Listeners never trigger a song deletion. Both end by deleting the user's
// playlists.
func (s *service) CascadeOnUserDeletion(ctx context.Context, userID uuid.UUID, role Role) (*CascadeResult, error) {
	result := &CascadeResult{UserID: userID, Role: role}

	switch role {
	case RoleCreator:
		songs, err := s.repository.ListSongsByOwner(ctx, userID)
		if err != nil {
			return result, fmt.Errorf("failed to list songs of user %s: %w", userID, err)
		}
		for _, song := range songs {
			result.Attempted++
			if err := s.removeSong(ctx, song); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, err)
				s.logger.Error("cascade song deletion failed", "user_id", userID, "song_id", song.ID, "error", err)
				continue
			}
			result.Succeeded++
		}
	case RoleListener:
		stale, err := s.sweepStaleReferences(ctx, userID)
		if err != nil {
			return result, err
		}
		result.StaleReferences = stale
	default:
		return result, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	n, err := s.repository.DeletePlaylistsByOwner(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("failed to delete playlists of user %s: %w", userID, err)
	}
	result.PlaylistsDeleted = n

	s.emit("cascade_completed", s.eventSink.CascadeCompleted(ctx, result))

	if result.Failed > 0 {
		return result, &PartialCascadeError{
			UserID:    userID,
			Attempted: result.Attempted,
			Succeeded: result.Succeeded,
			Failed:    result.Failed,
			Errors:    result.Errors,
		}
	}
	return result, nil
}

// sweepStaleReferences collects the song ids held by the user's own
// playlists and strips, from every playlist in the system, those whose song
// no longer exists. Live songs are left where they are.
func (s *service) sweepStaleReferences(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	playlists, err := s.repository.ListPlaylistsByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists of user %s: %w", userID, err)
	}

	referenced := lo.Uniq(lo.FlatMap(playlists, func(p *Playlist, _ int) []uuid.UUID {
		return p.SongIDs
	}))
	if len(referenced) == 0 {
		return nil, nil
	}

	live, err := s.repository.ListSongsByIDs(ctx, referenced)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve playlist songs: %w", err)
	}
	stale := lo.Without(referenced, lo.Map(live, func(song *Song, _ int) uuid.UUID {
		return song.ID
	})...)
	if len(stale) == 0 {
		return nil, nil
	}

	n, err := s.repository.RemoveSongFromPlaylists(ctx, stale...)
	if err != nil {
		return nil, fmt.Errorf("failed to strip stale references: %w", err)
	}
	s.logger.Info("stripped stale song references", "user_id", userID, "songs", len(stale), "playlists", n)
	return stale, nil
}

// DeleteAccount deletes the caller's account: cascade, history pruning,
// profile image, user record, then session revocation. A partial cascade
// still deletes the user and is reported as *PartialCascadeError.
func (s *service) DeleteAccount(ctx context.Context, caller Caller) (*CascadeResult, error) {
	user, err := s.repository.GetUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	result, cascadeErr := s.CascadeOnUserDeletion(ctx, user.ID, user.Role)
	var partial *PartialCascadeError
	if cascadeErr != nil && !errors.As(cascadeErr, &partial) {
		return result, cascadeErr
	}

	if _, err := s.repository.DeletePlaysByUser(ctx, user.ID); err != nil {
		s.logger.Error("failed to prune play history", "user_id", user.ID, "error", err)
	}

	s.deleteBestEffort(ctx, user.ProfileImageURL, ContentClassImage, "user_id", user.ID)

	if err := s.repository.DeleteUser(ctx, user.ID); err != nil {
		return result, fmt.Errorf("failed to delete user %s: %w", user.ID, err)
	}

	if s.revoker != nil {
		if err := s.revoker.Revoke(ctx, user.ID); err != nil {
			s.logger.Error("failed to revoke sessions", "user_id", user.ID, "error", err)
			return result, fmt.Errorf("user %s deleted but session not revoked: %w", user.ID, err)
		}
	}

	s.logger.Info("account deleted", "user_id", user.ID, "role", user.Role,
		"songs_deleted", result.Succeeded, "songs_failed", result.Failed,
		"playlists_deleted", result.PlaylistsDeleted)

	if partial != nil {
		return result, partial
	}
	return result, nil
}
