package simplemusic

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// RecordPlay increments the song's play counter and appends a history event.
// The two writes are not atomic: if the append fails after the counter moved,
// the updated song is returned together with an error wrapping
// ErrPlayNotRecorded and the counter is left as is.
func (s *service) RecordPlay(ctx context.Context, caller Caller, songID uuid.UUID) (*Song, error) {
	song, err := s.repository.IncrementPlayCount(ctx, songID)
	if err != nil {
		return nil, err
	}

	event := &PlayEvent{
		ID:       uuid.New(),
		UserID:   caller.UserID,
		SongID:   song.ID,
		PlayedAt: s.now(),
	}
	if err := s.repository.AppendPlay(ctx, event); err != nil {
		s.logger.Error("play counted but not recorded in history",
			"song_id", song.ID, "user_id", caller.UserID, "play_count", song.PlayCount, "error", err)
		return song, fmt.Errorf("%w: %w", ErrPlayNotRecorded, err)
	}

	s.emit("play_recorded", s.eventSink.PlayRecorded(ctx, event))
	return song, nil
}

// RecentSongs returns the user's recently played songs, newest first, with
// no song listed twice.
func (s *service) RecentSongs(ctx context.Context, userID uuid.UUID) ([]RecentSong, error) {
	events, err := s.repository.ListRecentPlays(ctx, userID, s.recentWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load play history: %w", err)
	}
	if len(events) == 0 {
		return []RecentSong{}, nil
	}

	ids := lo.Uniq(lo.Map(events, func(e *PlayEvent, _ int) uuid.UUID { return e.SongID }))
	songs, err := s.repository.ListSongsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load played songs: %w", err)
	}

	byID := lo.KeyBy(songs, func(song *Song) uuid.UUID { return song.ID })
	return aggregateRecent(events, byID, s.recentLimit), nil
}

// aggregateRecent walks events newest first and emits the first occurrence
// of every song present in songs, stopping after limit entries. Events for
// songs missing from songs are skipped.
func aggregateRecent(events []*PlayEvent, songs map[uuid.UUID]*Song, limit int) []RecentSong {
	ordered := slices.Clone(events)
	slices.SortStableFunc(ordered, func(a, b *PlayEvent) int {
		return b.PlayedAt.Compare(a.PlayedAt)
	})

	out := make([]RecentSong, 0, min(limit, len(ordered)))
	seen := make(map[uuid.UUID]struct{}, len(ordered))
	for _, e := range ordered {
		if len(out) >= limit {
			break
		}
		if _, dup := seen[e.SongID]; dup {
			continue
		}
		song, ok := songs[e.SongID]
		if !ok {
			continue
		}
		seen[e.SongID] = struct{}{}
		out = append(out, RecentSong{
			SongID:   song.ID,
			Title:    song.Title,
			Artist:   song.Artist,
			Album:    song.Album,
			Category: song.Category,
			CoverURL: song.CoverURL,
			Duration: song.Duration,
			PlayedAt: e.PlayedAt,
		})
	}
	return out
}
