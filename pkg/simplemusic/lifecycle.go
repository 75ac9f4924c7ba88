package simplemusic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateSong publishes a song. Audio is uploaded first, then the cover, and
// the record is written only after both uploads succeed. Objects uploaded by
// a failed attempt are deleted before the error is returned.
func (s *service) CreateSong(ctx context.Context, caller Caller, req CreateSongRequest) (*Song, error) {
	op := s.begin("create_song")
	defer s.finish(op)

	if !caller.IsCreator() {
		return nil, op.fail(ErrCreatorRequired)
	}
	if !hasUpload(req.Audio) {
		return nil, op.fail(ErrMissingAudio)
	}
	if !hasUpload(req.Cover) {
		return nil, op.fail(ErrMissingCover)
	}
	title := normalizeText(req.Title)
	if title == "" {
		return nil, op.fail(ErrMissingTitle)
	}

	op.enter(StateUploading)
	audio, err := s.uploadAsset(ctx, req.Audio, ContentClassAudio, s.audioFolder)
	if err != nil {
		return nil, op.fail(err)
	}

	cover, err := s.uploadAsset(ctx, req.Cover, ContentClassImage, s.imageFolder)
	if err != nil {
		op.enter(StateCompensating)
		s.compensate(ctx, op, audio.URL, ContentClassAudio)
		return nil, op.fail(err)
	}

	op.enter(StatePersisting)
	now := s.now()
	song := &Song{
		ID:        uuid.New(),
		Title:     title,
		Artist:    normalizeText(req.Artist),
		Album:     normalizeText(req.Album),
		Category:  normalizeText(req.Category),
		Duration:  audio.DurationSeconds,
		AudioURL:  audio.URL,
		CoverURL:  cover.URL,
		OwnerID:   caller.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	op.SongID = song.ID

	if err := s.repository.CreateSong(ctx, song); err != nil {
		op.enter(StateCompensating)
		s.compensate(ctx, op, audio.URL, ContentClassAudio)
		s.compensate(ctx, op, cover.URL, ContentClassImage)
		return nil, op.fail(&SongError{SongID: song.ID, Op: "create", Err: err})
	}

	op.done()
	s.emit("song_created", s.eventSink.SongCreated(ctx, song))
	return song, nil
}

// UpdateSong applies a partial update. Replacement assets are uploaded
// before the previous objects are deleted, so a failed upload never leaves
// the record pointing at a deleted object.
func (s *service) UpdateSong(ctx context.Context, caller Caller, req UpdateSongRequest) (*Song, error) {
	op := s.begin("update_song")
	op.SongID = req.SongID
	defer s.finish(op)

	song, err := s.repository.GetSong(ctx, req.SongID)
	if err != nil {
		return nil, op.fail(err)
	}
	if song.OwnerID != caller.UserID {
		return nil, op.fail(ErrNotOwner)
	}

	var newAudio, newCover *UploadResult
	if hasUpload(req.Audio) || hasUpload(req.Cover) {
		op.enter(StateUploading)
	}
	if hasUpload(req.Audio) {
		newAudio, err = s.uploadAsset(ctx, req.Audio, ContentClassAudio, s.audioFolder)
		if err != nil {
			return nil, op.fail(err)
		}
	}
	if hasUpload(req.Cover) {
		newCover, err = s.uploadAsset(ctx, req.Cover, ContentClassImage, s.imageFolder)
		if err != nil {
			if newAudio != nil {
				op.enter(StateCompensating)
				s.compensate(ctx, op, newAudio.URL, ContentClassAudio)
			}
			return nil, op.fail(err)
		}
	}

	if newAudio != nil || newCover != nil {
		op.enter(StateDeleting)
	}
	if newAudio != nil {
		s.deleteBestEffort(ctx, song.AudioURL, ContentClassAudio, "song_id", song.ID, "op", op.Name)
		song.AudioURL = newAudio.URL
		song.Duration = newAudio.DurationSeconds
	}
	if newCover != nil {
		s.deleteBestEffort(ctx, song.CoverURL, ContentClassImage, "song_id", song.ID, "op", op.Name)
		song.CoverURL = newCover.URL
	}

	applyText(&song.Title, req.Title)
	applyText(&song.Artist, req.Artist)
	applyText(&song.Album, req.Album)
	applyText(&song.Category, req.Category)

	op.enter(StatePersisting)
	song.UpdatedAt = s.now()
	if err := s.repository.UpdateSong(ctx, song); err != nil {
		if newAudio != nil || newCover != nil {
			s.logger.Error("song record not updated after asset replacement; new objects kept",
				"song_id", song.ID, "audio_url", song.AudioURL, "cover_url", song.CoverURL, "error", err)
		}
		return nil, op.fail(&SongError{SongID: song.ID, Op: "update", Err: err})
	}

	op.done()
	s.emit("song_updated", s.eventSink.SongUpdated(ctx, song))
	return song, nil
}

// DeleteSong removes a song owned by the caller: references are swept from
// every playlist, the remote objects are deleted, then the record.
func (s *service) DeleteSong(ctx context.Context, caller Caller, songID uuid.UUID) error {
	song, err := s.repository.GetSong(ctx, songID)
	if err != nil {
		return err
	}
	if song.OwnerID != caller.UserID {
		return ErrNotOwner
	}
	return s.removeSong(ctx, song)
}

// removeSong is the full delete path shared by DeleteSong and the creator
// cascade. Ownership has already been established.
func (s *service) removeSong(ctx context.Context, song *Song) error {
	op := s.begin("delete_song")
	op.SongID = song.ID
	defer s.finish(op)

	op.enter(StateSweeping)
	if _, err := s.StripSongFromAllPlaylists(ctx, song.ID); err != nil {
		return op.fail(&SongError{SongID: song.ID, Op: "sweep", Err: err})
	}

	op.enter(StateDeleting)
	s.deleteBestEffort(ctx, song.AudioURL, ContentClassAudio, "song_id", song.ID, "op", op.Name)
	s.deleteBestEffort(ctx, song.CoverURL, ContentClassImage, "song_id", song.ID, "op", op.Name)

	if n, err := s.repository.DeletePlaysBySong(ctx, song.ID); err != nil {
		s.logger.Error("failed to prune play history", "song_id", song.ID, "error", err)
	} else if n > 0 {
		s.logger.Debug("pruned play history", "song_id", song.ID, "events", n)
	}

	op.enter(StatePersisting)
	if err := s.repository.DeleteSong(ctx, song.ID); err != nil {
		return op.fail(&SongError{SongID: song.ID, Op: "delete", Err: err})
	}

	op.done()
	s.emit("song_deleted", s.eventSink.SongDeleted(ctx, song.ID))
	return nil
}

// GetSong returns a song by id.
func (s *service) GetSong(ctx context.Context, id uuid.UUID) (*Song, error) {
	return s.repository.GetSong(ctx, id)
}

// SearchSongs matches query case-insensitively against title, artist, album
// and category. An empty query lists every song.
func (s *service) SearchSongs(ctx context.Context, query string) ([]*Song, error) {
	songs, err := s.repository.SearchSongs(ctx, normalizeText(query))
	if err != nil {
		return nil, fmt.Errorf("failed to search songs: %w", err)
	}
	return songs, nil
}

// ListCreatorSongs returns the caller's songs, newest first.
func (s *service) ListCreatorSongs(ctx context.Context, caller Caller) ([]*Song, error) {
	if !caller.IsCreator() {
		return nil, ErrCreatorRequired
	}
	return s.repository.ListSongsByOwner(ctx, caller.UserID)
}

func hasUpload(u *Upload) bool {
	return u != nil && u.Reader != nil
}
