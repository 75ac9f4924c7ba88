package simplemusic

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error classes. Errors returned by the service match at most one of these
// through errors.Is.
var (
	// ErrValidation indicates the request is missing or has malformed fields
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a referenced song, playlist or user is absent
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the caller is not allowed to perform the operation
	ErrUnauthorized = errors.New("not authorized")

	// ErrUpstreamStorage indicates a blob store call failed or timed out
	ErrUpstreamStorage = errors.New("upstream storage failure")
)

// Specific errors, each wrapping one class.
var (
	ErrSongNotFound     = fmt.Errorf("song %w", ErrNotFound)
	ErrPlaylistNotFound = fmt.Errorf("playlist %w", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)

	ErrMissingAudio          = fmt.Errorf("%w: audio file is required", ErrValidation)
	ErrMissingCover          = fmt.Errorf("%w: cover image is required", ErrValidation)
	ErrMissingTitle          = fmt.Errorf("%w: title is required", ErrValidation)
	ErrMissingPlaylistName   = fmt.Errorf("%w: playlist name is required", ErrValidation)
	ErrSongAlreadyInPlaylist = fmt.Errorf("%w: song already in playlist", ErrValidation)
	ErrSongNotInPlaylist     = fmt.Errorf("%w: song not in playlist", ErrValidation)
	ErrInvalidName           = fmt.Errorf("%w: name must be between 3 and 30 characters", ErrValidation)
	ErrInvalidEmail          = fmt.Errorf("%w: invalid email", ErrValidation)
	ErrMissingPassword       = fmt.Errorf("%w: password is required", ErrValidation)
	ErrEmailTaken            = fmt.Errorf("%w: email already registered", ErrValidation)

	ErrNotOwner        = fmt.Errorf("%w: caller does not own the resource", ErrUnauthorized)
	ErrCreatorRequired = fmt.Errorf("%w: creator role required", ErrUnauthorized)

	// ErrObjectAbsent is returned by blob stores when deleting an object that
	// does not exist. Callers treat it as a successful delete.
	ErrObjectAbsent = errors.New("object absent")

	// ErrPlayNotRecorded is returned when the play counter advanced but the
	// history event could not be appended. The counter is not rolled back.
	ErrPlayNotRecorded = errors.New("play counted but history event not recorded")
)

// SongError represents an error related to a song operation
type SongError struct {
	SongID uuid.UUID
	Op     string
	Err    error
}

func (e *SongError) Error() string {
	return fmt.Sprintf("song operation %s failed for song %s: %v", e.Op, e.SongID, e.Err)
}

func (e *SongError) Unwrap() error {
	return e.Err
}

// StorageError represents a failed blob store call. It always matches
// ErrUpstreamStorage, whatever the underlying cause.
type StorageError struct {
	Op    string
	URL   string
	Class ContentClass
	Err   error
}

func (e *StorageError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("storage operation %s failed for %s object: %v", e.Op, e.Class, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed for %s object %s: %v", e.Op, e.Class, e.URL, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes every StorageError match ErrUpstreamStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrUpstreamStorage
}

// PartialCascadeError reports a user-deletion cascade in which one or more
// song deletions failed. The cascade itself ran to completion.
type PartialCascadeError struct {
	UserID    uuid.UUID
	Attempted int
	Succeeded int
	Failed    int
	Errors    []error
}

func (e *PartialCascadeError) Error() string {
	return fmt.Sprintf("cascade for user %s: %d of %d song deletions succeeded, %d failed",
		e.UserID, e.Succeeded, e.Attempted, e.Failed)
}

func (e *PartialCascadeError) Unwrap() []error {
	return e.Errors
}

// isAbsent reports whether err is the idempotent delete-of-absent case.
func isAbsent(err error) bool {
	return errors.Is(err, ErrObjectAbsent)
}
