package simplemusic

import "github.com/google/uuid"

// CreateSongRequest contains parameters for publishing a song. Both uploads
// are required.
type CreateSongRequest struct {
	Title    string
	Artist   string
	Album    string
	Category string
	Audio    *Upload
	Cover    *Upload
}

// UpdateSongRequest contains parameters for a partial song update. Nil or
// blank text fields keep the stored value; nil uploads keep the stored asset.
type UpdateSongRequest struct {
	SongID   uuid.UUID
	Title    *string
	Artist   *string
	Album    *string
	Category *string
	Audio    *Upload
	Cover    *Upload
}

// CreatePlaylistRequest contains parameters for creating a playlist
type CreatePlaylistRequest struct {
	Name        string
	Description string
}

// UpdatePlaylistRequest contains parameters for renaming a playlist
type UpdatePlaylistRequest struct {
	PlaylistID  uuid.UUID
	Name        *string
	Description *string
}

// RegisterUserRequest contains parameters for creating an account.
// PasswordHash is produced by the caller; the service stores it as is.
type RegisterUserRequest struct {
	Name         string
	Email        string
	PasswordHash string
	Gender       string
	ProfileImage *Upload
}

// UpdateProfileRequest contains parameters for a profile update
type UpdateProfileRequest struct {
	UserID       uuid.UUID
	Name         *string
	Gender       *string
	ProfileImage *Upload
}
