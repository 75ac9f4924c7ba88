package simplemusic

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-music library
type Service interface {
	// Song lifecycle operations
	CreateSong(ctx context.Context, caller Caller, req CreateSongRequest) (*Song, error)
	UpdateSong(ctx context.Context, caller Caller, req UpdateSongRequest) (*Song, error)
	DeleteSong(ctx context.Context, caller Caller, songID uuid.UUID) error

	// Song queries
	GetSong(ctx context.Context, id uuid.UUID) (*Song, error)
	SearchSongs(ctx context.Context, query string) ([]*Song, error)
	ListCreatorSongs(ctx context.Context, caller Caller) ([]*Song, error)

	// Play tracking
	RecordPlay(ctx context.Context, caller Caller, songID uuid.UUID) (*Song, error)
	RecentSongs(ctx context.Context, userID uuid.UUID) ([]RecentSong, error)

	// Playlist operations
	CreatePlaylist(ctx context.Context, caller Caller, req CreatePlaylistRequest) (*Playlist, error)
	GetPlaylist(ctx context.Context, id uuid.UUID) (*PlaylistView, error)
	ListPlaylists(ctx context.Context, caller Caller) ([]*PlaylistView, error)
	UpdatePlaylist(ctx context.Context, caller Caller, req UpdatePlaylistRequest) (*Playlist, error)
	DeletePlaylist(ctx context.Context, caller Caller, id uuid.UUID) error
	AddSongToPlaylist(ctx context.Context, caller Caller, playlistID, songID uuid.UUID) (*Playlist, error)
	RemoveSongFromPlaylist(ctx context.Context, caller Caller, playlistID, songID uuid.UUID) (*Playlist, error)

	// Account operations
	RegisterUser(ctx context.Context, req RegisterUserRequest) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	UpgradeToCreator(ctx context.Context, caller Caller) (*User, error)
	UpdateProfile(ctx context.Context, caller Caller, req UpdateProfileRequest) (*User, error)
	DeleteAccount(ctx context.Context, caller Caller) (*CascadeResult, error)

	// Referential integrity
	StripSongFromAllPlaylists(ctx context.Context, songID uuid.UUID) (int64, error)
	CascadeOnUserDeletion(ctx context.Context, userID uuid.UUID, role Role) (*CascadeResult, error)
}
