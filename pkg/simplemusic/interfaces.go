package simplemusic

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/tendant/simple-music/pkg/simplemusic/staging"
)

// Repository defines the interface for document store operations.
//
// Implementations must be safe for concurrent use. Get methods return
// ErrSongNotFound, ErrPlaylistNotFound or ErrUserNotFound when the record is
// absent. Bulk reads (ListSongsByIDs) silently skip ids with no record.
type Repository interface {
	// Song operations
	CreateSong(ctx context.Context, song *Song) error
	GetSong(ctx context.Context, id uuid.UUID) (*Song, error)
	UpdateSong(ctx context.Context, song *Song) error
	DeleteSong(ctx context.Context, id uuid.UUID) error
	ListSongsByIDs(ctx context.Context, ids []uuid.UUID) ([]*Song, error)
	ListSongsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Song, error)
	SearchSongs(ctx context.Context, query string) ([]*Song, error)
	// IncrementPlayCount atomically adds one to the song's play counter and
	// returns the updated song.
	IncrementPlayCount(ctx context.Context, id uuid.UUID) (*Song, error)

	// Playlist operations
	CreatePlaylist(ctx context.Context, playlist *Playlist) error
	GetPlaylist(ctx context.Context, id uuid.UUID) (*Playlist, error)
	// UpdatePlaylist writes name, description and updated_at only. The song
	// set is mutated exclusively through the add/remove methods below.
	UpdatePlaylist(ctx context.Context, playlist *Playlist) error
	DeletePlaylist(ctx context.Context, id uuid.UUID) error
	ListPlaylistsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Playlist, error)
	ListPlaylistsContaining(ctx context.Context, songID uuid.UUID) ([]*Playlist, error)
	DeletePlaylistsByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
	// AddSongToPlaylist appends songID unless it is already present, in which
	// case it returns ErrSongAlreadyInPlaylist without mutating.
	AddSongToPlaylist(ctx context.Context, playlistID, songID uuid.UUID) error
	// RemoveSongFromPlaylist returns ErrSongNotInPlaylist when absent.
	RemoveSongFromPlaylist(ctx context.Context, playlistID, songID uuid.UUID) error
	// RemoveSongFromPlaylists strips every given id from every playlist that
	// holds one, as a single filtered bulk update. It returns the number of
	// playlists modified.
	RemoveSongFromPlaylists(ctx context.Context, songIDs ...uuid.UUID) (int64, error)

	// User operations
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error

	// Play history operations
	AppendPlay(ctx context.Context, event *PlayEvent) error
	// ListRecentPlays returns at most limit events for the user, newest first.
	ListRecentPlays(ctx context.Context, userID uuid.UUID, limit int) ([]*PlayEvent, error)
	DeletePlaysBySong(ctx context.Context, songID uuid.UUID) (int64, error)
	DeletePlaysByUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// ReferencedObjectURLs returns every blob URL held by a Song or User
	// record. Used by the orphan reconciler.
	ReferencedObjectURLs(ctx context.Context) ([]string, error)
}

// BlobStore defines the interface for the durable remote object store.
type BlobStore interface {
	// Upload stores the file at localPath under folder and returns its
	// public URL. For ContentClassAudio the result carries the duration.
	Upload(ctx context.Context, localPath string, class ContentClass, folder string) (*UploadResult, error)

	// Delete removes the object at url. It returns ErrObjectAbsent when no
	// such object exists.
	Delete(ctx context.Context, url string, class ContentClass) error
}

// ObjectLister is an optional BlobStore capability used by the reconciler.
type ObjectLister interface {
	List(ctx context.Context, folder string) ([]ObjectInfo, error)
}

// Stager spools an inbound stream to the local staging area. The returned
// handle must be released on every exit path.
type Stager interface {
	Stage(ctx context.Context, name string, r io.Reader) (*staging.Handle, error)
}

// EventSink receives lifecycle notifications. Errors are logged by the
// service and never fail the operation.
type EventSink interface {
	SongCreated(ctx context.Context, song *Song) error
	SongUpdated(ctx context.Context, song *Song) error
	SongDeleted(ctx context.Context, songID uuid.UUID) error
	PlayRecorded(ctx context.Context, event *PlayEvent) error
	CompensationRan(ctx context.Context, op string, class ContentClass, err error) error
	CascadeCompleted(ctx context.Context, result *CascadeResult) error
}

// SessionRevoker invalidates every session of a user. It is supplied by the
// authentication collaborator.
type SessionRevoker interface {
	Revoke(ctx context.Context, userID uuid.UUID) error
}
