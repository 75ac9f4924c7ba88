package simplemusic

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// ContentClass tells the blob store what kind of bytes it is receiving.
type ContentClass string

// Content class constants (typed).
const (
	ContentClassAudio ContentClass = "audio"
	ContentClassImage ContentClass = "image"
)

// IsValid reports whether the class is one the blob store accepts.
func (c ContentClass) IsValid() bool {
	return c == ContentClassAudio || c == ContentClassImage
}

// Role is the account role of a user.
type Role string

// Role constants (typed).
const (
	RoleListener Role = "listener"
	RoleCreator  Role = "creator"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleListener || r == RoleCreator
}

// Caller is the verified identity performing an operation. It is always
// supplied by the authentication collaborator, never read from payloads.
type Caller struct {
	UserID uuid.UUID
	Role   Role
}

// IsCreator reports whether the caller holds the creator role.
func (c Caller) IsCreator() bool {
	return c.Role == RoleCreator
}

// Song is a published audio track.
//
// AudioURL is always set once a Song exists. Duration belongs to the audio
// object behind AudioURL and is only ever replaced together with it.
type Song struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist,omitempty"`
	Album     string    `json:"album,omitempty"`
	Category  string    `json:"category,omitempty"`
	Duration  float64   `json:"duration"`
	AudioURL  string    `json:"audio_url"`
	CoverURL  string    `json:"cover_url,omitempty"`
	OwnerID   uuid.UUID `json:"owner_id"`
	PlayCount int64     `json:"play_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Playlist is a user-owned, ordered set of song ids.
type Playlist struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	OwnerID     uuid.UUID   `json:"owner_id"`
	SongIDs     []uuid.UUID `json:"song_ids"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Contains reports whether songID is already part of the playlist.
func (p *Playlist) Contains(songID uuid.UUID) bool {
	for _, id := range p.SongIDs {
		if id == songID {
			return true
		}
	}
	return false
}

// PlaylistView is a playlist with its song references resolved. Songs keeps
// the playlist's insertion order and omits dangling references.
type PlaylistView struct {
	Playlist
	Songs []*Song `json:"songs"`
}

// User is an account.
//
// PlaylistIDs is a back-reference set used when planning a cascade. Ownership
// is always re-derived from Playlist.OwnerID, never from this list.
type User struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	PasswordHash    string      `json:"-"`
	Gender          string      `json:"gender,omitempty"`
	Role            Role        `json:"role"`
	ProfileImageURL string      `json:"profile_image_url,omitempty"`
	PlaylistIDs     []uuid.UUID `json:"playlist_ids,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Caller returns the identity of the user as an operation caller.
func (u *User) Caller() Caller {
	return Caller{UserID: u.ID, Role: u.Role}
}

// PlayEvent is one append-only entry of the play history log.
type PlayEvent struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	SongID   uuid.UUID `json:"song_id"`
	PlayedAt time.Time `json:"played_at"`
}

// RecentSong is one entry of the recently played view: song metadata plus
// the timestamp of the most recent play of that song.
type RecentSong struct {
	SongID   uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Artist   string    `json:"artist,omitempty"`
	Album    string    `json:"album,omitempty"`
	Category string    `json:"category,omitempty"`
	CoverURL string    `json:"cover_url,omitempty"`
	Duration float64   `json:"duration"`
	PlayedAt time.Time `json:"played_at"`
}

// Upload is an inbound byte stream together with the client supplied file
// name. The name only influences the staging and object key names.
type Upload struct {
	FileName    string
	ContentType string
	Reader      io.Reader
}

// UploadResult is what the blob store returns for a stored object.
// DurationSeconds is only set for audio uploads.
type UploadResult struct {
	URL             string
	DurationSeconds float64
}

// ObjectInfo describes an object held by a blob store.
type ObjectInfo struct {
	URL        string
	Size       int64
	ModifiedAt time.Time
}
