package mongodb

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tendant/simple-music/pkg/simplemusic"
)

// Collection names
const (
	songsCollection     = "songs"
	playlistsCollection = "playlists"
	usersCollection     = "users"
	historyCollection   = "play_history"
)

// Documents store ids as canonical uuid strings so that references stay
// readable from the mongo shell.

type songDoc struct {
	ID        string    `bson:"_id"`
	Title     string    `bson:"title"`
	Artist    string    `bson:"artist"`
	Album     string    `bson:"album"`
	Category  string    `bson:"category"`
	Duration  float64   `bson:"duration"`
	AudioURL  string    `bson:"audio_url"`
	CoverURL  string    `bson:"cover_url"`
	OwnerID   string    `bson:"owner_id"`
	PlayCount int64     `bson:"play_count"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type playlistDoc struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	OwnerID     string    `bson:"owner_id"`
	SongIDs     []string  `bson:"song_ids"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type userDoc struct {
	ID              string    `bson:"_id"`
	Name            string    `bson:"name"`
	Email           string    `bson:"email"`
	PasswordHash    string    `bson:"password_hash"`
	Gender          string    `bson:"gender"`
	Role            string    `bson:"role"`
	ProfileImageURL string    `bson:"profile_image_url"`
	PlaylistIDs     []string  `bson:"playlist_ids"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

// historyDoc carries an ObjectID alongside the event id; it is monotonic in
// insertion order and breaks ties between events with equal timestamps.
type historyDoc struct {
	ID       string             `bson:"_id"`
	Seq      primitive.ObjectID `bson:"seq"`
	UserID   string             `bson:"user_id"`
	SongID   string             `bson:"song_id"`
	PlayedAt time.Time          `bson:"played_at"`
}

func fromSong(s *simplemusic.Song) songDoc {
	return songDoc{
		ID:        s.ID.String(),
		Title:     s.Title,
		Artist:    s.Artist,
		Album:     s.Album,
		Category:  s.Category,
		Duration:  s.Duration,
		AudioURL:  s.AudioURL,
		CoverURL:  s.CoverURL,
		OwnerID:   s.OwnerID.String(),
		PlayCount: s.PlayCount,
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
	}
}

func (d songDoc) toSong() *simplemusic.Song {
	return &simplemusic.Song{
		ID:        parseID(d.ID),
		Title:     d.Title,
		Artist:    d.Artist,
		Album:     d.Album,
		Category:  d.Category,
		Duration:  d.Duration,
		AudioURL:  d.AudioURL,
		CoverURL:  d.CoverURL,
		OwnerID:   parseID(d.OwnerID),
		PlayCount: d.PlayCount,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func fromPlaylist(p *simplemusic.Playlist) playlistDoc {
	return playlistDoc{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		OwnerID:     p.OwnerID.String(),
		SongIDs:     idStrings(p.SongIDs),
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func (d playlistDoc) toPlaylist() *simplemusic.Playlist {
	return &simplemusic.Playlist{
		ID:          parseID(d.ID),
		Name:        d.Name,
		Description: d.Description,
		OwnerID:     parseID(d.OwnerID),
		SongIDs:     parseIDs(d.SongIDs),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

func fromUser(u *simplemusic.User) userDoc {
	return userDoc{
		ID:              u.ID.String(),
		Name:            u.Name,
		Email:           u.Email,
		PasswordHash:    u.PasswordHash,
		Gender:          u.Gender,
		Role:            string(u.Role),
		ProfileImageURL: u.ProfileImageURL,
		PlaylistIDs:     idStrings(u.PlaylistIDs),
		CreatedAt:       u.CreatedAt.UTC(),
		UpdatedAt:       u.UpdatedAt.UTC(),
	}
}

func (d userDoc) toUser() *simplemusic.User {
	return &simplemusic.User{
		ID:              parseID(d.ID),
		Name:            d.Name,
		Email:           d.Email,
		PasswordHash:    d.PasswordHash,
		Gender:          d.Gender,
		Role:            simplemusic.Role(d.Role),
		ProfileImageURL: d.ProfileImageURL,
		PlaylistIDs:     parseIDs(d.PlaylistIDs),
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
}

func (d historyDoc) toEvent() *simplemusic.PlayEvent {
	return &simplemusic.PlayEvent{
		ID:       parseID(d.ID),
		UserID:   parseID(d.UserID),
		SongID:   parseID(d.SongID),
		PlayedAt: d.PlayedAt.UTC(),
	}
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// parseID maps malformed stored ids to uuid.Nil rather than failing a read.
func parseID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func parseIDs(ss []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ss))
	for _, s := range ss {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}
