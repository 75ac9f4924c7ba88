package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-music/pkg/simplemusic"
)

//go:embed schema.sql
var schema string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplemusic.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

var _ simplemusic.Repository = (*Repository)(nil)

// EnsureSchema creates the tables and indexes if they do not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return r.handlePostgresError("ensure schema", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "email") {
				return simplemusic.ErrEmailTaken
			}
			return fmt.Errorf("%w: duplicate entry", simplemusic.ErrValidation)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: required field %s is missing", simplemusic.ErrValidation, pgErr.ColumnName)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s", simplemusic.ErrValidation, pgErr.Message)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Song operations

const songColumns = `id, title, artist, album, category, duration, audio_url, cover_url,
	owner_id, play_count, created_at, updated_at`

func scanSong(row pgx.Row) (*simplemusic.Song, error) {
	var s simplemusic.Song
	err := row.Scan(&s.ID, &s.Title, &s.Artist, &s.Album, &s.Category, &s.Duration,
		&s.AudioURL, &s.CoverURL, &s.OwnerID, &s.PlayCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) querySongs(ctx context.Context, op, query string, args ...interface{}) ([]*simplemusic.Song, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(op, err)
	}
	defer rows.Close()

	var songs []*simplemusic.Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, r.handlePostgresError(op, err)
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError(op, err)
	}
	return songs, nil
}

func (r *Repository) CreateSong(ctx context.Context, song *simplemusic.Song) error {
	query := `
		INSERT INTO songs (` + songColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		song.ID, song.Title, song.Artist, song.Album, song.Category, song.Duration,
		song.AudioURL, song.CoverURL, song.OwnerID, song.PlayCount, song.CreatedAt, song.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create song", err)
	}
	return nil
}

func (r *Repository) GetSong(ctx context.Context, id uuid.UUID) (*simplemusic.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE id = $1`

	song, err := scanSong(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemusic.ErrSongNotFound
		}
		return nil, r.handlePostgresError("get song", err)
	}
	return song, nil
}

// UpdateSong never writes play_count; the counter only moves through
// IncrementPlayCount.
func (r *Repository) UpdateSong(ctx context.Context, song *simplemusic.Song) error {
	query := `
		UPDATE songs SET
			title = $2, artist = $3, album = $4, category = $5, duration = $6,
			audio_url = $7, cover_url = $8, updated_at = $9
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		song.ID, song.Title, song.Artist, song.Album, song.Category, song.Duration,
		song.AudioURL, song.CoverURL, song.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update song", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemusic.ErrSongNotFound
	}
	return nil
}

func (r *Repository) DeleteSong(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM songs WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete song", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemusic.ErrSongNotFound
	}
	return nil
}

func (r *Repository) ListSongsByIDs(ctx context.Context, ids []uuid.UUID) ([]*simplemusic.Song, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + songColumns + ` FROM songs WHERE id = ANY($1)`
	return r.querySongs(ctx, "list songs by ids", query, ids)
}

func (r *Repository) ListSongsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*simplemusic.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE owner_id = $1 ORDER BY created_at DESC`
	return r.querySongs(ctx, "list songs by owner", query, ownerID)
}

func (r *Repository) SearchSongs(ctx context.Context, query string) ([]*simplemusic.Song, error) {
	if query == "" {
		return r.querySongs(ctx, "search songs",
			`SELECT `+songColumns+` FROM songs ORDER BY created_at DESC`)
	}

	pattern := "%" + escapeLike(query) + "%"
	sql := `
		SELECT ` + songColumns + ` FROM songs
		WHERE title ILIKE $1 OR artist ILIKE $1 OR album ILIKE $1 OR category ILIKE $1
		ORDER BY created_at DESC`
	return r.querySongs(ctx, "search songs", sql, pattern)
}

func (r *Repository) IncrementPlayCount(ctx context.Context, id uuid.UUID) (*simplemusic.Song, error) {
	query := `UPDATE songs SET play_count = play_count + 1 WHERE id = $1 RETURNING ` + songColumns

	song, err := scanSong(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemusic.ErrSongNotFound
		}
		return nil, r.handlePostgresError("increment play count", err)
	}
	return song, nil
}

// Playlist operations

const playlistColumns = `id, name, description, owner_id, song_ids, created_at, updated_at`

func scanPlaylist(row pgx.Row) (*simplemusic.Playlist, error) {
	var p simplemusic.Playlist
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.SongIDs, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.SongIDs == nil {
		p.SongIDs = []uuid.UUID{}
	}
	return &p, nil
}

func (r *Repository) queryPlaylists(ctx context.Context, op, query string, args ...interface{}) ([]*simplemusic.Playlist, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(op, err)
	}
	defer rows.Close()

	var playlists []*simplemusic.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, r.handlePostgresError(op, err)
		}
		playlists = append(playlists, p)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError(op, err)
	}
	return playlists, nil
}

func (r *Repository) CreatePlaylist(ctx context.Context, playlist *simplemusic.Playlist) error {
	songIDs := playlist.SongIDs
	if songIDs == nil {
		songIDs = []uuid.UUID{}
	}
	query := `INSERT INTO playlists (` + playlistColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		playlist.ID, playlist.Name, playlist.Description, playlist.OwnerID, songIDs,
		playlist.CreatedAt, playlist.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create playlist", err)
	}
	return nil
}

func (r *Repository) GetPlaylist(ctx context.Context, id uuid.UUID) (*simplemusic.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE id = $1`

	p, err := scanPlaylist(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemusic.ErrPlaylistNotFound
		}
		return nil, r.handlePostgresError("get playlist", err)
	}
	return p, nil
}

func (r *Repository) UpdatePlaylist(ctx context.Context, playlist *simplemusic.Playlist) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE playlists SET name = $2, description = $3, updated_at = $4 WHERE id = $1`,
		playlist.ID, playlist.Name, playlist.Description, playlist.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update playlist", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemusic.ErrPlaylistNotFound
	}
	return nil
}

func (r *Repository) DeletePlaylist(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete playlist", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemusic.ErrPlaylistNotFound
	}
	return nil
}

func (r *Repository) ListPlaylistsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*simplemusic.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE owner_id = $1 ORDER BY created_at DESC`
	return r.queryPlaylists(ctx, "list playlists by owner", query, ownerID)
}

func (r *Repository) ListPlaylistsContaining(ctx context.Context, songID uuid.UUID) ([]*simplemusic.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE $1 = ANY(song_ids) ORDER BY created_at DESC`
	return r.queryPlaylists(ctx, "list playlists containing song", query, songID)
}

func (r *Repository) DeletePlaylistsByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM playlists WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, r.handlePostgresError("delete playlists by owner", err)
	}
	return tag.RowsAffected(), nil
}

// AddSongToPlaylist appends in a single statement guarded against
// duplicates, so concurrent adds of the same song cannot both succeed.
func (r *Repository) AddSongToPlaylist(ctx context.Context, playlistID, songID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE playlists SET song_ids = array_append(song_ids, $2)
		WHERE id = $1 AND NOT ($2 = ANY(song_ids))`, playlistID, songID)
	if err != nil {
		return r.handlePostgresError("add song to playlist", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetPlaylist(ctx, playlistID); err != nil {
			return err
		}
		return simplemusic.ErrSongAlreadyInPlaylist
	}
	return nil
}

func (r *Repository) RemoveSongFromPlaylist(ctx context.Context, playlistID, songID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE playlists SET song_ids = array_remove(song_ids, $2)
		WHERE id = $1 AND $2 = ANY(song_ids)`, playlistID, songID)
	if err != nil {
		return r.handlePostgresError("remove song from playlist", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetPlaylist(ctx, playlistID); err != nil {
			return err
		}
		return simplemusic.ErrSongNotInPlaylist
	}
	return nil
}

// RemoveSongFromPlaylists rewrites only the playlists whose set overlaps
// songIDs, keeping the order of the remaining entries.
func (r *Repository) RemoveSongFromPlaylists(ctx context.Context, songIDs ...uuid.UUID) (int64, error) {
	if len(songIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE playlists SET song_ids = ARRAY(
			SELECT s FROM unnest(song_ids) WITH ORDINALITY AS t(s, ord)
			WHERE s <> ALL($1::uuid[])
			ORDER BY ord
		)
		WHERE song_ids && $1::uuid[]`, songIDs)
	if err != nil {
		return 0, r.handlePostgresError("remove songs from playlists", err)
	}
	return tag.RowsAffected(), nil
}

// User operations

const userColumns = `id, name, email, password_hash, gender, role, profile_image_url,
	playlist_ids, created_at, updated_at`

func scanUser(row pgx.Row) (*simplemusic.User, error) {
	var u simplemusic.User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Gender, &role,
		&u.ProfileImageURL, &u.PlaylistIDs, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = simplemusic.Role(role)
	if u.PlaylistIDs == nil {
		u.PlaylistIDs = []uuid.UUID{}
	}
	return &u, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *simplemusic.User) error {
	playlistIDs := user.PlaylistIDs
	if playlistIDs == nil {
		playlistIDs = []uuid.UUID{}
	}
	query := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Gender, string(user.Role),
		user.ProfileImageURL, playlistIDs, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create user", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*simplemusic.User, error) {
	return r.getUserBy(ctx, "id", id)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*simplemusic.User, error) {
	return r.getUserBy(ctx, "email", email)
}

func (r *Repository) getUserBy(ctx context.Context, column string, value interface{}) (*simplemusic.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemusic.ErrUserNotFound
		}
		return nil, r.handlePostgresError("get user", err)
	}
	return user, nil
}

func (r *Repository) UpdateUser(ctx context.Context, user *simplemusic.User) error {
	playlistIDs := user.PlaylistIDs
	if playlistIDs == nil {
		playlistIDs = []uuid.UUID{}
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET
			name = $2, email = $3, password_hash = $4, gender = $5, role = $6,
			profile_image_url = $7, playlist_ids = $8, updated_at = $9
		WHERE id = $1`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Gender, string(user.Role),
		user.ProfileImageURL, playlistIDs, user.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update user", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemusic.ErrUserNotFound
	}
	return nil
}

func (r *Repository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemusic.ErrUserNotFound
	}
	return nil
}

// Play history operations

func (r *Repository) AppendPlay(ctx context.Context, event *simplemusic.PlayEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO play_history (id, user_id, song_id, played_at) VALUES ($1, $2, $3, $4)`,
		event.ID, event.UserID, event.SongID, event.PlayedAt)
	if err != nil {
		return r.handlePostgresError("append play", err)
	}
	return nil
}

func (r *Repository) ListRecentPlays(ctx context.Context, userID uuid.UUID, limit int) ([]*simplemusic.PlayEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, song_id, played_at FROM play_history
		WHERE user_id = $1
		ORDER BY played_at DESC, seq DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, r.handlePostgresError("list recent plays", err)
	}
	defer rows.Close()

	var events []*simplemusic.PlayEvent
	for rows.Next() {
		var e simplemusic.PlayEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.SongID, &e.PlayedAt); err != nil {
			return nil, r.handlePostgresError("list recent plays", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list recent plays", err)
	}
	return events, nil
}

func (r *Repository) DeletePlaysBySong(ctx context.Context, songID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM play_history WHERE song_id = $1`, songID)
	if err != nil {
		return 0, r.handlePostgresError("delete plays by song", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) DeletePlaysByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM play_history WHERE user_id = $1`, userID)
	if err != nil {
		return 0, r.handlePostgresError("delete plays by user", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) ReferencedObjectURLs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT audio_url FROM songs WHERE audio_url <> ''
		UNION ALL
		SELECT cover_url FROM songs WHERE cover_url <> ''
		UNION ALL
		SELECT profile_image_url FROM users WHERE profile_image_url <> ''`)
	if err != nil {
		return nil, r.handlePostgresError("referenced object urls", err)
	}
	defer rows.Close()

	urls, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, r.handlePostgresError("referenced object urls", err)
	}
	return urls, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
