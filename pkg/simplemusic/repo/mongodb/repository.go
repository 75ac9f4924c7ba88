package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tendant/simple-music/pkg/simplemusic"
)

// Repository implements simplemusic.Repository on a MongoDB database
type Repository struct {
	songs     *mongo.Collection
	playlists *mongo.Collection
	users     *mongo.Collection
	history   *mongo.Collection
}

// New creates a repository over the collections of db
func New(db *mongo.Database) *Repository {
	return &Repository{
		songs:     db.Collection(songsCollection),
		playlists: db.Collection(playlistsCollection),
		users:     db.Collection(usersCollection),
		history:   db.Collection(historyCollection),
	}
}

var _ simplemusic.Repository = (*Repository)(nil)

// EnsureIndexes creates the indexes the queries rely on, including the
// unique email index.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{r.users, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{r.songs, []mongo.IndexModel{
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
		}},
		{r.playlists, []mongo.IndexModel{
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "song_ids", Value: 1}}},
		}},
		{r.history, []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "played_at", Value: -1}, {Key: "seq", Value: -1}}},
			{Keys: bson.D{{Key: "song_id", Value: 1}}},
		}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateMany(ctx, idx.models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

func wrap(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: duplicate entry", simplemusic.ErrValidation)
	}
	return fmt.Errorf("mongo error in %s: %w", op, err)
}

var newestFirst = options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

// Song operations

func (r *Repository) CreateSong(ctx context.Context, song *simplemusic.Song) error {
	if _, err := r.songs.InsertOne(ctx, fromSong(song)); err != nil {
		return wrap("create song", err)
	}
	return nil
}

func (r *Repository) GetSong(ctx context.Context, id uuid.UUID) (*simplemusic.Song, error) {
	var doc songDoc
	err := r.songs.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, simplemusic.ErrSongNotFound
		}
		return nil, wrap("get song", err)
	}
	return doc.toSong(), nil
}

// UpdateSong never writes play_count; the counter only moves through
// IncrementPlayCount.
func (r *Repository) UpdateSong(ctx context.Context, song *simplemusic.Song) error {
	doc := fromSong(song)
	res, err := r.songs.UpdateByID(ctx, doc.ID, bson.M{"$set": bson.M{
		"title":      doc.Title,
		"artist":     doc.Artist,
		"album":      doc.Album,
		"category":   doc.Category,
		"duration":   doc.Duration,
		"audio_url":  doc.AudioURL,
		"cover_url":  doc.CoverURL,
		"updated_at": doc.UpdatedAt,
	}})
	if err != nil {
		return wrap("update song", err)
	}
	if res.MatchedCount == 0 {
		return simplemusic.ErrSongNotFound
	}
	return nil
}

func (r *Repository) DeleteSong(ctx context.Context, id uuid.UUID) error {
	res, err := r.songs.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return wrap("delete song", err)
	}
	if res.DeletedCount == 0 {
		return simplemusic.ErrSongNotFound
	}
	return nil
}

func (r *Repository) findSongs(ctx context.Context, op string, filter interface{}, opts ...*options.FindOptions) ([]*simplemusic.Song, error) {
	cur, err := r.songs.Find(ctx, filter, opts...)
	if err != nil {
		return nil, wrap(op, err)
	}
	var docs []songDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap(op, err)
	}

	var songs []*simplemusic.Song
	for _, d := range docs {
		songs = append(songs, d.toSong())
	}
	return songs, nil
}

func (r *Repository) ListSongsByIDs(ctx context.Context, ids []uuid.UUID) ([]*simplemusic.Song, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.findSongs(ctx, "list songs by ids", bson.M{"_id": bson.M{"$in": idStrings(ids)}})
}

func (r *Repository) ListSongsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*simplemusic.Song, error) {
	return r.findSongs(ctx, "list songs by owner", bson.M{"owner_id": ownerID.String()}, newestFirst)
}

func (r *Repository) SearchSongs(ctx context.Context, query string) ([]*simplemusic.Song, error) {
	filter := bson.M{}
	if query != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
		filter = bson.M{"$or": bson.A{
			bson.M{"title": rx},
			bson.M{"artist": rx},
			bson.M{"album": rx},
			bson.M{"category": rx},
		}}
	}
	return r.findSongs(ctx, "search songs", filter, newestFirst)
}

func (r *Repository) IncrementPlayCount(ctx context.Context, id uuid.UUID) (*simplemusic.Song, error) {
	var doc songDoc
	err := r.songs.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$inc": bson.M{"play_count": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, simplemusic.ErrSongNotFound
		}
		return nil, wrap("increment play count", err)
	}
	return doc.toSong(), nil
}

// Playlist operations

func (r *Repository) CreatePlaylist(ctx context.Context, playlist *simplemusic.Playlist) error {
	if _, err := r.playlists.InsertOne(ctx, fromPlaylist(playlist)); err != nil {
		return wrap("create playlist", err)
	}
	return nil
}

func (r *Repository) GetPlaylist(ctx context.Context, id uuid.UUID) (*simplemusic.Playlist, error) {
	var doc playlistDoc
	err := r.playlists.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, simplemusic.ErrPlaylistNotFound
		}
		return nil, wrap("get playlist", err)
	}
	return doc.toPlaylist(), nil
}

func (r *Repository) UpdatePlaylist(ctx context.Context, playlist *simplemusic.Playlist) error {
	res, err := r.playlists.UpdateByID(ctx, playlist.ID.String(), bson.M{"$set": bson.M{
		"name":        playlist.Name,
		"description": playlist.Description,
		"updated_at":  playlist.UpdatedAt.UTC(),
	}})
	if err != nil {
		return wrap("update playlist", err)
	}
	if res.MatchedCount == 0 {
		return simplemusic.ErrPlaylistNotFound
	}
	return nil
}

func (r *Repository) DeletePlaylist(ctx context.Context, id uuid.UUID) error {
	res, err := r.playlists.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return wrap("delete playlist", err)
	}
	if res.DeletedCount == 0 {
		return simplemusic.ErrPlaylistNotFound
	}
	return nil
}

func (r *Repository) findPlaylists(ctx context.Context, op string, filter interface{}) ([]*simplemusic.Playlist, error) {
	cur, err := r.playlists.Find(ctx, filter, newestFirst)
	if err != nil {
		return nil, wrap(op, err)
	}
	var docs []playlistDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap(op, err)
	}

	var playlists []*simplemusic.Playlist
	for _, d := range docs {
		playlists = append(playlists, d.toPlaylist())
	}
	return playlists, nil
}

func (r *Repository) ListPlaylistsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*simplemusic.Playlist, error) {
	return r.findPlaylists(ctx, "list playlists by owner", bson.M{"owner_id": ownerID.String()})
}

func (r *Repository) ListPlaylistsContaining(ctx context.Context, songID uuid.UUID) ([]*simplemusic.Playlist, error) {
	return r.findPlaylists(ctx, "list playlists containing song", bson.M{"song_ids": songID.String()})
}

func (r *Repository) DeletePlaylistsByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	res, err := r.playlists.DeleteMany(ctx, bson.M{"owner_id": ownerID.String()})
	if err != nil {
		return 0, wrap("delete playlists by owner", err)
	}
	return res.DeletedCount, nil
}

// AddSongToPlaylist pushes only when the id is absent, in one update.
func (r *Repository) AddSongToPlaylist(ctx context.Context, playlistID, songID uuid.UUID) error {
	res, err := r.playlists.UpdateOne(ctx,
		bson.M{"_id": playlistID.String(), "song_ids": bson.M{"$ne": songID.String()}},
		bson.M{"$push": bson.M{"song_ids": songID.String()}},
	)
	if err != nil {
		return wrap("add song to playlist", err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetPlaylist(ctx, playlistID); err != nil {
			return err
		}
		return simplemusic.ErrSongAlreadyInPlaylist
	}
	return nil
}

func (r *Repository) RemoveSongFromPlaylist(ctx context.Context, playlistID, songID uuid.UUID) error {
	res, err := r.playlists.UpdateOne(ctx,
		bson.M{"_id": playlistID.String(), "song_ids": songID.String()},
		bson.M{"$pull": bson.M{"song_ids": songID.String()}},
	)
	if err != nil {
		return wrap("remove song from playlist", err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetPlaylist(ctx, playlistID); err != nil {
			return err
		}
		return simplemusic.ErrSongNotInPlaylist
	}
	return nil
}

// RemoveSongFromPlaylists is a filtered updateMany with $pull, touching only
// playlists that hold at least one of the ids.
func (r *Repository) RemoveSongFromPlaylists(ctx context.Context, songIDs ...uuid.UUID) (int64, error) {
	if len(songIDs) == 0 {
		return 0, nil
	}
	ids := idStrings(songIDs)
	res, err := r.playlists.UpdateMany(ctx,
		bson.M{"song_ids": bson.M{"$in": ids}},
		bson.M{"$pull": bson.M{"song_ids": bson.M{"$in": ids}}},
	)
	if err != nil {
		return 0, wrap("remove songs from playlists", err)
	}
	return res.ModifiedCount, nil
}

// User operations

func (r *Repository) CreateUser(ctx context.Context, user *simplemusic.User) error {
	if _, err := r.users.InsertOne(ctx, fromUser(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return simplemusic.ErrEmailTaken
		}
		return wrap("create user", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*simplemusic.User, error) {
	return r.findUser(ctx, bson.M{"_id": id.String()})
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*simplemusic.User, error) {
	return r.findUser(ctx, bson.M{"email": email})
}

func (r *Repository) findUser(ctx context.Context, filter bson.M) (*simplemusic.User, error) {
	var doc userDoc
	if err := r.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, simplemusic.ErrUserNotFound
		}
		return nil, wrap("get user", err)
	}
	return doc.toUser(), nil
}

func (r *Repository) UpdateUser(ctx context.Context, user *simplemusic.User) error {
	doc := fromUser(user)
	res, err := r.users.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return simplemusic.ErrEmailTaken
		}
		return wrap("update user", err)
	}
	if res.MatchedCount == 0 {
		return simplemusic.ErrUserNotFound
	}
	return nil
}

func (r *Repository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := r.users.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return wrap("delete user", err)
	}
	if res.DeletedCount == 0 {
		return simplemusic.ErrUserNotFound
	}
	return nil
}

// Play history operations

func (r *Repository) AppendPlay(ctx context.Context, event *simplemusic.PlayEvent) error {
	doc := historyDoc{
		ID:       event.ID.String(),
		Seq:      primitive.NewObjectID(),
		UserID:   event.UserID.String(),
		SongID:   event.SongID.String(),
		PlayedAt: event.PlayedAt.UTC(),
	}
	if _, err := r.history.InsertOne(ctx, doc); err != nil {
		return wrap("append play", err)
	}
	return nil
}

func (r *Repository) ListRecentPlays(ctx context.Context, userID uuid.UUID, limit int) ([]*simplemusic.PlayEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "played_at", Value: -1}, {Key: "seq", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := r.history.Find(ctx, bson.M{"user_id": userID.String()}, opts)
	if err != nil {
		return nil, wrap("list recent plays", err)
	}
	var docs []historyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap("list recent plays", err)
	}

	events := make([]*simplemusic.PlayEvent, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.toEvent())
	}
	return events, nil
}

func (r *Repository) DeletePlaysBySong(ctx context.Context, songID uuid.UUID) (int64, error) {
	res, err := r.history.DeleteMany(ctx, bson.M{"song_id": songID.String()})
	if err != nil {
		return 0, wrap("delete plays by song", err)
	}
	return res.DeletedCount, nil
}

func (r *Repository) DeletePlaysByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := r.history.DeleteMany(ctx, bson.M{"user_id": userID.String()})
	if err != nil {
		return 0, wrap("delete plays by user", err)
	}
	return res.DeletedCount, nil
}

func (r *Repository) ReferencedObjectURLs(ctx context.Context) ([]string, error) {
	var urls []string

	cur, err := r.songs.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"audio_url": 1, "cover_url": 1}))
	if err != nil {
		return nil, wrap("referenced object urls", err)
	}
	var songs []songDoc
	if err := cur.All(ctx, &songs); err != nil {
		return nil, wrap("referenced object urls", err)
	}
	for _, s := range songs {
		for _, u := range []string{s.AudioURL, s.CoverURL} {
			if u != "" {
				urls = append(urls, u)
			}
		}
	}

	cur, err = r.users.Find(ctx, bson.M{"profile_image_url": bson.M{"$ne": ""}},
		options.Find().SetProjection(bson.M{"profile_image_url": 1}))
	if err != nil {
		return nil, wrap("referenced object urls", err)
	}
	var users []userDoc
	if err := cur.All(ctx, &users); err != nil {
		return nil, wrap("referenced object urls", err)
	}
	for _, u := range users {
		if u.ProfileImageURL != "" {
			urls = append(urls, u.ProfileImageURL)
		}
	}
	return urls, nil
}
