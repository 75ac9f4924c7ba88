package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-music/pkg/simplemusic"
)

// CreatePlaylistRequest is the request body for creating a playlist
type CreatePlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdatePlaylistRequest is the request body for renaming a playlist
type UpdatePlaylistRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// PlaylistSongRequest names the song to add or remove
type PlaylistSongRequest struct {
	SongID string `json:"songId"`
}

// PlaylistsHandler handles HTTP requests for playlists. Every route requires
// a session.
type PlaylistsHandler struct {
	service simplemusic.Service
	auth    *Auth
}

// NewPlaylistsHandler creates a new playlists handler
func NewPlaylistsHandler(service simplemusic.Service, auth *Auth) *PlaylistsHandler {
	return &PlaylistsHandler{service: service, auth: auth}
}

// Routes returns the routes for playlists
func (h *PlaylistsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.auth.Verifier(), h.auth.Authenticator)

	r.Post("/create", h.CreatePlaylist)
	r.Get("/", h.ListPlaylists)
	r.Get("/{id}", h.GetPlaylist)
	r.Put("/{id}", h.UpdatePlaylist)
	r.Delete("/{id}", h.DeletePlaylist)
	r.Put("/{id}/add-song", h.AddSong)
	r.Put("/{id}/remove-song", h.RemoveSong)

	return r
}

// CreatePlaylist creates an empty playlist owned by the caller
func (h *PlaylistsHandler) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req CreatePlaylistRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	playlist, err := h.service.CreatePlaylist(r.Context(), caller(r), simplemusic.CreatePlaylistRequest{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, playlist)
}

// ListPlaylists returns the caller's playlists with their songs
func (h *PlaylistsHandler) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListPlaylists(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, views)
}

// GetPlaylist returns one playlist with its songs
func (h *PlaylistsHandler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetPlaylist(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

// UpdatePlaylist renames a playlist or changes its description
func (h *PlaylistsHandler) UpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdatePlaylistRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	playlist, err := h.service.UpdatePlaylist(r.Context(), caller(r), simplemusic.UpdatePlaylistRequest{
		PlaylistID:  id,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, playlist)
}

// DeletePlaylist removes a playlist
func (h *PlaylistsHandler) DeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePlaylist(r.Context(), caller(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddSong appends a song to a playlist
func (h *PlaylistsHandler) AddSong(w http.ResponseWriter, r *http.Request) {
	h.mutateSongs(w, r, h.service.AddSongToPlaylist)
}

// RemoveSong removes a song from a playlist
func (h *PlaylistsHandler) RemoveSong(w http.ResponseWriter, r *http.Request) {
	h.mutateSongs(w, r, h.service.RemoveSongFromPlaylist)
}

type songMutation func(ctx context.Context, caller simplemusic.Caller, playlistID, songID uuid.UUID) (*simplemusic.Playlist, error)

func (h *PlaylistsHandler) mutateSongs(w http.ResponseWriter, r *http.Request, fn songMutation) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req PlaylistSongRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	songID, err := uuid.Parse(req.SongID)
	if err != nil {
		writeBadRequest(w, r, "invalid song id")
		return
	}

	playlist, err := fn(r.Context(), caller(r), id, songID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, playlist)
}
