package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-music/pkg/simplemusic"
)

// PlayResponse is returned when a play is recorded
type PlayResponse struct {
	Song     *simplemusic.Song `json:"song"`
	Recorded bool              `json:"recorded"`
}

// SongsHandler handles HTTP requests for songs
type SongsHandler struct {
	service simplemusic.Service
	auth    *Auth
}

// NewSongsHandler creates a new songs handler
func NewSongsHandler(service simplemusic.Service, auth *Auth) *SongsHandler {
	return &SongsHandler{service: service, auth: auth}
}

// Routes returns the routes for songs
func (h *SongsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Public routes
	r.Get("/get", h.SearchSongs)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Verifier(), h.auth.Authenticator)
		r.Post("/", h.CreateSong)
		r.Get("/recent", h.RecentSongs)
		r.Get("/creator/songs", h.CreatorSongs)
		r.Post("/play/{id}", h.PlaySong)
		r.Put("/{id}", h.UpdateSong)
		r.Delete("/{id}", h.DeleteSong)
	})

	r.Get("/{id}", h.GetSong)

	return r
}

// CreateSong publishes a song from a multipart body with "audio" and
// "coverImage" files
func (h *SongsHandler) CreateSong(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeBadRequest(w, r, "invalid form body")
		return
	}

	audio, audioFile, err := formUpload(r, "audio")
	if err != nil {
		writeBadRequest(w, r, "invalid audio file")
		return
	}
	cover, coverFile, err := formUpload(r, "coverImage")
	if err != nil {
		closeAll(audioFile)
		writeBadRequest(w, r, "invalid cover image")
		return
	}
	defer closeAll(audioFile, coverFile)

	song, err := h.service.CreateSong(r.Context(), caller(r), simplemusic.CreateSongRequest{
		Title:    r.FormValue("title"),
		Artist:   r.FormValue("artist"),
		Album:    r.FormValue("album"),
		Category: r.FormValue("category"),
		Audio:    audio,
		Cover:    cover,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Song created", "song_id", song.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, song)
}

// SearchSongs lists songs matching the "q" query parameter
func (h *SongsHandler) SearchSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := h.service.SearchSongs(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, songs)
}

// GetSong returns one song
func (h *SongsHandler) GetSong(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	song, err := h.service.GetSong(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, song)
}

// RecentSongs returns the caller's recently played songs
func (h *SongsHandler) RecentSongs(w http.ResponseWriter, r *http.Request) {
	recent, err := h.service.RecentSongs(r.Context(), caller(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, recent)
}

// CreatorSongs returns the songs published by the caller
func (h *SongsHandler) CreatorSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := h.service.ListCreatorSongs(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, songs)
}

// PlaySong counts a play and appends it to the caller's history
func (h *SongsHandler) PlaySong(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	song, err := h.service.RecordPlay(r.Context(), caller(r), id)
	if err != nil {
		if errors.Is(err, simplemusic.ErrPlayNotRecorded) && song != nil {
			slog.Error("Play counted without history event", "song_id", id, "error", err)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, PlayResponse{Song: song, Recorded: false})
			return
		}
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, PlayResponse{Song: song, Recorded: true})
}

// UpdateSong applies a partial update; either file may be re-uploaded
func (h *SongsHandler) UpdateSong(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := parseForm(r); err != nil {
		writeBadRequest(w, r, "invalid form body")
		return
	}

	audio, audioFile, err := formUpload(r, "audio")
	if err != nil {
		writeBadRequest(w, r, "invalid audio file")
		return
	}
	cover, coverFile, err := formUpload(r, "coverImage")
	if err != nil {
		closeAll(audioFile)
		writeBadRequest(w, r, "invalid cover image")
		return
	}
	defer closeAll(audioFile, coverFile)

	song, err := h.service.UpdateSong(r.Context(), caller(r), simplemusic.UpdateSongRequest{
		SongID:   id,
		Title:    optionalField(r, "title"),
		Artist:   optionalField(r, "artist"),
		Album:    optionalField(r, "album"),
		Category: optionalField(r, "category"),
		Audio:    audio,
		Cover:    cover,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, song)
}

// DeleteSong removes a song, its objects and every reference to it
func (h *SongsHandler) DeleteSong(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteSong(r.Context(), caller(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, r, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
