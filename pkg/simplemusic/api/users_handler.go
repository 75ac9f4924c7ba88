package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tendant/simple-music/pkg/simplemusic"
)

// LoginRequest is the request body for logging in
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by signup and login. The token is also set as
// the session cookie.
type AuthResponse struct {
	User  *simplemusic.User `json:"user"`
	Token string            `json:"token"`
}

// DeleteAccountResponse reports the cascade run by an account deletion
type DeleteAccountResponse struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// UsersHandler handles HTTP requests for accounts and sessions
type UsersHandler struct {
	service  simplemusic.Service
	auth     *Auth
	hashCost int
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(service simplemusic.Service, auth *Auth, hashCost int) *UsersHandler {
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &UsersHandler{service: service, auth: auth, hashCost: hashCost}
}

// Routes returns the routes for accounts
func (h *UsersHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Public routes
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(h.auth.Verifier(), h.auth.Authenticator)
		r.Get("/auth", h.Me)
		r.Patch("/upgrade-creator", h.UpgradeCreator)
		r.Patch("/{id}", h.UpdateProfile)
		r.Delete("/delete", h.DeleteAccount)
	})

	return r
}

// Signup creates a listener account and starts a session
func (h *UsersHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeBadRequest(w, r, "invalid form body")
		return
	}

	image, file, err := formUpload(r, "profileImage")
	if err != nil {
		writeBadRequest(w, r, "invalid profile image")
		return
	}
	defer closeAll(file)

	var hash string
	if password := r.FormValue("password"); password != "" {
		raw, err := bcrypt.GenerateFromPassword([]byte(password), h.hashCost)
		if err != nil {
			writeError(w, r, err)
			return
		}
		hash = string(raw)
	}

	user, err := h.service.RegisterUser(r.Context(), simplemusic.RegisterUserRequest{
		Name:         r.FormValue("name"),
		Email:        r.FormValue("email"),
		PasswordHash: hash,
		Gender:       r.FormValue("gender"),
		ProfileImage: image,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.auth.Issue(user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.auth.SetCookie(w, token)

	slog.Info("User registered", "user_id", user.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, AuthResponse{User: user, Token: token})
}

// Login verifies credentials and starts a session
func (h *UsersHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, r, "email and password are required")
		return
	}

	user, err := h.service.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, simplemusic.ErrNotFound) {
			writeBadRequest(w, r, "invalid credentials")
			return
		}
		writeError(w, r, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeBadRequest(w, r, "invalid credentials")
		return
	}

	token, err := h.auth.Issue(user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.auth.SetCookie(w, token)
	render.JSON(w, r, AuthResponse{User: user, Token: token})
}

// Logout clears the session cookie
func (h *UsersHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated account
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), caller(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, user)
}

// UpgradeCreator grants the creator role to the caller
func (h *UsersHandler) UpgradeCreator(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.UpgradeToCreator(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, user)
}

// UpdateProfile changes name, gender or profile image of the caller
func (h *UsersHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, r, "invalid user id")
		return
	}
	if err := parseForm(r); err != nil {
		writeBadRequest(w, r, "invalid form body")
		return
	}

	image, file, err := formUpload(r, "profileImage")
	if err != nil {
		writeBadRequest(w, r, "invalid profile image")
		return
	}
	defer closeAll(file)

	user, err := h.service.UpdateProfile(r.Context(), caller(r), simplemusic.UpdateProfileRequest{
		UserID:       userID,
		Name:         optionalField(r, "name"),
		Gender:       optionalField(r, "gender"),
		ProfileImage: image,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, user)
}

// DeleteAccount removes the caller's account and everything it owns. A
// partially failed cascade still deletes the account.
func (h *UsersHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.DeleteAccount(r.Context(), caller(r))
	var partial *simplemusic.PartialCascadeError
	if err != nil && !errors.As(err, &partial) {
		writeError(w, r, err)
		return
	}

	h.auth.ClearCookie(w)
	if partial != nil {
		writeError(w, r, err)
		return
	}

	resp := DeleteAccountResponse{}
	if result != nil {
		resp = DeleteAccountResponse{Attempted: result.Attempted, Succeeded: result.Succeeded, Failed: result.Failed}
	}
	render.JSON(w, r, resp)
}
