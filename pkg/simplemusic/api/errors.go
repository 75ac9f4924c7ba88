package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/simple-music/pkg/simplemusic"
)

// ErrorBody is the error payload of every failed request
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Set for partially failed account deletions
	Attempted *int `json:"attempted,omitempty"`
	Succeeded *int `json:"succeeded,omitempty"`
	Failed    *int `json:"failed,omitempty"`
}

// ErrorResponse wraps ErrorBody
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// statusFor maps a service error onto an HTTP status and error code
func statusFor(err error) (int, string) {
	var partial *simplemusic.PartialCascadeError
	switch {
	case errors.As(err, &partial):
		return http.StatusInternalServerError, "partial_cascade"
	case errors.Is(err, simplemusic.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, simplemusic.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, simplemusic.ErrUnauthorized):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, simplemusic.ErrUpstreamStorage):
		return http.StatusBadGateway, "upstream_storage"
	case errors.Is(err, simplemusic.ErrPlayNotRecorded):
		return http.StatusInternalServerError, "play_not_recorded"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError renders err as an ErrorResponse. Internal errors are logged and
// their message is not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	body := ErrorBody{Code: code, Message: err.Error()}

	var partial *simplemusic.PartialCascadeError
	if errors.As(err, &partial) {
		body.Attempted = &partial.Attempted
		body.Succeeded = &partial.Succeeded
		body.Failed = &partial.Failed
	}

	if code == "internal_error" {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Message = "An internal server error occurred"
	} else if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: body})
}

// writeBadRequest renders a 400 for malformed transport input
func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{Code: "bad_request", Message: message}})
}

// writeUnauthenticated renders a 401
func writeUnauthenticated(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{Code: "unauthenticated", Message: message}})
}
