package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"llamad/internal/runtime"
	"llamad/internal/session"
	"llamad/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps engine error kinds to HTTP status codes.
func statusForError(err error) int {
	switch {
	case session.IsInvalidHandle(err):
		return http.StatusNotFound
	case session.IsSessionBusy(err):
		return http.StatusConflict
	case session.IsContextOverflow(err):
		return http.StatusRequestEntityTooLarge
	case session.IsInvalidArgument(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, runtime.ErrNotBuilt):
		return http.StatusServiceUnavailable
	case session.IsModelLoadFailed(err):
		return http.StatusBadRequest
	default:
		if he, ok := err.(HTTPError); ok {
			return he.StatusCode()
		}
		return http.StatusInternalServerError
	}
}

// writeError maps the error to a status and writes the JSON payload.
func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusForError(err), err.Error())
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
