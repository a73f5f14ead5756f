package api

import (
	"errors"
	"net/http"

	service "github.com/okian/foldboard/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrInternal   = errors.New("internal error")
)

// writeServiceError maps orchestrator errors to status codes. Anything not
// recognised is a 500 whose detail stays in the server log.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		tagError(w, "invalid_submission")
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_submission", Message: verr.Message, Field: verr.Field})
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_submission", err)
	case errors.Is(err, service.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate_submission", err)
	case errors.Is(err, service.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrUnknownSession):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrUnknownPass):
		writeError(w, http.StatusBadRequest, "unknown_pass", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", ErrInternal)
	}
}
