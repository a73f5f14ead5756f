package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/foldboard/internal/app"
	"github.com/okian/foldboard/pkg/logger"
)

// Submitter accepts intake events.
type Submitter interface {
	Submit(ctx context.Context, in service.Intake) (service.Receipt, error)
}

// SubmissionsHandler handles POST /submissions.
type SubmissionsHandler struct {
	deps   Submitter
	logger logger.Logger
}

type submitResponse struct {
	Status string `json:"status"`
	service.Receipt
}

// NewSubmissionsHandler creates a new intake handler.
func NewSubmissionsHandler(deps Submitter, l logger.Logger) *SubmissionsHandler {
	return &SubmissionsHandler{deps: deps, logger: l}
}

// HandleSubmit accepts an intake event. Accepted events answer 202 with the
// receipt, replays of a known submission id answer 409 with the original one.
func (h *SubmissionsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var in service.Intake
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	receipt, err := h.deps.Submit(r.Context(), in)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, submitResponse{Status: "accepted", Receipt: receipt})
	case errors.Is(err, service.ErrDuplicate):
		tagError(w, "duplicate_submission")
		writeJSON(w, http.StatusConflict, submitResponse{Status: "duplicate", Receipt: receipt})
	case errors.Is(err, service.ErrValidation):
		writeServiceError(w, err)
	default:
		h.logger.Error(r.Context(), "submission failed", logger.Error(err))
		writeServiceError(w, err)
	}
}
