package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/foldboard/internal/app"
	"github.com/okian/foldboard/pkg/logger"
)

// AdminDependencies are the operator actions exposed under /admin.
type AdminDependencies interface {
	Reevaluate(ctx context.Context, req service.ReevaluateRequest) (service.ReevaluateReport, error)
	RunPass(ctx context.Context, name string) (service.Report, error)
}

// AdminHandler handles operator requests.
type AdminHandler struct {
	deps   AdminDependencies
	logger logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies, l logger.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, logger: l}
}

// HandleReevaluate handles POST /admin/reevaluate.
func (h *AdminHandler) HandleReevaluate(w http.ResponseWriter, r *http.Request) {
	var req service.ReevaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	rep, err := h.deps.Reevaluate(r.Context(), req)
	if err != nil {
		if !errors.Is(err, service.ErrValidation) && !errors.Is(err, service.ErrTokenNotFound) &&
			!errors.Is(err, service.ErrSubmissionNotFound) {
			h.logger.Error(r.Context(), "re-evaluation failed", logger.Error(err))
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleRunPass handles POST /admin/passes/{pass}.
func (h *AdminHandler) HandleRunPass(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.RunPass(r.Context(), chi.URLParam(r, "pass"))
	if err != nil {
		if !errors.Is(err, service.ErrUnknownPass) {
			h.logger.Error(r.Context(), "pass failed", logger.String("pass", rep.Pass), logger.Error(err))
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
