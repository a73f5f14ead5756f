package api

import (
	"net/http"

	"github.com/okian/foldboard/internal/domain/model"
)

// CatalogReader lists sessions and problems.
type CatalogReader interface {
	Sessions() []model.Session
	Problems() []model.Problem
}

// CatalogHandler serves the public catalog. Reference structures are never exposed.
type CatalogHandler struct {
	deps CatalogReader
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(deps CatalogReader) *CatalogHandler {
	return &CatalogHandler{deps: deps}
}

// HandleSessions handles GET /sessions.
func (h *CatalogHandler) HandleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := h.deps.Sessions()
	if sessions == nil {
		sessions = []model.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// HandleProblems handles GET /problems, optionally filtered by ?session=.
func (h *CatalogHandler) HandleProblems(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	out := []model.Problem{}
	for _, p := range h.deps.Problems() {
		if session != "" && p.Session != session {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}
