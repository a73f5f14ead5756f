package api

import (
	"context"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
)

// ResultReader serves published artifacts by token.
type ResultReader interface {
	Result(ctx context.Context, token string) ([]byte, error)
	ResultFile(ctx context.Context, token, name string) ([]byte, error)
}

// ResultsHandler handles GET /results/{token}[/{file}].
type ResultsHandler struct {
	deps ResultReader
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(deps ResultReader) *ResultsHandler {
	return &ResultsHandler{deps: deps}
}

// HandleResult returns the metadata document of a token.
func (h *ResultsHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	raw, err := h.deps.Result(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// HandleResultFile returns one structure or confidence file of a token.
func (h *ResultsHandler) HandleResultFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	raw, err := h.deps.ResultFile(r.Context(), chi.URLParam(r, "token"), name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".json":
		return "application/json; charset=utf-8"
	case ".cif":
		return "chemical/x-mmcif"
	case ".pdb":
		return "chemical/x-pdb"
	}
	return "application/octet-stream"
}
