package api

import (
	"context"
	"net/http"

	"github.com/okian/foldboard/internal/domain/model"
)

// StatsProvider reports job counts and the submit queue depth.
type StatsProvider interface {
	Stats(ctx context.Context) (map[model.JobState]int, error)
	QueueLen(ctx context.Context) (int, error)
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

type statsResponse struct {
	Jobs   map[model.JobState]int `json:"jobs"`
	Total  int                    `json:"total"`
	Queued int                    `json:"submit_queue"`
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.statsProvider.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", ErrInternal)
		return
	}
	resp := statsResponse{Jobs: make(map[model.JobState]int, len(model.AllJobStates))}
	for _, st := range model.AllJobStates {
		resp.Jobs[st] = counts[st]
		resp.Total += counts[st]
	}
	if n, err := h.statsProvider.QueueLen(r.Context()); err == nil {
		resp.Queued = n
	}
	writeJSON(w, http.StatusOK, resp)
}
