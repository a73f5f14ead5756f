// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	service "github.com/okian/foldboard/internal/app"
	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/pkg/logger"
)

const (
	maxBodyBytes   = 1 << 20
	requestTimeout = 60 * time.Second
)

// Dependencies is the slice of the orchestrator the HTTP layer calls.
type Dependencies interface {
	Submit(ctx context.Context, in service.Intake) (service.Receipt, error)
	Result(ctx context.Context, token string) ([]byte, error)
	ResultFile(ctx context.Context, token, name string) ([]byte, error)
	Leaderboard(ctx context.Context, session string) (model.Leaderboard, error)
	Sessions() []model.Session
	Problems() []model.Problem
	Reevaluate(ctx context.Context, req service.ReevaluateRequest) (service.ReevaluateReport, error)
	RunPass(ctx context.Context, name string) (service.Report, error)
	Stats(ctx context.Context) (map[model.JobState]int, error)
	QueueLen(ctx context.Context) (int, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps               Dependencies
	logger             logger.Logger
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	submissionsHandler *SubmissionsHandler
	resultsHandler     *ResultsHandler
	leaderboardHandler *LeaderboardHandler
	catalogHandler     *CatalogHandler
	adminHandler       *AdminHandler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for handler failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{deps: deps, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.submissionsHandler = NewSubmissionsHandler(deps, s.logger)
	s.resultsHandler = NewResultsHandler(deps)
	s.leaderboardHandler = NewLeaderboardHandler(deps)
	s.catalogHandler = NewCatalogHandler(deps)
	s.adminHandler = NewAdminHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(requestTimeout))

		r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
		r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

		r.Post("/submissions", MetricsMiddleware(s.submissionsHandler.HandleSubmit, "submissions"))
		r.Get("/results/{token}", MetricsMiddleware(s.resultsHandler.HandleResult, "results"))
		r.Get("/results/{token}/{file}", MetricsMiddleware(s.resultsHandler.HandleResultFile, "result_file"))
		r.Get("/leaderboard/{session}", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
		r.Get("/sessions", MetricsMiddleware(s.catalogHandler.HandleSessions, "sessions"))
		r.Get("/problems", MetricsMiddleware(s.catalogHandler.HandleProblems, "problems"))

		r.Route("/admin", func(r chi.Router) {
			r.Post("/reevaluate", MetricsMiddleware(s.adminHandler.HandleReevaluate, "admin_reevaluate"))
			r.Post("/passes/{pass}", MetricsMiddleware(s.adminHandler.HandleRunPass, "admin_pass"))
		})
	})
	r.Handle("/metrics", s.healthHandler.MetricsHandler())
}

// NewRouter returns a chi router with the base middleware stack.
func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	tagError(w, code)
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
