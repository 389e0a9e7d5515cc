package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hydrocast/adapters/postgres"
	"hydrocast/domain/core"
	"hydrocast/internal"
	"hydrocast/internal/errors"
)

// RunStore is the read side the API serves from. The postgres repository
// satisfies it.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]postgres.RunSummary, error)
	GetRun(ctx context.Context, runID core.RunID) (*postgres.RunSummary, error)
	GetForecast(ctx context.Context, runID core.RunID) ([]postgres.ForecastPoint, error)
	GetMetrics(ctx context.Context, runID core.RunID) ([]postgres.MetricPoint, error)
}

// Server exposes completed forecast runs over a read-only JSON API.
type Server struct {
	router *chi.Mux
	repo   RunStore
	log    *internal.Logger
}

// NewServer creates a new API server backed by the given run store.
func NewServer(repo RunStore, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		router: chi.NewRouter(),
		repo:   repo,
		log:    logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Router returns the underlying HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures HTTP middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/api/runs", s.handleListRuns)
	s.router.Get("/api/runs/{id}", s.handleGetRun)
	s.router.Get("/api/runs/{id}/forecast", s.handleGetForecast)
	s.router.Get("/api/runs/{id}/metrics", s.handleGetMetrics)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, errors.DataInvalid("limit must be a positive integer"))
			return
		}
		limit = n
	}

	runs, err := s.repo.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	run, err := s.repo.GetRun(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetForecast(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	points, err := s.repo.GetForecast(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":   string(runID),
		"forecast": points,
	})
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	metrics, err := s.repo.GetMetrics(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  string(runID),
		"metrics": metrics,
	})
}

// runID parses the {id} route parameter, writing a 400 on failure.
func (s *Server) runID(w http.ResponseWriter, r *http.Request) (core.RunID, bool) {
	raw := chi.URLParam(r, "id")
	runID, err := core.ParseRunID(raw)
	if err != nil {
		s.writeError(w, errors.DataInvalid("invalid run id"))
		return "", false
	}
	return runID, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeDataInvalid, errors.CodeConfigInvalid:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed: %v", err)
	}
	s.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  code,
	})
}
