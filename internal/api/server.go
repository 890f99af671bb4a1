// Package api exposes the run-control HTTP surface.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/serptrend/serptrend/internal/metrics"
	"github.com/serptrend/serptrend/internal/run"
	"github.com/serptrend/serptrend/internal/serp"
)

// RunController is the slice of the runner the API needs.
type RunController interface {
	Trigger(opts run.Options) error
	Cancel() bool
	Running() bool
	Latest() (serp.RunSummary, bool)
}

// Server builds the HTTP handler for health, metrics and run control.
type Server struct {
	runs   RunController
	ids    serp.IDGenerator
	logger *zap.Logger
}

// NewServer constructs the API server.
func NewServer(runs RunController, ids serp.IDGenerator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{runs: runs, ids: ids, logger: logger}
}

// Handler returns the routed handler with the standard middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID(s.ids))
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/runs", func(r chi.Router) {
		r.Post("/", s.handleTrigger)
		r.Post("/cancel", s.handleCancel)
		r.Get("/latest", s.handleLatest)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type triggerRequest struct {
	Overwrite bool   `json:"overwrite"`
	Date      string `json:"date,omitempty"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := run.Options{Overwrite: req.Overwrite}
	if req.Date != "" {
		date, err := time.Parse(serp.ColumnDateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		opts.Date = date
	}

	if err := s.runs.Trigger(opts); err != nil {
		if errors.Is(err, serp.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "a run is already in progress")
			return
		}
		s.logger.Error("trigger run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	if !s.runs.Cancel() {
		writeError(w, http.StatusConflict, "no run in progress")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	summary, ok := s.runs.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no finished run yet")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
