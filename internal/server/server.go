// Package server exposes the admin HTTP API: health, scheduler control,
// one-off batch runs, and quality reports.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/reachlab/reach-data/internal/model"
	"github.com/reachlab/reach-data/internal/quality"
	"github.com/reachlab/reach-data/internal/scheduler"
)

// Pinger is the database liveness check, satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BatchRunner executes an ad-hoc run with a ticker cap, used for smoke runs
// against a live database. Runs hold the scope's scheduler run lock and
// return scheduler.ErrAlreadyRunning when one is in flight.
type BatchRunner interface {
	RunBatch(ctx context.Context, scope string, maxTickers int) (*model.RunSummary, error)
}

// QualityReporter produces a quality report on demand.
type QualityReporter interface {
	Run(ctx context.Context) (*quality.Report, error)
}

// Server is the admin HTTP server.
type Server struct {
	http     *http.Server
	db       Pinger
	registry *scheduler.Registry
	batch    BatchRunner
	qualityR QualityReporter
	logger   *slog.Logger
}

// New creates the admin server on the given port.
func New(port int, db Pinger, registry *scheduler.Registry, batch BatchRunner, qualityR QualityReporter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		db:       db,
		registry: registry,
		batch:    batch,
		qualityR: qualityR,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/scheduler/status", s.handleSchedulerStatus)
	mux.HandleFunc("/api/v1/scheduler/start", s.handleSchedulerStart)
	mux.HandleFunc("/api/v1/scheduler/stop", s.handleSchedulerStop)
	mux.HandleFunc("/api/v1/scheduler/run-now", s.handleRunNow)
	mux.HandleFunc("/api/v1/batch/run", s.handleBatchRun)
	mux.HandleFunc("/api/v1/quality/report", s.handleQualityReport)

	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("admin server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("admin server error", "error", err)
		}
	}()
}

// Shutdown stops the server, letting in-flight requests finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	if err := s.db.Ping(ctx); err != nil {
		health.Status = "unhealthy"
		health.Components["postgres"] = map[string]string{
			"status": "disconnected",
			"error":  err.Error(),
		}
	} else {
		health.Components["postgres"] = "connected"
	}

	scopes := make(map[string]string)
	for _, sched := range s.registry.All() {
		scopes[sched.Scope()] = sched.Status().State
	}
	health.Components["scheduler"] = scopes

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	statuses := make([]scheduler.Status, 0)
	for _, sched := range s.registry.All() {
		statuses = append(statuses, sched.Status())
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"scopes": statuses})
}

// scopeFromRequest resolves the scope parameter to its scheduler.
func (s *Server) scopeFromRequest(w http.ResponseWriter, r *http.Request) *scheduler.ScopeScheduler {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		s.writeError(w, http.StatusBadRequest, "scope parameter required")
		return nil
	}
	sched := s.registry.Get(scope)
	if sched == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown scope %q", scope))
		return nil
	}
	return sched
}

func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	sched := s.scopeFromRequest(w, r)
	if sched == nil {
		return
	}

	cronExpr := r.URL.Query().Get("cron")
	if cronExpr == "" {
		s.writeError(w, http.StatusBadRequest, "cron parameter required")
		return
	}

	if err := sched.Start(cronExpr); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, sched.Status())
}

func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	sched := s.scopeFromRequest(w, r)
	if sched == nil {
		return
	}

	sched.Stop()
	s.writeJSON(w, http.StatusOK, sched.Status())
}

func (s *Server) handleRunNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	sched := s.scopeFromRequest(w, r)
	if sched == nil {
		return
	}

	summary, err := sched.RunNow(r.Context())
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleBatchRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	scope := r.URL.Query().Get("scope")
	if scope == "" {
		s.writeError(w, http.StatusBadRequest, "scope parameter required")
		return
	}

	maxTickers := 0
	if raw := r.URL.Query().Get("max_tickers"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "max_tickers must be a non-negative integer")
			return
		}
		maxTickers = n
	}

	summary, err := s.batch.RunBatch(r.Context(), scope, maxTickers)
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleQualityReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	report, err := s.qualityR.Run(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}
