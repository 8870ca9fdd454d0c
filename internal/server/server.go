// Package server exposes the helpdesk HTTP API: answering questions,
// triggering refreshes, and reporting health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/chat"
	cerr "github.com/RobMal123/ai-helpdesk-chatbot/internal/errors"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/etl"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/index"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/llm"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/telemetry"
)

// Server serves the helpdesk HTTP API.
type Server struct {
	orchestrator *chat.Orchestrator
	controller   *etl.Controller
	manager      *index.Manager
	metrics      *telemetry.Recorder
	logger       *slog.Logger
	httpServer   *http.Server
	started      time.Time
}

// New creates the API server bound to addr.
func New(addr string, orchestrator *chat.Orchestrator, controller *etl.Controller, manager *index.Manager, metrics *telemetry.Recorder, logger *slog.Logger) *Server {
	s := &Server{
		orchestrator: orchestrator,
		controller:   controller,
		manager:      manager,
		metrics:      metrics,
		logger:       logger.With(slog.String("component", "server")),
		started:      time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the server and blocks until the context is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

type askRequest struct {
	Query   string        `json:"query"`
	History []llm.Message `json:"history,omitempty"`
}

type askResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
	Outcome string   `json:"outcome"`
	Error   string   `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, cerr.ValidationError("request body is not valid JSON", err))
		return
	}

	result, err := s.orchestrator.Answer(r.Context(), req.Query, req.History)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	resp := askResponse{
		Answer:  result.Answer,
		Sources: result.Sources,
		Outcome: result.Outcome,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type refreshResponse struct {
	JobID     string `json:"job_id"`
	Outcome   string `json:"outcome"`
	Documents int    `json:"documents"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	record, err := s.controller.RunOnce(r.Context(), "api")
	if err != nil {
		if cerr.GetCode(err) == cerr.ErrCodeJobBusy {
			s.writeError(w, http.StatusConflict, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, refreshResponse{
		JobID:     record.JobID,
		Outcome:   record.Outcome,
		Documents: record.Documents,
		ElapsedMS: record.Elapsed.Milliseconds(),
	})
}

type healthResponse struct {
	Status        string `json:"status"`
	IndexReady    bool   `json:"index_ready"`
	DocumentCount int    `json:"document_count"`
	Generation    string `json:"generation,omitempty"`
	JobRunning    bool   `json:"job_running"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		JobRunning:    s.controller.Busy(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}

	if snap := s.manager.Current(); snap != nil {
		resp.IndexReady = true
		resp.DocumentCount = snap.DocumentCount()
		resp.Generation = snap.ID()
	} else {
		resp.Status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil || !s.metrics.Enabled() {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "metrics disabled"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// statusFor maps error categories to HTTP status codes.
func statusFor(err error) int {
	switch cerr.GetCategory(err) {
	case cerr.CategoryValidation:
		return http.StatusBadRequest
	case cerr.CategoryNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("request failed",
		slog.Int("status", status),
		slog.String("error", err.Error()))
	s.writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Code:  cerr.GetCode(err),
	})
}
