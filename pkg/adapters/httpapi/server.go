// Package httpapi exposes a workflow engine over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/recovery"
)

// Engine is the surface of the workflow core the HTTP adapter needs.
type Engine interface {
	ExecuteWithMetadata(ctx context.Context, input any, metadata map[string]any) (*domain.Context, error)
	Info() espalier.Info
	Validate() espalier.Report
	Recovery() *recovery.System
}

// NewHandler builds the HTTP routes for an engine.
func NewHandler(engine Engine) http.Handler {
	s := &server{engine: engine}

	r := chi.NewRouter()
	r.Post("/execute", s.execute)
	r.Get("/info", s.info)
	r.Get("/validate", s.validate)
	r.Get("/errors", s.errors)
	r.Get("/health", s.health)
	return enableCORS(r)
}

type server struct {
	engine Engine
}

type executeRequest struct {
	Input    any            `json:"input"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *server) execute(w http.ResponseWriter, r *http.Request) {
	var body executeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		slog.Warn("execute: invalid request body", "error", err)
		return
	}

	runCtx, err := s.engine.ExecuteWithMetadata(r.Context(), body.Input, body.Metadata)
	if err != nil {
		http.Error(w, "Execution failed", http.StatusInternalServerError)
		slog.Error("execute failed", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":        runCtx.RunID,
		"summary":       runCtx.ExecutionSummary(),
		"step_results":  runCtx.StepResults,
		"agent_outputs": runCtx.AgentOutputs,
		"errors":        runCtx.Errors,
	})
}

func (s *server) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Info())
}

func (s *server) validate(w http.ResponseWriter, r *http.Request) {
	report := s.engine.Validate()
	status := http.StatusOK
	if !report.Valid {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

func (s *server) errors(w http.ResponseWriter, r *http.Request) {
	system := s.engine.Recovery()
	if system == nil {
		writeJSON(w, http.StatusOK, recovery.Summary{})
		return
	}
	writeJSON(w, http.StatusOK, system.Summarize())
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": strings.TrimSpace(espalier.Version),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
