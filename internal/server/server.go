// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the engine's invocation API: process one email,
// process a batch, plus health and Prometheus metrics endpoints. These are
// the only HTTP surfaces — rule and category management live in the
// dashboard backend, not here.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bcem/workflow/internal/engine"
	"github.com/bcem/workflow/internal/models"
)

// Processor is the engine surface the handlers call.
type Processor interface {
	ProcessEmail(ctx context.Context, emailID uuid.UUID) (*models.WorkflowExecution, error)
	ProcessBatch(ctx context.Context, emailIDs []uuid.UUID) *engine.BatchResult
}

// ExecutionLog reads an email's execution audit trail. Implemented by
// store.ExecutionStore.
type ExecutionLog interface {
	ListByEmail(ctx context.Context, emailID uuid.UUID) ([]models.WorkflowExecution, error)
}

// Handler serves the invocation endpoints.
type Handler struct {
	processor  Processor
	executions ExecutionLog
	maxBatch   int
	health     func(ctx context.Context) error
}

// NewHandler creates an invocation handler. maxBatch caps the number of ids
// one batch request may carry (0 means uncapped). The health func should
// check the service's backing stores; nil means always healthy.
func NewHandler(processor Processor, executions ExecutionLog, maxBatch int, health func(ctx context.Context) error) *Handler {
	return &Handler{
		processor:  processor,
		executions: executions,
		maxBatch:   maxBatch,
		health:     health,
	}
}

// batchRequest is the body of POST /process/batch.
type batchRequest struct {
	EmailIDs []string `json:"email_ids"`
}

// ServeProcess handles POST /process/{emailID}.
func (h *Handler) ServeProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/process/")
	emailID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid email id %q", raw))
		return
	}

	exec, err := h.processor.ProcessEmail(r.Context(), emailID)
	if err != nil {
		if errors.Is(err, engine.ErrEmailNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		slog.Error("process request failed", "email_id", emailID, "error", err)
		// The execution may still carry a partial audit trail worth returning.
		if exec == nil {
			writeError(w, http.StatusInternalServerError, "processing failed")
			return
		}
	}

	writeJSON(w, http.StatusOK, exec)
}

// ServeProcessBatch handles POST /process/batch.
func (h *Handler) ServeProcessBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.EmailIDs) == 0 {
		writeError(w, http.StatusBadRequest, "email_ids is required")
		return
	}
	if h.maxBatch > 0 && len(req.EmailIDs) > h.maxBatch {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("batch of %d exceeds limit of %d", len(req.EmailIDs), h.maxBatch))
		return
	}

	ids := make([]uuid.UUID, 0, len(req.EmailIDs))
	for _, raw := range req.EmailIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid email id %q", raw))
			return
		}
		ids = append(ids, id)
	}

	result := h.processor.ProcessBatch(r.Context(), ids)
	writeJSON(w, http.StatusOK, result)
}

// ServeExecutions handles GET /executions/{emailID}: the email's full audit
// trail, newest first, including superseded failed attempts.
func (h *Handler) ServeExecutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/executions/")
	emailID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid email id %q", raw))
		return
	}

	execs, err := h.executions.ListByEmail(r.Context(), emailID)
	if err != nil {
		slog.Error("execution lookup failed", "email_id", emailID, "error", err)
		writeError(w, http.StatusInternalServerError, "execution lookup failed")
		return
	}
	if execs == nil {
		execs = []models.WorkflowExecution{}
	}

	writeJSON(w, http.StatusOK, execs)
}

// ServeHealth handles GET /health.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve starts the invocation HTTP server on the given port. It binds the
// port immediately and signals readiness via the returned channel before
// starting to accept connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/process/batch", handler.ServeProcessBatch)
	mux.HandleFunc("/process/", handler.ServeProcess)
	mux.HandleFunc("/executions/", handler.ServeExecutions)
	mux.HandleFunc("/health", handler.ServeHealth)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("invocation server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("invocation server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("invocation server error", "error", err)
		}
	}()

	return ready, nil
}
