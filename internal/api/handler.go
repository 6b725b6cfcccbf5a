// Package api provides the HTTP invocation surface for the workload stages.
//
// Every stage takes one JSON object and answers with one JSON object that the
// workflow engine merges back into its state. Failures carry an errorType the
// engine can branch on.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"
	"workload-orchestrator/internal/apperrors"
	"workload-orchestrator/internal/health"
	"workload-orchestrator/internal/observability"
	"workload-orchestrator/internal/workload"
	"workload-orchestrator/internal/workloadapi"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Request keys read by the task stages.
const (
	KeyTaskID         = "task_id"
	KeyTaskInfo       = "task_info"
	KeyTaskStatus     = "task_status"
	KeyCallbackTokens = "callback_tokens"
)

// TypeUpstream is the errorType of failures reported by the workload API.
const TypeUpstream = "UpstreamError"

// Heartbeater sends heartbeats for callback tokens.
type Heartbeater interface {
	SendHeartbeats(ctx context.Context, tokens []string) bool
}

// ErrorResponse is the body of every failed stage.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
	Field     string `json:"field,omitempty"`
	Upstream  int    `json:"upstreamStatus,omitempty"`
}

// Handler contains HTTP handlers for the stage API
type Handler struct {
	svc          *workload.Service
	heartbeat    Heartbeater
	metrics      *observability.Metrics
	health       *health.Checker
	manifestRoot string
}

// NewHandler creates a new API handler. Catalogue manifests are only read
// from below manifestRoot; an empty root rejects every catalogue request.
func NewHandler(svc *workload.Service, hb Heartbeater, metrics *observability.Metrics, healthChecker *health.Checker, manifestRoot string) *Handler {
	return &Handler{
		svc:          svc,
		heartbeat:    hb,
		metrics:      metrics,
		health:       healthChecker,
		manifestRoot: manifestRoot,
	}
}

// Validate handles POST /v1/stages/validate
func (h *Handler) Validate(ctx context.Context, raw map[string]any) (any, error) {
	ev, err := workload.Validate(raw)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Dispatch handles POST /v1/stages/dispatch, routing on the operation key.
func (h *Handler) Dispatch(ctx context.Context, raw map[string]any) (any, error) {
	ev, err := workload.Validate(raw)
	if err != nil {
		return nil, err
	}
	return h.svc.Dispatch(ctx, ev)
}

// CreateWorkload handles POST /v1/stages/create-workload
func (h *Handler) CreateWorkload(ctx context.Context, raw map[string]any) (any, error) {
	return h.dispatchAs(ctx, workload.OperationCreate, raw)
}

// UpdateWorkload handles POST /v1/stages/update-workload
func (h *Handler) UpdateWorkload(ctx context.Context, raw map[string]any) (any, error) {
	return h.dispatchAs(ctx, workload.OperationUpdate, raw)
}

// DeleteWorkload handles POST /v1/stages/delete-workload
func (h *Handler) DeleteWorkload(ctx context.Context, raw map[string]any) (any, error) {
	return h.dispatchAs(ctx, workload.OperationDelete, raw)
}

func (h *Handler) dispatchAs(ctx context.Context, op workload.Operation, raw map[string]any) (any, error) {
	ev, err := workload.ValidateOperation(op, raw)
	if err != nil {
		return nil, err
	}
	return h.svc.Dispatch(ctx, ev)
}

// TaskStatus handles POST /v1/stages/task-status. The request is echoed
// back with the task payload under task_info.
func (h *Handler) TaskStatus(ctx context.Context, raw map[string]any) (any, error) {
	taskID, err := requiredString(raw, KeyTaskID)
	if err != nil {
		return nil, err
	}
	task, err := h.svc.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := maps.Clone(raw)
	out[KeyTaskInfo] = task
	return out, nil
}

// TaskWatch handles POST /v1/stages/task-watch: reads the task into
// task_status, then heartbeats every callback token in the request.
func (h *Handler) TaskWatch(ctx context.Context, raw map[string]any) (any, error) {
	taskID, err := requiredString(raw, KeyTaskID)
	if err != nil {
		return nil, err
	}
	tokens, err := stringList(raw, KeyCallbackTokens)
	if err != nil {
		return nil, err
	}
	task, err := h.svc.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := maps.Clone(raw)
	out[KeyTaskStatus] = task
	if len(tokens) > 0 && h.heartbeat != nil {
		h.heartbeat.SendHeartbeats(ctx, tokens)
	}
	return out, nil
}

// Heartbeats handles POST /v1/stages/heartbeats
func (h *Handler) Heartbeats(ctx context.Context, raw map[string]any) (any, error) {
	tokens, err := stringList(raw, KeyCallbackTokens)
	if err != nil {
		return nil, err
	}
	if h.heartbeat == nil {
		return nil, apperrors.Internal("heartbeat", errors.New("heartbeat sender not configured"))
	}
	return map[string]any{"ok": h.heartbeat.SendHeartbeats(ctx, tokens)}, nil
}

// PublishCatalogue handles POST /v1/catalogues
func (h *Handler) PublishCatalogue(ctx context.Context, req workload.CatalogueRequest) (any, error) {
	manifestPath, err := workload.ResolveManifestPath(h.manifestRoot, req.ManifestPath)
	if err != nil {
		return nil, err
	}
	req.ManifestPath = manifestPath
	return h.svc.CreateOrUpdateCatalogue(ctx, &req)
}

// ListWorkloads handles GET /v1/workloads
func (h *Handler) ListWorkloads(w http.ResponseWriter, r *http.Request) {
	workloads, err := h.svc.ListWorkloads(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if workloads == nil {
		workloads = []workload.WorkloadSummary{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"workloads": workloads})
}

// GetTask handles GET /v1/tasks/{taskId}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.GetTaskStatus(r.Context(), r.PathValue("taskId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, task)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 when the workload API is unreachable; a degraded auxiliary
// dependency still answers 200.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsServing() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// stage adapts a stage function to an http.Handler. The request body is
// decoded into T, and the outcome is recorded per stage.
func stage[T any](h *Handler, name string, fn func(ctx context.Context, req T) (any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req T
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			err = apperrors.Validation("body", "Invalid request body: "+err.Error())
			h.recordStage(r.Context(), name, err, start)
			h.handleError(w, r, err)
			return
		}

		result, err := fn(r.Context(), req)
		h.recordStage(r.Context(), name, err, start)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, result)
	})
}

func (h *Handler) recordStage(ctx context.Context, name string, err error, start time.Time) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = errorType(err)
	}
	h.metrics.RecordStage(ctx, name, outcome, time.Since(start).Seconds())
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// handleError maps stage errors to a status and an errorType.
// Workload API failures are reported as 502 UpstreamError with the upstream
// status attached; an open breaker answers 503.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{Error: err.Error(), ErrorType: errorType(err)}
	status := apperrors.HTTPStatus(err)

	var appErr *apperrors.Error
	var apiErr *workloadapi.APIError
	switch {
	case errors.As(err, &appErr):
		resp.Field = appErr.Field
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
		resp.Upstream = apiErr.StatusCode
	case errors.Is(err, workloadapi.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		slog.ErrorContext(r.Context(), "Stage failed", "error", err, "path", r.URL.Path, "errorType", resp.ErrorType, "requestId", RequestID(r.Context()))
	} else {
		slog.WarnContext(r.Context(), "Stage rejected", "error", err, "path", r.URL.Path, "status", status, "errorType", resp.ErrorType, "requestId", RequestID(r.Context()))
	}
	h.writeJSON(w, status, resp)
}

func errorType(err error) string {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return apperrors.TypeName(err)
	}
	return TypeUpstream
}

func requiredString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", apperrors.MissingRequiredInput(key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", apperrors.Validation(key, fmt.Sprintf("%s must be a non-empty string", key))
	}
	return s, nil
}

// stringList reads an optional list of strings; absent or null is empty.
func stringList(raw map[string]any, key string) ([]string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, apperrors.Validation(key, fmt.Sprintf("%s must be a list of strings", key))
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, apperrors.Validation(key, fmt.Sprintf("%s must be a list of strings", key))
		}
		out = append(out, s)
	}
	return out, nil
}
