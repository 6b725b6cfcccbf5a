package api

import (
	"net/http"
	"workload-orchestrator/internal/health"
	"workload-orchestrator/internal/observability"
	"workload-orchestrator/internal/workload"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Service       *workload.Service
	Heartbeats    Heartbeater
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
	ManifestRoot  string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Service, cfg.Heartbeats, cfg.Metrics, cfg.HealthChecker, cfg.ManifestRoot)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Stage endpoints - auth required
	auth := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/stages/validate", auth(stage(handler, "validate", handler.Validate)))
	mux.Handle("POST /v1/stages/dispatch", auth(stage(handler, "dispatch", handler.Dispatch)))
	mux.Handle("POST /v1/stages/create-workload", auth(stage(handler, "create-workload", handler.CreateWorkload)))
	mux.Handle("POST /v1/stages/update-workload", auth(stage(handler, "update-workload", handler.UpdateWorkload)))
	mux.Handle("POST /v1/stages/delete-workload", auth(stage(handler, "delete-workload", handler.DeleteWorkload)))
	mux.Handle("POST /v1/stages/task-status", auth(stage(handler, "task-status", handler.TaskStatus)))
	mux.Handle("POST /v1/stages/task-watch", auth(stage(handler, "task-watch", handler.TaskWatch)))
	mux.Handle("POST /v1/stages/heartbeats", auth(stage(handler, "heartbeats", handler.Heartbeats)))
	mux.Handle("POST /v1/catalogues", auth(stage(handler, "catalogue", handler.PublishCatalogue)))

	// Read endpoints for operators
	mux.Handle("GET /v1/workloads", auth(http.HandlerFunc(handler.ListWorkloads)))
	mux.Handle("GET /v1/tasks/{taskId}", auth(http.HandlerFunc(handler.GetTask)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = RecoveryMiddleware()(h)
	h = ObserveMiddleware(cfg.Metrics)(h)
	h = RequestIDMiddleware()(h)

	return h
}
