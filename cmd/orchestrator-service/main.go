// orchestrator-service exposes the workload lifecycle stages over HTTP for an
// external workflow engine.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"workload-orchestrator/internal/api"
	"workload-orchestrator/internal/config"
	"workload-orchestrator/internal/health"
	"workload-orchestrator/internal/heartbeat"
	"workload-orchestrator/internal/objstore"
	"workload-orchestrator/internal/observability"
	"workload-orchestrator/internal/secrets"
	"workload-orchestrator/internal/workload"
	"workload-orchestrator/internal/workloadapi"
)

func main() {
	if path := config.LoadDotEnv(); path != "" {
		slog.Info("Loaded environment file", "path", path)
	}
	svcCfg := config.LoadServiceConfig()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: svcCfg.LogLevel})))

	if err := run(svcCfg); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run(svcCfg *config.ServiceConfig) error {
	ctx := context.Background()

	// Load configuration
	secretsCfg := secrets.LoadConfigFromEnv()
	apiCfg := workloadapi.LoadConfigFromEnv()
	storeCfg := objstore.LoadConfigFromEnv()
	heartbeatCfg := heartbeat.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Credentials for the workload API, read through the cache on every request
	secretStore, err := secrets.Open(ctx, secretsCfg)
	if err != nil {
		return err
	}
	defer secretStore.Close()

	creds := workloadapi.SecretCredentials(secrets.NewCache(secretStore, secretsCfg.CacheTTL), secretsCfg)
	if _, err := creds(ctx); err != nil {
		return err
	}

	client, err := workloadapi.NewClient(apiCfg, creds)
	if err != nil {
		return err
	}
	slog.Info("Workload API client ready", "url", apiCfg.BaseURL)

	// Object store is only needed for catalogue publishing
	var store workload.ObjectStore
	if storeCfg.Enabled() {
		minioStore, err := objstore.NewMinioStore(storeCfg)
		if err != nil {
			return err
		}
		store = minioStore
		slog.Info("Object store configured", "endpoint", storeCfg.Endpoint)
	} else {
		slog.Warn("Catalogue publishing disabled - no OBJSTORE_ENDPOINT configured")
	}

	// Heartbeats are optional: without a URL the heartbeat stages fail fast
	var emitter api.Heartbeater
	if heartbeatCfg.URL != "" {
		sender, err := heartbeat.NewHTTPSender(heartbeatCfg)
		if err != nil {
			return err
		}
		emitter = heartbeat.NewEmitter(sender, metrics)
	} else {
		slog.Warn("Heartbeats disabled - no HEARTBEAT_URL configured")
	}

	healthChecker := health.NewChecker(client, health.WithAuxiliary("secrets", secretStore))

	svc := workload.NewService(client, store, metrics)

	router := api.NewRouter(api.RouterConfig{
		Service:       svc,
		Heartbeats:    emitter,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
		ManifestRoot:  svcCfg.ManifestRoot,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY or API_KEY_FILE configured")
	}
	if store != nil && svcCfg.ManifestRoot == "" {
		slog.Warn("Catalogue publishing disabled - no CATALOGUE_MANIFEST_DIR configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: apiCfg.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Finish in-flight stage calls. Submitted workload operations keep
	// running in the workload API; the engine resumes polling elsewhere.
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	slog.Info("Shutdown complete")
	return nil
}
