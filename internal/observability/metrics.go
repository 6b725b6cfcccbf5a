package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Heartbeat outcomes.
const (
	HeartbeatSent    = "sent"
	HeartbeatExpired = "expired"
	HeartbeatFailed  = "failed"
)

// Metrics holds all application metrics:
// - HTTP golden signals for the invocation surface
// - Stage invocations and their outcome
// - Workload operations submitted to the workload API
// - Task polls by observed status
// - Heartbeats by outcome
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Stage metrics
	StageDuration    metric.Float64Histogram
	StageInvocations metric.Int64Counter

	// Workload metrics
	WorkloadOperations metric.Int64Counter
	NameCollisions     metric.Int64Counter
	TaskPolls          metric.Int64Counter
	Heartbeats         metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("workload-orchestrator")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Stage metrics
	m.StageDuration, err = meter.Float64Histogram(
		"stage_duration_seconds",
		metric.WithDescription("Stage execution latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StageInvocations, err = meter.Int64Counter(
		"stage_invocations_total",
		metric.WithDescription("Total stage invocations by stage and outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Workload metrics
	m.WorkloadOperations, err = meter.Int64Counter(
		"workload_operations_total",
		metric.WithDescription("Total workload operations submitted to the workload API"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NameCollisions, err = meter.Int64Counter(
		"workload_name_collisions_total",
		metric.WithDescription("Total create requests rejected for an active workload with the same name"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TaskPolls, err = meter.Int64Counter(
		"task_polls_total",
		metric.WithDescription("Total task status reads by observed status"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.Heartbeats, err = meter.Int64Counter(
		"heartbeats_total",
		metric.WithDescription("Total callback heartbeats by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordStage records one stage invocation. outcome is "ok" or an error type name.
func (m *Metrics) RecordStage(ctx context.Context, stage, outcome string, durationSeconds float64) {
	m.StageDuration.Record(ctx, durationSeconds, metric.WithAttributes(stageAttr(stage)))
	m.StageInvocations.Add(ctx, 1, metric.WithAttributes(stageAttr(stage), outcomeAttr(outcome)))
}

// RecordWorkloadOperation records a create, update or delete submission.
func (m *Metrics) RecordWorkloadOperation(ctx context.Context, op string, success bool) {
	m.WorkloadOperations.Add(ctx, 1, metric.WithAttributes(operationAttr(op), successAttr(success)))
}

// RecordNameCollision records a create rejected by the collision guard.
func (m *Metrics) RecordNameCollision(ctx context.Context) {
	m.NameCollisions.Add(ctx, 1)
}

// RecordTaskPoll records a task status read.
func (m *Metrics) RecordTaskPoll(ctx context.Context, status string) {
	m.TaskPolls.Add(ctx, 1, metric.WithAttributes(taskStatusAttr(status)))
}

// RecordHeartbeat records one heartbeat attempt.
func (m *Metrics) RecordHeartbeat(ctx context.Context, outcome string) {
	m.Heartbeats.Add(ctx, 1, metric.WithAttributes(outcomeAttr(outcome)))
}
