package heartbeat

import (
	"context"
	"errors"
	"log/slog"
	"workload-orchestrator/internal/observability"
)

// MetricsRecorder records heartbeat outcomes.
type MetricsRecorder interface {
	RecordHeartbeat(ctx context.Context, outcome string)
}

// Emitter broadcasts heartbeats for a batch of callback tokens.
type Emitter struct {
	sender  Sender
	metrics MetricsRecorder
	logger  *slog.Logger
}

// NewEmitter creates an emitter. metrics may be nil.
func NewEmitter(sender Sender, metrics MetricsRecorder) *Emitter {
	return &Emitter{
		sender:  sender,
		metrics: metrics,
		logger:  slog.With("component", "heartbeat"),
	}
}

// SendHeartbeats attempts one heartbeat per token, in order.
//
// A failed token is logged and skipped; the remaining tokens are still
// attempted. The result is always true once every token has been attempted.
func (e *Emitter) SendHeartbeats(ctx context.Context, tokens []string) bool {
	for _, token := range tokens {
		err := e.sender.SendHeartbeat(ctx, token)
		switch {
		case err == nil:
			e.record(ctx, observability.HeartbeatSent)
			e.logger.Debug("Heartbeat sent", "token", redact(token))
		case errors.Is(err, ErrTaskTimedOut):
			e.record(ctx, observability.HeartbeatExpired)
			e.logger.Warn("Heartbeat token expired", "token", redact(token), "error", err)
		default:
			e.record(ctx, observability.HeartbeatFailed)
			e.logger.Error("Heartbeat failed", "token", redact(token), "error", err)
		}
	}
	return true
}

func (e *Emitter) record(ctx context.Context, outcome string) {
	if e.metrics != nil {
		e.metrics.RecordHeartbeat(ctx, outcome)
	}
}

// redact keeps enough of a token to correlate log lines.
func redact(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:8] + "****"
}
