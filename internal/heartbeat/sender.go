// Package heartbeat signals liveness to the workflow engine for tasks it is
// waiting on.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"workload-orchestrator/internal/config"
	"workload-orchestrator/pkg/cloudevent"

	"github.com/google/uuid"
)

// EventType is the CloudEvent type of a heartbeat.
const EventType = "orchestrator.task.heartbeat"

const defaultTimeout = 10 * time.Second

// ErrTaskTimedOut reports that the engine no longer accepts heartbeats for a
// token: the waiting task has timed out or the token has expired.
var ErrTaskTimedOut = errors.New("task timed out")

// Sender delivers one heartbeat for a callback token.
type Sender interface {
	SendHeartbeat(ctx context.Context, token string) error
}

// Config holds heartbeat sender settings.
type Config struct {
	URL        string        // Engine heartbeat endpoint
	Source     string        // CloudEvent source
	Timeout    time.Duration // Per-request timeout
	SigningKey string        // HMAC key, empty = unsigned
}

// LoadConfigFromEnv loads sender config from environment variables.
func LoadConfigFromEnv() Config {
	cfg := Config{
		URL:        config.GetEnv("HEARTBEAT_URL", ""),
		Source:     config.GetEnv("HEARTBEAT_SOURCE", ""),
		Timeout:    config.GetDurationEnv("HEARTBEAT_TIMEOUT", defaultTimeout),
		SigningKey: config.GetSecret("HEARTBEAT_SIGNING_KEY"),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Source == "" {
		c.Source = "workload-orchestrator"
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// HTTPSender posts heartbeat CloudEvents to the engine.
type HTTPSender struct {
	url    string
	source string
	key    string
	sender *cloudevent.Sender
}

// NewHTTPSender creates a heartbeat sender.
func NewHTTPSender(cfg Config) (*HTTPSender, error) {
	cfg = cfg.withDefaults()
	if cfg.URL == "" {
		return nil, errors.New("heartbeat url is required")
	}
	return &HTTPSender{
		url:    cfg.URL,
		source: cfg.Source,
		key:    cfg.SigningKey,
		sender: cloudevent.NewSender(cfg.Timeout),
	}, nil
}

// SendHeartbeat posts one heartbeat whose subject is token. An engine answer
// of 410 Gone or 404 Not Found is reported as ErrTaskTimedOut.
func (s *HTTPSender) SendHeartbeat(ctx context.Context, token string) error {
	event := cloudevent.New(EventType, s.source, token, uuid.NewString(), map[string]any{
		"token": token,
	})

	err := s.sender.Send(ctx, s.url, event, cloudevent.SendOptions{SigningKey: s.key})
	switch cloudevent.StatusCode(err) {
	case http.StatusGone, http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrTaskTimedOut, err)
	}
	return err
}

var _ Sender = (*HTTPSender)(nil)
