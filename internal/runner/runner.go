// Package runner drives one lifecycle request end to end in-process:
// validate, dispatch, then poll the task until it reaches a terminal status.
//
// It stands in for the external workflow engine during development and from
// workloadctl; the service deployment never uses it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"workload-orchestrator/internal/apperrors"
	"workload-orchestrator/internal/workload"
	"workload-orchestrator/pkg/backoff"
)

// ErrPollLimit is returned when the task is still running after MaxPolls reads.
var ErrPollLimit = errors.New("task did not reach a terminal status")

// ErrTaskFailed is returned when the task finished with FAILED.
var ErrTaskFailed = errors.New("task failed")

// Stages is the subset of workload.Service the runner drives.
type Stages interface {
	Dispatch(ctx context.Context, ev workload.Event) (workload.Response, error)
	GetTaskStatus(ctx context.Context, taskID string) (workload.Task, error)
}

// Heartbeater signals liveness for callback tokens between polls.
type Heartbeater interface {
	SendHeartbeats(ctx context.Context, tokens []string) bool
}

// Config controls polling.
type Config struct {
	PollInitial     time.Duration // First wait between polls (default: 5s)
	PollMax         time.Duration // Longest wait between polls (default: 60s)
	MaxPolls        int           // 0 = poll until terminal or ctx is done
	NotFoundRetries int           // TaskNotFound reads tolerated before giving up (default: 3)
}

func (c Config) withDefaults() Config {
	if c.PollInitial <= 0 {
		c.PollInitial = 5 * time.Second
	}
	if c.PollMax <= 0 {
		c.PollMax = 60 * time.Second
	}
	if c.NotFoundRetries < 0 {
		c.NotFoundRetries = 0
	} else if c.NotFoundRetries == 0 {
		c.NotFoundRetries = 3
	}
	return c
}

// Result is the outcome of a run.
type Result struct {
	Event    workload.Event    `json:"event"`
	Response workload.Response `json:"response"`
	Task     workload.Task     `json:"task,omitempty"`
	Polls    int               `json:"polls"`
}

// Runner executes lifecycle requests.
type Runner struct {
	stages    Stages
	heartbeat Heartbeater
	tokens    []string
	cfg       Config
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithHeartbeats sends heartbeats for tokens after every non-terminal poll.
func WithHeartbeats(h Heartbeater, tokens []string) Option {
	return func(r *Runner) {
		r.heartbeat = h
		r.tokens = tokens
	}
}

// New creates a runner.
func New(stages Stages, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		stages: stages,
		cfg:    cfg.withDefaults(),
		logger: slog.With("component", "runner"),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run validates raw, dispatches it and waits for its task.
//
// The result is returned alongside ErrTaskFailed and ErrPollLimit so callers
// can report the last task payload.
func (r *Runner) Run(ctx context.Context, raw map[string]any) (*Result, error) {
	ev, err := workload.Validate(raw)
	if err != nil {
		return nil, err
	}

	resp, err := r.stages.Dispatch(ctx, ev)
	if err != nil {
		return nil, err
	}

	result := &Result{Event: ev, Response: resp}
	taskID := resp.TaskID()
	if taskID == "" {
		r.logger.Warn("Dispatch returned no task id, nothing to wait for", "operation", ev.Operation())
		return result, nil
	}

	logger := r.logger.With("taskId", taskID, "operation", ev.Operation())
	logger.Info("Waiting for task")

	notFound := 0
	for attempt := 1; ; attempt++ {
		task, err := r.stages.GetTaskStatus(ctx, taskID)
		result.Polls = attempt
		switch {
		case errors.Is(err, apperrors.ErrTaskNotFound) && notFound < r.cfg.NotFoundRetries:
			notFound++
			logger.Warn("Task not visible yet", "attempt", attempt, "error", err)
		case err != nil:
			return result, err
		default:
			notFound = 0
			result.Task = task
			status := task.Status()
			if status.IsTerminal() {
				logger.Info("Task finished", "status", status, "polls", attempt)
				if status == workload.TaskStatusFailed {
					return result, fmt.Errorf("%w: %s", ErrTaskFailed, taskID)
				}
				return result, nil
			}
			logger.Debug("Task in progress", "status", status, "attempt", attempt)
			if r.heartbeat != nil && len(r.tokens) > 0 {
				r.heartbeat.SendHeartbeats(ctx, r.tokens)
			}
		}

		if r.cfg.MaxPolls > 0 && attempt >= r.cfg.MaxPolls {
			return result, fmt.Errorf("%w after %d polls", ErrPollLimit, attempt)
		}

		wait := backoff.Exponential(attempt, &backoff.Config{Initial: r.cfg.PollInitial, Max: r.cfg.PollMax})
		if err := r.sleep(ctx, wait); err != nil {
			return result, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
