// Package circuitbreaker fails calls fast after repeated failures of a
// downstream dependency.
//
// States:
//   - Closed: calls flow, consecutive failures are counted
//   - Open: calls are refused until the cooldown elapses
//   - HalfOpen: a single trial call decides whether to close or reopen
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute when the breaker refuses a call.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the state of a circuit breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds configuration for a circuit breaker.
type Config struct {
	Threshold int           // Consecutive failures before opening (default: 5)
	Cooldown  time.Duration // Time open before a trial call (default: 30s)

	// OnStateChange, when set, is called after every transition.
	// It runs with the breaker unlocked.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	}
}

// Breaker guards a single downstream resource.
type Breaker struct {
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool // a half-open trial call is in flight
	cfg      Config
	now      func() time.Time
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a call may be attempted. Once the cooldown has
// elapsed exactly one caller is let through as the half-open trial; every
// caller that gets true must report back with RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	var from State
	changed := false
	allowed := true

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			allowed = false
			break
		}
		from, changed = b.state, true
		b.state = HalfOpen
		b.probing = true
	case HalfOpen:
		if b.probing {
			allowed = false
			break
		}
		b.probing = true
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, HalfOpen)
	}
	return allowed
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.transition(func() State {
		b.failures = 0
		b.probing = false
		return Closed
	})
}

// RecordFailure counts a failure. A failed half-open trial reopens the
// breaker immediately.
func (b *Breaker) RecordFailure() {
	b.transition(func() State {
		b.failures++
		b.probing = false
		if b.state == HalfOpen || b.failures >= b.cfg.Threshold {
			b.openedAt = b.now()
			return Open
		}
		return b.state
	})
}

// Execute runs fn when the breaker allows it. fn's error counts as a failure
// only when isFailure returns true for it; a nil isFailure counts every error.
func (b *Breaker) Execute(fn func() error, isFailure func(error) bool) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn()
	if err != nil && (isFailure == nil || isFailure(err)) {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	return err
}

// State returns the current state. An open breaker whose cooldown has
// elapsed still reports Open until a caller asks to be allowed through.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.RecordSuccess()
}

func (b *Breaker) transition(update func() State) {
	b.mu.Lock()
	from := b.state
	to := update()
	b.state = to
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to State) {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
