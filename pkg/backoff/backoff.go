// Package backoff computes wait intervals between repeated attempts.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	defaultInitial    = 100 * time.Millisecond
	defaultMax        = 5 * time.Second
	defaultMultiplier = 2.0
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial    time.Duration // default: 100ms
	Max        time.Duration // default: 5s
	Multiplier float64       // growth per attempt (default: 2)
	Jitter     float64       // fraction of the interval randomised either way, 0..1 (default: none)
}

func (c *Config) resolve() Config {
	out := Config{Initial: defaultInitial, Max: defaultMax, Multiplier: defaultMultiplier}
	if c == nil {
		return out
	}
	if c.Initial > 0 {
		out.Initial = c.Initial
	}
	if c.Max > 0 {
		out.Max = c.Max
	}
	if c.Multiplier > 1 {
		out.Multiplier = c.Multiplier
	}
	if c.Jitter > 0 {
		out.Jitter = math.Min(c.Jitter, 1)
	}
	if out.Max < out.Initial {
		out.Max = out.Initial
	}
	return out
}

// Exponential returns the wait before the attempt after attempt.
// Attempt 1 returns Initial, each later attempt grows by Multiplier up to Max.
// With Jitter set the result is spread over [d*(1-Jitter), d*(1+Jitter)] and
// still capped at Max.
func Exponential(attempt int, cfg *Config) time.Duration {
	return exponential(attempt, cfg, rand.Float64)
}

func exponential(attempt int, cfg *Config, random func() float64) time.Duration {
	c := cfg.resolve()
	if attempt < 1 {
		attempt = 1
	}

	d := float64(c.Initial) * math.Pow(c.Multiplier, float64(attempt-1))
	if d > float64(c.Max) || math.IsInf(d, 0) {
		d = float64(c.Max)
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (2*random() - 1)
		d = math.Min(d, float64(c.Max))
	}
	return time.Duration(d)
}
