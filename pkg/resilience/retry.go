// Package resilience provides the bounded-retry and circuit-breaker
// primitives used for the node registry's store calls, the engine client
// (retry) and the auth broker (circuit breaker), grounded on
// the r3e-network-service_layer resilience package's shape.
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig controls the bounded exponential backoff used by §4.B's node
// registry store calls and the engine client's calls.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryConfig matches §4.B's "bounded exponential backoff, default 3 attempts".
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry calls fn up to cfg.MaxAttempts times with exponential backoff
// between attempts, stopping early on ctx cancellation. The last error is
// returned if every attempt fails.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.Jitter {
			wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}
