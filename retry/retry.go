package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Config holds backoff configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration
}

// DefaultConfig returns the documented job-retry defaults: up to 3 retries
// with 30s base backoff capped at 120s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       4,
		BackoffBase:       30 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        120 * time.Second,
	}
}

// Backoff computes the jittered delay before the given retry attempt
// (1-based). Jitter is ±25% to avoid synchronized retries.
func (c Config) Backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}
	backoff := time.Duration(float64(c.BackoffBase) * multiplier)
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// Do runs fn, retrying transient failures per the config. Fatal errors and
// context cancellation stop immediately.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if IsFatal(err) || !IsTransient(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Backoff(attempt)):
		}
	}
	return lastErr
}
