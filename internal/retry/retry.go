// Package retry runs the startup connectivity probe with exponential backoff.
// Sync and analysis calls are never retried.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	perrors "github.com/p-blackswan/impactlens/internal/errors"
)

// Config controls how often and how patiently an operation is re-run.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter scales each delay by a random factor in [0.5, 1).
	Jitter bool
	// Retryable decides whether an error is worth another attempt.
	// Defaults to errors.IsRetryable.
	Retryable func(error) bool
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns the startup probe defaults: three attempts, starting
// at half a second.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// Delay is the wait after the given zero-based failed attempt, before jitter.
// Growth saturates at MaxDelay, or at the largest Duration when MaxDelay is
// unset.
func (c Config) Delay(attempt int) time.Duration {
	limit := c.MaxDelay
	if limit <= 0 {
		limit = math.MaxInt64
	}
	d := c.BaseDelay << uint(attempt)
	if d < 0 || d>>uint(attempt) != c.BaseDelay || d > limit {
		d = limit
	}
	return d
}

func (c Config) wait(attempt int) time.Duration {
	d := c.Delay(attempt)
	if c.Jitter && d > 0 {
		d = d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, attempts run
// out, or ctx is done. The last error is returned.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = perrors.IsRetryable
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil || !retryable(err) || attempt+1 >= attempts {
			return err
		}

		d := cfg.wait(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, d)
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
