package eventbus

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig controls retry/backoff behavior for adapter and relay writes.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the default policy: a single attempt.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     0,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2,
	}
}

// Validate checks the retry policy.
func (c RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("eventbus: max retries cannot be negative")
	}
	if c.MaxRetries > 0 && (c.InitialBackoff <= 0 || c.MaxBackoff <= 0 || c.BackoffFactor < 1) {
		return fmt.Errorf("eventbus: invalid retry config")
	}
	return nil
}

// withRetry runs fn until it succeeds, retries are exhausted, or ctx is done.
func withRetry(ctx context.Context, cfg RetryConfig, onRetry func(), fn func(context.Context) error) error {
	backoff := cfg.InitialBackoff
	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == cfg.MaxRetries || ctx.Err() != nil {
			break
		}
		if onRetry != nil {
			onRetry()
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		backoff = nextBackoff(backoff, cfg.MaxBackoff, cfg.BackoffFactor)
	}
	return err
}

func nextBackoff(current, max time.Duration, factor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}
