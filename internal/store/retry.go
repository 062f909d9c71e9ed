package store

import (
	"context"
	"sync/atomic"
	"time"

	appErrors "coursehub-backend/pkg/errors"
)

// RetryConfig bounds the compare-and-swap retry driver.
type RetryConfig struct {
	MaxRetries int           // retries after the initial attempt
	BaseDelay  time.Duration // delay before retry n is BaseDelay * n
}

// DefaultRetryConfig returns the standard CAS retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  50 * time.Millisecond,
	}
}

// RetryPolicy is a shared, swappable retry configuration. Consumers load the
// current config per operation, so a config reload applies to the next call
// without restarting them.
type RetryPolicy struct {
	v atomic.Value
}

// NewRetryPolicy creates a policy seeded with cfg.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	p := &RetryPolicy{}
	p.v.Store(cfg)
	return p
}

// Load returns the current retry configuration.
func (p *RetryPolicy) Load() RetryConfig {
	return p.v.Load().(RetryConfig)
}

// Store replaces the retry configuration for subsequent operations.
func (p *RetryPolicy) Store(cfg RetryConfig) {
	p.v.Store(cfg)
}

// RetryCAS runs op, retrying on version conflicts up to the configured bound.
// The op must re-read the current version on each invocation before
// reapplying its change; the driver only schedules attempts. Exhaustion
// surfaces the underlying Conflict uninterpreted. A done context aborts the
// loop between attempts rather than letting it run past its deadline.
func RetryCAS(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.BaseDelay * time.Duration(attempt)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !appErrors.IsConflict(err) {
			return err
		}
		lastErr = err
	}

	return lastErr
}
