package dispatch

import (
	"context"
	"time"
)

// RetryConfig controls the backoff schedule for the init-retry loop (spec
// §4.D: "for each Errored or fresh Waiting record, invokes init() up to
// max_init_attempts times ... with an exponential-friendly delay left to
// implementers").
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiply float64
}

// DefaultRetryConfig matches the spec's max_init_attempts default of 3.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialBackoff:  1 * time.Second,
	MaxBackoff:      30 * time.Second,
	BackoffMultiply: 2.0,
}

// RetryResult reports the outcome of a retried operation.
type RetryResult struct {
	Success  bool
	Attempts int
	LastErr  error
}

// retryWithBackoff retries operation with exponential backoff, stopping
// early if ctx is cancelled. It retries on any error, since init() failures
// (network I/O, a transient peer outage) are assumed transient.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, operation func(ctx context.Context) error) RetryResult {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := operation(ctx)
		if err == nil {
			return RetryResult{Success: true, Attempts: attempt}
		}
		lastErr = err

		if attempt < cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return RetryResult{Success: false, Attempts: attempt, LastErr: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * cfg.BackoffMultiply)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}

	return RetryResult{Success: false, Attempts: cfg.MaxAttempts, LastErr: lastErr}
}
