package api

import (
	"context"
	"time"
)

// WithRetry executes op, retrying on transient failures (see IsTransient)
// up to MaxRetryAttempts total attempts with a fixed delay between them.
// No jitter, no growing backoff. Non-transient errors propagate
// immediately; exhausting the attempts returns the last error.
func WithRetry(ctx context.Context, op func() error) error {
	return withRetry(ctx, op, MaxRetryAttempts, RetryDelay, sleep)
}

// withRetry is the injectable core of WithRetry. Tests substitute the
// sleep function to count delays without waiting.
func withRetry(ctx context.Context, op func() error, attempts int, delay time.Duration, sleepFn func(context.Context, time.Duration) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt >= attempts {
			return err
		}
		if sleepErr := sleepFn(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
}

// sleep waits for d or until the context is canceled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
