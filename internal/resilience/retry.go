package resilience

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, sleeping delay between tries. It stops
// early when fn succeeds or ctx is cancelled, returning the last error.
// attempts < 1 is treated as 1.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if i < attempts-1 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return lastErr
			}
		}
	}
	return lastErr
}
