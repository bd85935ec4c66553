package backoff

import (
	"context"
	"errors"
	"time"
)

// Retry runs fn up to attempts times, sleeping per the strategy between
// failures. It returns nil on the first success, the last error once the
// budget is exhausted, and the context error if ctx is cancelled while
// waiting. retryable decides which errors are worth another attempt; a
// nil retryable retries everything.
func Retry(ctx context.Context, attempts int, s Strategy, retryable func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		select {
		case <-time.After(s.Delay(attempt)):
		case <-ctx.Done():
			return errors.Join(ctx.Err(), lastErr)
		}
	}
	return lastErr
}
