package util

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn until it succeeds, up to maxAttempts times, doubling the
// wait between attempts starting from baseDelay. A context that is already
// done fails fast without invoking fn. The returned error wraps the last
// failure so callers can still match it with errors.Is / errors.As.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	delay := baseDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}
