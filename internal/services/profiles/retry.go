package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"titan/internal/api"
	"titan/internal/logger"
)

const (
	pullAttempts = 3
	pullBackoff  = 500 * time.Millisecond
)

// retryWithBackoff runs operation up to maxAttempts times while retryable
// accepts the error. The wait before attempt n+1 is base*n*n.
func retryWithBackoff(ctx context.Context, operation func() error, maxAttempts int, base time.Duration, retryable func(error) bool) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded on retry", "attempt", attempt, "max", maxAttempts)
			}
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt == maxAttempts {
			logger.Warn("All attempts failed", "attempts", maxAttempts, "error", err)
			break
		}

		backoff := base * time.Duration(attempt*attempt)
		logger.Warn("Attempt failed, retrying", "attempt", attempt, "max", maxAttempts, "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}

// transient reports whether a pull failure is worth retrying
func transient(err error) bool {
	return errors.Is(err, api.ErrTransport)
}
