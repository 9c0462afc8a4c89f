package payment

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// withRetry runs op up to maxAttempts times, backing off between
// attempts. Only transient failures are retried; after the budget is
// spent the last error surfaces to the caller, which records the
// payment as Failed.
func withRetry(ctx context.Context, logger *zap.Logger, maxAttempts int, label string, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		logger.Warn("transient gateway failure",
			zap.String("op", label),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxAttempts),
			zap.Error(err))
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return err
}
