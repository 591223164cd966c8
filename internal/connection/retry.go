package connection

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Retry runs fn up to attempts times with a fixed delay between tries.
// A failure is retried only while classify reports it as retryable; any
// other error, context cancellation, or attempt exhaustion surfaces the last
// error to the caller.
func Retry(ctx context.Context, attempts int, delay time.Duration, classify func(error) bool, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !classify(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// IsTransientTransaction reports whether the error carries the driver's
// transient-transaction label and is therefore worth retrying.
func IsTransientTransaction(err error) bool {
	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) {
		return srvErr.HasErrorLabel("TransientTransactionError")
	}
	return false
}
