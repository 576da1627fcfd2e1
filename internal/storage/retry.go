package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsConflict returns true for Postgres error codes that indicate the row
// changed underneath the write: serialization failures and deadlocks.
// These are the backend's optimistic-concurrency signal and are safe to
// retry.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001": // serialization_failure
		return true
	case "40P01": // deadlock_detected
		return true
	default:
		return false
	}
}

// retryBaseDelay is the step of the linear backoff ladder: attempt n waits
// n * retryBaseDelay before retrying.
const retryBaseDelay = 100 * time.Millisecond

// WithRetry executes fn, retrying up to maxRetries times on conflict
// errors with linear backoff (100ms, 200ms, 300ms, ...). Non-conflict
// errors return immediately. The last conflict error is returned once
// retries are exhausted; dropping it is the caller's decision.
func WithRetry(ctx context.Context, maxRetries int, fn func() error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		if err == nil || !IsConflict(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * retryBaseDelay):
		}
	}
	return err
}
