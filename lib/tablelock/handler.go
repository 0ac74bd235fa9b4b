package tablelock

import (
	"context"
	"errors"
)

// WithLock acquires lock, runs fn and releases the lock again, the way table operations
// are executed by the master: prepare with the lock held, handle the operation, release.
//
// The lock is released even if fn fails. Errors of fn and of the release are joined.
// The release uses a context that is not cancelled together with ctx, so a cancelled
// operation does not leave its lock behind.
func WithLock(ctx context.Context, lock ITableLock, fn func(ctx context.Context) error) error {
	if err := lock.Acquire(ctx); err != nil {
		return err
	}

	fnErr := fn(ctx)
	if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
		log.Errorf("Failed to release %s lock on %s: %v", mode(lock), lock.Table(), err)
		return errors.Join(fnErr, err)
	}
	return fnErr
}

func mode(lock ITableLock) string {
	if lock.IsShared() {
		return "read"
	}
	return "write"
}
