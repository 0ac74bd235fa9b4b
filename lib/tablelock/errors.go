package tablelock

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLockTimeout is returned if a lock could not be acquired within the configured timeout
	ErrLockTimeout = errors.New("lock timeout")
	// ErrIOFailure wraps coordinator failures
	ErrIOFailure = errors.New("coordinator failure")
	// ErrCancelled is returned if the context of a blocking call is done.
	// The error also matches the context error (context.Canceled or context.DeadlineExceeded).
	ErrCancelled = errors.New("cancelled")
	// ErrInvalidState is returned when a handle is used in the wrong state (e.g. released while not held)
	ErrInvalidState = errors.New("invalid lock state")
	// ErrInvalidResourceName is returned for table names that can not be used as a path segment
	ErrInvalidResourceName = errors.New("invalid table name")
	// ErrPartialReap is joined with the per table errors of ReapAllWriteLocks
	ErrPartialReap = errors.New("some table locks could not be reaped")
)

// cancelled wraps a context error so that it matches both ErrCancelled and the context error
func cancelled(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %w", ErrCancelled, fmt.Sprintf(format, args...), err)
}

// ioFailure wraps a coordinator error
func ioFailure(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %w", ErrIOFailure, fmt.Sprintf(format, args...), err)
}

// validateTable checks that a table name can be used as a single path segment
func validateTable(table string) error {
	switch {
	case table == "":
		return fmt.Errorf("%w: empty name", ErrInvalidResourceName)
	case table == "." || table == "..":
		return fmt.Errorf("%w: %q", ErrInvalidResourceName, table)
	case strings.Contains(table, "/"):
		return fmt.Errorf("%w: %q contains '/'", ErrInvalidResourceName, table)
	}
	return nil
}
