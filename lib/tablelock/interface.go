package tablelock

import (
	"context"

	"github.com/ValentinKolb/dLock/lib/rwlock"
)

// --------------------------------------------------------------------------
// Interface Definitions
// --------------------------------------------------------------------------

// ITableLockManager creates table locks and performs cluster wide lock maintenance.
// Use NewTableLockManager to get the implementation matching the configuration.
type ITableLockManager interface {
	// WriteLock returns a handle for locking the table for exclusive access.
	// The purpose is a human readable reason stored with the lock.
	WriteLock(table string, purpose string) ITableLock
	// ReadLock returns a handle for locking the table for shared access among read lock holders.
	ReadLock(table string, purpose string) ITableLock
	// ReapAllWriteLocks force deletes all table write locks and write lock attempts, even if
	// this process does not own them. Holders that still believe they own a lock are not
	// informed, so this must only be used when all write lock holders are known to be dead
	// (e.g. a standby master taking over).
	//
	// A failure to list the tables is returned as ErrIOFailure. Failures for single tables are
	// logged and skipped, they are returned joined with ErrPartialReap once all tables
	// were processed.
	ReapAllWriteLocks(ctx context.Context) error
	// ResourceDeleted removes the lock state of a table after the table was deleted and its lock
	// was released. If another task is already waiting for a lock on the table, the state is left
	// in place and nil is returned.
	ResourceDeleted(ctx context.Context, table string) error
	// Tables lists all tables that currently have lock state.
	Tables(ctx context.Context) ([]string, error)
	// VisitLocks calls fn for every lock attempt on table in creation order (holders first).
	// Returning an error from fn stops the iteration and returns that error.
	VisitLocks(ctx context.Context, table string, fn func(LockInfo) error) error
}

// ITableLock is a handle for a single lock acquisition on one table.
//
// A handle can be acquired at most once. After a timeout or failure a new handle has to be
// requested from the manager.
type ITableLock interface {
	// Acquire acquires the lock, waiting at most the configured lock timeout.
	// It fails with ErrLockTimeout if the lock could not be acquired in time,
	// with ErrCancelled if ctx is done and with ErrIOFailure on coordinator errors.
	// A failed acquisition leaves no lock state behind.
	Acquire(ctx context.Context) error
	// Release releases a held lock. It fails with ErrInvalidState if the lock is not held.
	Release(ctx context.Context) error
	// Table returns the name of the locked table.
	Table() string
	// Purpose returns the reason given when the lock was created.
	Purpose() string
	// IsShared reports whether this is a read lock.
	IsShared() bool
}

// LockInfo describes one lock attempt (held or queued) on a table.
type LockInfo struct {
	Node     string      // name of the attempt node
	Mode     rwlock.Mode // write or read
	Seq      uint64      // position in the queue
	Metadata *Metadata   // owner information, nil if the node carries none
}

// ListLocks collects all lock attempts on table in creation order.
func ListLocks(ctx context.Context, mgr ITableLockManager, table string) ([]LockInfo, error) {
	var infos []LockInfo
	err := mgr.VisitLocks(ctx, table, func(info LockInfo) error {
		infos = append(infos, info)
		return nil
	})
	return infos, err
}
