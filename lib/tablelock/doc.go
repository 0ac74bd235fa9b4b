// Package tablelock provides distributed table level locks for administrative operations
// (schema changes, splits, deletes) that must not run concurrently on the same table.
//
// The package focuses on:
//   - A manager interface (ITableLockManager) that hands out write and read lock handles
//   - A coordinator backed implementation built on the rwlock package
//   - A no-op implementation used when locking is disabled
//   - Cluster wide maintenance: reaping write locks of dead masters, cleaning up after deleted tables
//
// Key Components:
//
//   - Manager: Created once per process by NewTableLockManager. It holds no mutable state
//     besides its configuration, all lock state lives in the coordinator below
//     "<root>/<table>". The configuration decides between the real and the null manager.
//
//   - Lock Handles: WriteLock and ReadLock return single use handles. Acquire waits at most
//     the configured timeout (NoTimeout waits until the context is done). The attempt node
//     carries Metadata (owner, task id, purpose, mode, creation time) so other processes can
//     tell who holds a lock. While waiting, the owner of the blocking lock is logged at debug
//     level.
//
//   - Errors: Acquire and Release return errors matching one of ErrLockTimeout, ErrIOFailure,
//     ErrCancelled (which also matches context.Canceled / context.DeadlineExceeded) or
//     ErrInvalidState, so callers can test with errors.Is:
//
//     if errors.Is(err, tablelock.ErrLockTimeout) { ... }
//
//   - Maintenance: ReapAllWriteLocks removes all write lock nodes of all tables. Tables that
//     fail are logged and skipped, the failures are returned together with ErrPartialReap.
//     ResourceDeleted removes the lock node of a deleted table unless somebody is already
//     waiting on it again. Both operations are unsafe while locks are held, callers must make
//     sure the holders are dead or finished.
//
// Configuration:
//
//	conf := tablelock.DefaultConfig()            // enabled, 10 minute timeouts
//	conf.WriteLockTimeout = tablelock.TimeoutFromMillis(-1) // no timeout
//	mgr := tablelock.NewTableLockManager(conf, coordinator)
//
// Usage:
//
//	lock := mgr.WriteLock("orders", "alter table")
//	err := tablelock.WithLock(ctx, lock, func(ctx context.Context) error {
//	    return alterTable(ctx, "orders")
//	})
//
// Metrics:
//
//	Acquisitions, releases, timeouts, failures and wait durations are recorded per mode in
//	the default VictoriaMetrics set, reaped nodes in dlock_table_lock_reaped_nodes_total.
package tablelock
