// Package rwlock implements a distributed read/write lock on top of a coord.ICoordinator.
//
// Every acquisition attempt is a sequential child node of the lock path, named
// "write-<seq>" or "read-<seq>". The sequence number is assigned atomically by the
// coordinator, so sorting the children by it gives the order in which the attempts
// were made. The node data is opaque to this package (the tablelock package stores
// the lock owner there).
//
// Ordering Rule:
//
//   - An exclusive (write) attempt holds the lock iff it is the first attempt.
//   - A shared (read) attempt holds the lock iff no earlier attempt is exclusive.
//
// Everything else waits. Eligible implements this rule as a pure function over the
// ordered attempt list.
//
// Waiting:
//
//	A waiter reads the children (and their children version), decides eligibility and,
//	if it has to wait, registers a one-shot children watch for exactly that version.
//	Any change (a release, a new attempt, a reap) wakes it up and it decides again.
//	There is no polling. If the waiter gives up (timeout or cancelled context), its
//	attempt node is deleted before returning, so nobody ends up waiting for it.
//
//	While blocked, the data of the attempt it waits for is passed to the optional
//	MetadataHandler, once per distinct blocker.
//
// Reaping:
//
//	ReapAll and Reap force delete attempt nodes regardless of ownership. A holder that is
//	still alive is not informed and keeps believing it holds the lock. A waiter whose node
//	was reaped returns ErrReaped.
//
// Usage:
//
//	rw := rwlock.New(coordinator, "/locks/orders", nil)
//	lock := rw.WriteLock(metadata)
//	ok, err := lock.TryAcquire(ctx, 10*time.Second)
//	if err != nil || !ok { ... }
//	defer lock.Release(ctx)
package rwlock
