package tablelock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/lib/coord/lcoord"
	"github.com/ValentinKolb/dLock/lib/rwlock"
)

// faultyCoordinator wraps a coordinator and injects failures into single operations
type faultyCoordinator struct {
	coord.ICoordinator

	failCreate         error
	failChildren       error
	failDeleteChildren string // path whose DeleteChildren fails

	afterChildren atomic.Pointer[func()] // called once after the next successful Children
}

func (f *faultyCoordinator) CreateSequential(ctx context.Context, parent, prefix string, data []byte) (string, error) {
	if f.failCreate != nil {
		return "", f.failCreate
	}
	return f.ICoordinator.CreateSequential(ctx, parent, prefix, data)
}

func (f *faultyCoordinator) Children(ctx context.Context, path string) ([]string, uint64, error) {
	if f.failChildren != nil {
		return nil, 0, f.failChildren
	}
	children, cversion, err := f.ICoordinator.Children(ctx, path)
	if hook := f.afterChildren.Swap(nil); hook != nil && err == nil {
		(*hook)()
	}
	return children, cversion, err
}

func (f *faultyCoordinator) DeleteChildren(ctx context.Context, path, prefix string) (int, error) {
	if path == f.failDeleteChildren {
		return 0, coord.Errorf(coord.RetCInternalError, "injected failure for %s", path)
	}
	return f.ICoordinator.DeleteChildren(ctx, path, prefix)
}

// newFaultyManager creates a manager on a faulty coordinator wrapping a fresh local coordinator
func newFaultyManager(t *testing.T, timeout time.Duration) (ITableLockManager, *faultyCoordinator) {
	t.Helper()
	c := lcoord.NewLocalCoordinator()
	t.Cleanup(func() { _ = c.Close() })

	fc := &faultyCoordinator{ICoordinator: c}
	conf := DefaultConfig()
	conf.WriteLockTimeout = timeout
	conf.ReadLockTimeout = timeout
	conf.ServerName = ServerName{Host: "test-master", Port: 16000, StartCode: 1}
	return NewTableLockManager(conf, fc), fc
}

func TestCancelledAfterGrantLeavesNoNode(t *testing.T) {
	mgr, fc := newFaultyManager(t, 50*time.Millisecond)

	// the attempt is eligible right away, ctx ends right after the grant was decided
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hook := func() { cancel() }
	fc.afterChildren.Store(&hook)

	err := mgr.WriteLock("orders", "alter table").Acquire(ctx)
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire() = %v, want ErrCancelled and context.Canceled", err)
	}

	locks, err := ListLocks(context.Background(), mgr, "orders")
	if err != nil {
		t.Fatalf("ListLocks() failed: %v", err)
	}
	if len(locks) != 0 {
		t.Fatalf("ListLocks() = %v, want no locks after a cancelled acquire", locks)
	}

	next := mgr.WriteLock("orders", "delete table")
	if err := next.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() of the next writer failed: %v", err)
	}
	if err := next.Release(context.Background()); err != nil {
		t.Errorf("Release() failed: %v", err)
	}
}

func TestReapAllWriteLocksPartialFailure(t *testing.T) {
	ctx := context.Background()
	mgr, fc := newFaultyManager(t, 20*time.Millisecond)

	tables := []string{"orders", "users", "items"}
	for _, table := range tables {
		if err := mgr.WriteLock(table, "alter table").Acquire(ctx); err != nil {
			t.Fatalf("Acquire(%s) failed: %v", table, err)
		}
	}

	fc.failDeleteChildren = coord.Join(DefaultRoot, "users")
	err := mgr.ReapAllWriteLocks(ctx)
	if !errors.Is(err, ErrPartialReap) {
		t.Fatalf("ReapAllWriteLocks() = %v, want ErrPartialReap", err)
	}
	if !errors.Is(err, coord.ErrInternal) {
		t.Errorf("ReapAllWriteLocks() = %v, want the coordinator error joined", err)
	}

	// the failing table does not stop the others from being reaped
	want := map[string]int{"orders": 0, "users": 1, "items": 0}
	for table, n := range want {
		locks, err := ListLocks(ctx, mgr, table)
		if err != nil {
			t.Fatalf("ListLocks(%s) failed: %v", table, err)
		}
		if len(locks) != n {
			t.Errorf("ListLocks(%s) = %d locks, want %d", table, len(locks), n)
		}
	}
}

func TestCoordinatorFailuresMapToIOFailure(t *testing.T) {
	injected := coord.Errorf(coord.RetCInternalError, "injected failure")

	tests := []struct {
		name   string
		inject func(fc *faultyCoordinator)
		call   func(ctx context.Context, mgr ITableLockManager) error
	}{
		{
			name:   "acquire create fails",
			inject: func(fc *faultyCoordinator) { fc.failCreate = injected },
			call: func(ctx context.Context, mgr ITableLockManager) error {
				return mgr.WriteLock("orders", "alter table").Acquire(ctx)
			},
		},
		{
			name:   "acquire children fails",
			inject: func(fc *faultyCoordinator) { fc.failChildren = injected },
			call: func(ctx context.Context, mgr ITableLockManager) error {
				return mgr.ReadLock("orders", "region split").Acquire(ctx)
			},
		},
		{
			name:   "tables fails",
			inject: func(fc *faultyCoordinator) { fc.failChildren = injected },
			call: func(ctx context.Context, mgr ITableLockManager) error {
				_, err := mgr.Tables(ctx)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, fc := newFaultyManager(t, 20*time.Millisecond)
			tt.inject(fc)

			err := tt.call(context.Background(), mgr)
			if !errors.Is(err, ErrIOFailure) {
				t.Fatalf("got %v, want ErrIOFailure", err)
			}
			if !errors.Is(err, coord.ErrInternal) {
				t.Errorf("got %v, want the coordinator error wrapped", err)
			}
		})
	}
}

func TestReapedWaiterFails(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, NoTimeout)

	holder := mgr.WriteLock("orders", "alter table")
	if err := holder.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- mgr.WriteLock("orders", "delete table").Acquire(ctx)
	}()

	// wait until the waiter queued its attempt
	deadline := time.Now().Add(2 * time.Second)
	for {
		locks, err := ListLocks(ctx, mgr, "orders")
		if err != nil {
			t.Fatalf("ListLocks() failed: %v", err)
		}
		if len(locks) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("waiter did not queue its attempt, locks: %v", locks)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := mgr.ReapAllWriteLocks(ctx); err != nil {
		t.Fatalf("ReapAllWriteLocks() failed: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrIOFailure) || !errors.Is(err, rwlock.ErrReaped) {
			t.Errorf("waiter Acquire() = %v, want ErrIOFailure wrapping ErrReaped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken up by the reap")
	}
}
