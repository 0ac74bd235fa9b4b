package tablelock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/lib/coord/lcoord"
	"github.com/ValentinKolb/dLock/lib/rwlock"
)

// newTestManager creates a manager on a fresh local coordinator with short timeouts
func newTestManager(t *testing.T, timeout time.Duration) (ITableLockManager, coord.ICoordinator) {
	t.Helper()
	c := lcoord.NewLocalCoordinator()
	t.Cleanup(func() { _ = c.Close() })

	conf := DefaultConfig()
	conf.WriteLockTimeout = timeout
	conf.ReadLockTimeout = timeout
	conf.ServerName = ServerName{Host: "test-master", Port: 16000, StartCode: 1}
	return NewTableLockManager(conf, c), c
}

func TestWriteLockExclusion(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, 50*time.Millisecond)

	first := mgr.WriteLock("orders", "alter table")
	if err := first.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	second := mgr.WriteLock("orders", "delete table")
	if err := second.Acquire(ctx); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("second Acquire() = %v, want ErrLockTimeout", err)
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	third := mgr.WriteLock("orders", "delete table")
	if err := third.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() after release failed: %v", err)
	}
	if err := third.Release(ctx); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	// a timed out attempt leaves no node behind
	locks, err := ListLocks(ctx, mgr, "orders")
	if err != nil {
		t.Fatalf("ListLocks() failed: %v", err)
	}
	if len(locks) != 0 {
		t.Errorf("ListLocks() = %v, want no locks", locks)
	}
}

func TestReadLocksShared(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, 50*time.Millisecond)

	r1 := mgr.ReadLock("orders", "region split")
	r2 := mgr.ReadLock("orders", "region merge")
	if err := r1.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() r1 failed: %v", err)
	}
	if err := r2.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() r2 failed: %v", err)
	}

	w := mgr.WriteLock("orders", "alter table")
	if err := w.Acquire(ctx); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("write Acquire() = %v, want ErrLockTimeout", err)
	}

	for _, l := range []ITableLock{r1, r2} {
		if err := l.Release(ctx); err != nil {
			t.Fatalf("Release() failed: %v", err)
		}
	}

	w = mgr.WriteLock("orders", "alter table")
	if err := w.Acquire(ctx); err != nil {
		t.Fatalf("write Acquire() after release failed: %v", err)
	}
	if err := w.Release(ctx); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
}

func TestWaiterGetsLockOnRelease(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, NoTimeout)

	holder := mgr.WriteLock("orders", "alter table")
	if err := holder.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- mgr.ReadLock("orders", "scan").Acquire(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("read lock acquired while write lock is held: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := holder.Release(ctx); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiting Acquire() failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter was not granted the lock after release")
	}
}

func TestHandleState(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, 50*time.Millisecond)

	lock := mgr.WriteLock("orders", "alter table")
	if err := lock.Release(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Release() before Acquire() = %v, want ErrInvalidState", err)
	}
	if err := lock.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	if err := lock.Acquire(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Acquire() = %v, want ErrInvalidState", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if err := lock.Release(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Release() = %v, want ErrInvalidState", err)
	}

	if lock.Table() != "orders" || lock.Purpose() != "alter table" || lock.IsShared() {
		t.Errorf("unexpected handle accessors: %q %q %v", lock.Table(), lock.Purpose(), lock.IsShared())
	}
	if !mgr.ReadLock("orders", "scan").IsShared() {
		t.Errorf("ReadLock().IsShared() = false")
	}
}

func TestInvalidTableName(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, 50*time.Millisecond)

	for _, name := range []string{"", ".", "..", "a/b"} {
		t.Run(name, func(t *testing.T) {
			if err := mgr.WriteLock(name, "x").Acquire(ctx); !errors.Is(err, ErrInvalidResourceName) {
				t.Errorf("Acquire(%q) = %v, want ErrInvalidResourceName", name, err)
			}
			if err := mgr.ResourceDeleted(ctx, name); !errors.Is(err, ErrInvalidResourceName) {
				t.Errorf("ResourceDeleted(%q) = %v, want ErrInvalidResourceName", name, err)
			}
		})
	}
}

func TestCancelledAcquire(t *testing.T) {
	mgr, _ := newTestManager(t, NoTimeout)

	holder := mgr.WriteLock("orders", "alter table")
	if err := holder.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	err := mgr.WriteLock("orders", "delete table").Acquire(ctx)
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire() = %v, want ErrCancelled and context.Canceled", err)
	}

	locks, err := ListLocks(context.Background(), mgr, "orders")
	if err != nil {
		t.Fatalf("ListLocks() failed: %v", err)
	}
	if len(locks) != 1 {
		t.Errorf("ListLocks() = %d locks, want only the holder", len(locks))
	}
}

func TestDisabledManager(t *testing.T) {
	ctx := context.Background()
	c := lcoord.NewLocalCoordinator()
	defer c.Close()

	conf := DefaultConfig()
	conf.Enabled = false
	mgr := NewTableLockManager(conf, c)

	// locks never conflict and leave nothing in the coordinator
	w1 := mgr.WriteLock("orders", "a")
	w2 := mgr.WriteLock("orders", "b")
	for _, l := range []ITableLock{w1, w2} {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() failed: %v", err)
		}
	}
	for _, l := range []ITableLock{w1, w2} {
		if err := l.Release(ctx); err != nil {
			t.Fatalf("Release() failed: %v", err)
		}
	}
	if err := mgr.ReapAllWriteLocks(ctx); err != nil {
		t.Errorf("ReapAllWriteLocks() failed: %v", err)
	}
	if err := mgr.ResourceDeleted(ctx, "orders"); err != nil {
		t.Errorf("ResourceDeleted() failed: %v", err)
	}
	if _, _, err := c.Children(ctx, DefaultRoot); !errors.Is(err, coord.ErrNoNode) {
		t.Errorf("Children(%s) = %v, want ErrNoNode", DefaultRoot, err)
	}
}

func TestReapAllWriteLocks(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, 20*time.Millisecond)

	if err := mgr.ReapAllWriteLocks(ctx); err != nil {
		t.Fatalf("ReapAllWriteLocks() without tables failed: %v", err)
	}

	for _, table := range []string{"orders", "users", "items"} {
		if err := mgr.WriteLock(table, "alter table").Acquire(ctx); err != nil {
			t.Fatalf("Acquire(%s) failed: %v", table, err)
		}
	}
	reader := mgr.ReadLock("logs", "scan")
	if err := reader.Acquire(ctx); err != nil {
		t.Fatalf("Acquire(logs) failed: %v", err)
	}

	if err := mgr.ReapAllWriteLocks(ctx); err != nil {
		t.Fatalf("ReapAllWriteLocks() failed: %v", err)
	}

	tables, err := mgr.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables() failed: %v", err)
	}
	if len(tables) != 4 {
		t.Errorf("Tables() = %v, want 4 tables", tables)
	}
	for _, table := range tables {
		locks, err := ListLocks(ctx, mgr, table)
		if err != nil {
			t.Fatalf("ListLocks(%s) failed: %v", table, err)
		}
		for _, l := range locks {
			if l.Mode == rwlock.ModeExclusive {
				t.Errorf("write lock %s on %s survived the reap", l.Node, table)
			}
		}
	}

	// read locks are untouched, the tables are free for writers again
	if err := reader.Release(ctx); err != nil {
		t.Errorf("Release() of read lock failed: %v", err)
	}
	if err := mgr.WriteLock("orders", "alter table").Acquire(ctx); err != nil {
		t.Errorf("Acquire() after reap failed: %v", err)
	}
}

func TestResourceDeleted(t *testing.T) {
	ctx := context.Background()
	mgr, c := newTestManager(t, 20*time.Millisecond)

	// unknown table
	if err := mgr.ResourceDeleted(ctx, "ghost"); err != nil {
		t.Errorf("ResourceDeleted(ghost) = %v, want nil", err)
	}

	lock := mgr.WriteLock("orders", "delete table")
	if err := lock.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	// still locked: the node stays
	if err := mgr.ResourceDeleted(ctx, "orders"); err != nil {
		t.Errorf("ResourceDeleted() while locked = %v, want nil", err)
	}
	if _, err := c.GetData(ctx, coord.Join(DefaultRoot, "orders")); err != nil {
		t.Errorf("lock node removed while locked: %v", err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if err := mgr.ResourceDeleted(ctx, "orders"); err != nil {
		t.Errorf("ResourceDeleted() = %v, want nil", err)
	}
	if _, err := c.GetData(ctx, coord.Join(DefaultRoot, "orders")); !errors.Is(err, coord.ErrNoNode) {
		t.Errorf("GetData() after ResourceDeleted = %v, want ErrNoNode", err)
	}
}

func TestVisitLocks(t *testing.T) {
	ctx := WithTaskID(context.Background(), 7)
	mgr, c := newTestManager(t, 20*time.Millisecond)
	waiting := NewTableLockManager(Config{
		Enabled:          true,
		WriteLockTimeout: NoTimeout,
		ReadLockTimeout:  NoTimeout,
		Root:             DefaultRoot,
	}, c)

	if locks, err := ListLocks(ctx, mgr, "orders"); err != nil || len(locks) != 0 {
		t.Fatalf("ListLocks() on unknown table = %v, %v", locks, err)
	}

	r := mgr.ReadLock("orders", "scan")
	if err := r.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	// a queued writer
	var wg sync.WaitGroup
	wg.Add(1)
	ready := make(chan struct{})
	go func() {
		defer wg.Done()
		wctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { <-ready; cancel() }()
		_ = waiting.WriteLock("orders", "alter table").Acquire(wctx)
	}()

	// wait for the writer to queue
	deadline := time.Now().Add(time.Second)
	var locks []LockInfo
	for time.Now().Before(deadline) {
		var err error
		locks, err = ListLocks(ctx, mgr, "orders")
		if err != nil {
			t.Fatalf("ListLocks() failed: %v", err)
		}
		if len(locks) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(ready)
	wg.Wait()

	if len(locks) != 2 {
		t.Fatalf("ListLocks() = %d locks, want 2", len(locks))
	}
	if locks[0].Mode != rwlock.ModeShared || locks[1].Mode != rwlock.ModeExclusive {
		t.Errorf("lock order = %v, %v, want read, write", locks[0].Mode, locks[1].Mode)
	}
	if locks[0].Seq >= locks[1].Seq {
		t.Errorf("sequence numbers not ascending: %d, %d", locks[0].Seq, locks[1].Seq)
	}
	md := locks[0].Metadata
	if md == nil {
		t.Fatalf("Metadata of %s missing", locks[0].Node)
	}
	if string(md.TableName) != "orders" || md.Purpose != "scan" || !md.IsShared || md.ThreadID != 7 ||
		md.LockOwner.Host != "test-master" {
		t.Errorf("unexpected metadata %s", md)
	}

	// stop early
	stop := errors.New("stop")
	calls := 0
	err := mgr.VisitLocks(ctx, "orders", func(LockInfo) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("VisitLocks() = %v after %d calls, want stop after 1", err, calls)
	}
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, 20*time.Millisecond)

	ran := false
	err := WithLock(ctx, mgr.WriteLock("orders", "alter table"), func(ctx context.Context) error {
		ran = true
		// the table is locked while fn runs
		if err := mgr.WriteLock("orders", "other").Acquire(ctx); !errors.Is(err, ErrLockTimeout) {
			t.Errorf("concurrent Acquire() = %v, want ErrLockTimeout", err)
		}
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("WithLock() = %v (ran %v)", err, ran)
	}

	fail := errors.New("operation failed")
	err = WithLock(ctx, mgr.WriteLock("orders", "alter table"), func(context.Context) error { return fail })
	if !errors.Is(err, fail) {
		t.Errorf("WithLock() = %v, want %v", err, fail)
	}

	// the lock was released in both cases
	if err := mgr.WriteLock("orders", "check").Acquire(ctx); err != nil {
		t.Errorf("Acquire() after WithLock failed: %v", err)
	}
}
