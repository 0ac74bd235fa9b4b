package tablelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/lib/rwlock"
)

// --------------------------------------------------------------------------
// Task IDs
// --------------------------------------------------------------------------

type taskIDKey struct{}

// WithTaskID attaches a task id to ctx. It is stored as thread id in the metadata of locks
// acquired with ctx and helps to find the task holding a lock.
func WithTaskID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, taskIDKey{}, id)
}

// TaskID returns the task id attached to ctx, or the process id if there is none.
func TaskID(ctx context.Context) int64 {
	if id, ok := ctx.Value(taskIDKey{}).(int64); ok {
		return id
	}
	return int64(os.Getpid())
}

// logLockOwner is the metadata handler of all table locks. It logs who holds the lock a task
// is waiting for.
func logLockOwner(data []byte) {
	m, ok := ParseMetadata(data)
	if !ok {
		return
	}
	log.Debugf("Table is locked by: %s", m)
}

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

type managerImpl struct {
	c    coord.ICoordinator
	conf Config
}

func newManager(conf Config, c coord.ICoordinator) *managerImpl {
	return &managerImpl{c: c, conf: conf}
}

// tablePath returns the lock path of a table
func (m *managerImpl) tablePath(table string) string {
	return coord.Join(m.conf.Root, table)
}

func (m *managerImpl) WriteLock(table string, purpose string) ITableLock {
	return &tableLockImpl{mgr: m, table: table, purpose: purpose, mode: rwlock.ModeExclusive, timeout: m.conf.WriteLockTimeout}
}

func (m *managerImpl) ReadLock(table string, purpose string) ITableLock {
	return &tableLockImpl{mgr: m, table: table, purpose: purpose, mode: rwlock.ModeShared, timeout: m.conf.ReadLockTimeout}
}

func (m *managerImpl) Tables(ctx context.Context) ([]string, error) {
	tables, _, err := m.c.Children(ctx, m.conf.Root)
	switch {
	case errors.Is(err, coord.ErrNoNode):
		return nil, nil
	case ctx.Err() != nil:
		return nil, cancelled(ctx.Err(), "listing tables")
	case err != nil:
		return nil, ioFailure(err, "listing tables below %s", m.conf.Root)
	}
	return tables, nil
}

func (m *managerImpl) ReapAllWriteLocks(ctx context.Context) error {
	tables, err := m.Tables(ctx)
	if err != nil {
		log.Errorf("Unexpected coordinator error when listing tables: %v", err)
		return err
	}

	// every table is processed, failures are collected and reported at the end
	var errs []error
	for _, table := range tables {
		if ctx.Err() != nil {
			return cancelled(ctx.Err(), "reaping table write locks")
		}
		n, err := rwlock.New(m.c, m.tablePath(table), nil).Reap(ctx, rwlock.ModeExclusive)
		if err != nil {
			log.Warningf("Caught error while reaping write locks of table %s: %v", table, err)
			errs = append(errs, fmt.Errorf("table %s: %w", table, err))
			continue
		}
		reapedNodes.Add(n)
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrPartialReap}, errs...)...)
	}
	return nil
}

func (m *managerImpl) ResourceDeleted(ctx context.Context, table string) error {
	if err := validateTable(table); err != nil {
		return err
	}

	path := m.tablePath(table)
	err := m.c.Delete(ctx, path)
	switch {
	case err == nil, errors.Is(err, coord.ErrNoNode):
		return nil
	case errors.Is(err, coord.ErrNotEmpty):
		// another task is already waiting for a lock on a table with the same name
		log.Warningf("Could not delete the node for table locks because NOTEMPTY: %s", path)
		return nil
	case ctx.Err() != nil:
		return cancelled(ctx.Err(), "deleting lock node of table %s", table)
	default:
		return ioFailure(err, "deleting lock node of table %s", table)
	}
}

func (m *managerImpl) VisitLocks(ctx context.Context, table string, fn func(LockInfo) error) error {
	if err := validateTable(table); err != nil {
		return err
	}

	rw := rwlock.New(m.c, m.tablePath(table), nil)
	attempts, err := rw.Attempts(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx.Err(), "listing locks of table %s", table)
		}
		return ioFailure(err, "listing locks of table %s", table)
	}

	for _, a := range attempts {
		info := LockInfo{Node: a.Name, Mode: a.Mode, Seq: a.Seq}
		data, err := m.c.GetData(ctx, coord.Join(rw.Path(), a.Name))
		switch {
		case errors.Is(err, coord.ErrNoNode):
			// released in the meantime
			continue
		case err != nil:
			return ioFailure(err, "reading lock %s of table %s", a.Name, table)
		}
		if md, ok := ParseMetadata(data); ok {
			info.Metadata = md
		}
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Lock Handle
// --------------------------------------------------------------------------

// grantedReleaseTimeout bounds the release of a lock that was granted after the caller gave up
const grantedReleaseTimeout = 5 * time.Second

type tableLockImpl struct {
	mgr     *managerImpl
	table   string
	purpose string
	mode    rwlock.Mode
	timeout time.Duration

	mu   sync.Mutex
	used bool
	lock *rwlock.Lock // set once the lock is held
}

func (l *tableLockImpl) Table() string   { return l.table }
func (l *tableLockImpl) Purpose() string { return l.purpose }
func (l *tableLockImpl) IsShared() bool  { return l.mode == rwlock.ModeShared }

func (l *tableLockImpl) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.used {
		return fmt.Errorf("%w: the %s lock handle for table %s was already used", ErrInvalidState, l.mode, l.table)
	}
	l.used = true

	if err := validateTable(l.table); err != nil {
		return err
	}

	log.Debugf("Attempt to acquire table %s lock on: %s for: %s", l.mode, l.table, l.purpose)

	md := Metadata{
		TableName:  []byte(l.table),
		LockOwner:  l.mgr.conf.ServerName,
		ThreadID:   TaskID(ctx),
		Purpose:    l.purpose,
		IsShared:   l.IsShared(),
		CreateTime: time.Now().UnixMilli(),
	}
	rw := rwlock.New(l.mgr.c, l.mgr.tablePath(l.table), logLockOwner)
	lock := rw.WriteLock(md.Marshal())
	if l.IsShared() {
		lock = rw.ReadLock(md.Marshal())
	}

	start := time.Now()
	ok, err := lock.TryAcquire(ctx, l.timeout)
	observeWait(l.mode, start)

	switch {
	case ok && ctx.Err() != nil:
		// granted just as ctx ended, the caller will not use the lock
		failureCounter(l.mode).Inc()
		log.Warningf("Interrupted acquiring a lock for %s, releasing the granted lock: %v", l.table, ctx.Err())
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grantedReleaseTimeout)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			log.Errorf("Could not release lock %s of table %s after cancellation: %v", lock.Node(), l.table, err)
		}
		return cancelled(ctx.Err(), "acquiring %s lock for table %s", l.mode, l.table)
	case ok:
	case ctx.Err() != nil:
		failureCounter(l.mode).Inc()
		log.Warningf("Interrupted acquiring a lock for %s: %v", l.table, ctx.Err())
		return cancelled(ctx.Err(), "acquiring %s lock for table %s", l.mode, l.table)
	case err != nil:
		failureCounter(l.mode).Inc()
		return ioFailure(err, "acquiring %s lock for table %s", l.mode, l.table)
	default:
		timeoutCounter(l.mode).Inc()
		return fmt.Errorf("%w: timed out acquiring %s lock for table %s for %s after %s",
			ErrLockTimeout, l.mode, l.table, l.purpose, l.timeout)
	}

	acquiredCounter(l.mode).Inc()
	l.lock = lock
	log.Debugf("Acquired table %s lock on: %s for: %s", l.mode, l.table, l.purpose)
	return nil
}

func (l *tableLockImpl) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	log.Debugf("Attempt to release table %s lock on: %s", l.mode, l.table)
	if l.lock == nil {
		return fmt.Errorf("%w: table %s is not locked", ErrInvalidState, l.table)
	}

	err := l.lock.Release(ctx)
	switch {
	case errors.Is(err, rwlock.ErrNotHeld):
		return fmt.Errorf("%w: table %s is not locked", ErrInvalidState, l.table)
	case err != nil && ctx.Err() != nil:
		log.Warningf("Interrupted while releasing a lock for %s", l.table)
		return cancelled(ctx.Err(), "releasing %s lock for table %s", l.mode, l.table)
	case err != nil:
		return ioFailure(err, "releasing %s lock for table %s", l.mode, l.table)
	}

	releasedCounter(l.mode).Inc()
	l.lock = nil
	log.Debugf("Released table lock on: %s", l.table)
	return nil
}
