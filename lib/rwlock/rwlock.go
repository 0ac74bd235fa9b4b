package rwlock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("rwlock")

// cleanupTimeout bounds the removal of an abandoned attempt node after the caller gave up
const cleanupTimeout = 10 * time.Second

var (
	// ErrNotHeld is returned by Release if the lock is not held by this handle
	ErrNotHeld = errors.New("lock is not held")
	// ErrAlreadyUsed is returned by Acquire if the handle was already used for an attempt
	ErrAlreadyUsed = errors.New("lock handle was already used")
	// ErrReaped is returned by Acquire if the attempt node vanished while waiting
	ErrReaped = errors.New("lock attempt was reaped")
)

// --------------------------------------------------------------------------
// Modes and Attempts
// --------------------------------------------------------------------------

// Mode is the acquisition mode of a lock attempt.
type Mode uint8

const (
	ModeExclusive Mode = iota // write lock, incompatible with everything
	ModeShared                // read lock, compatible with other shared attempts
)

func (m Mode) String() string {
	switch m {
	case ModeExclusive:
		return "write"
	case ModeShared:
		return "read"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Prefix returns the node name prefix used for attempts of this mode.
func (m Mode) Prefix() string {
	return m.String() + "-"
}

// Attempt is a single queued or granted lock node.
type Attempt struct {
	Name string // node name below the lock path
	Mode Mode
	Seq  uint64 // creation order
}

// ParseAttempt extracts mode and sequence from a node name.
// The boolean is false for names that are not lock attempts.
func ParseAttempt(name string) (Attempt, bool) {
	var mode Mode
	switch {
	case strings.HasPrefix(name, ModeExclusive.Prefix()):
		mode = ModeExclusive
	case strings.HasPrefix(name, ModeShared.Prefix()):
		mode = ModeShared
	default:
		return Attempt{}, false
	}
	seq, err := coord.SequenceOf(name)
	if err != nil {
		return Attempt{}, false
	}
	return Attempt{Name: name, Mode: mode, Seq: seq}, true
}

// ParseAttempts converts a children list into attempts ordered by creation.
// Unrelated children are ignored.
func ParseAttempts(children []string) []Attempt {
	attempts := make([]Attempt, 0, len(children))
	for _, name := range children {
		if a, ok := ParseAttempt(name); ok {
			attempts = append(attempts, a)
		}
	}
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].Seq < attempts[j].Seq })
	return attempts
}

// Eligible decides whether the attempt named own may hold the lock, given all attempts in creation order.
// An exclusive attempt must be the first one, a shared attempt only needs every earlier attempt to be shared.
// If own is not eligible, the returned attempt is the one it is waiting for.
// found is false if own is not part of attempts.
func Eligible(attempts []Attempt, own string) (eligible bool, blocker Attempt, found bool) {
	idx := -1
	for i, a := range attempts {
		if a.Name == own {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, Attempt{}, false
	}

	switch attempts[idx].Mode {
	case ModeExclusive:
		if idx == 0 {
			return true, Attempt{}, true
		}
		return false, attempts[0], true
	default:
		for _, a := range attempts[:idx] {
			if a.Mode == ModeExclusive {
				return false, a, true
			}
		}
		return true, Attempt{}, true
	}
}

// --------------------------------------------------------------------------
// Read Write Lock
// --------------------------------------------------------------------------

// MetadataHandler receives the data of the attempt node that blocks a waiter.
type MetadataHandler func(data []byte)

// ReadWriteLock is a distributed read/write lock rooted at one coordinator path.
// It is stateless, handles for single acquisitions are created with WriteLock and ReadLock.
type ReadWriteLock struct {
	c       coord.ICoordinator
	path    string
	handler MetadataHandler
}

// New creates a read/write lock on path. The handler is optional.
func New(c coord.ICoordinator, path string, handler MetadataHandler) *ReadWriteLock {
	return &ReadWriteLock{c: c, path: path, handler: handler}
}

// Path returns the lock path.
func (rw *ReadWriteLock) Path() string {
	return rw.path
}

// WriteLock returns a handle for one exclusive acquisition. The metadata is stored in the attempt node.
func (rw *ReadWriteLock) WriteLock(metadata []byte) *Lock {
	return &Lock{rw: rw, mode: ModeExclusive, metadata: metadata}
}

// ReadLock returns a handle for one shared acquisition. The metadata is stored in the attempt node.
func (rw *ReadWriteLock) ReadLock(metadata []byte) *Lock {
	return &Lock{rw: rw, mode: ModeShared, metadata: metadata}
}

// Attempts returns all current attempts in creation order.
// A lock path that does not exist has no attempts.
func (rw *ReadWriteLock) Attempts(ctx context.Context) ([]Attempt, error) {
	children, _, err := rw.c.Children(ctx, rw.path)
	if errors.Is(err, coord.ErrNoNode) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseAttempts(children), nil
}

// ReapAll force deletes every attempt node, granted or queued, regardless of ownership.
//
// This is unsafe if a former holder is still alive: it keeps believing it holds the lock.
// Only use it when all holders are known to be dead.
func (rw *ReadWriteLock) ReapAll(ctx context.Context) (int, error) {
	n := 0
	for _, mode := range []Mode{ModeExclusive, ModeShared} {
		reaped, err := rw.Reap(ctx, mode)
		n += reaped
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Reap force deletes every attempt node of the given mode. The same caveats as for ReapAll apply.
func (rw *ReadWriteLock) Reap(ctx context.Context, mode Mode) (int, error) {
	n, err := rw.c.DeleteChildren(ctx, rw.path, mode.Prefix())
	if errors.Is(err, coord.ErrNoNode) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Warningf("reaped %d %s lock node(s) below %s", n, mode, rw.path)
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Lock Handle
// --------------------------------------------------------------------------

type state uint8

const (
	stateIdle state = iota
	stateAcquiring
	stateHeld
	stateReleased
	stateFailed
)

// Lock is a handle for a single acquisition attempt. It can be acquired at most once.
//
// Thread-safety: All methods are safe for concurrent use, but a handle is meant to be
// used by one task.
type Lock struct {
	rw       *ReadWriteLock
	mode     Mode
	metadata []byte

	mu    sync.Mutex
	state state
	node  string
}

// Mode returns the acquisition mode of the handle.
func (l *Lock) Mode() Mode {
	return l.mode
}

// Node returns the path of the attempt node, or "" if there is none.
func (l *Lock) Node() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.node
}

// Acquire waits until the lock is granted or ctx is done.
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.TryAcquire(ctx, -1)
	if err != nil {
		return err
	}
	if !ok {
		// unreachable without a timeout, ctx errors are returned as err
		return context.DeadlineExceeded
	}
	return nil
}

// TryAcquire waits at most timeout for the lock. A negative timeout waits until ctx is done.
// It returns false (and no error) if the timeout expired. In that case, and on every error,
// the attempt node is removed again.
func (l *Lock) TryAcquire(ctx context.Context, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	if l.state != stateIdle {
		l.mu.Unlock()
		return false, ErrAlreadyUsed
	}
	l.state = stateAcquiring
	l.mu.Unlock()

	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout >= 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	ok, err := l.acquire(ctx, waitCtx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if ok {
		l.state = stateHeld
		return true, nil
	}

	// give up: remove the attempt node so nobody waits for it
	l.state = stateFailed
	l.cleanup(ctx)
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return false, err
}

// acquire creates the attempt node and waits until it is eligible. Remote calls use ctx,
// waiting for changes is additionally bounded by waitCtx. It returns false without an error
// if waitCtx expired.
func (l *Lock) acquire(ctx, waitCtx context.Context) (bool, error) {
	rw := l.rw
	node, err := rw.c.CreateSequential(ctx, rw.path, l.mode.Prefix(), l.metadata)
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	l.node = node
	l.mu.Unlock()

	_, own := coord.Split(node)
	lastBlocker := ""
	for {
		children, cversion, err := rw.c.Children(ctx, rw.path)
		if err != nil {
			return false, err
		}

		eligible, blocker, found := Eligible(ParseAttempts(children), own)
		if !found {
			return false, fmt.Errorf("%w: %s", ErrReaped, node)
		}
		if eligible {
			log.Debugf("acquired %s lock %s", l.mode, node)
			return true, nil
		}

		if blocker.Name != lastBlocker {
			lastBlocker = blocker.Name
			log.Debugf("%s waits for %s", node, blocker.Name)
			l.handleMetadata(ctx, coord.Join(rw.path, blocker.Name))
		}

		if waitCtx.Err() != nil {
			return false, nil
		}
		changed, err := rw.c.WatchChildren(waitCtx, rw.path, cversion)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return false, nil
			}
			return false, err
		}
		select {
		case <-changed:
		case <-waitCtx.Done():
			return false, nil
		}
	}
}

// handleMetadata passes the blocker's data to the metadata handler. Errors are ignored,
// the blocker may already be gone.
func (l *Lock) handleMetadata(ctx context.Context, blocker string) {
	if l.rw.handler == nil {
		return
	}
	data, err := l.rw.c.GetData(ctx, blocker)
	if err != nil {
		return
	}
	l.rw.handler(data)
}

// cleanup deletes the attempt node, if any. The caller must hold l.mu.
// A separate context is used because the caller's context may already be done.
func (l *Lock) cleanup(parent context.Context) {
	if l.node == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), cleanupTimeout)
	defer cancel()

	if err := l.rw.c.Delete(ctx, l.node); err != nil && !errors.Is(err, coord.ErrNoNode) {
		log.Errorf("failed to remove abandoned lock node %s: %v", l.node, err)
		return
	}
	l.node = ""
}

// Release deletes the attempt node of a held lock. An attempt node that was reaped in
// the meantime is logged and treated as released.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != stateHeld {
		return ErrNotHeld
	}

	err := l.rw.c.Delete(ctx, l.node)
	switch {
	case errors.Is(err, coord.ErrNoNode):
		log.Warningf("lock node %s was removed before release, nothing to release", l.node)
	case err != nil:
		return err
	}
	log.Debugf("released %s lock %s", l.mode, l.node)
	l.state = stateReleased
	l.node = ""
	return nil
}
