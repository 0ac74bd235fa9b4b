// Package watch implements one-shot change notifications keyed by path.
//
// A Hub is shared between the component that mutates a namespace (the local coordinator or
// the RAFT state machine) and the component that serves WatchChildren calls. The mutating side
// calls Notify with every path whose children changed after the change has been applied,
// the serving side registers interest with Watch before it reads the current state. That
// ordering guarantees that no change between "read" and "subscribe" is lost: at worst the
// watcher wakes up once too often and re-checks.
package watch

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// watcher is a single registration. The channel is closed exactly once.
type watcher struct {
	ch   chan struct{}
	once sync.Once
	stop func() bool
}

func (w *watcher) fire() {
	w.once.Do(func() { close(w.ch) })
}

// Hub keeps track of all registered watchers.
//
// Thread-safety: All methods are safe for concurrent use.
type Hub struct {
	watchers *xsync.MapOf[string, []*watcher]
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		watchers: xsync.NewMapOf[string, []*watcher](),
	}
}

// Watch registers a one-shot watcher for path. The returned channel is closed by the next
// Notify for path or when ctx is done, whichever happens first.
// The returned cancel function removes the registration early and closes the channel.
func (h *Hub) Watch(ctx context.Context, path string) (<-chan struct{}, func()) {
	w := &watcher{ch: make(chan struct{})}
	cancel := func() {
		w.fire()
		h.remove(path, w)
	}
	w.stop = context.AfterFunc(ctx, cancel)

	h.watchers.Compute(path, func(old []*watcher, _ bool) ([]*watcher, bool) {
		next := make([]*watcher, 0, len(old)+1)
		next = append(next, old...)
		return append(next, w), false
	})

	// ctx may have ended before the registration was visible
	if ctx.Err() != nil {
		h.remove(path, w)
	}

	return w.ch, cancel
}

// Notify fires and removes all watchers registered for the given paths.
func (h *Hub) Notify(paths ...string) {
	for _, path := range paths {
		ws, ok := h.watchers.LoadAndDelete(path)
		if !ok {
			continue
		}
		for _, w := range ws {
			w.stop()
			w.fire()
		}
	}
}

// NotifyAll fires and removes every registered watcher.
// It is used after the whole namespace was replaced (e.g. by a snapshot recovery).
func (h *Hub) NotifyAll() {
	var paths []string
	h.watchers.Range(func(path string, _ []*watcher) bool {
		paths = append(paths, path)
		return true
	})
	h.Notify(paths...)
}

// Len returns the number of registered watchers.
func (h *Hub) Len() int {
	n := 0
	h.watchers.Range(func(_ string, ws []*watcher) bool {
		n += len(ws)
		return true
	})
	return n
}

// remove deletes a single registration
func (h *Hub) remove(path string, w *watcher) {
	h.watchers.Compute(path, func(old []*watcher, loaded bool) ([]*watcher, bool) {
		if !loaded {
			return nil, true
		}
		next := make([]*watcher, 0, len(old))
		for _, o := range old {
			if o != w {
				next = append(next, o)
			}
		}
		return next, len(next) == 0
	})
}
