package lcoord

import (
	"context"
	"sync/atomic"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/lib/coord/tree"
	"github.com/ValentinKolb/dLock/lib/coord/watch"
)

type coordImpl struct {
	tree   *tree.Tree
	hub    *watch.Hub
	closed atomic.Bool
}

// NewLocalCoordinator creates a new local coordinator instance.
// This coordinator is not distributed and only works inside a single process.
// All lock clients sharing the returned instance see the same namespace.
func NewLocalCoordinator() coord.ICoordinator {
	return &coordImpl{
		tree: tree.New(),
		hub:  watch.NewHub(),
	}
}

// checkOpen returns an error if the coordinator was closed or ctx is done.
func (c *coordImpl) checkOpen(ctx context.Context) error {
	if c.closed.Load() {
		return coord.NewError(coord.RetCInternalError, "coordinator is closed")
	}
	return ctx.Err()
}

// --------------------------------------------------------------------------
// Interface Methods (docs see coord/interface.go)
// --------------------------------------------------------------------------

func (c *coordImpl) CreateSequential(ctx context.Context, parent, prefix string, data []byte) (string, error) {
	if err := c.checkOpen(ctx); err != nil {
		return "", err
	}
	path, changed, err := c.tree.CreateSequential(parent, prefix, data)
	c.hub.Notify(changed...)
	return path, err
}

func (c *coordImpl) Delete(ctx context.Context, path string) error {
	if err := c.checkOpen(ctx); err != nil {
		return err
	}
	changed, err := c.tree.Delete(path)
	c.hub.Notify(changed...)
	return err
}

func (c *coordImpl) DeleteChildren(ctx context.Context, path, prefix string) (int, error) {
	if err := c.checkOpen(ctx); err != nil {
		return 0, err
	}
	n, changed, err := c.tree.DeleteChildren(path, prefix)
	c.hub.Notify(changed...)
	return n, err
}

func (c *coordImpl) Children(ctx context.Context, path string) ([]string, uint64, error) {
	if err := c.checkOpen(ctx); err != nil {
		return nil, 0, err
	}
	return c.tree.Children(path)
}

func (c *coordImpl) GetData(ctx context.Context, path string) ([]byte, error) {
	if err := c.checkOpen(ctx); err != nil {
		return nil, err
	}
	return c.tree.Get(path)
}

func (c *coordImpl) WatchChildren(ctx context.Context, path string, cversion uint64) (<-chan struct{}, error) {
	if err := c.checkOpen(ctx); err != nil {
		return nil, err
	}
	if err := coord.Validate(path); err != nil {
		return nil, err
	}

	// subscribe first, then compare, so no change can slip through in between
	ch, cancel := c.hub.Watch(ctx, path)
	if current, ok := c.tree.CVersion(path); !ok || current != cversion {
		cancel()
	}
	return ch, nil
}

func (c *coordImpl) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.hub.NotifyAll()
	}
	return nil
}
