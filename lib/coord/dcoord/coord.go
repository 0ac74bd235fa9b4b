package dcoord

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/lib/coord/dcoord/internal"
	"github.com/ValentinKolb/dLock/lib/coord/watch"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("coord")
)

// coordImpl is the concrete implementation of the coord.ICoordinator interface.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type coordImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	hub     *watch.Hub
	timeout time.Duration
}

// NewDistributedCoordinator creates a new coordinator which uses raft consensus to ensure
// strict linearizability across multiple nodes. The hub must be the one passed to
// CreateStateMachineFactory for the same shard on this node host.
func NewDistributedCoordinator(nh *dragonboat.NodeHost, shardID uint64, hub *watch.Hub, timeout time.Duration) coord.ICoordinator {
	return &coordImpl{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		hub:     hub,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and sends it via SyncPropose.
// It returns the result data on success, or a *coord.Error.
func (c *coordImpl) write(ctx context.Context, cmd internal.Command) ([]byte, error) {
	for i := 0; i < retries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		proposeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		res, err := c.nh.SyncPropose(proposeCtx, c.cs, cmd.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(c.timeout / 10)
			continue
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, coord.NewError(coord.RetCInternalError, err.Error())
		}
		if res.Value != uint64(coord.RetCSuccess) {
			return nil, coord.NewError(coord.RetCode(res.Value), string(res.Data))
		}
		return res.Data, nil
	}
	return nil, coord.NewError(coord.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// If the read operation fails due to a system busy error, the function retries up to 5 times.
func read[R any](ctx context.Context, c *coordImpl, q internal.Query) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		readCtx, cancel := context.WithTimeout(ctx, c.timeout)
		res, err := c.nh.SyncRead(readCtx, c.shardID, q)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(c.timeout / 10)
			continue
		}

		if err != nil {
			var ce *coord.Error
			if errors.As(err, &ce) {
				return zero, ce
			}
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			return zero, coord.NewError(coord.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, coord.Errorf(coord.RetCInternalError, "unexpected type: received %T, expected %T", res, zero)
		}
		return casted, nil
	}
	return zero, coord.NewError(coord.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see coord/interface.go)
// --------------------------------------------------------------------------

func (c *coordImpl) CreateSequential(ctx context.Context, parent, prefix string, data []byte) (string, error) {
	res, err := c.write(ctx, internal.Command{
		Type:   internal.CommandTCreateSequential,
		Path:   parent,
		Prefix: prefix,
		Data:   data,
	})
	if err != nil {
		return "", err
	}
	return string(res), nil
}

func (c *coordImpl) Delete(ctx context.Context, path string) error {
	_, err := c.write(ctx, internal.Command{
		Type: internal.CommandTDelete,
		Path: path,
	})
	return err
}

func (c *coordImpl) DeleteChildren(ctx context.Context, path, prefix string) (int, error) {
	res, err := c.write(ctx, internal.Command{
		Type:   internal.CommandTDeleteChildren,
		Path:   path,
		Prefix: prefix,
	})
	if err != nil {
		return 0, err
	}
	if len(res) != 8 {
		return 0, coord.Errorf(coord.RetCInternalError, "unexpected result length %d", len(res))
	}
	return int(binary.BigEndian.Uint64(res)), nil
}

func (c *coordImpl) Children(ctx context.Context, path string) ([]string, uint64, error) {
	res, err := read[internal.ChildrenResult](ctx, c, internal.Query{
		Type: internal.QueryTChildren,
		Path: path,
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Children, res.CVersion, nil
}

func (c *coordImpl) GetData(ctx context.Context, path string) ([]byte, error) {
	return read[[]byte](ctx, c, internal.Query{
		Type: internal.QueryTGet,
		Path: path,
	})
}

func (c *coordImpl) WatchChildren(ctx context.Context, path string, cversion uint64) (<-chan struct{}, error) {
	if err := coord.Validate(path); err != nil {
		return nil, err
	}

	// subscribe first, then compare, so an update applied in between is not lost
	ch, cancel := c.hub.Watch(ctx, path)
	res, err := read[internal.CVersionResult](ctx, c, internal.Query{
		Type: internal.QueryTCVersion,
		Path: path,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	if !res.Ok || res.CVersion != cversion {
		cancel()
	}
	return ch, nil
}

// Close does not stop the node host, it is owned by the caller.
func (c *coordImpl) Close() error {
	return nil
}

// ShardInfo describes the local replica of a shard.
type ShardInfo struct {
	Nodes     int    // number of nodes in the namespace, including the root
	Watchers  int    // number of pending watchers on this node host
	LastIndex uint64 // raft index of the last applied entry
}

// Info returns statistics about the local replica. Stale reads are used since
// the numbers are informational only.
func Info(nh *dragonboat.NodeHost, shardID uint64) (ShardInfo, error) {
	res, err := nh.StaleRead(shardID, internal.Query{Type: internal.QueryTInfo})
	if err != nil {
		return ShardInfo{}, err
	}
	info, ok := res.(internal.InfoResult)
	if !ok {
		return ShardInfo{}, coord.Errorf(coord.RetCInternalError, "unexpected type: received %T", res)
	}
	return ShardInfo{Nodes: info.Nodes, Watchers: info.Watchers, LastIndex: info.LastIndex}, nil
}
