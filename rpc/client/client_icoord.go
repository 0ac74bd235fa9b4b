package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/ValentinKolb/dLock/rpc/serializer"
	"github.com/ValentinKolb/dLock/rpc/transport"
)

const (
	// defaultTimeout is used for single requests if the configuration has none
	defaultTimeout = 5 * time.Second
	// defaultWait is how long the server may hold a watch request if the configuration has no value
	defaultWait = 30 * time.Second

	// failed watch requests wake the caller only after a backoff, growing while failures persist
	watchBackoffMin = 50 * time.Millisecond
	watchBackoffMax = 2 * time.Second
)

// NewRPCCoordinator creates a new coordinator client for a shard of a remote dLock server
// The function takes a shard ID, a config, a transport and a serializer as parameters
// It returns a coord.ICoordinator and an error
func NewRPCCoordinator(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (coord.ICoordinator, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(config.TimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	wait := time.Duration(config.WaitSecond) * time.Second
	if wait <= 0 {
		wait = defaultWait
	}

	// Create a new RPC coordinator
	return &rpcCoordinator{
		rpcClientAdapter: rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
		timeout: timeout,
		wait:    wait,
	}, nil
}

type rpcCoordinator struct {
	rpcClientAdapter
	timeout time.Duration
	wait    time.Duration

	// watchFailures counts failed watch requests in a row, reset by the next successful one
	watchFailures atomic.Uint32
}

// watchBackoff returns the delay after the n-th failed watch request in a row
func watchBackoff(n uint32) time.Duration {
	d := watchBackoffMin
	for i := uint32(1); i < n && d < watchBackoffMax; i++ {
		d *= 2
	}
	return min(d, watchBackoffMax)
}

// invoke sends a single request, bounded by the request timeout
func (c *rpcCoordinator) invoke(ctx context.Context, req *common.Message) (*common.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return invokeRPCRequest(ctx, c.shardId, req, c.transport, c.serializer)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the coord package in interface.go)
// --------------------------------------------------------------------------

func (c *rpcCoordinator) CreateSequential(ctx context.Context, parent, prefix string, data []byte) (path string, err error) {
	resp, err := c.invoke(ctx, common.NewCreateSequentialRequest(parent, prefix, data))
	if err != nil {
		return "", err
	}
	return resp.Path, nil
}

func (c *rpcCoordinator) Delete(ctx context.Context, path string) (err error) {
	_, err = c.invoke(ctx, common.NewDeleteRequest(path))
	return err
}

func (c *rpcCoordinator) DeleteChildren(ctx context.Context, path, prefix string) (deleted int, err error) {
	resp, err := c.invoke(ctx, common.NewDeleteChildrenRequest(path, prefix))
	if err != nil {
		return 0, err
	}
	return int(resp.Count), nil
}

func (c *rpcCoordinator) Children(ctx context.Context, path string) (children []string, cversion uint64, err error) {
	resp, err := c.invoke(ctx, common.NewChildrenRequest(path))
	if err != nil {
		return nil, 0, err
	}
	return resp.Children, resp.Version, nil
}

func (c *rpcCoordinator) GetData(ctx context.Context, path string) (data []byte, err error) {
	resp, err := c.invoke(ctx, common.NewGetDataRequest(path))
	if err != nil {
		return nil, err
	}
	// serializers drop the difference between nil and empty data
	if resp.Data == nil {
		return []byte{}, nil
	}
	return resp.Data, nil
}

// WatchChildren long-polls the server until the children version of path changed.
// The server answers after at most the configured wait without a change, the request is then repeated.
// Failed requests close the channel as well, callers re-read the children anyway. To keep a
// server that rejects watches from turning the callers into a polling loop, the channel is
// closed only after a backoff that grows with every failed request in a row.
func (c *rpcCoordinator) WatchChildren(ctx context.Context, path string, cversion uint64) (changed <-chan struct{}, err error) {
	if err := coord.Validate(path); err != nil {
		return nil, err
	}

	ch := make(chan struct{})
	go func() {
		defer close(ch)
		req := common.NewWaitChildrenRequest(path, cversion, uint64(c.wait.Milliseconds()))
		for ctx.Err() == nil {
			reqCtx, cancel := context.WithTimeout(ctx, c.wait+c.timeout)
			resp, err := invokeRPCRequest(reqCtx, c.shardId, req, c.transport, c.serializer)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				n := c.watchFailures.Add(1)
				delay := watchBackoff(n)
				Logger.Debugf("watch on %s failed (%d in a row), waking the caller in %s: %v", path, n, delay, err)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
				}
				return
			}
			c.watchFailures.Store(0)
			if resp.Ok {
				return
			}
		}
	}()
	return ch, nil
}

func (c *rpcCoordinator) Close() (err error) {
	return c.transport.Close()
}
