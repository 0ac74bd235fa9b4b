package server

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/rpc/common"
)

// defaultMaxWait is used if the configuration does not limit how long a watch request is held open
const defaultMaxWait = 30 * time.Second

// NewCoordinatorServerAdapter creates the adapter translating RPC requests into coord.ICoordinator calls.
// WaitChildren requests are held open at most maxWait.
func NewCoordinatorServerAdapter(maxWait time.Duration) IRPCServerAdapter {
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	return &coordServerAdapter{maxWait: maxWait}
}

type coordServerAdapter struct {
	maxWait time.Duration
}

func (adapter *coordServerAdapter) Handle(ctx context.Context, req *common.Message, c coord.ICoordinator) (resp *common.Message) {

	// Check for nil coordinator
	if c == nil {
		return common.NewErrorResponse("handler: coordinator is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTCreateSequential:
		path, err := c.CreateSequential(ctx, req.Path, req.Prefix, req.Data)
		return common.NewCreateSequentialResponse(path, err)
	case common.MsgTDelete:
		return common.NewDeleteResponse(c.Delete(ctx, req.Path))
	case common.MsgTDeleteChildren:
		n, err := c.DeleteChildren(ctx, req.Path, req.Prefix)
		return common.NewDeleteChildrenResponse(n, err)
	case common.MsgTChildren:
		children, cversion, err := c.Children(ctx, req.Path)
		return common.NewChildrenResponse(children, cversion, err)
	case common.MsgTGetData:
		data, err := c.GetData(ctx, req.Path)
		return common.NewGetDataResponse(data, err)
	case common.MsgTWaitChildren:
		return adapter.waitChildren(ctx, req, c)
	default:
		return common.NewErrorResponse(fmt.Sprintf("RPC CoordinatorAdapter - Unsupported message type: %s", req.MsgType))
	}
}

// waitChildren blocks until the children version of req.Path differs from req.Version or the
// wait time is over. The response is Ok if a change was observed. A change that coincides
// with the end of the wait may be reported as no change, the client simply asks again.
func (adapter *coordServerAdapter) waitChildren(ctx context.Context, req *common.Message, c coord.ICoordinator) *common.Message {
	wait := time.Duration(req.WaitMs) * time.Millisecond
	if wait <= 0 || wait > adapter.maxWait {
		wait = adapter.maxWait
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	changed, err := c.WatchChildren(waitCtx, req.Path, req.Version)
	if err != nil {
		return common.NewWaitChildrenResponse(false, err)
	}
	<-changed
	return common.NewWaitChildrenResponse(waitCtx.Err() == nil, nil)
}
