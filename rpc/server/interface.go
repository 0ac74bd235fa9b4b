package server

import (
	"context"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// It takes a Message and the coordinator of the shard as parameters.
	// It returns a Message as a response
	// If an error occurs, it should be set in the response
	// ctx is done when the client went away.
	Handle(ctx context.Context, req *common.Message, c coord.ICoordinator) (resp *common.Message)
}
