package server

import (
	"context"
	"fmt"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/lib/coord/dcoord"
	"github.com/ValentinKolb/dLock/lib/coord/lcoord"
	"github.com/ValentinKolb/dLock/lib/coord/watch"
	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/ValentinKolb/dLock/rpc/serializer"
	"github.com/ValentinKolb/dLock/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the shard type, the coordinator it encapsulates and the adapter
// that handles requests for the coordinator
type serverShard struct {
	Type    common.ServerShardType
	Coord   coord.ICoordinator
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	// Create shards map
	shardMap := xsync.NewMapOf[uint64, serverShard]()

	// Create the RPC server
	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     shardMap,
	}
}

// RPCServer serves coordinator shards over a transport.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
	nodeHost   *dragonboat.NodeHost
}

// Handle decodes a request for a shard, runs it and returns the encoded response.
// It is registered as the transport handler.
func (s *RPCServer) Handle(ctx context.Context, shardId uint64, req []byte) []byte {
	var msg common.Message
	var respMsg common.Message

	// Get appropriate shard
	shard, ok := s.shards.Load(shardId)

	// Case shard does not exist -> error
	if !ok {
		respMsg = *common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = *common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		// Let the adapter handle the request
		respMsg = *shard.Adapter.Handle(ctx, &msg, shard.Coord)
	}

	// Return result
	val, err := s.serializer.Serialize(respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// Init creates all shards (and the Dragonboat NodeHost if there are remote shards).
// Serve calls it, it is exported for embedding the handler into other servers.
func (s *RPCServer) Init() error {

	// Init logger
	common.InitLoggers(s.config.LogLevel)

	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	// Create the Dragonboat NodeHost
	if s.config.HasRemoteShard() {
		// Only create the NodeHost if we have remote shards
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nodeHost
	}

	// Configure the timeout for the distributed coordinator
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second
	adapter := NewCoordinatorServerAdapter(time.Duration(s.config.MaxWaitSecond) * time.Second)

	// CREATE SHARDS

	/*
		Note: A single RPC Server can have any number of remote and or local shards.
		Every shard is an independent namespace. The following loop creates all
		the shards and stores them for the RPC server.
	*/

	for _, shardConfig := range s.config.Shards {
		switch shardConfig.Type {

		// Case local coordinator
		case common.ShardTypeLocalCoordinator:
			s.shards.Store(shardConfig.ShardID, serverShard{
				Type:    shardConfig.Type,
				Coord:   lcoord.NewLocalCoordinator(),
				Adapter: adapter,
			})
			Logger.Infof("created local coordinator for shard %d", shardConfig.ShardID)

		// Case remote coordinator
		case common.ShardTypeRemoteCoordinator:
			if s.nodeHost == nil {
				return fmt.Errorf("node host is nil, cannot create remote coordinator")
			}

			// watches of this shard are woken up by the local replica's state machine
			hub := watch.NewHub()

			// Start Raft for the shard
			if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dcoord.CreateStateMachineFactory(hub), s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				return fmt.Errorf("failed to start shard %v: %w", shardConfig.ShardID, err)
			}

			s.shards.Store(shardConfig.ShardID, serverShard{
				Type:    shardConfig.Type,
				Coord:   dcoord.NewDistributedCoordinator(s.nodeHost, shardConfig.ShardID, hub, timeout),
				Adapter: adapter,
			})
			Logger.Infof("created remote coordinator for shard %d", shardConfig.ShardID)

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}
	}

	Logger.Infof("dLock setup completed successfully")

	// Configure the transport layer
	s.transport.RegisterHandler(s.Handle)

	return nil
}

// Serve starts the RPC server
// This function will also initialize the server plus the shards and start the transport layer.
// It blocks until ctx is done, then the shards and the node host are closed.
func (s *RPCServer) Serve(ctx context.Context) error {
	if err := s.Init(); err != nil {
		return err
	}
	defer s.Close()
	return s.transport.Listen(ctx, s.config)
}

// Close closes all coordinators and stops the node host.
func (s *RPCServer) Close() {
	s.shards.Range(func(id uint64, shard serverShard) bool {
		if err := shard.Coord.Close(); err != nil {
			Logger.Warningf("failed to close shard %d: %v", id, err)
		}
		return true
	})
	if s.nodeHost != nil {
		s.nodeHost.Close()
		s.nodeHost = nil
	}
}

// Coordinator returns the coordinator serving a shard, e.g. to run a table lock manager in-process.
func (s *RPCServer) Coordinator(shardID uint64) (coord.ICoordinator, bool) {
	shard, ok := s.shards.Load(shardID)
	return shard.Coord, ok
}

// ShardInfo returns statistics about the local replica of a remote shard.
// The boolean is false for unknown and local shards.
func (s *RPCServer) ShardInfo(shardID uint64) (dcoord.ShardInfo, bool) {
	shard, ok := s.shards.Load(shardID)
	if !ok || shard.Type != common.ShardTypeRemoteCoordinator || s.nodeHost == nil {
		return dcoord.ShardInfo{}, false
	}
	info, err := dcoord.Info(s.nodeHost, shardID)
	if err != nil {
		Logger.Debugf("failed to read info of shard %d: %v", shardID, err)
		return dcoord.ShardInfo{}, false
	}
	return info, true
}
