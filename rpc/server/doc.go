// Package server implements the RPC server of dLock.
// It serves any number of coordinator shards over one of the transports and translates
// incoming messages into coord.ICoordinator calls.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a coordinator.
//
//   - NewCoordinatorServerAdapter: Factory function creating the adapter for the
//     coordinator operations. WaitChildren requests are answered as a long poll: the
//     adapter registers a watch and replies once the children changed or the wait is over.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeLocalCoordinator},
//	  },
//	  TimeoutSecond: 5,
//	  MaxWaitSecond: 30,
//	  Transport: common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  LogLevel: "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Two shard types can be mixed within a single server:
//
//   - ShardTypeLocalCoordinator: an in-memory coordinator, suitable for single-node
//     deployments or development environments.
//
//   - ShardTypeRemoteCoordinator: a coordinator replicated with Raft. When using this
//     type, the RAFT configuration (RTTMillisecond, SnapshotEntries, CompactionOverhead,
//     DataDir, ReplicaID, and ClusterMembers) must be properly configured.
//
// Thread Safety:
//
//	The server handles concurrent requests across multiple connections. Serve should be
//	called only once.
package server
