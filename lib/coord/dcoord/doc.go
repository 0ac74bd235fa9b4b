// Package dcoord implements a distributed, fault-tolerant coordination namespace using
// the Dragonboat RAFT consensus library. It provides a strongly consistent implementation
// of the coord.ICoordinator interface that operates across multiple nodes.
//
// Architecture:
//
//   - Coordinator Client: Implements coord.ICoordinator. Write operations are serialized
//     into commands and proposed to the RAFT cluster, reads are answered by the local
//     replica after a linearizable read index round trip.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine holding a tree.Tree. Every
//     replica applies the same commands in the same order, so sequence numbers and
//     children versions are identical on all nodes.
//
//   - Watch Hub: Children watches are node local. The state machine notifies a
//     watch.Hub after applying a batch and the coordinator client registers its
//     watchers in the same hub. A watch therefore fires as soon as the local replica
//     has applied the change, no matter which node proposed it.
//
// Write Operations:
//
//	1. The operation is serialized into a Command structure
//	2. The Command is proposed to the RAFT cluster via SyncPropose
//	3. Once committed, every replica applies it (Update in statemachine.go)
//	4. The result (RetCode plus created path or removed count) is returned to the client
//
// Error Handling and Retries:
//
//	- System Busy: When Dragonboat returns ErrSystemBusy, the operation is retried
//	  after a short delay, up to 5 attempts.
//
//	- Timeouts: Each proposal and read is bounded by the configured timeout and by the
//	  caller's context. A cancelled context is reported as the context error.
//
// Snapshotting and Recovery:
//
//	PrepareSnapshot serializes the tree while no update is in flight, SaveSnapshot then
//	writes the captured bytes. Recovery replaces the tree and wakes up all watchers, which
//	re-read the state they are interested in.
//
// Usage:
//
//	hub := watch.NewHub()
//	err := nh.StartConcurrentReplica(members, false, dcoord.CreateStateMachineFactory(hub), shardConfig)
//	if err != nil { ... }
//
//	c := dcoord.NewDistributedCoordinator(nh, shardID, hub, 5*time.Second)
package dcoord
