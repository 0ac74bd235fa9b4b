// Package rpc makes the coordination service of dLock available over the network.
// Clients use it to run table lock managers against a shared, possibly replicated,
// coordinator.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: the RPC implementation of coord.ICoordinator.
//
//   - server: the RPC server hosting local and Raft replicated coordinator shards.
package rpc
