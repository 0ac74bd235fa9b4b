// Package coord defines the coordination namespace used by the lock packages: a
// hierarchical tree of named nodes, comparable to the namespace of ZooKeeper or the key
// space of etcd, that is the single source of truth for distributed lock state.
//
// The package focuses on:
//   - A unified interface (ICoordinator) for the operations a lock recipe needs
//   - Path helpers shared by all implementations
//   - A typed error system (Error / RetCode) that works with errors.Is
//
// Key Components:
//
//   - ICoordinator Interface: Atomic create-sequential, delete, delete-children,
//     list-children and get-data operations plus a one-shot children watch.
//     A node's children version (cversion) changes with every child that is added or
//     removed, which lets a waiter subscribe to "anything changed since I looked"
//     without missing an update between reading and subscribing.
//
//   - Sequential Nodes: CreateSequential appends a zero padded, per-parent sequence number
//     to the requested prefix. Because all prefixes share one counter, ordering the children
//     by SequenceOf yields global creation order within the parent, which is what the
//     rwlock package uses for first-come-first-served queueing.
//
//   - Error System: Every failure is reported as a *Error carrying a RetCode. The exported
//     sentinels (ErrNoNode, ErrNotEmpty, ...) compare by code, so
//
//     if errors.Is(err, coord.ErrNotEmpty) { ... }
//
//     works regardless of the message and of any wrapping.
//
// Implementations:
//
//   - Local Coordinator (lcoord): single process, in memory. Used by tests and
//     single node deployments.
//   - Distributed Coordinator (dcoord): the namespace is a Dragonboat RAFT state
//     machine replicated across the cluster.
//   - etcd Coordinator (etcdcoord): maps the namespace onto an external etcd cluster.
//   - RPC Client (rpc/client): talks to a dlock server hosting one of the above.
//
// Sessions and Ephemeral Nodes:
//
//	The interface itself has no notion of session liveness. Implementations that support
//	it (etcdcoord with a lease) bind created nodes to the client session so they vanish when
//	the client dies. Everything else relies on an administrator force deleting abandoned
//	nodes, which is exactly what the reap operations of the lock packages do.
package coord
