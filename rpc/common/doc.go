// Package common provides core data structures and utilities shared across
// the RPC layer of the coordination service. It defines the message protocol,
// the configuration structures and the logging setup used by the other rpc packages.
//
// The package focuses on:
//   - Message protocol definition for coordinator operations
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat
//   - Utilities for Dragonboat (RAFT) integration
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication between components,
//     with a flexible structure that adapts to the coordinator operation.
//     Coordinator errors travel with their return code (Code), so the client can
//     rebuild a *coord.Error and errors.Is(err, coord.ErrNoNode) keeps working.
//
//   - MessageType: Enumeration of all supported operations. WaitChildren is a long poll:
//     the server holds the request until the children version of a path changes or
//     the requested wait time has passed.
//
//   - ServerConfig: Configuration for server nodes, including RAFT parameters,
//     storage settings, transport settings and the coordinator shards to serve.
//     Provides utilities for converting to Dragonboat-specific configurations.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
