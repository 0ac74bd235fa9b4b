// Package cmd implements the command-line interface of dLock.
// It provides a hierarchical command structure for running the coordination
// server and for working with table locks as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the dLock server
//   - lock: Commands for table locks (acquire, list, tables, reap, deleted, perf)
//   - node: Commands for inspecting the coordination namespace (ls, get, rm)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Client commands talk either to a dLock server (--coordinator=rpc) or directly
// to an etcd cluster (--coordinator=etcd).
//
// See dlock -help for a list of all commands.
package cmd
