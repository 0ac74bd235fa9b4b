// Package internal provides the communication protocol structures and serialization
// logic for the dcoord package. It defines the wire format used to transmit operations
// between the coordinator client and the replicated state machine.
//
// This package is intended for internal use by the dcoord implementation and should
// not be imported directly by external code.
//
// The package consists of two main components:
//
//   - Command System: Defines write operations (CreateSequential, Delete, DeleteChildren)
//     that modify the namespace. Commands are serialized, proposed to the RAFT cluster and
//     applied on every replica.
//
//   - Query System: Defines read operations (Children, Get, CVersion, Info). Queries are
//     executed locally on the state machine and therefore do not require serialization.
//
// Command Format:
//
//	- 1 byte: Command type
//	- 4 bytes: Path length (uint32, big endian)
//	- 4 bytes: Prefix length (uint32, big endian)
//	- N bytes: Path
//	- M bytes: Prefix
//	- K bytes: Node data (optional, only used by CreateSequential)
//
// Thread Safety:
//
//	The types in this package are not thread-safe and should not be shared
//	across goroutines without external synchronization.
package internal
