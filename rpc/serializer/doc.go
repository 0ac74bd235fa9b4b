// Package serializer converts common.Message values to bytes and back for the dLock RPC
// layer. Client and server must use the same serializer (the --serializer flag).
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format implementation optimized for speed
//     and space efficiency. Uses a flag-based approach to encode only present fields,
//     resulting in compact serialized data with minimal overhead.
//     Children lists are encoded as a count followed by length prefixed names.
//
//   - gobSerializerImpl: Implementation using Go's built-in gob encoding, offering
//     good compatibility with Go's type system but with larger serialized sizes.
//
//   - jsonSerializerImpl: Implementation using JSON encoding, useful for debugging
//     or interoperability with other systems, but with lower performance.
//
// Choosing a serializer:
//
//   - Binary is the default of the dlock CLI. Lock traffic consists of many tiny messages
//     (paths, node names, a few integers), where the flag header keeps them to a few bytes.
//
//   - JSON writes message types by name, use it to read captured traffic or to talk to
//     the server with curl.
//
//   - GOB repeats its type description in every message and is kept for comparison in
//     the benchmarks.
//
// All implementations overwrite the target message completely on Deserialize, so a
// message value can be reused for many responses.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	Serializers are typically created once and reused throughout the application:
//
//	  serializer := serializer.NewBinarySerializer()
//	  data, err := serializer.Serialize(message)
//	  // ... send data ...
//	  var receivedMsg common.Message
//	  err = serializer.Deserialize(receivedData, &receivedMsg)
package serializer
