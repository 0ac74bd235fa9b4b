// Package base implements the connection handling shared by the stream transports
// (tcp, unix). The protocol specific parts, dialing, listening and socket options,
// are provided by an IClientConnector / IServerConnector.
//
// Frames:
//
//	| shardID (8) | requestID (8) | length (4) | payload (length) |
//
// All integers are big endian. Payloads above 64 MB are rejected with ErrFrameTooLarge.
// Header and payload are written with one net.Buffers write.
//
// Client:
//
// The client keeps ConnectionsPerEndpoint connections per endpoint and picks one
// round-robin for every request. Responses are matched to requests by requestID, so
// many requests share a connection. A request that is cancelled by its context is
// dropped from the pending map; a response arriving later is discarded. When a
// connection breaks, all requests pending on it fail and the connection is redialed.
// Send retries failed requests (RetryCount) with exponential backoff.
//
// Server:
//
// Every connection gets its own context and a worker limit (WorkersPerConn). Each
// request runs in a worker with a pooled read buffer. The connection context is
// cancelled when the client disconnects or the server stops, which ends all watches
// still held for that client. Workers waiting on a watch occupy their slot, so
// WorkersPerConn should exceed the number of concurrent watches per client.
//
// Connections have no read deadline because a client waiting for locks may stay
// silent for long. Writes use TimeoutSecond as deadline.
package base
