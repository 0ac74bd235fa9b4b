// Package unix provides the base transport over Unix domain sockets, for clients on
// the same machine as the dLock server (e.g. a master process next to its coordinator).
//
// The endpoint is the socket path. A stale socket file left by a crashed server is
// removed before listening. Socket options do not apply, only the read buffer size
// of the server (64 KB by default) can be configured.
package unix
