// Package http implements the RPC transport over plain HTTP.
//
// Every request is a POST to /{shardId} with the serialized message as body, the
// response body is the serialized reply. The request context of the server is passed
// to the handler, so a watch held open for a client ends as soon as the client gives
// up. NewHandler exposes the routing as a http.Handler, e.g. for httptest.
//
// The client spreads requests round-robin over all endpoints and retries failed
// requests on the next endpoint (Transport.RetryCount). It has no client wide timeout;
// the per request context bounds every request, which lets watch requests wait longer
// than ordinary ones.
//
// Listen stops the server gracefully when its context is done. With debug logging
// enabled, every request is logged with its status and duration.
package http
