// Package http implements an HTTP-based transport layer for RPC communication
// in gridlock. It provides concrete implementations of the transport interfaces
// defined in the parent package.
//
// The server accepts serialized requests with POST /rpc and answers with the
// serialized response in the body. GET /metrics exposes the process metrics
// (lock requests, cleanup sweeps, go runtime) in the prometheus text format.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. It selects the server
//     endpoints round-robin and retries a failed request on the next endpoint.
//
//   - httpServerTransport: Implements IRPCServerTransport with a net/http server.
//     In debug mode every request is logged with its status and duration.
//
// Thread Safety:
//
//	The client transport is thread-safe and can be used concurrently. It uses
//	atomic operations for the round-robin counter.
package http
