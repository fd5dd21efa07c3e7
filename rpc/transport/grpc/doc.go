// Package grpc implements a gRPC based transport for the gridlock RPC system.
//
// No protobuf schema is involved. The service "gridlock.rpc.Transport" has a single
// unary method Send whose request and response are the bytes produced by the rpc
// serializer. A raw codec that passes these bytes through unchanged is forced on
// both sides, so any serializer (binary, json, gob) works over gRPC.
//
// The transport inherits what gRPC offers on top of a plain TCP socket: HTTP/2
// multiplexing of concurrent requests on one connection, keep-alive pings and
// message size limits (taken from common.TransportConfig).
package grpc
