// Package tcp implements the TCP socket transport of the gridlock RPC system.
// It provides concrete implementations of the base package's connector
// interfaces for TCP connections.
//
// This package builds on the base package's transport functionality, inheriting its
// connection pooling, buffer reuse and request correlation. See the base package
// documentation for the frame format and the threading model.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// Both sides apply the socket options of common.TransportConfig (no delay,
// keep-alive, linger and buffer sizes) to every connection.
// The default server buffer size is 512 KB.
package tcp
