// Package rpc provides the remote procedure calls of gridlock. It acts as the
// communication layer between lock clients and lock servers.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, HTTP, gRPC).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: RPC client implementing the lock manager interface,
//     allowing applications to use remote locks transparently.
//
//   - server: RPC server that handles incoming lock requests and runs the
//     membership and cleanup of the node.
package rpc
