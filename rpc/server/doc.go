// Package server implements the RPC server of gridlock.
// It decodes lock requests, runs them against the lock manager of a store and encodes the responses.
//
// Besides request handling the server owns everything a lock server node needs:
//   - the store: a local store (lstore) or a raft replicated store (dstore) with one shard per partition
//   - the membership: a Cluster fed by memberlist gossip, or only the local node without gossip
//   - the CleanupCoordinator that releases the locks of members that left the cluster
//
// Key Components:
//
//   - IRPCServerAdapter: Interface for adapters that turn a request Message into calls
//     against a store.IStore. NewLockManagerServerAdapter serves the lockmgr.ILockManager
//     operations for the resource group named in the request.
//
//   - NewRPCServer: Factory function creating a server with the given transport and serializer.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  StoreType:      common.StoreTypeLocal,
//	  PartitionCount: 16,
//	  TimeoutSecond:  5,
//	  NodeName:       "node-1",
//	  Transport:      common.TransportConfig{Endpoint: "0.0.0.0:8080"},
//	  LogLevel:       "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Members can be evicted explicitly with a MsgTMemberLeft request. The server then
// releases the locks of the member the same way it does when gossip reports the departure.
//
// Thread Safety:
//
//	The server handles concurrent requests across multiple connections.
//	Serve must be called only once.
package server
