// Package client implements the RPC client of gridlock.
// It provides an implementation of the lockmgr.ILockManager interface that forwards
// every operation to a remote server over the configured transport.
//
// Key Components:
//
//   - NewRPCLockMgr: Factory function that creates a client implementing the
//     lockmgr.ILockManager interface for the resources of one resource group.
//
//   - EvictMember: Asks the server to release all locks of a member, the same cleanup
//     the server runs when the gossip membership reports a departed member.
//
// Errors reported by the server keep their return code, so lockmgr.IsLockNotHeld and
// lockmgr.IsLockTypeMismatch work on the errors of the RPC client as well.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:              []string{"localhost:5000"},
//	  TimeoutSecond:          5,
//	  RetryCount:             3,
//	  ConnectionsPerEndpoint: 1,
//	}
//
//	locks, _ := client.NewRPCLockMgr("orders", config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	owner := lockmgr.NewLockOwner(membership.MemberID("worker-1"), 1)
//	if granted, _ := locks.AcquireExclusive("order:42", owner); granted {
//	  defer locks.ReleaseExclusive("order:42", owner)
//	}
//
// Performance Considerations:
//
//   - A single connection per endpoint is usually enough for lock traffic, the messages are small.
//
//   - The binary serializer provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
