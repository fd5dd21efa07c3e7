// Package lstore implements a local, in-memory, single-node lock state store based on the
// store.IStore interface. Data is stored entirely in memory and is not persisted between
// process restarts.
//
// Key Features:
//   - Pure in-memory storage without persistence
//   - One xsync.MapOf per (resource group, partition)
//   - Per-key serialized entry processors
//   - Owns every partition, so cleanup sweeps always cover the whole keyspace
//
// Implementation Details:
//
//   - Per-Key Serialization: Invoke runs the entry processor inside the Compute callback of
//     the partition map. Compute holds the bucket lock of the key while the callback runs,
//     so processors for the same key never overlap. Processors for different keys run in
//     parallel.
//
//   - Queries: Query applies the processor to a copy of the current value and discards
//     the changes. It does not take the bucket lock.
//
//   - Groups: groups are created on first write and never removed. Groups() only reports
//     groups that currently hold entries.
//
// Usage Example:
//
//	s := lstore.NewLocalStore(16)
//	mgr := lockmgr.NewLockManager(s, "orders")
//	granted, err := mgr.AcquireExclusive("order:42", lockmgr.NewLockOwner(1, 7))
//
// For distributed scenarios requiring consensus across multiple nodes, consider
// using the dstore package instead, which provides a RAFT-based implementation
// of the same interface with strong consistency guarantees.
package lstore
