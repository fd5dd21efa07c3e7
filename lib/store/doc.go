// Package store defines the partitioned key-value store that holds the lock state of every
// locked resource. The lock manager never talks to a storage engine directly, it only ships
// entry processors to an IStore.
//
// The package focuses on:
//   - A unified interface (IStore) for per-key serialized mutation of grouped, partitioned entries
//   - Entry processors: function objects that are applied to one entry at a time
//   - Unified error reporting through typed return codes
//
// Key Components:
//
//   - IStore Interface: Invoke and Query apply a processor to one entry, InvokeAll applies
//     a processor to all entries of a group inside a set of partitions (used by cleanup sweeps).
//     Keys, Groups and OwnedPartitions give the cleanup coordinator the enumeration it needs.
//
//   - EntryProcessor: mutates an Entry in place. Every processor can marshal itself, so a
//     replicated store can put it into its log and re-create it on every replica through an
//     injected ProcessorDecoder.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     and descriptive messages. Codes survive serialization (raft results, RPC messages),
//     so callers can still match errors like RetCLockNotHeld on the client side.
//
// Implementations:
//
//	- Local Store (lstore): keeps every partition in process, owns all partitions.
//	  Per-key serialization is provided by the atomic Compute operation of xsync maps.
//	  Available in the "github.com/ValentinKolb/gridlock/lib/store/lstore" package.
//
//	- Distributed Store (dstore): one Dragonboat RAFT shard per partition. The raft log
//	  serializes all mutations of a shard, the leader of a shard owns the partition.
//	  Available in the "github.com/ValentinKolb/gridlock/lib/store/dstore" package.
package store
