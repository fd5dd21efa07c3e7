// Package dstore implements a distributed, fault-tolerant lock state store using
// the Dragonboat RAFT consensus library. Each partition of the keyspace is one raft shard,
// so the store.IStore per-key serialization comes from the raft log of the partition.
//
// Architecture:
//
//   - Store Client: Implements the store.IStore interface. It marshals entry processors
//     into commands, proposes them to the shard of the key's partition and turns state
//     machine results back into processor results or *store.Error values.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine per partition (statemachine.go).
//     It keeps one xsync map per resource group and applies decoded processors in Update.
//     The processor decoder is injected through CreateStateMachineFactory.
//
//   - Communication Protocol: Defined in the internal package (Command and Query).
//
// Partitions and Ownership:
//
//	Partition p lives in shard BaseShardID + p. The local process owns a partition while its
//	replica is the raft leader of that shard. Leadership changes are the partition transfers
//	of this store: the membership package turns them into PartitionArrived events.
//
// Write Operations:
//
//	1. The processor is marshalled into an Invoke (one key) or InvokeAll (whole group) Command
//	2. The Command is proposed to the partition's shard via SyncPropose
//	3. Once committed, every replica decodes the processor and applies it in Update
//	4. The processor result (or the error code) is returned in the sm.Result
//
//	InvokeAll proposes to all requested partitions concurrently (errgroup). Inside a shard the
//	keys are visited in sorted order so that replicas stay identical.
//
// Read Operations:
//
//   - Linearizable Reads: Query and Keys use SyncRead.
//   - Stale Reads: Groups uses StaleRead, group names only steer cleanup sweeps.
//
// Error Handling and Retries:
//
//	- System Busy: When Dragonboat returns ErrSystemBusy, the operation is retried
//	  after a short delay, up to 5 attempts.
//	- Error Codes: store.Error codes raised by processors (e.g. RetCLockNotHeld) travel
//	  through sm.Result.Value and are rebuilt on the proposing side.
//
// Snapshotting and Recovery:
//
//	PrepareSnapshot copies the group maps, SaveSnapshot writes the copy with encoding/gob
//	while updates continue. RecoverFromSnapshot replaces the whole state.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	cfg := dstore.Config{ReplicaID: 1, BaseShardID: 100, PartitionCount: 8, Timeout: 5 * time.Second}
//	for p := uint64(0); p < cfg.PartitionCount; p++ {
//	    err := nh.StartConcurrentReplica(members, false,
//	        dstore.CreateStateMachineFactory(lockmgr.DecodeProcessor),
//	        raftConfig(cfg.ShardID(p)))
//	    if err != nil { ... }
//	}
//
//	s := dstore.NewDistributedStore(nh, cfg)
//
// For scenarios where distributed consensus is not required, consider using the simpler
// and faster lstore package, which provides a single-node not-persistent implementation of the
// same interface.
package dstore
