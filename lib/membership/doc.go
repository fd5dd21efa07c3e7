// Package membership tracks which members are part of the cluster and which
// partitions this process owns, and turns changes into events for a Listener
// such as the lockmgr.CleanupCoordinator.
//
// Two sources feed the events:
//
//   - GossipNotifier runs hashicorp/memberlist. Nodes that leave or fail are removed
//     from the Cluster, which dispatches MemberLeft. Member ids are derived from
//     node names with MemberID, so every process agrees on them without coordination.
//
//   - LeaderWatcher is the raft event listener of the dragonboat NodeHost. A partition
//     is owned by the process whose replica leads the partition shard, so a new
//     leadership is reported as PartitionArrived.
//
// The Dispatcher fans events out to all subscribed listeners. Listeners must not
// block, they are called on the goroutine that observed the change.
package membership
