package membership

import "github.com/ValentinKolb/gridlock/lib/util"

// memberIDSeed keeps member ids apart from partition hashes of equal strings
const memberIDSeed = 0x6d656d62

// Listener receives membership and partition ownership events.
// Implementations must not block, events are delivered on the caller's goroutine.
type Listener interface {
	// MemberLeft is called once a member is no longer part of the cluster.
	// It may be delivered more than once for the same member.
	MemberLeft(memberID uint64)
	// PartitionArrived is called when this process became the owner of partitionID.
	// groups lists the resource groups known at that time, nil means unknown.
	PartitionArrived(partitionID uint64, groups []string, partitionCount uint64)
}

// View is a read only view of the current cluster members.
type View interface {
	// Contains returns true if the member is part of the cluster
	Contains(memberID uint64) bool
	// Members returns the ids of all members in ascending order
	Members() []uint64
}

// MemberID turns a node name into the member id used in lock owners.
// Every process derives the same id for the same name. The id is never 0.
func MemberID(name string) uint64 {
	id := util.HashString(name, memberIDSeed)
	if id == 0 {
		return 1
	}
	return id
}
