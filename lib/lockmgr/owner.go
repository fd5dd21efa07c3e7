package lockmgr

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/gridlock/lib/store"
)

// ownerSize is the length of an encoded LockOwner
const ownerSize = 16

// LockOwner identifies a lock requester: the cluster member and a holder local to
// that member (e.g. a session or goroutine id). Two owners are equal iff both fields match.
type LockOwner struct {
	MemberID uint64
	HolderID uint64
}

// NewLockOwner creates a new LockOwner.
func NewLockOwner(memberID, holderID uint64) LockOwner {
	return LockOwner{MemberID: memberID, HolderID: holderID}
}

func (o LockOwner) String() string {
	return fmt.Sprintf("%d:%d", o.MemberID, o.HolderID)
}

// appendOwner appends the 16 byte big endian encoding of the owner to buf
func appendOwner(buf []byte, o LockOwner) []byte {
	buf = binary.BigEndian.AppendUint64(buf, o.MemberID)
	return binary.BigEndian.AppendUint64(buf, o.HolderID)
}

// readOwner decodes an owner from the start of data
func readOwner(data []byte) (LockOwner, error) {
	if len(data) < ownerSize {
		return LockOwner{}, store.NewError(store.RetCInvalidOperation, "owner data too short")
	}
	return LockOwner{
		MemberID: binary.BigEndian.Uint64(data[0:8]),
		HolderID: binary.BigEndian.Uint64(data[8:16]),
	}, nil
}

// MemberPredicate selects the members whose holders are removed by a cleanup sweep.
type MemberPredicate func(memberID uint64) bool

// MemberIs returns a predicate matching exactly one member.
func MemberIs(memberID uint64) MemberPredicate {
	return func(m uint64) bool { return m == memberID }
}

// MemberNotIn returns a predicate matching every member that is not part of the given set.
func MemberNotIn(members map[uint64]struct{}) MemberPredicate {
	return func(m uint64) bool {
		_, ok := members[m]
		return !ok
	}
}
