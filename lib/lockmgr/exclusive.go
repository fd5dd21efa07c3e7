package lockmgr

import (
	"fmt"
	"sort"
)

// ExclusiveLockState is the per-resource state of a simple mutual exclusion lock.
//
// The state is not safe for concurrent use. It relies on the store to serialize all
// operations on one resource key.
//
// Waiters are kept in an unordered set: there is no FIFO guarantee between pending owners.
type ExclusiveLockState struct {
	owner    LockOwner
	hasOwner bool
	pending  map[LockOwner]struct{}
}

// NewExclusiveLockState creates an unlocked state.
func NewExclusiveLockState() *ExclusiveLockState {
	return &ExclusiveLockState{pending: make(map[LockOwner]struct{})}
}

// TryAcquire grants the lock if it is free or already held by owner.
// If another owner holds the lock, owner is registered as pending and false is returned.
func (s *ExclusiveLockState) TryAcquire(owner LockOwner) bool {
	if s.hasOwner {
		if s.owner == owner {
			return true
		}
		s.pending[owner] = struct{}{}
		return false
	}

	delete(s.pending, owner)
	s.owner = owner
	s.hasOwner = true
	return true
}

// Release clears the lock if owner holds it.
// Releasing a lock that is not held by owner has no effect and returns false.
func (s *ExclusiveLockState) Release(owner LockOwner) bool {
	if !s.hasOwner || s.owner != owner {
		return false
	}
	s.owner = LockOwner{}
	s.hasOwner = false
	return true
}

// Cancel removes owner from the pending set (the caller stopped waiting).
func (s *ExclusiveLockState) Cancel(owner LockOwner) bool {
	if _, ok := s.pending[owner]; !ok {
		return false
	}
	delete(s.pending, owner)
	return true
}

// CheckHolders removes the owner and every pending entry whose member matches pred.
// Returns true if anything was removed.
func (s *ExclusiveLockState) CheckHolders(pred MemberPredicate) bool {
	removed := false
	if s.hasOwner && pred(s.owner.MemberID) {
		s.owner = LockOwner{}
		s.hasOwner = false
		removed = true
	}
	for o := range s.pending {
		if pred(o.MemberID) {
			delete(s.pending, o)
			removed = true
		}
	}
	return removed
}

func (s *ExclusiveLockState) IsHeld() bool {
	return s.hasOwner
}

func (s *ExclusiveLockState) IsHeldBy(owner LockOwner) bool {
	return s.hasOwner && s.owner == owner
}

func (s *ExclusiveLockState) IsPending(owner LockOwner) bool {
	_, ok := s.pending[owner]
	return ok
}

// Owner returns the current holder, ok is false if the lock is free.
func (s *ExclusiveLockState) Owner() (owner LockOwner, ok bool) {
	return s.owner, s.hasOwner
}

// PendingOwners returns a copy of the pending set, sorted by member and holder id.
// The order carries no meaning for lock grants.
func (s *ExclusiveLockState) PendingOwners() []LockOwner {
	owners := make([]LockOwner, 0, len(s.pending))
	for o := range s.pending {
		owners = append(owners, o)
	}
	sortOwners(owners)
	return owners
}

// IsEmpty reports whether the state has neither an owner nor pending requesters.
func (s *ExclusiveLockState) IsEmpty() bool {
	return !s.hasOwner && len(s.pending) == 0
}

func (s *ExclusiveLockState) Describe() string {
	if !s.hasOwner {
		if len(s.pending) > 0 {
			return fmt.Sprintf("UNLOCKED | PENDING(%d)", len(s.pending))
		}
		return "UNLOCKED"
	}
	if len(s.pending) > 0 {
		return fmt.Sprintf("LOCKED(%s) | PENDING(%d)", s.owner, len(s.pending))
	}
	return fmt.Sprintf("LOCKED(%s)", s.owner)
}

func sortOwners(owners []LockOwner) {
	sort.Slice(owners, func(i, j int) bool {
		if owners[i].MemberID != owners[j].MemberID {
			return owners[i].MemberID < owners[j].MemberID
		}
		return owners[i].HolderID < owners[j].HolderID
	})
}
