package lockmgr

import (
	"fmt"
	"sort"
	"strings"
)

// LockHolder is one registration in the ticket queue of a ReadWriteLockState.
type LockHolder struct {
	Owner   LockOwner
	Ticket  uint64
	IsWrite bool
}

func (h LockHolder) String() string {
	if h.IsWrite {
		return fmt.Sprintf("W#%d(%s)", h.Ticket, h.Owner)
	}
	return fmt.Sprintf("R#%d(%s)", h.Ticket, h.Owner)
}

// ReadWriteLockState is the per-resource state of a shared/exclusive lock.
//
// Every request that enters the queue draws a ticket from a monotonically increasing
// counter, holders are kept sorted by ticket. Reads are granted immediately unless a writer
// is registered (granted or waiting). A writer is granted once no reader is active and it
// sits at the head of the queue, so writers are granted in ticket order.
//
// Because a read is only ever granted while no writer is queued, all read holders precede
// all write holders in ticket order.
//
// The state is not safe for concurrent use. It relies on the store to serialize all
// operations on one resource key.
type ReadWriteLockState struct {
	ticketCounter uint64
	holders       []LockHolder
	readerCount   int
}

// NewReadWriteLockState creates an unlocked state.
func NewReadWriteLockState() *ReadWriteLockState {
	return &ReadWriteLockState{}
}

// TryReadLock grants a read lock unless a writer is registered.
// The returned ticket identifies the grant and can be handed to ReadUnlock.
func (s *ReadWriteLockState) TryReadLock(owner LockOwner) (granted bool, ticket uint64) {
	if s.HasWriters() {
		return false, 0
	}
	ticket = s.nextTicket()
	s.holders = append(s.holders, LockHolder{Owner: owner, Ticket: ticket})
	s.readerCount++
	return true, ticket
}

// ReadUnlock removes a read grant of owner.
// With a non-zero ticket the grant is looked up directly, with ticket 0 the first read
// grant of owner is used. Fails with ErrLockNotHeld if there is no such grant.
// noMoreReaders reports whether the last active reader left.
func (s *ReadWriteLockState) ReadUnlock(owner LockOwner, ticket uint64) (noMoreReaders bool, err error) {
	idx := -1
	if ticket != 0 {
		i := s.indexOf(ticket)
		if i >= 0 && !s.holders[i].IsWrite && s.holders[i].Owner == owner {
			idx = i
		}
	} else {
		for i, h := range s.holders {
			if !h.IsWrite && h.Owner == owner {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return false, ErrLockNotHeld
	}

	s.removeAt(idx)
	s.readerCount--
	return s.readerCount == 0, nil
}

// TryWriteLock grants the write lock if there are no active readers and either the queue is
// empty or owner is the writer at its head.
//
// A grant on an empty queue registers owner at the head. If the lock can not be granted
// and wait is true, owner is queued as a writer (once), which blocks all later read requests.
func (s *ReadWriteLockState) TryWriteLock(owner LockOwner, wait bool) bool {
	head := LockHolder{Owner: owner, IsWrite: true}
	if s.readerCount == 0 {
		if len(s.holders) == 0 {
			head.Ticket = s.nextTicket()
			s.holders = append(s.holders, head)
			return true
		}
		if s.holders[0].IsWrite && s.holders[0].Owner == owner {
			return true
		}
	}

	if wait && !s.hasWriteRegistration(owner) {
		head.Ticket = s.nextTicket()
		s.holders = append(s.holders, head)
	}
	return false
}

// WriteUnlock removes the writer at the head of the queue.
// Fails with ErrLockNotHeld if the head is not a write registration of owner.
// empty reports whether the queue is empty afterward.
func (s *ReadWriteLockState) WriteUnlock(owner LockOwner) (empty bool, err error) {
	if len(s.holders) == 0 || !s.holders[0].IsWrite || s.holders[0].Owner != owner || s.readerCount > 0 {
		return false, ErrLockNotHeld
	}
	s.removeAt(0)
	return len(s.holders) == 0, nil
}

// CancelWrite removes the write registrations of owner that were not granted yet.
func (s *ReadWriteLockState) CancelWrite(owner LockOwner) bool {
	granted, hasGranted := s.GrantedWriter()
	removed := false
	kept := s.holders[:0]
	for i, h := range s.holders {
		if h.IsWrite && h.Owner == owner && !(i == 0 && hasGranted && granted == owner) {
			removed = true
			continue
		}
		kept = append(kept, h)
	}
	s.holders = kept
	return removed
}

// OnMemberLeft removes every holder of the given member.
func (s *ReadWriteLockState) OnMemberLeft(memberID uint64) bool {
	return s.CheckHolders(MemberIs(memberID))
}

// CheckHolders removes every holder whose member matches pred and keeps the reader count
// in line with the remaining read holders. Returns true if anything was removed.
func (s *ReadWriteLockState) CheckHolders(pred MemberPredicate) bool {
	removed := false
	kept := s.holders[:0]
	for _, h := range s.holders {
		if pred(h.Owner.MemberID) {
			removed = true
			if !h.IsWrite {
				s.readerCount--
			}
			continue
		}
		kept = append(kept, h)
	}
	s.holders = kept
	return removed
}

// HasWriters reports whether a writer is registered, granted or waiting.
func (s *ReadWriteLockState) HasWriters() bool {
	// reads never follow a writer, so a writer is always at the tail
	n := len(s.holders)
	return n > 0 && s.holders[n-1].IsWrite
}

func (s *ReadWriteLockState) ReaderCount() int {
	return s.readerCount
}

// GrantedWriter returns the writer holding the lock, if any.
func (s *ReadWriteLockState) GrantedWriter() (LockOwner, bool) {
	if s.readerCount == 0 && len(s.holders) > 0 && s.holders[0].IsWrite {
		return s.holders[0].Owner, true
	}
	return LockOwner{}, false
}

// PendingWriters returns the queued writers that are not granted, in ticket order.
func (s *ReadWriteLockState) PendingWriters() []LockOwner {
	_, hasGranted := s.GrantedWriter()
	var owners []LockOwner
	for i, h := range s.holders {
		if !h.IsWrite || (i == 0 && hasGranted) {
			continue
		}
		owners = append(owners, h.Owner)
	}
	return owners
}

// Holders returns a copy of the queue in ticket order.
func (s *ReadWriteLockState) Holders() []LockHolder {
	return append([]LockHolder(nil), s.holders...)
}

// IsEmpty reports whether no holder is registered.
func (s *ReadWriteLockState) IsEmpty() bool {
	return len(s.holders) == 0 && s.readerCount == 0
}

// Describe returns READ(n) with the active reader count or WRITE(t) with the ticket of
// the granted writer, followed by the number of waiting writers.
func (s *ReadWriteLockState) Describe() string {
	var b strings.Builder
	switch {
	case s.readerCount > 0:
		fmt.Fprintf(&b, "READ(%d)", s.readerCount)
	case len(s.holders) > 0:
		fmt.Fprintf(&b, "WRITE(%d)", s.holders[0].Ticket)
	default:
		return "UNLOCKED"
	}
	if pending := len(s.PendingWriters()); pending > 0 {
		fmt.Fprintf(&b, " | PENDING_WRITE(%d)", pending)
	}
	return b.String()
}

func (s *ReadWriteLockState) nextTicket() uint64 {
	s.ticketCounter++
	return s.ticketCounter
}

func (s *ReadWriteLockState) hasWriteRegistration(owner LockOwner) bool {
	for _, h := range s.holders {
		if h.IsWrite && h.Owner == owner {
			return true
		}
	}
	return false
}

// indexOf finds a ticket with a binary search, holders are sorted by ticket
func (s *ReadWriteLockState) indexOf(ticket uint64) int {
	i := sort.Search(len(s.holders), func(i int) bool { return s.holders[i].Ticket >= ticket })
	if i < len(s.holders) && s.holders[i].Ticket == ticket {
		return i
	}
	return -1
}

func (s *ReadWriteLockState) removeAt(i int) {
	s.holders = append(s.holders[:i], s.holders[i+1:]...)
}
