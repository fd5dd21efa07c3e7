package lockmgr

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriteScenario(t *testing.T) {
	s := NewReadWriteLockState()

	okA, ticketA := s.TryReadLock(ownerA)
	require.True(t, okA)
	okB, ticketB := s.TryReadLock(ownerB)
	require.True(t, okB)
	assert.Greater(t, ticketB, ticketA)

	assert.False(t, s.TryWriteLock(ownerC, true), "writer queued behind readers")
	okD, _ := s.TryReadLock(ownerD)
	assert.False(t, okD, "reader blocked by queued writer")
	assert.Equal(t, "READ(2) | PENDING_WRITE(1)", s.Describe())

	noMore, err := s.ReadUnlock(ownerA, ticketA)
	require.NoError(t, err)
	assert.False(t, noMore)
	noMore, err = s.ReadUnlock(ownerB, 0)
	require.NoError(t, err)
	assert.True(t, noMore)

	assert.True(t, s.TryWriteLock(ownerC, true), "queued writer granted on re-check")
	granted, ok := s.GrantedWriter()
	assert.True(t, ok)
	assert.Equal(t, ownerC, granted)

	empty, err := s.WriteUnlock(ownerC)
	require.NoError(t, err)
	assert.True(t, empty)
	assert.True(t, s.IsEmpty())
	assert.Equal(t, "UNLOCKED", s.Describe())
}

func TestReadUnlockNotHeld(t *testing.T) {
	s := NewReadWriteLockState()
	_, err := s.ReadUnlock(ownerA, 0)
	assert.ErrorIs(t, err, ErrLockNotHeld)
	assert.True(t, IsLockNotHeld(err))

	ok, ticket := s.TryReadLock(ownerA)
	require.True(t, ok)
	_, err = s.ReadUnlock(ownerB, ticket)
	assert.True(t, IsLockNotHeld(err), "ticket of another owner")
	_, err = s.ReadUnlock(ownerA, ticket+10)
	assert.True(t, IsLockNotHeld(err), "unknown ticket")
	assert.Equal(t, 1, s.ReaderCount())
}

func TestWriteUnlockNotHeld(t *testing.T) {
	s := NewReadWriteLockState()
	_, err := s.WriteUnlock(ownerA)
	assert.True(t, IsLockNotHeld(err))

	require.True(t, s.TryWriteLock(ownerA, false))
	_, err = s.WriteUnlock(ownerB)
	assert.True(t, IsLockNotHeld(err))

	ok, _ := s.TryReadLock(ownerB)
	assert.False(t, ok)
	_, err = s.ReadUnlock(ownerA, 0)
	assert.True(t, IsLockNotHeld(err), "writer can not read-unlock")
}

func TestWritersGrantedInTicketOrder(t *testing.T) {
	s := NewReadWriteLockState()
	okR, ticketR := s.TryReadLock(ownerD)
	require.True(t, okR)

	assert.False(t, s.TryWriteLock(ownerA, true))
	assert.False(t, s.TryWriteLock(ownerB, true))
	holders := s.Holders()
	require.Len(t, holders, 3)
	assert.Less(t, holders[1].Ticket, holders[2].Ticket)
	assert.Equal(t, ownerA, holders[1].Owner)

	_, err := s.ReadUnlock(ownerD, ticketR)
	require.NoError(t, err)

	assert.False(t, s.TryWriteLock(ownerB, true), "B must wait for A")
	assert.Len(t, s.Holders(), 2, "B is not queued twice")
	assert.Equal(t, []LockOwner{ownerB}, s.PendingWriters())

	assert.True(t, s.TryWriteLock(ownerA, true))
	_, err = s.WriteUnlock(ownerA)
	require.NoError(t, err)
	assert.True(t, s.TryWriteLock(ownerB, false))
}

func TestWriteWithoutWait(t *testing.T) {
	s := NewReadWriteLockState()
	ok, _ := s.TryReadLock(ownerA)
	require.True(t, ok)

	assert.False(t, s.TryWriteLock(ownerB, false))
	assert.False(t, s.HasWriters(), "no registration without wait")
	ok, _ = s.TryReadLock(ownerC)
	assert.True(t, ok)
}

func TestCancelWrite(t *testing.T) {
	s := NewReadWriteLockState()
	ok, _ := s.TryReadLock(ownerA)
	require.True(t, ok)
	require.False(t, s.TryWriteLock(ownerB, true))

	assert.True(t, s.CancelWrite(ownerB))
	assert.False(t, s.HasWriters())
	ok, _ = s.TryReadLock(ownerC)
	assert.True(t, ok, "reads flow again")

	s = NewReadWriteLockState()
	require.True(t, s.TryWriteLock(ownerA, false))
	assert.False(t, s.CancelWrite(ownerA), "granted writer must unlock")
}

func TestOnMemberLeft(t *testing.T) {
	s := NewReadWriteLockState()
	ok, _ := s.TryReadLock(NewLockOwner(7, 1))
	require.True(t, ok)
	ok, _ = s.TryReadLock(NewLockOwner(9, 1))
	require.True(t, ok)
	require.Equal(t, 2, s.ReaderCount())

	assert.True(t, s.OnMemberLeft(7))
	assert.Equal(t, 1, s.ReaderCount())
	holders := s.Holders()
	require.Len(t, holders, 1)
	assert.Equal(t, uint64(9), holders[0].Owner.MemberID)

	assert.False(t, s.OnMemberLeft(7))
}

func TestCheckHoldersRemovesQueuedWriter(t *testing.T) {
	s := NewReadWriteLockState()
	ok, _ := s.TryReadLock(ownerA)
	require.True(t, ok)
	require.False(t, s.TryWriteLock(NewLockOwner(7, 3), true))

	assert.True(t, s.CheckHolders(MemberNotIn(map[uint64]struct{}{1: {}})))
	assert.False(t, s.HasWriters())
	assert.Equal(t, "READ(1)", s.Describe())
}

// TestReadWriteInvariants drives random operations and checks the invariants after every step:
// the reader count matches the read holders, a granted writer excludes readers, reads never
// follow a writer and tickets strictly increase.
func TestReadWriteInvariants(t *testing.T) {
	owners := []LockOwner{ownerA, ownerB, ownerC, ownerD, NewLockOwner(7, 1), NewLockOwner(7, 2)}
	rnd := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		s := NewReadWriteLockState()
		var lastTicket uint64
		for step := 0; step < 300; step++ {
			o := owners[rnd.Intn(len(owners))]
			switch rnd.Intn(7) {
			case 0, 1:
				if ok, ticket := s.TryReadLock(o); ok {
					require.Greater(t, ticket, lastTicket)
					lastTicket = ticket
				}
			case 2:
				_, _ = s.ReadUnlock(o, 0)
			case 3:
				s.TryWriteLock(o, rnd.Intn(2) == 0)
			case 4:
				_, _ = s.WriteUnlock(o)
			case 5:
				s.CancelWrite(o)
			case 6:
				s.OnMemberLeft(7)
			}

			readers, seenWriter := 0, false
			var prev uint64
			for i, h := range s.Holders() {
				if i > 0 {
					require.Greater(t, h.Ticket, prev, "tickets out of order")
				}
				prev = h.Ticket
				if h.IsWrite {
					seenWriter = true
				} else {
					require.False(t, seenWriter, "read holder after a writer")
					readers++
				}
			}
			require.Equal(t, readers, s.ReaderCount())
			if _, ok := s.GrantedWriter(); ok {
				require.Zero(t, s.ReaderCount())
			}
			if last := s.Holders(); len(last) > 0 && last[len(last)-1].Ticket > lastTicket {
				lastTicket = last[len(last)-1].Ticket
			}
		}
	}
}

// TestWriterBias checks that once a writer is queued, no read is granted until it left the queue
func TestWriterBias(t *testing.T) {
	s := NewReadWriteLockState()
	ok, ticket := s.TryReadLock(ownerA)
	require.True(t, ok)
	require.False(t, s.TryWriteLock(ownerB, true))

	for i := 0; i < 10; i++ {
		ok, _ := s.TryReadLock(NewLockOwner(uint64(10+i), 1))
		require.False(t, ok)
	}

	_, err := s.ReadUnlock(ownerA, ticket)
	require.NoError(t, err)
	require.True(t, s.TryWriteLock(ownerB, true))
	ok, _ = s.TryReadLock(ownerC)
	require.False(t, ok, "granted writer blocks reads")

	_, err = s.WriteUnlock(ownerB)
	require.NoError(t, err)
	ok, _ = s.TryReadLock(ownerC)
	assert.True(t, ok)
}
