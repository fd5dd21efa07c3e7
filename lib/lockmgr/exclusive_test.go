package lockmgr

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ownerA = NewLockOwner(1, 1)
	ownerB = NewLockOwner(2, 1)
	ownerC = NewLockOwner(3, 1)
	ownerD = NewLockOwner(4, 1)
)

func TestExclusiveAcquireRelease(t *testing.T) {
	s := NewExclusiveLockState()

	assert.True(t, s.TryAcquire(ownerA))
	assert.False(t, s.TryAcquire(ownerB))
	assert.True(t, s.IsPending(ownerB))
	assert.True(t, s.IsHeldBy(ownerA))

	assert.True(t, s.Release(ownerA))
	assert.False(t, s.IsHeld())

	// re-dispatched waiter
	assert.True(t, s.TryAcquire(ownerB))
	assert.False(t, s.IsPending(ownerB))
	assert.True(t, s.IsHeldBy(ownerB))
}

func TestExclusiveReentry(t *testing.T) {
	s := NewExclusiveLockState()

	assert.True(t, s.TryAcquire(ownerA))
	assert.True(t, s.TryAcquire(ownerA))
	assert.False(t, s.IsPending(ownerA))
	assert.Empty(t, s.PendingOwners())
}

func TestExclusiveReleaseByNonHolder(t *testing.T) {
	s := NewExclusiveLockState()
	assert.False(t, s.Release(ownerA), "release of an unheld lock")

	require.True(t, s.TryAcquire(ownerA))
	require.False(t, s.TryAcquire(ownerB))
	assert.False(t, s.Release(ownerB), "release by a pending owner")
	assert.True(t, s.IsHeldBy(ownerA))
	assert.True(t, s.IsPending(ownerB))
}

func TestExclusiveCancel(t *testing.T) {
	s := NewExclusiveLockState()
	require.True(t, s.TryAcquire(ownerA))
	require.False(t, s.TryAcquire(ownerB))

	assert.True(t, s.Cancel(ownerB))
	assert.False(t, s.Cancel(ownerB))
	assert.False(t, s.Cancel(ownerA), "holder is not pending")

	require.True(t, s.Release(ownerA))
	assert.True(t, s.IsEmpty())
}

func TestExclusiveCheckHolders(t *testing.T) {
	s := NewExclusiveLockState()
	require.True(t, s.TryAcquire(NewLockOwner(7, 1)))
	require.False(t, s.TryAcquire(NewLockOwner(7, 2)))
	require.False(t, s.TryAcquire(ownerB))

	assert.True(t, s.CheckHolders(MemberIs(7)))
	assert.False(t, s.IsHeld())
	assert.Equal(t, []LockOwner{ownerB}, s.PendingOwners())

	assert.False(t, s.CheckHolders(MemberIs(7)), "second sweep is a no-op")
}

func TestExclusiveDescribe(t *testing.T) {
	s := NewExclusiveLockState()
	assert.Equal(t, "UNLOCKED", s.Describe())

	s.TryAcquire(ownerA)
	assert.Equal(t, "LOCKED(1:1)", s.Describe())

	s.TryAcquire(ownerB)
	s.TryAcquire(ownerC)
	assert.Equal(t, "LOCKED(1:1) | PENDING(2)", s.Describe())
}

// TestExclusiveMutualExclusion runs random operation sequences and checks that there is at
// most one owner and that the owner is never pending.
func TestExclusiveMutualExclusion(t *testing.T) {
	owners := []LockOwner{ownerA, ownerB, ownerC, ownerD}
	rnd := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		s := NewExclusiveLockState()
		for step := 0; step < 200; step++ {
			o := owners[rnd.Intn(len(owners))]
			switch rnd.Intn(4) {
			case 0, 1:
				granted := s.TryAcquire(o)
				assert.Equal(t, granted, s.IsHeldBy(o))
			case 2:
				s.Release(o)
			case 3:
				s.Cancel(o)
			}

			if owner, ok := s.Owner(); ok {
				require.False(t, s.IsPending(owner), "owner %s is pending", owner)
			}
		}
	}
}
