package lockmgr

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/gridlock/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockManagerExclusive(t *testing.T) {
	lm := NewLockManager(lstore.NewLocalStore(8), "orders")

	granted, err := lm.AcquireExclusive("order:1", ownerA)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = lm.AcquireExclusive("order:1", ownerB)
	require.NoError(t, err)
	assert.False(t, granted)

	locked, err := lm.IsLocked("order:1")
	require.NoError(t, err)
	assert.True(t, locked)

	owner, ok, err := lm.GetOwner("order:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ownerA, owner)

	pending, err := lm.PendingOwners("order:1")
	require.NoError(t, err)
	assert.Equal(t, []LockOwner{ownerB}, pending)

	released, err := lm.ReleaseExclusive("order:1", ownerB)
	require.NoError(t, err)
	assert.False(t, released, "pending owner can not release")

	released, err = lm.ReleaseExclusive("order:1", ownerA)
	require.NoError(t, err)
	assert.True(t, released)

	granted, err = lm.AcquireExclusive("order:1", ownerB)
	require.NoError(t, err)
	assert.True(t, granted)

	desc, err := lm.Describe("order:1")
	require.NoError(t, err)
	assert.Equal(t, "LOCKED(2:1)", desc)
}

func TestLockManagerReadWrite(t *testing.T) {
	lm := NewLockManager(lstore.NewLocalStore(8), "docs")

	okA, ticketA, err := lm.AcquireRead("doc", ownerA)
	require.NoError(t, err)
	require.True(t, okA)

	granted, err := lm.AcquireWrite("doc", ownerB, true)
	require.NoError(t, err)
	assert.False(t, granted)

	okC, _, err := lm.AcquireRead("doc", ownerC)
	require.NoError(t, err)
	assert.False(t, okC)

	_, err = lm.ReleaseWrite("doc", ownerB)
	assert.True(t, IsLockNotHeld(err))

	noMore, err := lm.ReleaseRead("doc", ownerA, ticketA)
	require.NoError(t, err)
	assert.True(t, noMore)

	granted, err = lm.AcquireWrite("doc", ownerB, true)
	require.NoError(t, err)
	assert.True(t, granted)

	owner, ok, err := lm.GetOwner("doc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ownerB, owner)

	_, err = lm.AcquireExclusive("doc", ownerC)
	assert.True(t, IsLockTypeMismatch(err))

	empty, err := lm.ReleaseWrite("doc", ownerB)
	require.NoError(t, err)
	assert.True(t, empty)

	locked, err := lm.IsLocked("doc")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLockManagerGroupsAreIndependent(t *testing.T) {
	s := lstore.NewLocalStore(4)
	a := NewLockManager(s, "a")
	b := NewLockManager(s, "b")

	granted, err := a.AcquireExclusive("x", ownerA)
	require.NoError(t, err)
	require.True(t, granted)

	granted, err = b.AcquireExclusive("x", ownerB)
	require.NoError(t, err)
	assert.True(t, granted)

	groups, err := s.Groups()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, groups)
}

// TestLockManagerConcurrentExclusive runs many goroutines against one resource and checks that the
// critical section is never entered twice at the same time.
func TestLockManagerConcurrentExclusive(t *testing.T) {
	lm := NewLockManager(lstore.NewLocalStore(4), "concurrent")

	var (
		inside   atomic.Int32
		maxSeen  atomic.Int32
		acquired atomic.Int32
		wg       sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(holder uint64) {
			defer wg.Done()
			owner := NewLockOwner(1, holder)
			for n := 0; n < 50; n++ {
				granted, err := lm.AcquireExclusive("hot", owner)
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				if !granted {
					_, _ = lm.CancelExclusive("hot", owner)
					continue
				}
				acquired.Add(1)
				if v := inside.Add(1); v > maxSeen.Load() {
					maxSeen.Store(v)
				}
				inside.Add(-1)
				if _, err := lm.ReleaseExclusive("hot", owner); err != nil {
					t.Errorf("release: %v", err)
					return
				}
			}
		}(uint64(i))
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Positive(t, acquired.Load())

	locked, err := lm.IsLocked("hot")
	require.NoError(t, err)
	assert.False(t, locked, fmt.Sprintf("state left behind after %d grants", acquired.Load()))
}
