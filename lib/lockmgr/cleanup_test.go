package lockmgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/gridlock/lib/store"
	"github.com/ValentinKolb/gridlock/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticView struct {
	mu      sync.Mutex
	members []uint64
}

func (v *staticView) Members() []uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]uint64(nil), v.members...)
}

func (v *staticView) set(members ...uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.members = members
}

// failingStore fails every sweep
type failingStore struct {
	store.IStore
}

func (failingStore) InvokeAll(context.Context, string, []uint64, store.EntryProcessor) (int, error) {
	return 0, store.NewError(store.RetCInternalError, "store unreachable")
}

func newCoordinator(t *testing.T, s store.IStore, view MemberView, debounce time.Duration) *CleanupCoordinator {
	t.Helper()
	c := NewCleanupCoordinator(s, view, CleanupConfig{Debounce: debounce})
	c.Start()
	t.Cleanup(c.Close)
	return c
}

func TestCleanupMemberLeft(t *testing.T) {
	s := lstore.NewLocalStore(4)
	view := &staticView{members: []uint64{7, 9}}
	c := newCoordinator(t, s, view, time.Hour)

	orders := NewLockManager(s, "orders")
	docs := NewLockManager(s, "docs")

	_, err := orders.AcquireExclusive("o1", NewLockOwner(7, 1))
	require.NoError(t, err)
	_, err = orders.AcquireExclusive("o2", NewLockOwner(9, 1))
	require.NoError(t, err)
	_, _, err = docs.AcquireRead("d1", NewLockOwner(7, 1))
	require.NoError(t, err)
	_, _, err = docs.AcquireRead("d1", NewLockOwner(9, 1))
	require.NoError(t, err)

	c.MemberLeft(7)

	require.Eventually(t, func() bool {
		return c.Stats().Sweeps == 1
	}, 2*time.Second, 5*time.Millisecond)

	locked, err := orders.IsLocked("o1")
	require.NoError(t, err)
	assert.False(t, locked)

	owner, _, err := orders.GetOwner("o2")
	require.NoError(t, err)
	assert.Equal(t, NewLockOwner(9, 1), owner)

	desc, err := docs.Describe("d1")
	require.NoError(t, err)
	assert.Equal(t, "READ(1)", desc)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.RemovedEntries)
	assert.Zero(t, stats.FailedSweeps)

	// duplicate delivery is harmless
	c.MemberLeft(7)
	require.Eventually(t, func() bool {
		return c.Stats().Sweeps == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), c.Stats().RemovedEntries)
}

func TestCleanupPartitionArrivedDebounce(t *testing.T) {
	s := lstore.NewLocalStore(4)
	view := &staticView{members: []uint64{1, 2, 3}}
	c := newCoordinator(t, s, view, 50*time.Millisecond)

	lm := NewLockManager(s, "g")
	var resources []string
	for _, key := range []string{"a", "b", "c", "d", "e", "f"} {
		_, err := lm.AcquireWrite(key, NewLockOwner(3, 1), false)
		require.NoError(t, err)
		resources = append(resources, key)
	}

	// member 3 vanished without a member-left event
	view.set(1, 2)

	for p := uint64(0); p < s.PartitionCount(); p++ {
		c.PartitionArrived(p, []string{"g"}, s.PartitionCount())
	}
	_, scheduled := c.Pending()
	assert.True(t, scheduled)

	require.Eventually(t, func() bool {
		return c.Stats().Sweeps == 1
	}, 2*time.Second, 5*time.Millisecond)

	// all arrivals ended up in one sweep
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), c.Stats().Sweeps)
	_, scheduled = c.Pending()
	assert.False(t, scheduled)

	for _, key := range resources {
		locked, err := lm.IsLocked(key)
		require.NoError(t, err)
		assert.False(t, locked, key)
	}
	assert.Equal(t, int64(len(resources)), c.Stats().RemovedEntries)
}

func TestCleanupPartitionArrivedUnknownGroupsSweepsAll(t *testing.T) {
	s := lstore.NewLocalStore(2)
	view := &staticView{members: []uint64{1}}
	c := newCoordinator(t, s, view, 10*time.Millisecond)

	lm := NewLockManager(s, "hidden")
	_, err := lm.AcquireExclusive("x", NewLockOwner(5, 5))
	require.NoError(t, err)

	c.PartitionArrived(s.PartitionOf("x"), nil, s.PartitionCount())

	require.Eventually(t, func() bool {
		locked, err := lm.IsLocked("x")
		return err == nil && !locked
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCleanupFailureIsCounted(t *testing.T) {
	s := failingStore{IStore: lstore.NewLocalStore(2)}
	_, err := s.Invoke("g", "x", &Op{Type: OpAcquire, Owner: ownerA})
	require.NoError(t, err)

	c := newCoordinator(t, s, &staticView{}, time.Hour)
	c.MemberLeft(1)

	require.Eventually(t, func() bool {
		return c.Stats().FailedSweeps == 1
	}, 2*time.Second, 5*time.Millisecond)

	// the next event sweeps again
	c.MemberLeft(1)
	require.Eventually(t, func() bool {
		return c.Stats().FailedSweeps == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCleanupClose(t *testing.T) {
	s := lstore.NewLocalStore(2)
	c := NewCleanupCoordinator(s, &staticView{}, CleanupConfig{Debounce: time.Hour})
	c.Start()

	c.PartitionArrived(0, []string{"g"}, 2)
	_, scheduled := c.Pending()
	require.True(t, scheduled)

	c.Close()
	_, scheduled = c.Pending()
	assert.False(t, scheduled)

	// events after Close are dropped
	c.MemberLeft(1)
	c.PartitionArrived(1, nil, 2)
	assert.Zero(t, c.Stats().Sweeps)

	c.Close()
}
