package lockmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/gridlock/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = []WaitOption{
	WithMinRetryInterval(time.Millisecond),
	WithMaxRetryInterval(5 * time.Millisecond),
}

func TestLockExclusiveWaitsForRelease(t *testing.T) {
	lm := NewLockManager(lstore.NewLocalStore(4), "wait")
	granted, err := lm.AcquireExclusive("r", ownerA)
	require.NoError(t, err)
	require.True(t, granted)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = lm.ReleaseExclusive("r", ownerA)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, LockExclusive(ctx, lm, "r", ownerB, fastRetry...))

	owner, _, err := lm.GetOwner("r")
	require.NoError(t, err)
	assert.Equal(t, ownerB, owner)
}

func TestLockExclusiveTimeoutCancelsPending(t *testing.T) {
	lm := NewLockManager(lstore.NewLocalStore(4), "wait")
	_, err := lm.AcquireExclusive("r", ownerA)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = LockExclusive(ctx, lm, "r", ownerB, fastRetry...)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	pending, err := lm.PendingOwners("r")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestLockWriteTimeoutUnblocksReaders(t *testing.T) {
	lm := NewLockManager(lstore.NewLocalStore(4), "wait")
	_, _, err := lm.AcquireRead("r", ownerA)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = LockWrite(ctx, lm, "r", ownerB, fastRetry...)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	granted, _, err := lm.AcquireRead("r", ownerC)
	require.NoError(t, err)
	assert.True(t, granted, "queued writer was withdrawn")
}

func TestLockReadWaitsForWriter(t *testing.T) {
	lm := NewLockManager(lstore.NewLocalStore(4), "wait")
	granted, err := lm.AcquireWrite("r", ownerA, false)
	require.NoError(t, err)
	require.True(t, granted)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = lm.ReleaseWrite("r", ownerA)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ticket, err := LockRead(ctx, lm, "r", ownerB, fastRetry...)
	require.NoError(t, err)
	assert.NotZero(t, ticket)

	noMore, err := lm.ReleaseRead("r", ownerB, ticket)
	require.NoError(t, err)
	assert.True(t, noMore)
}

func TestLockWriteTimeoutReleasesLateGrant(t *testing.T) {
	lm := NewLockManager(lstore.NewLocalStore(4), "wait")
	granted, ticket, err := lm.AcquireRead("r", ownerA)
	require.NoError(t, err)
	require.True(t, granted)

	// the reader leaves while the writer sleeps between polls, which grants the queued writer
	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = lm.ReleaseRead("r", ownerA, ticket)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err = LockWrite(ctx, lm, "r", ownerB,
		WithMinRetryInterval(400*time.Millisecond),
		WithMaxRetryInterval(400*time.Millisecond))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	locked, err := lm.IsLocked("r")
	require.NoError(t, err)
	assert.False(t, locked)

	granted, _, err = lm.AcquireRead("r", ownerC)
	require.NoError(t, err)
	assert.True(t, granted)
}
