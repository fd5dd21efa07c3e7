package lockmgr

import (
	"testing"

	"github.com/ValentinKolb/gridlock/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apply runs op against value the way a store does
func apply(t *testing.T, op *Op, value []byte) ([]byte, Result, error) {
	t.Helper()
	newValue, keep, data, err := store.Apply(op, "res", value, len(value) > 0)
	if err != nil {
		return value, Result{}, err
	}
	var res Result
	require.NoError(t, res.UnmarshalBinary(data))
	if !keep {
		return nil, res, nil
	}
	return newValue, res, nil
}

func TestOpEncoding(t *testing.T) {
	tests := []struct {
		name string
		op   Op
	}{
		{"acquire", Op{Type: OpAcquire, Owner: ownerA}},
		{"write wait", Op{Type: OpWriteLock, Owner: ownerB, Wait: true}},
		{"read unlock with ticket", Op{Type: OpReadUnlock, Owner: ownerC, Ticket: 99}},
		{"member left", Op{Type: OpMemberLeft, MemberID: 7}},
		{"validate", Op{Type: OpValidate, Members: []uint64{1, 2, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.op.MarshalBinary()
			require.NoError(t, err)

			p, err := DecodeProcessor(data)
			require.NoError(t, err)
			assert.Equal(t, &tt.op, p)
		})
	}

	_, err := DecodeProcessor([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestResultEncoding(t *testing.T) {
	in := Result{
		Granted:  true,
		Flag:     true,
		Ticket:   12,
		HasOwner: true,
		Owner:    ownerA,
		Owners:   []LockOwner{ownerB, ownerC},
		Text:     "LOCKED(1:1) | PENDING(2)",
	}
	data, err := in.MarshalBinary()
	require.NoError(t, err)

	var out Result
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, in, out)
}

func TestProcessorExclusiveLifecycle(t *testing.T) {
	value, res, err := apply(t, &Op{Type: OpAcquire, Owner: ownerA}, nil)
	require.NoError(t, err)
	assert.True(t, res.Granted)
	require.NotEmpty(t, value)

	value, res, err = apply(t, &Op{Type: OpAcquire, Owner: ownerB}, value)
	require.NoError(t, err)
	assert.False(t, res.Granted)

	_, res, err = apply(t, &Op{Type: OpInspect}, value)
	require.NoError(t, err)
	assert.True(t, res.Flag)
	assert.Equal(t, ownerA, res.Owner)
	assert.Equal(t, []LockOwner{ownerB}, res.Owners)

	value, res, err = apply(t, &Op{Type: OpRelease, Owner: ownerA}, value)
	require.NoError(t, err)
	assert.True(t, res.Granted)
	value, _, err = apply(t, &Op{Type: OpCancel, Owner: ownerB}, value)
	require.NoError(t, err)
	assert.Nil(t, value, "empty state is evicted")
}

func TestProcessorReleaseDoesNotCreateState(t *testing.T) {
	value, res, err := apply(t, &Op{Type: OpRelease, Owner: ownerA}, nil)
	require.NoError(t, err)
	assert.False(t, res.Granted)
	assert.Nil(t, value)
}

func TestProcessorTypeMismatch(t *testing.T) {
	exclusive, _, err := apply(t, &Op{Type: OpAcquire, Owner: ownerA}, nil)
	require.NoError(t, err)
	_, _, err = apply(t, &Op{Type: OpReadLock, Owner: ownerB}, exclusive)
	assert.True(t, IsLockTypeMismatch(err))

	rw, _, err := apply(t, &Op{Type: OpReadLock, Owner: ownerA}, nil)
	require.NoError(t, err)
	_, _, err = apply(t, &Op{Type: OpAcquire, Owner: ownerB}, rw)
	assert.True(t, IsLockTypeMismatch(err))
}

func TestProcessorReadWriteRoundTrip(t *testing.T) {
	value, res, err := apply(t, &Op{Type: OpReadLock, Owner: ownerA}, nil)
	require.NoError(t, err)
	require.True(t, res.Granted)
	ticket := res.Ticket

	value, res, err = apply(t, &Op{Type: OpWriteLock, Owner: ownerB, Wait: true}, value)
	require.NoError(t, err)
	assert.False(t, res.Granted)

	_, res, err = apply(t, &Op{Type: OpInspect}, value)
	require.NoError(t, err)
	assert.Equal(t, "READ(1) | PENDING_WRITE(1)", res.Text)
	assert.False(t, res.HasOwner)
	assert.Equal(t, []LockOwner{ownerB}, res.Owners)

	value, res, err = apply(t, &Op{Type: OpReadUnlock, Owner: ownerA, Ticket: ticket}, value)
	require.NoError(t, err)
	assert.True(t, res.Flag, "no more readers")

	value, res, err = apply(t, &Op{Type: OpWriteLock, Owner: ownerB, Wait: true}, value)
	require.NoError(t, err)
	assert.True(t, res.Granted)

	value, res, err = apply(t, &Op{Type: OpWriteUnlock, Owner: ownerB}, value)
	require.NoError(t, err)
	assert.True(t, res.Flag)
	assert.Nil(t, value)
}

func TestProcessorUnlockErrorKeepsState(t *testing.T) {
	value, _, err := apply(t, &Op{Type: OpReadLock, Owner: ownerA}, nil)
	require.NoError(t, err)

	after, _, err := apply(t, &Op{Type: OpWriteUnlock, Owner: ownerA}, value)
	assert.True(t, IsLockNotHeld(err))
	assert.Equal(t, value, after)
}

func TestProcessorCleanup(t *testing.T) {
	value, _, err := apply(t, &Op{Type: OpReadLock, Owner: NewLockOwner(7, 1)}, nil)
	require.NoError(t, err)
	value, _, err = apply(t, &Op{Type: OpReadLock, Owner: NewLockOwner(9, 1)}, value)
	require.NoError(t, err)

	value, res, err := apply(t, &Op{Type: OpMemberLeft, MemberID: 7}, value)
	require.NoError(t, err)
	assert.True(t, res.Granted)
	s, err := decodeReadWrite(value)
	require.NoError(t, err)
	assert.Equal(t, 1, s.ReaderCount())

	// member 9 is not part of the view any more
	value, res, err = apply(t, &Op{Type: OpValidate, Members: []uint64{1, 2}}, value)
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.Nil(t, value)

	// sweeps never create state
	value, res, err = apply(t, &Op{Type: OpMemberLeft, MemberID: 7}, nil)
	require.NoError(t, err)
	assert.False(t, res.Granted)
	assert.Nil(t, value)
}

func TestStateCodecRejectsCorruptData(t *testing.T) {
	s := NewExclusiveLockState()
	s.TryAcquire(ownerA)
	s.TryAcquire(ownerB)
	data := encodeExclusive(s)

	decoded, err := decodeExclusive(data)
	require.NoError(t, err)
	assert.Equal(t, s.Describe(), decoded.Describe())

	_, err = decodeExclusive(data[:len(data)-1])
	assert.Error(t, err)
	_, err = decodeReadWrite(data)
	assert.Error(t, err)
}
