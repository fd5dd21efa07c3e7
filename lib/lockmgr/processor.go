package lockmgr

import (
	"encoding/binary"

	"github.com/ValentinKolb/gridlock/lib/store"
)

// OpType is the lock operation carried by an Op
type OpType byte

const (
	OpAcquire     OpType = iota + 1 // exclusive tryAcquire
	OpRelease                       // exclusive release
	OpCancel                        // exclusive: leave the pending set
	OpReadLock                      // rw tryReadLock
	OpReadUnlock                    // rw readUnlock
	OpWriteLock                     // rw tryWriteLock
	OpWriteUnlock                   // rw writeUnlock
	OpCancelWrite                   // rw: drop a queued writer
	OpMemberLeft                    // cleanup: remove holders of MemberID
	OpValidate                      // cleanup: remove holders of members not in Members
	OpInspect                       // read only: isLocked, owner, pending, describe
)

func (t OpType) String() string {
	switch t {
	case OpAcquire:
		return "acquire"
	case OpRelease:
		return "release"
	case OpCancel:
		return "cancel"
	case OpReadLock:
		return "read-lock"
	case OpReadUnlock:
		return "read-unlock"
	case OpWriteLock:
		return "write-lock"
	case OpWriteUnlock:
		return "write-unlock"
	case OpCancelWrite:
		return "cancel-write"
	case OpMemberLeft:
		return "member-left"
	case OpValidate:
		return "validate"
	case OpInspect:
		return "inspect"
	default:
		return "unknown"
	}
}

// Op is the entry processor that applies one lock operation to the state stored for a resource.
// It is executed by the store under its per-key serialization, so the lock states need no
// locking of their own.
//
// Validate sweeps carry the member list captured when the sweep was scheduled. A replicated
// store therefore applies the same predicate on every replica.
type Op struct {
	Type     OpType
	Owner    LockOwner
	Wait     bool
	Ticket   uint64
	MemberID uint64
	Members  []uint64
}

var _ store.EntryProcessor = (*Op)(nil)

// Process implements store.EntryProcessor
func (op *Op) Process(entry *store.Entry) ([]byte, error) {
	var value []byte
	if entry.Exists {
		value = entry.Value
	}

	var (
		res Result
		err error
	)
	switch op.Type {
	case OpAcquire, OpRelease, OpCancel:
		res, value, err = op.processExclusive(value)
	case OpReadLock, OpReadUnlock, OpWriteLock, OpWriteUnlock, OpCancelWrite:
		res, value, err = op.processReadWrite(value)
	case OpMemberLeft, OpValidate:
		res, value, err = op.processCleanup(value)
	case OpInspect:
		res, err = inspect(value)
	default:
		err = store.NewError(store.RetCInvalidOperation, "unknown lock operation")
	}
	if err != nil {
		return nil, err
	}

	entry.Value = value
	entry.Exists = len(value) > 0
	return res.MarshalBinary()
}

func (op *Op) processExclusive(value []byte) (Result, []byte, error) {
	var s *ExclusiveLockState
	switch stateTag(value) {
	case 0:
		s = NewExclusiveLockState()
	case tagExclusive:
		var err error
		if s, err = decodeExclusive(value); err != nil {
			return Result{}, nil, err
		}
	default:
		return Result{}, nil, ErrLockTypeMismatch
	}

	var res Result
	switch op.Type {
	case OpAcquire:
		res.Granted = s.TryAcquire(op.Owner)
	case OpRelease:
		res.Granted = s.Release(op.Owner)
	case OpCancel:
		res.Granted = s.Cancel(op.Owner)
	}

	if s.IsEmpty() {
		return res, nil, nil
	}
	return res, encodeExclusive(s), nil
}

func (op *Op) processReadWrite(value []byte) (Result, []byte, error) {
	var s *ReadWriteLockState
	switch stateTag(value) {
	case 0:
		s = NewReadWriteLockState()
	case tagReadWrite:
		var err error
		if s, err = decodeReadWrite(value); err != nil {
			return Result{}, nil, err
		}
	default:
		return Result{}, nil, ErrLockTypeMismatch
	}

	var (
		res Result
		err error
	)
	switch op.Type {
	case OpReadLock:
		res.Granted, res.Ticket = s.TryReadLock(op.Owner)
	case OpReadUnlock:
		res.Flag, err = s.ReadUnlock(op.Owner, op.Ticket)
		res.Granted = err == nil
	case OpWriteLock:
		res.Granted = s.TryWriteLock(op.Owner, op.Wait)
	case OpWriteUnlock:
		res.Flag, err = s.WriteUnlock(op.Owner)
		res.Granted = err == nil
	case OpCancelWrite:
		res.Granted = s.CancelWrite(op.Owner)
	}
	if err != nil {
		return Result{}, nil, err
	}

	if s.IsEmpty() {
		return res, nil, nil
	}
	return res, encodeReadWrite(s), nil
}

func (op *Op) processCleanup(value []byte) (Result, []byte, error) {
	pred := MemberIs(op.MemberID)
	if op.Type == OpValidate {
		members := make(map[uint64]struct{}, len(op.Members))
		for _, m := range op.Members {
			members[m] = struct{}{}
		}
		pred = MemberNotIn(members)
	}

	var res Result
	switch stateTag(value) {
	case tagExclusive:
		s, err := decodeExclusive(value)
		if err != nil {
			return Result{}, nil, err
		}
		if res.Granted = s.CheckHolders(pred); !res.Granted {
			return res, value, nil
		}
		if s.IsEmpty() {
			return res, nil, nil
		}
		return res, encodeExclusive(s), nil
	case tagReadWrite:
		s, err := decodeReadWrite(value)
		if err != nil {
			return Result{}, nil, err
		}
		if res.Granted = s.CheckHolders(pred); !res.Granted {
			return res, value, nil
		}
		if s.IsEmpty() {
			return res, nil, nil
		}
		return res, encodeReadWrite(s), nil
	default:
		return res, value, nil
	}
}

// inspect fills the introspection fields from any kind of state
func inspect(value []byte) (Result, error) {
	var res Result
	switch stateTag(value) {
	case tagExclusive:
		s, err := decodeExclusive(value)
		if err != nil {
			return res, err
		}
		res.Flag = s.IsHeld()
		res.Owner, res.HasOwner = s.Owner()
		res.Owners = s.PendingOwners()
		res.Text = s.Describe()
	case tagReadWrite:
		s, err := decodeReadWrite(value)
		if err != nil {
			return res, err
		}
		res.Flag = !s.IsEmpty()
		res.Owner, res.HasOwner = s.GrantedWriter()
		res.Owners = s.PendingWriters()
		res.Ticket = uint64(s.ReaderCount())
		res.Text = s.Describe()
	default:
		res.Text = "UNLOCKED"
	}
	return res, nil
}

// --------------------------------------------------------------------------
// Binary Encoding
// --------------------------------------------------------------------------

// MarshalBinary encodes the op as
//
//	[type(1)][wait(1)][owner(16)][ticket(8)][memberID(8)][n(4)][member(8)]*n
func (op *Op) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 2+ownerSize+8+8+4+len(op.Members)*8)
	buf = append(buf, byte(op.Type))
	if op.Wait {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendOwner(buf, op.Owner)
	buf = binary.BigEndian.AppendUint64(buf, op.Ticket)
	buf = binary.BigEndian.AppendUint64(buf, op.MemberID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(op.Members)))
	for _, m := range op.Members {
		buf = binary.BigEndian.AppendUint64(buf, m)
	}
	return buf, nil
}

func (op *Op) UnmarshalBinary(data []byte) error {
	const header = 2 + ownerSize + 8 + 8 + 4
	if len(data) < header {
		return store.NewError(store.RetCInvalidOperation, "lock op data too short")
	}
	op.Type = OpType(data[0])
	op.Wait = data[1] == 1
	owner, err := readOwner(data[2:])
	if err != nil {
		return err
	}
	op.Owner = owner
	op.Ticket = binary.BigEndian.Uint64(data[2+ownerSize:])
	op.MemberID = binary.BigEndian.Uint64(data[10+ownerSize:])

	n := int(binary.BigEndian.Uint32(data[18+ownerSize:]))
	if len(data) != header+n*8 {
		return store.NewError(store.RetCInvalidOperation, "lock op data has invalid length")
	}
	op.Members = nil
	if n > 0 {
		op.Members = make([]uint64, n)
	}
	for i := 0; i < n; i++ {
		op.Members[i] = binary.BigEndian.Uint64(data[header+i*8:])
	}
	return nil
}

// DecodeProcessor restores an Op from its binary encoding.
// It is the store.ProcessorDecoder handed to replicated stores.
func DecodeProcessor(data []byte) (store.EntryProcessor, error) {
	op := &Op{}
	if err := op.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return op, nil
}
