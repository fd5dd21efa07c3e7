package lockmgr

import (
	"encoding/binary"

	"github.com/ValentinKolb/gridlock/lib/store"
)

// Lock state values are stored with a leading type tag so that one resource key can not
// be used with both lock kinds at the same time.
//
// Exclusive layout:
//
//	[tag(1)][hasOwner(1)][owner(16)][n(4)][pending owner(16)]*n
//
// Read/write layout:
//
//	[tag(1)][ticketCounter(8)][readerCount(4)][n(4)]([owner(16)][ticket(8)][isWrite(1)])*n
const (
	tagExclusive byte = 1
	tagReadWrite byte = 2
)

const holderSize = ownerSize + 8 + 1

var errCorruptState = store.NewError(store.RetCInternalError, "corrupt lock state")

// stateTag returns the type tag of an encoded state, 0 if there is no state
func stateTag(data []byte) byte {
	if len(data) == 0 {
		return 0
	}
	return data[0]
}

func encodeExclusive(s *ExclusiveLockState) []byte {
	pending := s.PendingOwners()
	buf := make([]byte, 0, 1+1+ownerSize+4+len(pending)*ownerSize)

	buf = append(buf, tagExclusive)
	if s.hasOwner {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendOwner(buf, s.owner)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(pending)))
	for _, o := range pending {
		buf = appendOwner(buf, o)
	}
	return buf
}

func decodeExclusive(data []byte) (*ExclusiveLockState, error) {
	const header = 1 + 1 + ownerSize + 4
	if len(data) < header || data[0] != tagExclusive {
		return nil, errCorruptState
	}

	s := NewExclusiveLockState()
	s.hasOwner = data[1] == 1
	owner, err := readOwner(data[2:])
	if err != nil {
		return nil, err
	}
	s.owner = owner

	n := int(binary.BigEndian.Uint32(data[2+ownerSize:]))
	if len(data) != header+n*ownerSize {
		return nil, errCorruptState
	}
	offset := header
	for i := 0; i < n; i++ {
		o, err := readOwner(data[offset:])
		if err != nil {
			return nil, err
		}
		s.pending[o] = struct{}{}
		offset += ownerSize
	}
	return s, nil
}

func encodeReadWrite(s *ReadWriteLockState) []byte {
	buf := make([]byte, 0, 1+8+4+4+len(s.holders)*holderSize)

	buf = append(buf, tagReadWrite)
	buf = binary.BigEndian.AppendUint64(buf, s.ticketCounter)
	buf = binary.BigEndian.AppendUint32(buf, uint32(s.readerCount))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s.holders)))
	for _, h := range s.holders {
		buf = appendOwner(buf, h.Owner)
		buf = binary.BigEndian.AppendUint64(buf, h.Ticket)
		if h.IsWrite {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

func decodeReadWrite(data []byte) (*ReadWriteLockState, error) {
	const header = 1 + 8 + 4 + 4
	if len(data) < header || data[0] != tagReadWrite {
		return nil, errCorruptState
	}

	s := NewReadWriteLockState()
	s.ticketCounter = binary.BigEndian.Uint64(data[1:9])
	s.readerCount = int(binary.BigEndian.Uint32(data[9:13]))
	n := int(binary.BigEndian.Uint32(data[13:17]))
	if len(data) != header+n*holderSize {
		return nil, errCorruptState
	}

	s.holders = make([]LockHolder, 0, n)
	offset := header
	for i := 0; i < n; i++ {
		o, err := readOwner(data[offset:])
		if err != nil {
			return nil, err
		}
		s.holders = append(s.holders, LockHolder{
			Owner:   o,
			Ticket:  binary.BigEndian.Uint64(data[offset+ownerSize:]),
			IsWrite: data[offset+ownerSize+8] == 1,
		})
		offset += holderSize
	}
	return s, nil
}

// --------------------------------------------------------------------------
// Processor Results
// --------------------------------------------------------------------------

// Result is the outcome of a lock processor as returned by the store.
// Which fields are set depends on the operation.
type Result struct {
	Granted  bool        // lock granted, released or removed
	Flag     bool        // secondary boolean: noMoreReaders, empty, isLocked
	Ticket   uint64      // read ticket of a granted read lock
	HasOwner bool        // Owner is valid
	Owner    LockOwner   // current holder (introspection)
	Owners   []LockOwner // pending owners (introspection)
	Text     string      // describe output
}

// MarshalBinary encodes the result as
//
//	[flags(1)][ticket(8)][owner(16)][n(4)][owner(16)]*n[text]
func (r *Result) MarshalBinary() ([]byte, error) {
	var flags byte
	if r.Granted {
		flags |= 1
	}
	if r.Flag {
		flags |= 1 << 1
	}
	if r.HasOwner {
		flags |= 1 << 2
	}

	buf := make([]byte, 0, 1+8+ownerSize+4+len(r.Owners)*ownerSize+len(r.Text))
	buf = append(buf, flags)
	buf = binary.BigEndian.AppendUint64(buf, r.Ticket)
	buf = appendOwner(buf, r.Owner)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.Owners)))
	for _, o := range r.Owners {
		buf = appendOwner(buf, o)
	}
	return append(buf, r.Text...), nil
}

func (r *Result) UnmarshalBinary(data []byte) error {
	const header = 1 + 8 + ownerSize + 4
	if len(data) < header {
		return store.NewError(store.RetCInternalError, "result data too short")
	}
	flags := data[0]
	r.Granted = flags&1 != 0
	r.Flag = flags&(1<<1) != 0
	r.HasOwner = flags&(1<<2) != 0
	r.Ticket = binary.BigEndian.Uint64(data[1:9])
	owner, err := readOwner(data[9:])
	if err != nil {
		return err
	}
	r.Owner = owner

	n := int(binary.BigEndian.Uint32(data[9+ownerSize:]))
	if len(data) < header+n*ownerSize {
		return store.NewError(store.RetCInternalError, "result data too short")
	}
	offset := header
	r.Owners = nil
	if n > 0 {
		r.Owners = make([]LockOwner, 0, n)
	}
	for i := 0; i < n; i++ {
		o, err := readOwner(data[offset:])
		if err != nil {
			return err
		}
		r.Owners = append(r.Owners, o)
		offset += ownerSize
	}
	r.Text = string(data[offset:])
	return nil
}
