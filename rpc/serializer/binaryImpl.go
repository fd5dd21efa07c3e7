package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/gridlock/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: MsgType (1 byte) | flags (2 bytes) | present fields in flag order.
// Strings and byte slices are prefixed with a 4 byte length, owners with a 4 byte count.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasGroup    uint16 = 1 << 0
	hasKey      uint16 = 1 << 1
	hasMemberID uint16 = 1 << 2
	hasHolderID uint16 = 1 << 3
	hasTicket   uint16 = 1 << 4
	hasWait     uint16 = 1 << 5
	hasOk       uint16 = 1 << 6
	hasOwners   uint16 = 1 << 7
	hasValue    uint16 = 1 << 8
	hasCode     uint16 = 1 << 9
	hasErr      uint16 = 1 << 10
)

const (
	headerSize = 3
	ownerSize  = 16
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	result := make([]byte, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	var flags uint16 = 0
	pos := headerSize // Start after MsgType and flags

	putString := func(s string) {
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(s)))
		pos += 4
		copy(result[pos:pos+len(s)], s)
		pos += len(s)
	}
	putUint64 := func(v uint64) {
		binary.BigEndian.PutUint64(result[pos:pos+8], v)
		pos += 8
	}

	if msg.Group != "" {
		flags |= hasGroup
		putString(msg.Group)
	}
	if msg.Key != "" {
		flags |= hasKey
		putString(msg.Key)
	}
	if msg.MemberID != 0 {
		flags |= hasMemberID
		putUint64(msg.MemberID)
	}
	if msg.HolderID != 0 {
		flags |= hasHolderID
		putUint64(msg.HolderID)
	}
	if msg.Ticket != 0 {
		flags |= hasTicket
		putUint64(msg.Ticket)
	}

	// booleans are fully described by their flag
	if msg.Wait {
		flags |= hasWait
	}
	if msg.Ok {
		flags |= hasOk
	}

	// Handle Owners
	if msg.Owners != nil {
		flags |= hasOwners
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Owners)))
		pos += 4
		for _, o := range msg.Owners {
			putUint64(o.MemberID)
			putUint64(o.HolderID)
		}
	}

	// Handle Value
	if msg.Value != nil {
		flags |= hasValue
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Value)))
		pos += 4
		copy(result[pos:pos+len(msg.Value)], msg.Value)
		pos += len(msg.Value)
	}

	if msg.Code != 0 {
		flags |= hasCode
		putUint64(msg.Code)
	}
	if msg.Err != "" {
		flags |= hasErr
		putString(msg.Err)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type and flags
	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])

	r := binaryReader{data: data, pos: headerSize}

	msg.Group = ""
	if flags&hasGroup != 0 {
		msg.Group = r.string("group")
	}
	msg.Key = ""
	if flags&hasKey != 0 {
		msg.Key = r.string("key")
	}
	msg.MemberID = 0
	if flags&hasMemberID != 0 {
		msg.MemberID = r.uint64("member id")
	}
	msg.HolderID = 0
	if flags&hasHolderID != 0 {
		msg.HolderID = r.uint64("holder id")
	}
	msg.Ticket = 0
	if flags&hasTicket != 0 {
		msg.Ticket = r.uint64("ticket")
	}
	msg.Wait = flags&hasWait != 0
	msg.Ok = flags&hasOk != 0

	// Read Owners if present
	msg.Owners = nil
	if flags&hasOwners != 0 {
		count := r.uint32("owner count")
		if r.err == nil && uint64(count)*ownerSize > uint64(len(data)-r.pos) {
			return fmt.Errorf("data too short for %d owners", count)
		}
		msg.Owners = make([]common.Owner, count)
		for i := range msg.Owners {
			msg.Owners[i].MemberID = r.uint64("owner")
			msg.Owners[i].HolderID = r.uint64("owner")
		}
	}

	// Read Value if present, an empty value stays a non nil slice
	if flags&hasValue != 0 {
		value := r.bytes("value")
		if r.err == nil {
			if msg.Value == nil || cap(msg.Value) < len(value) {
				msg.Value = make([]byte, len(value))
			} else {
				msg.Value = msg.Value[:len(value)]
			}
			copy(msg.Value, value)
		}
	} else {
		msg.Value = nil
	}

	msg.Code = 0
	if flags&hasCode != 0 {
		msg.Code = r.uint64("code")
	}
	msg.Err = ""
	if flags&hasErr != 0 {
		msg.Err = r.string("error")
	}

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 2 bytes for flags
	size := headerSize

	if msg.Group != "" {
		size += 4 + len(msg.Group)
	}
	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.MemberID != 0 {
		size += 8
	}
	if msg.HolderID != 0 {
		size += 8
	}
	if msg.Ticket != 0 {
		size += 8
	}
	if msg.Owners != nil {
		size += 4 + ownerSize*len(msg.Owners)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Code != 0 {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}

	return size
}

// binaryReader reads fields in order and keeps the first error.
// All reads after an error return zero values.
type binaryReader struct {
	data []byte
	pos  int
	err  error
}

func (r *binaryReader) need(n int, field string) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.data) || r.pos+n < r.pos {
		r.err = fmt.Errorf("data too short for %s", field)
		return false
	}
	return true
}

func (r *binaryReader) uint32(field string) uint32 {
	if !r.need(4, field) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *binaryReader) uint64(field string) uint64 {
	if !r.need(8, field) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v
}

func (r *binaryReader) bytes(field string) []byte {
	n := int(r.uint32(field + " length"))
	if !r.need(n, field+" data") {
		return nil
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v
}

func (r *binaryReader) string(field string) string {
	return string(r.bytes(field))
}
