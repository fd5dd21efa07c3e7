package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/gridlock/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Owner is a lock owner on the wire (see lockmgr.LockOwner).
type Owner struct {
	MemberID uint64 `json:"memberId"`
	HolderID uint64 `json:"holderId"`
}

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Group    string `json:"group,omitempty"`    // Resource group of the lock manager
	Key      string `json:"key,omitempty"`      // Resource name
	MemberID uint64 `json:"memberId,omitempty"` // Owner member (request), current owner (Owner response)
	HolderID uint64 `json:"holderId,omitempty"` // Owner holder (request), current owner (Owner response)
	Ticket   uint64 `json:"ticket,omitempty"`   // ReadLock (response), ReadUnlock (request)
	Wait     bool   `json:"wait,omitempty"`     // WriteLock: queue the writer if not granted

	// Response only fields
	Ok     bool    `json:"ok,omitempty"`     // granted, released, cancelled, noMoreReaders, empty, locked, has owner
	Owners []Owner `json:"owners,omitempty"` // Pending response
	Value  []byte  `json:"value,omitempty"`  // Describe response
	Code   uint64  `json:"code,omitempty"`   // store.RetCode of the error, 0 if no error
	Err    string  `json:"err,omitempty"`    // Empty if no error, otherwise contains the error message
}

// Error rebuilds the error carried by a response, nil if there is none.
// Errors keep their store.RetCode, so lockmgr.IsLockNotHeld works on the client side.
func (m *Message) Error() error {
	if m.Err == "" && m.Code == 0 {
		return nil
	}
	code := store.RetCode(m.Code)
	if code == store.RetCSuccess {
		code = store.RetCInternalError
	}
	return store.NewError(code, m.Err)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewLockRequest creates a request for one of the lock message types
func NewLockRequest(msgType MessageType, group, key string, memberID, holderID uint64) *Message {
	return &Message{
		MsgType:  msgType,
		Group:    group,
		Key:      key,
		MemberID: memberID,
		HolderID: holderID,
	}
}

// NewReadUnlockRequest creates a ReadUnlock request. A ticket of 0 releases any read grant of the owner.
func NewReadUnlockRequest(group, key string, memberID, holderID, ticket uint64) *Message {
	msg := NewLockRequest(MsgTRWReadUnlock, group, key, memberID, holderID)
	msg.Ticket = ticket
	return msg
}

// NewWriteLockRequest creates a WriteLock request
func NewWriteLockRequest(group, key string, memberID, holderID uint64, wait bool) *Message {
	msg := NewLockRequest(MsgTRWWriteLock, group, key, memberID, holderID)
	msg.Wait = wait
	return msg
}

// NewMemberLeftRequest creates a MemberLeft request
func NewMemberLeftRequest(memberID uint64) *Message {
	return &Message{
		MsgType:  MsgTMemberLeft,
		MemberID: memberID,
	}
}

// NewInspectRequest creates a request for one of the introspection message types
func NewInspectRequest(msgType MessageType, group, key string) *Message {
	return &Message{
		MsgType: msgType,
		Group:   group,
		Key:     key,
	}
}

// NewOkResponse creates a response that carries a boolean result
func NewOkResponse(msgType MessageType, ok bool, err error) *Message {
	msg := &Message{
		MsgType: msgType,
		Ok:      ok,
	}
	setError(msg, err)
	return msg
}

// NewReadLockResponse creates a ReadLock response
func NewReadLockResponse(ok bool, ticket uint64, err error) *Message {
	msg := NewOkResponse(MsgTRWReadLock, ok, err)
	msg.Ticket = ticket
	return msg
}

// NewOwnerResponse creates an Owner response
func NewOwnerResponse(memberID, holderID uint64, ok bool, err error) *Message {
	msg := NewOkResponse(MsgTLCKOwner, ok, err)
	msg.MemberID = memberID
	msg.HolderID = holderID
	return msg
}

// NewPendingResponse creates a Pending response
func NewPendingResponse(owners []Owner, err error) *Message {
	msg := &Message{
		MsgType: MsgTLCKPending,
		Owners:  owners,
	}
	setError(msg, err)
	return msg
}

// NewDescribeResponse creates a Describe response
func NewDescribeResponse(description string, err error) *Message {
	msg := &Message{
		MsgType: MsgTLCKDescribe,
		Value:   []byte(description),
	}
	setError(msg, err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    uint64(store.RetCInternalError),
		Err:     err,
	}
}

func setError(msg *Message, err error) {
	if err == nil {
		return
	}
	msg.Err = err.Error()
	msg.Code = uint64(store.RetCInternalError)

	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		msg.Code = uint64(storeErr.Code)
		msg.Err = storeErr.Msg
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:       "success",
	MsgTError:         "error",
	MsgTLCKAcquire:    "acquire",
	MsgTLCKRelease:    "release",
	MsgTLCKCancel:     "cancel",
	MsgTRWReadLock:    "readLock",
	MsgTRWReadUnlock:  "readUnlock",
	MsgTRWWriteLock:   "writeLock",
	MsgTRWWriteUnlock: "writeUnlock",
	MsgTRWCancelWrite: "cancelWrite",
	MsgTLCKIsLocked:   "isLocked",
	MsgTLCKOwner:      "owner",
	MsgTLCKPending:    "pending",
	MsgTLCKDescribe:   "describe",
	MsgTMemberLeft:    "memberLeft",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Exclusive lock operations

	MsgTLCKAcquire // Acquire an exclusive lock
	MsgTLCKRelease // Release an exclusive lock
	MsgTLCKCancel  // Leave the pending set

	// Read/write lock operations

	MsgTRWReadLock    // Acquire a read lock
	MsgTRWReadUnlock  // Release a read lock
	MsgTRWWriteLock   // Acquire (or queue for) the write lock
	MsgTRWWriteUnlock // Release the write lock
	MsgTRWCancelWrite // Drop a queued writer

	// Introspection

	MsgTLCKIsLocked // Is the resource locked
	MsgTLCKOwner    // Current owner
	MsgTLCKPending  // Waiting owners
	MsgTLCKDescribe // Human-readable state

	// Membership

	MsgTMemberLeft // Report that a member left, its locks are cleaned up
)
