package store

import (
	"context"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the interface of the partitioned key-value store that owns the lock state.
//
// Values live in named groups (resource collections, e.g. one group per named cache) and are
// assigned to partitions by key. The store guarantees that all mutations of a single key are
// serialized, which is the only synchronization the lock state machines rely on.
//
// All methods return a *Error (as error) on failure.
type IStore interface {
	// Invoke applies the processor to the entry (group, key) under the per-key serialization
	// of the store. The entry is created lazily: a processor sees Exists=false for unknown keys.
	// The result of the processor is returned to the caller.
	Invoke(group, key string, p EntryProcessor) (result []byte, err error)
	// Query applies the processor to a copy of the entry. Changes made by the processor are discarded.
	Query(group, key string, p EntryProcessor) (result []byte, err error)
	// InvokeAll applies the processor to every entry of the group located in one of the given partitions.
	// It returns the number of entries the processor changed or removed.
	// On error, the entries already processed keep their changes.
	InvokeAll(ctx context.Context, group string, partitions []uint64, p EntryProcessor) (affected int, err error)
	// Keys returns the keys of the group located in one of the given partitions.
	Keys(group string, partitions []uint64) (keys []string, err error)
	// Groups returns the names of all groups that currently hold at least one entry.
	Groups() (groups []string, err error)
	// PartitionCount returns the total number of partitions of the store.
	PartitionCount() uint64
	// PartitionOf returns the partition a key belongs to.
	PartitionOf(key string) uint64
	// OwnedPartitions returns the partitions currently owned by this process.
	OwnedPartitions() []uint64
	// Close releases all resources held by the store.
	Close() error
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is a *Error with the same code.
// This makes sentinel errors comparable after they crossed a process boundary.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the store.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCLockNotHeld                         // 4: Unlock by an owner that does not hold the lock.
	RetCLockTypeMismatch                    // 5: Exclusive operation on read/write state or vice versa.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCLockNotHeld:
		return "LockNotHeld"
	case RetCLockTypeMismatch:
		return "LockTypeMismatch"
	default:
		return "Unknown"
	}
}
