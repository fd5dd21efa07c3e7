package lockmgr

import (
	"github.com/ValentinKolb/gridlock/lib/store"
	"github.com/cockroachdb/errors"
)

var (
	// ErrLockNotHeld is returned when a read or write unlock is issued by an owner
	// that does not hold the corresponding lock slot.
	ErrLockNotHeld = store.NewError(store.RetCLockNotHeld, "lock not held by owner")

	// ErrLockTypeMismatch is returned when an exclusive operation hits a resource holding
	// read/write state or the other way round.
	ErrLockTypeMismatch = store.NewError(store.RetCLockTypeMismatch, "resource holds a different lock type")
)

// IsLockNotHeld reports whether err (or any error it wraps) carries the LockNotHeld code.
func IsLockNotHeld(err error) bool {
	return hasCode(err, store.RetCLockNotHeld)
}

// IsLockTypeMismatch reports whether err (or any error it wraps) carries the LockTypeMismatch code.
func IsLockTypeMismatch(err error) bool {
	return hasCode(err, store.RetCLockTypeMismatch)
}

func hasCode(err error, code store.RetCode) bool {
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		return storeErr.Code == code
	}
	return false
}
