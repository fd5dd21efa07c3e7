package lockmgr

// ILockManager is the caller facing lock surface for the resources of one resource group.
//
// None of the methods block: a lock that can not be granted is reported with granted=false
// and the caller is registered as pending (exclusive) or queued (write with wait=true).
// Callers that want to wait poll or use the helpers in wait.go.
//
// Errors are *store.Error values. ErrLockNotHeld and ErrLockTypeMismatch can be tested with
// IsLockNotHeld and IsLockTypeMismatch.
type ILockManager interface {
	// AcquireExclusive tries to take the exclusive lock of resource.
	// If another owner holds it, owner is added to the pending set and false is returned.
	AcquireExclusive(resource string, owner LockOwner) (granted bool, err error)
	// ReleaseExclusive releases the exclusive lock. Returns false if owner did not hold it.
	ReleaseExclusive(resource string, owner LockOwner) (released bool, err error)
	// CancelExclusive removes owner from the pending set of resource.
	CancelExclusive(resource string, owner LockOwner) (cancelled bool, err error)

	// AcquireRead tries to take a read lock. The ticket identifies the grant for ReleaseRead.
	AcquireRead(resource string, owner LockOwner) (granted bool, ticket uint64, err error)
	// ReleaseRead releases a read lock. A ticket of 0 releases any read grant of owner.
	// Returns whether no reader is left. Fails with ErrLockNotHeld.
	ReleaseRead(resource string, owner LockOwner, ticket uint64) (noMoreReaders bool, err error)
	// AcquireWrite tries to take the write lock. With wait=true a denied owner is queued,
	// which blocks new readers until the writer was granted and released (or cancelled).
	AcquireWrite(resource string, owner LockOwner, wait bool) (granted bool, err error)
	// ReleaseWrite releases the write lock. Returns whether the queue is empty afterward.
	// Fails with ErrLockNotHeld.
	ReleaseWrite(resource string, owner LockOwner) (empty bool, err error)
	// CancelWrite removes a queued, not yet granted write registration of owner.
	CancelWrite(resource string, owner LockOwner) (cancelled bool, err error)

	// IsLocked reports whether an exclusive lock is held, or whether a read/write lock has
	// any reader or writer registered.
	IsLocked(resource string) (locked bool, err error)
	// GetOwner returns the exclusive holder or the granted writer of resource.
	GetOwner(resource string) (owner LockOwner, ok bool, err error)
	// PendingOwners returns the waiting owners: the pending set of an exclusive lock or the
	// queued writers of a read/write lock.
	PendingOwners(resource string) (owners []LockOwner, err error)
	// Describe returns a human-readable summary of the lock state.
	Describe(resource string) (description string, err error)
}
