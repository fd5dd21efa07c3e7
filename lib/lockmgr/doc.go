// Package lockmgr implements exclusive and read/write locks for named resources on top of
// any store that implements the store.IStore interface. It provides the lock state
// machines, the caller facing lock manager and the cleanup of locks held by members
// that left the cluster.
//
// The lockmgr only ever stores in the provided IStore and has no other internal
// state. Therefore it is safe to be created multiple times on the same store,
// e.g. once per request. As long as the same store is used every time, all locks will
// work as expected.
//
// Core Functionality:
//   - Exclusive locks with a pending set of waiting owners
//   - Read/write locks with ticket ordered writers and writer bias
//   - Introspection (IsLocked, GetOwner, PendingOwners, Describe)
//   - Cleanup of holders whose member left the cluster
//
// Implementation Approach:
//
//	Every lock operation is an entry processor (Op) that the store applies to the value of
//	the resource key. The store runs at most one processor per key at a time, so the lock
//	state machines (ExclusiveLockState, ReadWriteLockState) contain no locking of their own.
//	The processor decodes the state, runs the operation and writes the state back, or
//	removes it once nobody holds or waits for the lock.
//
//	- Lock Owners: A LockOwner is the member id plus a holder id local to that member.
//
//	- Waiting: No operation blocks. A denied exclusive request is remembered in the pending
//	  set, a denied write request with wait=true is queued and blocks new readers. Callers
//	  retry (see LockExclusive, LockRead and LockWrite) and cancel when they give up.
//
//	- Errors: Releasing a read or write lock that is not held fails with ErrLockNotHeld.
//	  Using both lock kinds on one resource fails with ErrLockTypeMismatch. A lock that
//	  can not be granted is a normal result (false), not an error.
//
// Cleanup:
//
//	The CleanupCoordinator reacts to membership events. When a member leaves, the
//	partitions owned by this process are swept at once. Partition arrivals are batched
//	for a debounce window and then swept with a predicate that removes every member not
//	in the current view. Sweeps run on one background worker.
//
// Distributed Considerations:
//
//	With a distributed store implementation like dstore, the processors are replicated
//	through raft, so the lock state survives the loss of a minority of nodes and every
//	replica applies the same lock transitions.
//
// Usage Example:
//
//	s := lstore.NewLocalStore(16)
//	locks := lockmgr.NewLockManager(s, "orders")
//	owner := lockmgr.NewLockOwner(memberID, sessionID)
//
//	granted, err := locks.AcquireExclusive("order:123", owner)
//	if err != nil {
//	    // Handle error
//	}
//
//	if granted {
//	    // Use the resource safely
//	    // ...
//	    released, err := locks.ReleaseExclusive("order:123", owner)
//	}
package lockmgr
