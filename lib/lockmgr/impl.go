package lockmgr

import (
	"github.com/ValentinKolb/gridlock/lib/store"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("lockmgr")

type lockMgrImpl struct {
	store store.IStore
	group string
}

// NewLockManager creates a lock manager for the resources of group stored in s.
//
// The lock manager has no state of its own, all lock state lives in the store. It is
// therefore safe to create any number of lock managers on the same store.
func NewLockManager(s store.IStore, group string) ILockManager {
	return &lockMgrImpl{
		store: s,
		group: group,
	}
}

func (lm *lockMgrImpl) AcquireExclusive(resource string, owner LockOwner) (bool, error) {
	res, err := lm.invoke(resource, &Op{Type: OpAcquire, Owner: owner})
	return res.Granted, err
}

func (lm *lockMgrImpl) ReleaseExclusive(resource string, owner LockOwner) (bool, error) {
	res, err := lm.invoke(resource, &Op{Type: OpRelease, Owner: owner})
	return res.Granted, err
}

func (lm *lockMgrImpl) CancelExclusive(resource string, owner LockOwner) (bool, error) {
	res, err := lm.invoke(resource, &Op{Type: OpCancel, Owner: owner})
	return res.Granted, err
}

func (lm *lockMgrImpl) AcquireRead(resource string, owner LockOwner) (bool, uint64, error) {
	res, err := lm.invoke(resource, &Op{Type: OpReadLock, Owner: owner})
	return res.Granted, res.Ticket, err
}

func (lm *lockMgrImpl) ReleaseRead(resource string, owner LockOwner, ticket uint64) (bool, error) {
	res, err := lm.invoke(resource, &Op{Type: OpReadUnlock, Owner: owner, Ticket: ticket})
	return res.Flag, err
}

func (lm *lockMgrImpl) AcquireWrite(resource string, owner LockOwner, wait bool) (bool, error) {
	res, err := lm.invoke(resource, &Op{Type: OpWriteLock, Owner: owner, Wait: wait})
	return res.Granted, err
}

func (lm *lockMgrImpl) ReleaseWrite(resource string, owner LockOwner) (bool, error) {
	res, err := lm.invoke(resource, &Op{Type: OpWriteUnlock, Owner: owner})
	return res.Flag, err
}

func (lm *lockMgrImpl) CancelWrite(resource string, owner LockOwner) (bool, error) {
	res, err := lm.invoke(resource, &Op{Type: OpCancelWrite, Owner: owner})
	return res.Granted, err
}

func (lm *lockMgrImpl) IsLocked(resource string) (bool, error) {
	res, err := lm.inspect(resource)
	return res.Flag, err
}

func (lm *lockMgrImpl) GetOwner(resource string) (LockOwner, bool, error) {
	res, err := lm.inspect(resource)
	return res.Owner, res.HasOwner, err
}

func (lm *lockMgrImpl) PendingOwners(resource string) ([]LockOwner, error) {
	res, err := lm.inspect(resource)
	return res.Owners, err
}

func (lm *lockMgrImpl) Describe(resource string) (string, error) {
	res, err := lm.inspect(resource)
	return res.Text, err
}

// invoke ships a mutating op to the store and decodes the result
func (lm *lockMgrImpl) invoke(resource string, op *Op) (Result, error) {
	data, err := lm.store.Invoke(lm.group, resource, op)
	res, err := decodeResult(data, err)
	countRequest(op.Type, res, err)
	if err != nil && !IsLockNotHeld(err) && !IsLockTypeMismatch(err) {
		log.Warningf("%s on %s/%s by %s failed: %v", op.Type, lm.group, resource, op.Owner, err)
	}
	return res, err
}

// inspect runs the read-only introspection op
func (lm *lockMgrImpl) inspect(resource string) (Result, error) {
	data, err := lm.store.Query(lm.group, resource, &Op{Type: OpInspect})
	return decodeResult(data, err)
}

func decodeResult(data []byte, err error) (Result, error) {
	var res Result
	if err != nil {
		return res, err
	}
	if err := res.UnmarshalBinary(data); err != nil {
		return Result{}, errors.Wrap(err, "decode lock result")
	}
	return res, nil
}
