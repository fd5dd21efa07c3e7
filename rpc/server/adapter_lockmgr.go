package server

import (
	"fmt"

	"github.com/ValentinKolb/gridlock/lib/lockmgr"
	"github.com/ValentinKolb/gridlock/lib/store"
	"github.com/ValentinKolb/gridlock/rpc/common"
)

func NewLockManagerServerAdapter() IRPCServerAdapter {
	return &lockMgrServerAdapter{}
}

type lockMgrServerAdapter struct{}

func (adapter *lockMgrServerAdapter) Handle(req *common.Message, store store.IStore) (resp *common.Message) {
	// Check for nil store
	if store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}
	if req.Key == "" {
		return common.NewErrorResponse(fmt.Sprintf("RPC LockManagerAdapter - %s without resource", req.MsgType))
	}

	// the lock manager is stateless, one per request is fine
	locks := lockmgr.NewLockManager(store, req.Group)
	owner := lockmgr.NewLockOwner(req.MemberID, req.HolderID)

	switch req.MsgType {
	// exclusive locks
	case common.MsgTLCKAcquire:
		ok, err := locks.AcquireExclusive(req.Key, owner)
		return common.NewOkResponse(req.MsgType, ok, err)
	case common.MsgTLCKRelease:
		ok, err := locks.ReleaseExclusive(req.Key, owner)
		return common.NewOkResponse(req.MsgType, ok, err)
	case common.MsgTLCKCancel:
		ok, err := locks.CancelExclusive(req.Key, owner)
		return common.NewOkResponse(req.MsgType, ok, err)

	// read/write locks
	case common.MsgTRWReadLock:
		ok, ticket, err := locks.AcquireRead(req.Key, owner)
		return common.NewReadLockResponse(ok, ticket, err)
	case common.MsgTRWReadUnlock:
		noMoreReaders, err := locks.ReleaseRead(req.Key, owner, req.Ticket)
		return common.NewOkResponse(req.MsgType, noMoreReaders, err)
	case common.MsgTRWWriteLock:
		ok, err := locks.AcquireWrite(req.Key, owner, req.Wait)
		return common.NewOkResponse(req.MsgType, ok, err)
	case common.MsgTRWWriteUnlock:
		empty, err := locks.ReleaseWrite(req.Key, owner)
		return common.NewOkResponse(req.MsgType, empty, err)
	case common.MsgTRWCancelWrite:
		ok, err := locks.CancelWrite(req.Key, owner)
		return common.NewOkResponse(req.MsgType, ok, err)

	// introspection
	case common.MsgTLCKIsLocked:
		locked, err := locks.IsLocked(req.Key)
		return common.NewOkResponse(req.MsgType, locked, err)
	case common.MsgTLCKOwner:
		current, ok, err := locks.GetOwner(req.Key)
		return common.NewOwnerResponse(current.MemberID, current.HolderID, ok, err)
	case common.MsgTLCKPending:
		pending, err := locks.PendingOwners(req.Key)
		owners := make([]common.Owner, len(pending))
		for i, o := range pending {
			owners[i] = common.Owner{MemberID: o.MemberID, HolderID: o.HolderID}
		}
		return common.NewPendingResponse(owners, err)
	case common.MsgTLCKDescribe:
		desc, err := locks.Describe(req.Key)
		return common.NewDescribeResponse(desc, err)

	default:
		return common.NewErrorResponse(fmt.Sprintf("RPC LockManagerAdapter - Unsupported message type: %s", req.MsgType))
	}
}
