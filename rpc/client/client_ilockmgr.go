package client

import (
	"github.com/ValentinKolb/gridlock/lib/lockmgr"
	"github.com/ValentinKolb/gridlock/rpc/common"
	"github.com/ValentinKolb/gridlock/rpc/serializer"
	"github.com/ValentinKolb/gridlock/rpc/transport"
)

// NewRPCLockMgr creates a new RPC ILockManager for one resource group
// The function takes the group name, a config, a transport and a serializer as parameters
// It returns a lockmgr.ILockManager and an error
func NewRPCLockMgr(
	group string,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (lockmgr.ILockManager, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	l := rpcLockMgr{
		rpcClientAdapter: rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
		group: group,
	}
	return &l, nil
}

// EvictMember asks the server to release every lock held by memberID.
// The server treats it like a departure reported by the cluster membership.
func EvictMember(
	memberID uint64,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) error {
	_, err := invokeRPCRequest(common.NewMemberLeftRequest(memberID), transport, serializer)
	return err
}

type rpcLockMgr struct {
	rpcClientAdapter
	group string
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the lockmgr package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcLockMgr) lock(msgType common.MessageType, resource string, owner lockmgr.LockOwner) (bool, error) {
	req := common.NewLockRequest(msgType, i.group, resource, owner.MemberID, owner.HolderID)
	resp, err := invokeRPCRequest(req, i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcLockMgr) AcquireExclusive(resource string, owner lockmgr.LockOwner) (bool, error) {
	return i.lock(common.MsgTLCKAcquire, resource, owner)
}

func (i *rpcLockMgr) ReleaseExclusive(resource string, owner lockmgr.LockOwner) (bool, error) {
	return i.lock(common.MsgTLCKRelease, resource, owner)
}

func (i *rpcLockMgr) CancelExclusive(resource string, owner lockmgr.LockOwner) (bool, error) {
	return i.lock(common.MsgTLCKCancel, resource, owner)
}

func (i *rpcLockMgr) AcquireRead(resource string, owner lockmgr.LockOwner) (bool, uint64, error) {
	req := common.NewLockRequest(common.MsgTRWReadLock, i.group, resource, owner.MemberID, owner.HolderID)
	resp, err := invokeRPCRequest(req, i.transport, i.serializer)
	if err != nil {
		return false, 0, err
	}
	return resp.Ok, resp.Ticket, nil
}

func (i *rpcLockMgr) ReleaseRead(resource string, owner lockmgr.LockOwner, ticket uint64) (bool, error) {
	req := common.NewReadUnlockRequest(i.group, resource, owner.MemberID, owner.HolderID, ticket)
	resp, err := invokeRPCRequest(req, i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcLockMgr) AcquireWrite(resource string, owner lockmgr.LockOwner, wait bool) (bool, error) {
	req := common.NewWriteLockRequest(i.group, resource, owner.MemberID, owner.HolderID, wait)
	resp, err := invokeRPCRequest(req, i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcLockMgr) ReleaseWrite(resource string, owner lockmgr.LockOwner) (bool, error) {
	return i.lock(common.MsgTRWWriteUnlock, resource, owner)
}

func (i *rpcLockMgr) CancelWrite(resource string, owner lockmgr.LockOwner) (bool, error) {
	return i.lock(common.MsgTRWCancelWrite, resource, owner)
}

func (i *rpcLockMgr) IsLocked(resource string) (bool, error) {
	resp, err := invokeRPCRequest(common.NewInspectRequest(common.MsgTLCKIsLocked, i.group, resource), i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcLockMgr) GetOwner(resource string) (lockmgr.LockOwner, bool, error) {
	resp, err := invokeRPCRequest(common.NewInspectRequest(common.MsgTLCKOwner, i.group, resource), i.transport, i.serializer)
	if err != nil {
		return lockmgr.LockOwner{}, false, err
	}
	if !resp.Ok {
		return lockmgr.LockOwner{}, false, nil
	}
	return lockmgr.NewLockOwner(resp.MemberID, resp.HolderID), true, nil
}

func (i *rpcLockMgr) PendingOwners(resource string) ([]lockmgr.LockOwner, error) {
	resp, err := invokeRPCRequest(common.NewInspectRequest(common.MsgTLCKPending, i.group, resource), i.transport, i.serializer)
	if err != nil {
		return nil, err
	}
	owners := make([]lockmgr.LockOwner, len(resp.Owners))
	for j, o := range resp.Owners {
		owners[j] = lockmgr.NewLockOwner(o.MemberID, o.HolderID)
	}
	return owners, nil
}

func (i *rpcLockMgr) Describe(resource string) (string, error) {
	resp, err := invokeRPCRequest(common.NewInspectRequest(common.MsgTLCKDescribe, i.group, resource), i.transport, i.serializer)
	if err != nil {
		return "", err
	}
	return string(resp.Value), nil
}
