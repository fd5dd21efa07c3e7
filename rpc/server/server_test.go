package server

import (
	"testing"
	"time"

	"github.com/ValentinKolb/gridlock/lib/lockmgr"
	"github.com/ValentinKolb/gridlock/lib/membership"
	"github.com/ValentinKolb/gridlock/lib/store"
	"github.com/ValentinKolb/gridlock/lib/store/lstore"
	"github.com/ValentinKolb/gridlock/rpc/common"
	"github.com/ValentinKolb/gridlock/rpc/serializer"
	"github.com/ValentinKolb/gridlock/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureTransport keeps the registered handler instead of listening
type captureTransport struct {
	handler transport.ServerHandleFunc
	closed  bool
}

func (c *captureTransport) RegisterHandler(handler transport.ServerHandleFunc) { c.handler = handler }
func (c *captureTransport) Listen(common.ServerConfig) error                 { return nil }
func (c *captureTransport) Close() error {
	c.closed = true
	return nil
}

func localConfig() common.ServerConfig {
	return common.ServerConfig{
		StoreType:       common.StoreTypeLocal,
		PartitionCount:  4,
		TimeoutSecond:   1,
		NodeName:        "node-1",
		CleanupDebounce: 10 * time.Millisecond,
		Transport:       common.TransportConfig{Endpoint: "127.0.0.1:0"},
		LogLevel:        "error",
	}
}

func startTestServer(t *testing.T, ser serializer.IRPCSerializer) (*RPCServer, *captureTransport) {
	t.Helper()
	tr := &captureTransport{}
	s := NewRPCServer(localConfig(), tr, ser)
	require.NoError(t, s.Serve())
	require.NotNil(t, tr.handler)
	t.Cleanup(func() { _ = s.Close() })
	return s, tr
}

func call(t *testing.T, tr *captureTransport, ser serializer.IRPCSerializer, req *common.Message) *common.Message {
	t.Helper()
	data, err := ser.Serialize(*req)
	require.NoError(t, err)
	var resp common.Message
	require.NoError(t, ser.Deserialize(tr.handler(data), &resp))
	return &resp
}

func TestAdapterExclusive(t *testing.T) {
	s := lstore.NewLocalStore(4)
	adapter := NewLockManagerServerAdapter()

	resp := adapter.Handle(common.NewLockRequest(common.MsgTLCKAcquire, "g", "r", 1, 1), s)
	require.NoError(t, resp.Error())
	assert.True(t, resp.Ok)

	resp = adapter.Handle(common.NewLockRequest(common.MsgTLCKAcquire, "g", "r", 2, 1), s)
	require.NoError(t, resp.Error())
	assert.False(t, resp.Ok)

	resp = adapter.Handle(common.NewInspectRequest(common.MsgTLCKOwner, "g", "r"), s)
	require.NoError(t, resp.Error())
	assert.True(t, resp.Ok)
	assert.Equal(t, uint64(1), resp.MemberID)
	assert.Equal(t, uint64(1), resp.HolderID)

	resp = adapter.Handle(common.NewInspectRequest(common.MsgTLCKPending, "g", "r"), s)
	require.NoError(t, resp.Error())
	assert.Equal(t, []common.Owner{{MemberID: 2, HolderID: 1}}, resp.Owners)

	resp = adapter.Handle(common.NewLockRequest(common.MsgTLCKCancel, "g", "r", 2, 1), s)
	require.NoError(t, resp.Error())
	assert.True(t, resp.Ok)

	resp = adapter.Handle(common.NewLockRequest(common.MsgTLCKRelease, "g", "r", 1, 1), s)
	require.NoError(t, resp.Error())
	assert.True(t, resp.Ok)

	resp = adapter.Handle(common.NewInspectRequest(common.MsgTLCKIsLocked, "g", "r"), s)
	require.NoError(t, resp.Error())
	assert.False(t, resp.Ok)
}

func TestAdapterReadWrite(t *testing.T) {
	s := lstore.NewLocalStore(4)
	adapter := NewLockManagerServerAdapter()

	resp := adapter.Handle(common.NewLockRequest(common.MsgTRWReadLock, "g", "doc", 1, 1), s)
	require.NoError(t, resp.Error())
	require.True(t, resp.Ok)
	ticket := resp.Ticket
	assert.NotZero(t, ticket)

	// queued writer blocks new readers
	resp = adapter.Handle(common.NewWriteLockRequest("g", "doc", 2, 1, true), s)
	require.NoError(t, resp.Error())
	assert.False(t, resp.Ok)

	resp = adapter.Handle(common.NewLockRequest(common.MsgTRWReadLock, "g", "doc", 3, 1), s)
	require.NoError(t, resp.Error())
	assert.False(t, resp.Ok)

	resp = adapter.Handle(common.NewReadUnlockRequest("g", "doc", 1, 1, ticket), s)
	require.NoError(t, resp.Error())
	assert.True(t, resp.Ok)

	resp = adapter.Handle(common.NewWriteLockRequest("g", "doc", 2, 1, true), s)
	require.NoError(t, resp.Error())
	assert.True(t, resp.Ok)

	resp = adapter.Handle(common.NewLockRequest(common.MsgTRWWriteUnlock, "g", "doc", 2, 1), s)
	require.NoError(t, resp.Error())
	assert.True(t, resp.Ok)

	resp = adapter.Handle(common.NewInspectRequest(common.MsgTLCKDescribe, "g", "doc"), s)
	require.NoError(t, resp.Error())
	assert.NotEmpty(t, resp.Value)
}

func TestAdapterErrors(t *testing.T) {
	s := lstore.NewLocalStore(4)
	adapter := NewLockManagerServerAdapter()

	// write unlock without holding the lock
	resp := adapter.Handle(common.NewLockRequest(common.MsgTRWWriteUnlock, "g", "doc", 1, 1), s)
	err := resp.Error()
	require.Error(t, err)
	assert.True(t, lockmgr.IsLockNotHeld(err))

	// exclusive operation on read/write state
	resp = adapter.Handle(common.NewLockRequest(common.MsgTRWReadLock, "g", "doc", 1, 1), s)
	require.NoError(t, resp.Error())
	resp = adapter.Handle(common.NewLockRequest(common.MsgTLCKAcquire, "g", "doc", 2, 1), s)
	assert.True(t, lockmgr.IsLockTypeMismatch(resp.Error()))

	// missing resource
	resp = adapter.Handle(common.NewLockRequest(common.MsgTLCKAcquire, "g", "", 1, 1), s)
	assert.Equal(t, common.MsgTError, resp.MsgType)

	// no store
	resp = adapter.Handle(common.NewLockRequest(common.MsgTLCKAcquire, "g", "r", 1, 1), nil)
	assert.Equal(t, common.MsgTError, resp.MsgType)

	// not a lock request
	resp = adapter.Handle(&common.Message{MsgType: common.MsgTSuccess, Key: "r"}, s)
	assert.Equal(t, common.MsgTError, resp.MsgType)
}

func TestServerHandlerRoundTrip(t *testing.T) {
	for name, factory := range map[string]func() serializer.IRPCSerializer{
		"JSON":   serializer.NewJSONSerializer,
		"GOB":    serializer.NewGOBSerializer,
		"Binary": serializer.NewBinarySerializer,
	} {
		t.Run(name, func(t *testing.T) {
			ser := factory()
			_, tr := startTestServer(t, ser)

			resp := call(t, tr, ser, common.NewLockRequest(common.MsgTLCKAcquire, "orders", "o1", 5, 1))
			require.NoError(t, resp.Error())
			assert.Equal(t, common.MsgTLCKAcquire, resp.MsgType)
			assert.True(t, resp.Ok)

			resp = call(t, tr, ser, common.NewInspectRequest(common.MsgTLCKOwner, "orders", "o1"))
			require.NoError(t, resp.Error())
			assert.Equal(t, uint64(5), resp.MemberID)

			resp = call(t, tr, ser, common.NewReadUnlockRequest("orders", "o2", 5, 1, 0))
			assert.True(t, lockmgr.IsLockNotHeld(resp.Error()))
		})
	}
}

func TestServerInvalidRequest(t *testing.T) {
	ser := serializer.NewBinarySerializer()
	_, tr := startTestServer(t, ser)

	var resp common.Message
	require.NoError(t, ser.Deserialize(tr.handler([]byte{}), &resp))
	assert.Equal(t, common.MsgTError, resp.MsgType)
	assert.Contains(t, resp.Err, "deserialize")
}

func TestServerMemberLeftReleasesLocks(t *testing.T) {
	ser := serializer.NewBinarySerializer()
	s, tr := startTestServer(t, ser)

	resp := call(t, tr, ser, common.NewLockRequest(common.MsgTLCKAcquire, "orders", "o1", 77, 1))
	require.NoError(t, resp.Error())
	require.True(t, resp.Ok)
	resp = call(t, tr, ser, common.NewLockRequest(common.MsgTLCKAcquire, "orders", "o1", 78, 1))
	require.NoError(t, resp.Error())
	require.False(t, resp.Ok)

	// member 77 joined with its first request, the eviction sweeps it
	resp = call(t, tr, ser, common.NewMemberLeftRequest(77))
	require.NoError(t, resp.Error())
	assert.Equal(t, common.MsgTMemberLeft, resp.MsgType)

	require.Eventually(t, func() bool {
		return s.Cleanup().Stats().Sweeps >= 1
	}, 2*time.Second, 5*time.Millisecond)

	locks := lockmgr.NewLockManager(s.Store(), "orders")
	owner, ok, err := locks.GetOwner("o1")
	require.NoError(t, err)
	assert.False(t, ok && owner.MemberID == 77)
}

func TestServerClientLockSurvivesPartitionArrival(t *testing.T) {
	ser := serializer.NewBinarySerializer()
	s, tr := startTestServer(t, ser)

	client := membership.MemberID("client-host")
	resp := call(t, tr, ser, common.NewLockRequest(common.MsgTLCKAcquire, "orders", "o2", client, 1))
	require.NoError(t, resp.Error())
	require.True(t, resp.Ok)
	assert.True(t, s.cluster.Contains(client))

	for p := uint64(0); p < 4; p++ {
		s.dispatcher.PartitionArrived(p, nil, 4)
	}
	require.Eventually(t, func() bool {
		return s.Cleanup().Stats().Sweeps >= 1
	}, 2*time.Second, 5*time.Millisecond)

	locks := lockmgr.NewLockManager(s.Store(), "orders")
	owner, ok, err := locks.GetOwner("o2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, client, owner.MemberID)

	resp = call(t, tr, ser, common.NewLockRequest(common.MsgTLCKAcquire, "orders", "o2", membership.MemberID("other-host"), 1))
	require.NoError(t, resp.Error())
	assert.False(t, resp.Ok)

	// an evicted client is no longer a member
	resp = call(t, tr, ser, common.NewMemberLeftRequest(client))
	require.NoError(t, resp.Error())
	assert.False(t, s.cluster.Contains(client))
}

func TestServerInvalidConfig(t *testing.T) {
	config := localConfig()
	config.PartitionCount = 0
	s := NewRPCServer(config, &captureTransport{}, serializer.NewJSONSerializer())
	assert.Error(t, s.Serve())
}

func TestServerClose(t *testing.T) {
	tr := &captureTransport{}
	s := NewRPCServer(localConfig(), tr, serializer.NewJSONSerializer())
	require.NoError(t, s.Serve())
	var st store.IStore = s.Store()
	require.NotNil(t, st)

	require.NoError(t, s.Close())
	assert.True(t, tr.closed)
	// a second close is a no-op for the server internals
	require.NoError(t, s.Close())
}
