package server

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/gridlock/lib/lockmgr"
	"github.com/ValentinKolb/gridlock/lib/membership"
	"github.com/ValentinKolb/gridlock/lib/store"
	"github.com/ValentinKolb/gridlock/lib/store/dstore"
	"github.com/ValentinKolb/gridlock/lib/store/lstore"
	"github.com/ValentinKolb/gridlock/rpc/common"
	"github.com/ValentinKolb/gridlock/rpc/serializer"
	"github.com/ValentinKolb/gridlock/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		adapter:    NewLockManagerServerAdapter(),
		dispatcher: membership.NewDispatcher(),
	}
}

// RPCServer serves the lock manager of one store over a transport.
// Besides the store it owns the membership tracking and the cleanup of locks of departed members.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	adapter    IRPCServerAdapter

	store      store.IStore
	nodeHost   *dragonboat.NodeHost
	dispatcher *membership.Dispatcher
	cluster    *membership.Cluster
	gossip     *membership.GossipNotifier
	leader     *membership.LeaderWatcher
	cleanup    *lockmgr.CleanupCoordinator

	closeOnce sync.Once
}

// Serve starts the RPC server
// This function will also initialize the store, membership and cleanup and start the transport layer
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		s.shutdown()
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport and releases the store, membership and cleanup
func (s *RPCServer) Close() error {
	err := s.transport.Close()
	s.shutdown()
	return err
}

// Store returns the store the server serves, nil before Serve
func (s *RPCServer) Store() store.IStore {
	return s.store
}

// Cleanup returns the cleanup coordinator, nil before Serve
func (s *RPCServer) Cleanup() *lockmgr.CleanupCoordinator {
	return s.cleanup
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) init() error {
	if err := s.config.Validate(); err != nil {
		return err
	}

	// Init logger
	common.InitLoggers(s.config)
	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	s.cluster = membership.NewCluster(s.dispatcher)

	// CREATE STORE

	switch s.config.StoreType {
	case common.StoreTypeLocal:
		s.store = lstore.NewLocalStore(s.config.PartitionCount)
		Logger.Infof("created local store with %d partitions", s.config.PartitionCount)
	case common.StoreTypeDistributed:
		if err := s.initDistributedStore(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid store type: %s", s.config.StoreType)
	}

	// CLEANUP

	s.cleanup = lockmgr.NewCleanupCoordinator(s.store, s.cluster, lockmgr.CleanupConfig{
		Debounce:     s.config.CleanupDebounce,
		SweepRate:    s.config.SweepRate,
		SweepTimeout: s.config.SweepTimeout,
	})
	s.dispatcher.Subscribe(s.cleanup)
	s.cleanup.Start()

	// MEMBERSHIP

	if s.config.HasGossip() {
		gossip, err := membership.NewGossipNotifier(s.cluster, membership.GossipConfig{
			NodeName: s.config.NodeName,
			BindAddr: s.config.GossipBind,
			Seeds:    s.config.GossipSeeds,
		})
		if err != nil {
			return err
		}
		s.gossip = gossip
	} else {
		name := s.config.NodeName
		if name == "" {
			name, _ = os.Hostname()
		}
		s.cluster.Join(membership.MemberID(name), name)
	}

	Logger.Infof("gridlock setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()
	return nil
}

// initDistributedStore starts one raft shard per partition on a new NodeHost
func (s *RPCServer) initDistributedStore() error {
	storeConfig := dstore.Config{
		ReplicaID:      s.config.ReplicaID,
		BaseShardID:    s.config.BaseShardID,
		PartitionCount: s.config.PartitionCount,
		Timeout:        time.Duration(s.config.TimeoutSecond) * time.Second,
	}

	// leadership decides which process owns a partition
	s.leader = membership.NewLeaderWatcher(storeConfig, s.dispatcher)

	nhConfig := s.config.ToNodeHostConfig()
	nhConfig.RaftEventListener = s.leader
	nodeHost, err := dragonboat.NewNodeHost(nhConfig)
	if err != nil {
		return errors.Wrap(err, "failed to create node host")
	}
	s.nodeHost = nodeHost

	factory := dstore.CreateStateMachineFactory(lockmgr.DecodeProcessor)
	for p := uint64(0); p < s.config.PartitionCount; p++ {
		shardID := storeConfig.ShardID(p)
		if err := nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, factory, s.config.ToDragonboatConfig(shardID)); err != nil {
			return errors.Wrapf(err, "failed to start shard %d", shardID)
		}
	}

	s.store = dstore.NewDistributedStore(nodeHost, storeConfig)
	s.leader.Attach(s.store)
	Logger.Infof("created distributed store with %d partitions (shards %d-%d)",
		s.config.PartitionCount, storeConfig.ShardID(0), storeConfig.ShardID(s.config.PartitionCount-1))
	return nil
}

// registerTransportHandler decodes requests, runs them and encodes the response
func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			respMsg = s.handle(&msg)
		}

		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

// handle answers server level requests and passes lock requests to the adapter
func (s *RPCServer) handle(msg *common.Message) *common.Message {
	if msg.MsgType == common.MsgTMemberLeft {
		// a member unknown to the cluster is still swept, it may have never joined the gossip
		if !s.cluster.Leave(msg.MemberID) {
			s.dispatcher.MemberLeft(msg.MemberID)
		}
		return common.NewOkResponse(msg.MsgType, true, nil)
	}
	// a requester stays a member of the validate view until it is evicted
	if msg.MemberID != 0 && !s.cluster.Contains(msg.MemberID) {
		s.cluster.Join(msg.MemberID, fmt.Sprintf("client-%d", msg.MemberID))
	}
	return s.adapter.Handle(msg, s.store)
}

// shutdown releases everything init created, in reverse order
func (s *RPCServer) shutdown() {
	s.closeOnce.Do(func() {
		if s.gossip != nil {
			if err := s.gossip.Close(); err != nil {
				Logger.Warningf("failed to leave gossip cluster: %v", err)
			}
		}
		if s.cleanup != nil {
			s.cleanup.Close()
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				Logger.Warningf("failed to close store: %v", err)
			}
		}
		if s.nodeHost != nil {
			s.nodeHost.Close()
		}
		if s.leader != nil {
			s.leader.Close()
		}
	})
}
