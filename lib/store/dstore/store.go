package dstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/gridlock/lib/store"
	"github.com/ValentinKolb/gridlock/lib/store/dstore/internal"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// Config describes how partitions map to raft shards.
type Config struct {
	// ReplicaID is the id of the local replica in every shard.
	ReplicaID uint64
	// BaseShardID is the shard id of partition 0. Partition p uses shard BaseShardID + p.
	BaseShardID uint64
	// PartitionCount is the number of partitions (and raft shards).
	PartitionCount uint64
	// Timeout bounds a single propose or read.
	Timeout time.Duration
}

// ShardID returns the raft shard of a partition
func (c Config) ShardID(partition uint64) uint64 {
	return c.BaseShardID + partition
}

// PartitionOfShard maps a shard id back to its partition. ok is false for foreign shards.
func (c Config) PartitionOfShard(shardID uint64) (partition uint64, ok bool) {
	if shardID < c.BaseShardID || shardID >= c.BaseShardID+c.PartitionCount {
		return 0, false
	}
	return shardID - c.BaseShardID, true
}

// storeImpl is the concrete implementation of the distributed store.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machines of all partitions.
type storeImpl struct {
	nh       *dragonboat.NodeHost
	config   Config
	sessions []*client.Session
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes. The replicas of all shards must have been started on nh with the state machine
// returned by CreateStateMachineFactory.
func NewDistributedStore(nh *dragonboat.NodeHost, config Config) store.IStore {
	if config.PartitionCount == 0 {
		config.PartitionCount = 1
	}
	sessions := make([]*client.Session, config.PartitionCount)
	for p := range sessions {
		sessions[p] = nh.GetNoOPSession(config.ShardID(uint64(p)))
	}
	return &storeImpl{
		nh:       nh,
		config:   config,
		sessions: sessions,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write proposes a Command to the shard of the partition via SyncPropose.
// It returns the result data of the state machine or a *store.Error.
func (s *storeImpl) write(ctx context.Context, partition uint64, cmd internal.Command) ([]byte, error) {
	data := cmd.Serialize()
	for i := 0; i < retries; i++ {
		pctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		res, err := s.nh.SyncPropose(pctx, s.sessions[partition], data)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.config.Timeout / 10)
			continue
		}

		if err != nil {
			return nil, store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return nil, store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return res.Data, nil
	}
	return nil, store.NewError(store.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine of a partition
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragonboat) by default to Query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// If the read operation fails due to a system busy error, the function retries up to 5 times.
func read[R any](s *storeImpl, partition uint64, q internal.Query, stale bool) (R, error) {
	var zero R
	shardID := s.config.ShardID(partition)
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		// Query the state machine, use StaleRead if stale is set otherwise use SyncRead (default)
		if stale {
			res, err = s.nh.StaleRead(shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
			res, err = s.nh.SyncRead(ctx, shardID, q)
			cancel()
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.config.Timeout / 10)
			continue
		}

		if err != nil {
			var storeErr *store.Error
			if errors.As(err, &storeErr) {
				return zero, storeErr
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

func (s *storeImpl) checkPartition(partition uint64) error {
	if partition >= s.config.PartitionCount {
		return store.NewError(store.RetCInvalidOperation, fmt.Sprintf("partition %d out of range", partition))
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Invoke(group, key string, p store.EntryProcessor) ([]byte, error) {
	data, err := p.MarshalBinary()
	if err != nil {
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("failed to marshal processor: %v", err))
	}
	return s.write(context.Background(), s.PartitionOf(key), internal.Command{
		Type:      internal.CommandTInvoke,
		Group:     group,
		Key:       key,
		Processor: data,
	})
}

func (s *storeImpl) Query(group, key string, p store.EntryProcessor) ([]byte, error) {
	data, err := p.MarshalBinary()
	if err != nil {
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("failed to marshal processor: %v", err))
	}
	res, err := read[internal.QueryResult](s, s.PartitionOf(key), internal.Query{
		Type:      internal.QueryTGet,
		Group:     group,
		Key:       key,
		Processor: data,
	}, false)
	return res.Result, err
}

// InvokeAll proposes one InvokeAll command per partition. The proposals run concurrently,
// the first failure cancels the remaining ones.
func (s *storeImpl) InvokeAll(ctx context.Context, group string, partitions []uint64, p store.EntryProcessor) (int, error) {
	data, err := p.MarshalBinary()
	if err != nil {
		return 0, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("failed to marshal processor: %v", err))
	}

	for _, partition := range partitions {
		if err := s.checkPartition(partition); err != nil {
			return 0, err
		}
	}

	var affected atomic.Int64
	eg, ctx := errgroup.WithContext(ctx)
	for _, partition := range partitions {
		partition := partition
		eg.Go(func() error {
			res, err := s.write(ctx, partition, internal.Command{
				Type:      internal.CommandTInvokeAll,
				Group:     group,
				Processor: data,
			})
			if err != nil {
				return errors.Wrapf(err, "partition %d", partition)
			}
			if len(res) == 8 {
				affected.Add(int64(binary.BigEndian.Uint64(res)))
			}
			return nil
		})
	}
	err = eg.Wait()
	return int(affected.Load()), err
}

func (s *storeImpl) Keys(group string, partitions []uint64) ([]string, error) {
	var keys []string
	for _, partition := range partitions {
		if err := s.checkPartition(partition); err != nil {
			return nil, err
		}
		partKeys, err := read[[]string](s, partition, internal.Query{
			Type:  internal.QueryTKeys,
			Group: group,
		}, false)
		if err != nil {
			return nil, err
		}
		keys = append(keys, partKeys...)
	}
	sort.Strings(keys)
	return keys, nil
}

// Groups merges the groups of all partitions. Partitions are read stale since group
// names only guide cleanup sweeps.
func (s *storeImpl) Groups() ([]string, error) {
	seen := make(map[string]struct{})
	for partition := uint64(0); partition < s.config.PartitionCount; partition++ {
		names, err := read[[]string](s, partition, internal.Query{Type: internal.QueryTGroups}, true)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			seen[name] = struct{}{}
		}
	}
	groups := make([]string, 0, len(seen))
	for name := range seen {
		groups = append(groups, name)
	}
	sort.Strings(groups)
	return groups, nil
}

func (s *storeImpl) PartitionCount() uint64 {
	return s.config.PartitionCount
}

func (s *storeImpl) PartitionOf(key string) uint64 {
	return store.PartitionOf(key, s.config.PartitionCount)
}

// OwnedPartitions returns the partitions whose raft leader is the local replica
func (s *storeImpl) OwnedPartitions() []uint64 {
	var owned []uint64
	for partition := uint64(0); partition < s.config.PartitionCount; partition++ {
		leaderID, _, valid, err := s.nh.GetLeaderID(s.config.ShardID(partition))
		if err != nil || !valid {
			continue
		}
		if leaderID == s.config.ReplicaID {
			owned = append(owned, partition)
		}
	}
	return owned
}

// Close does not stop the node host, it is owned by the caller
func (s *storeImpl) Close() error {
	return nil
}
