package membership

import (
	"sync"

	"github.com/ValentinKolb/gridlock/lib/store"
	"github.com/ValentinKolb/gridlock/lib/store/dstore"
	"github.com/ValentinKolb/gridlock/lib/util"
	"github.com/lni/dragonboat/v4/raftio"
)

// LeaderWatcher turns raft leadership changes into partition arrivals.
//
// It is registered as the RaftEventListener of the NodeHost. When the local replica
// becomes leader of a partition shard, the partition is reported as arrived together
// with the resource groups of the store. Dragonboat expects LeaderUpdated to return
// quickly, so the store is read on a separate goroutine.
type LeaderWatcher struct {
	config   dstore.Config
	listener Listener
	queue    *util.Queue[uint64]

	mu    sync.Mutex
	store store.IStore
	led   map[uint64]uint64 // partition -> term in which we became leader
	wg    sync.WaitGroup
}

var _ raftio.IRaftEventListener = (*LeaderWatcher)(nil)

// NewLeaderWatcher creates a watcher for the partition shards described by config.
// The store is attached later with Attach, since it can only be created after the NodeHost.
func NewLeaderWatcher(config dstore.Config, listener Listener) *LeaderWatcher {
	w := &LeaderWatcher{
		config:   config,
		listener: listener,
		queue:    util.NewQueue[uint64](),
		led:      make(map[uint64]uint64),
	}
	w.wg.Add(1)
	go w.work()
	return w
}

// Attach sets the store used to look up resource groups
func (w *LeaderWatcher) Attach(s store.IStore) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.store = s
}

// LeaderUpdated implements raftio.IRaftEventListener
func (w *LeaderWatcher) LeaderUpdated(info raftio.LeaderInfo) {
	partition, ok := w.config.PartitionOfShard(info.ShardID)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if info.LeaderID != info.ReplicaID || info.LeaderID == 0 {
		delete(w.led, partition)
		return
	}
	if term, ok := w.led[partition]; ok && term == info.Term {
		return
	}
	w.led[partition] = info.Term
	membershipLog.Infof("became leader of partition %d (shard %d, term %d)", partition, info.ShardID, info.Term)
	w.queue.Push(partition)
}

// Leading returns the partitions the local replica currently leads
func (w *LeaderWatcher) Leading() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	partitions := make([]uint64, 0, len(w.led))
	for p := range w.led {
		partitions = append(partitions, p)
	}
	return partitions
}

// Close stops the worker after the queued arrivals were delivered.
func (w *LeaderWatcher) Close() {
	w.queue.Close()
	w.wg.Wait()
}

func (w *LeaderWatcher) work() {
	defer w.wg.Done()
	for partition := range w.queue.Recv() {
		w.mu.Lock()
		s := w.store
		w.mu.Unlock()

		// without a store the groups are unknown, the listener then sweeps every group
		var groups []string
		if s != nil {
			var err error
			if groups, err = s.Groups(); err != nil {
				membershipLog.Warningf("partition %d arrived, failed to list groups: %v", partition, err)
				groups = nil
			}
		}
		w.listener.PartitionArrived(partition, groups, w.config.PartitionCount)
	}
}
