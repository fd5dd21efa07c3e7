package lockmgr

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/gridlock/lib/store"
	"github.com/ValentinKolb/gridlock/lib/util"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"golang.org/x/time/rate"
)

var cleanupLog = logger.GetLogger("cleanup")

// DefaultDebounce is the window used to batch partition arrivals into one sweep.
const DefaultDebounce = time.Second

// MemberView is the part of the cluster membership the coordinator needs.
type MemberView interface {
	// Members returns the ids of all members currently in the cluster.
	Members() []uint64
}

// CleanupConfig configures a CleanupCoordinator.
type CleanupConfig struct {
	// Debounce is the delay between the first partition arrival and the validate sweep.
	Debounce time.Duration
	// SweepRate limits how many sweeps per second the worker starts. 0 disables the limit.
	SweepRate float64
	// SweepTimeout bounds a single sweep. 0 means no timeout.
	SweepTimeout time.Duration
}

// CleanupStats is a snapshot of the coordinator counters.
type CleanupStats struct {
	Sweeps            int64
	FailedSweeps      int64
	RemovedEntries    int64
	MeanSweepDuration time.Duration
}

// sweepTask is one unit of work for the sweep worker.
// groups == nil means every group the store knows at the time the sweep runs.
type sweepTask struct {
	op         *Op
	partitions []uint64
	groups     []string
}

// CleanupCoordinator removes lock holders of members that left the cluster.
//
// Member departures are swept right away over the partitions this process owns.
// Partition arrivals are collected and, after the debounce window, swept together with a
// predicate that removes every member not in the current membership view.
//
// Event callbacks only touch the accumulators (guarded by mu) and push to an unbounded queue,
// so they never block. All store work happens on a single worker goroutine.
// A failed sweep is logged and counted. The next membership event sweeps again.
type CleanupCoordinator struct {
	store  store.IStore
	view   MemberView
	config CleanupConfig

	mu                    sync.Mutex
	pendingPartitions     map[uint64]struct{}
	pendingResourceGroups map[string]struct{}
	sweepScheduled        bool
	timer                 *time.Timer

	queue   *util.Queue[sweepTask]
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	closed  atomic.Bool
	wg      sync.WaitGroup

	sweepTimer   gometrics.Timer
	failures     gometrics.Counter
	removedMeter gometrics.Meter
}

// NewCleanupCoordinator creates a coordinator for the lock state in s.
// Call Start to begin processing sweeps.
func NewCleanupCoordinator(s store.IStore, view MemberView, config CleanupConfig) *CleanupCoordinator {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}

	limit := rate.Inf
	if config.SweepRate > 0 {
		limit = rate.Limit(config.SweepRate)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CleanupCoordinator{
		store:                 s,
		view:                  view,
		config:                config,
		pendingPartitions:     make(map[uint64]struct{}),
		pendingResourceGroups: make(map[string]struct{}),
		queue:                 util.NewQueue[sweepTask](),
		limiter:               rate.NewLimiter(limit, 1),
		ctx:                   ctx,
		cancel:                cancel,
		sweepTimer:            gometrics.NewTimer(),
		failures:              gometrics.NewCounter(),
		removedMeter:          gometrics.NewMeter(),
	}
}

// Start launches the sweep worker. Calling Start more than once has no effect.
func (c *CleanupCoordinator) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go c.work()
}

// Close cancels a scheduled debounce sweep, stops the worker and waits for it to exit.
// A sweep that is running when Close is called is aborted through its context.
func (c *CleanupCoordinator) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.sweepScheduled = false
	c.mu.Unlock()

	c.cancel()
	c.queue.Close()
	if c.started.Load() {
		c.wg.Wait()
	}
	c.removedMeter.Stop()
	c.sweepTimer.Stop()
}

// MemberLeft sweeps the partitions owned by this process for holders of memberID.
func (c *CleanupCoordinator) MemberLeft(memberID uint64) {
	if c.closed.Load() {
		return
	}
	partitions := c.store.OwnedPartitions()
	if len(partitions) == 0 {
		cleanupLog.Debugf("member %d left, no partitions owned", memberID)
		return
	}
	cleanupLog.Infof("member %d left, sweeping %d partitions", memberID, len(partitions))
	c.queue.Push(sweepTask{
		op:         &Op{Type: OpMemberLeft, MemberID: memberID},
		partitions: partitions,
	})
}

// PartitionArrived records that ownership of partitionID moved to this process.
// The first arrival arms the debounce timer. Arrivals within the window join the same sweep.
func (c *CleanupCoordinator) PartitionArrived(partitionID uint64, groups []string, partitionCount uint64) {
	if c.closed.Load() {
		return
	}
	if total := c.store.PartitionCount(); partitionCount != total || partitionID >= total {
		cleanupLog.Warningf("partition %d/%d arrived, store has %d partitions", partitionID, partitionCount, total)
		if partitionID >= total {
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pendingPartitions[partitionID] = struct{}{}
	for _, g := range groups {
		c.pendingResourceGroups[g] = struct{}{}
	}
	if !c.sweepScheduled {
		c.sweepScheduled = true
		c.timer = time.AfterFunc(c.config.Debounce, c.flush)
	}
}

// flush drains the accumulators and queues a validate sweep
func (c *CleanupCoordinator) flush() {
	c.mu.Lock()
	partitions := make([]uint64, 0, len(c.pendingPartitions))
	for p := range c.pendingPartitions {
		partitions = append(partitions, p)
	}
	var groups []string
	for g := range c.pendingResourceGroups {
		groups = append(groups, g)
	}
	c.pendingPartitions = make(map[uint64]struct{})
	c.pendingResourceGroups = make(map[string]struct{})
	c.sweepScheduled = false
	c.mu.Unlock()

	if len(partitions) == 0 || c.closed.Load() {
		return
	}

	// the member list is fixed here so that every replica applies the same predicate
	c.queue.Push(sweepTask{
		op:         &Op{Type: OpValidate, Members: c.view.Members()},
		partitions: partitions,
		groups:     groups,
	})
}

// Stats returns the coordinator counters.
func (c *CleanupCoordinator) Stats() CleanupStats {
	return CleanupStats{
		Sweeps:            c.sweepTimer.Count(),
		FailedSweeps:      c.failures.Count(),
		RemovedEntries:    c.removedMeter.Count(),
		MeanSweepDuration: time.Duration(c.sweepTimer.Mean()),
	}
}

// Pending returns the number of queued sweeps and whether a debounce sweep is scheduled.
func (c *CleanupCoordinator) Pending() (queued int, scheduled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len(), c.sweepScheduled
}

func (c *CleanupCoordinator) work() {
	defer c.wg.Done()
	for task := range c.queue.Recv() {
		if c.ctx.Err() != nil {
			continue // drain after Close
		}
		if err := c.limiter.Wait(c.ctx); err != nil {
			continue
		}
		if err := c.sweep(task); err != nil {
			c.failures.Inc(1)
			sweepErrorsTotal.Inc()
			cleanupLog.Errorf("%s sweep failed: %v", task.op.Type, err)
		}
	}
}

// sweep applies the task op to every resource of the task groups in the task partitions
func (c *CleanupCoordinator) sweep(task sweepTask) error {
	start := time.Now()
	defer c.sweepTimer.UpdateSince(start)
	sweepsTotal.Inc()

	ctx := c.ctx
	if c.config.SweepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.SweepTimeout)
		defer cancel()
	}

	groups := task.groups
	if len(groups) == 0 {
		var err error
		if groups, err = c.store.Groups(); err != nil {
			return errors.Wrap(err, "list resource groups")
		}
	}

	var errs error
	removed := 0
	for _, group := range groups {
		affected, err := c.store.InvokeAll(ctx, group, task.partitions, task.op)
		removed += affected
		if err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "sweep group %q", group))
		}
	}

	c.removedMeter.Mark(int64(removed))
	holdersRemovedTotal.Add(removed)
	if removed > 0 {
		cleanupLog.Infof("%s sweep cleaned %d entries in %d groups", task.op.Type, removed, len(groups))
	}
	return errs
}
