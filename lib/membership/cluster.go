package membership

import (
	"sort"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var membershipLog = logger.GetLogger("membership")

// Cluster is the set of members this process currently knows about.
// It implements View and reports departures to the dispatcher.
type Cluster struct {
	members    *xsync.MapOf[uint64, string]
	dispatcher *Dispatcher
}

var _ View = (*Cluster)(nil)

// NewCluster creates an empty cluster that reports departures to d
func NewCluster(d *Dispatcher) *Cluster {
	return &Cluster{
		members:    xsync.NewMapOf[uint64, string](),
		dispatcher: d,
	}
}

// Join adds a member and returns false if it was already known
func (c *Cluster) Join(memberID uint64, name string) bool {
	_, loaded := c.members.LoadOrStore(memberID, name)
	if !loaded {
		membershipLog.Infof("member %s (%d) joined", name, memberID)
	}
	return !loaded
}

// Leave removes a member and dispatches MemberLeft. Leaving an unknown member does nothing.
func (c *Cluster) Leave(memberID uint64) bool {
	name, loaded := c.members.LoadAndDelete(memberID)
	if !loaded {
		return false
	}
	membershipLog.Infof("member %s (%d) left", name, memberID)
	c.dispatcher.MemberLeft(memberID)
	return true
}

func (c *Cluster) Contains(memberID uint64) bool {
	_, ok := c.members.Load(memberID)
	return ok
}

func (c *Cluster) Members() []uint64 {
	ids := make([]uint64, 0, c.members.Size())
	c.members.Range(func(id uint64, _ string) bool {
		ids = append(ids, id)
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Name returns the node name of a member
func (c *Cluster) Name(memberID uint64) (string, bool) {
	return c.members.Load(memberID)
}

// Size returns the number of members
func (c *Cluster) Size() int {
	return c.members.Size()
}
