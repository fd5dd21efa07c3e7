package membership

import "sync"

// Dispatcher fans membership events out to all subscribed listeners.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []Listener
}

var _ Listener = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher without listeners
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe adds a listener. Events dispatched before Subscribe are not replayed.
func (d *Dispatcher) Subscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *Dispatcher) MemberLeft(memberID uint64) {
	for _, l := range d.snapshot() {
		l.MemberLeft(memberID)
	}
}

func (d *Dispatcher) PartitionArrived(partitionID uint64, groups []string, partitionCount uint64) {
	for _, l := range d.snapshot() {
		l.PartitionArrived(partitionID, groups, partitionCount)
	}
}

func (d *Dispatcher) snapshot() []Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.listeners
}
