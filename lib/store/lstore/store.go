package lstore

import (
	"bytes"
	"context"
	"sort"

	"github.com/ValentinKolb/gridlock/lib/store"
	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// group holds the partitions of one resource group
type group struct {
	partitions []*xsync.MapOf[string, []byte]
}

type storeImpl struct {
	partitionCount uint64
	groups         *xsync.MapOf[string, *group]
}

// NewLocalStore creates a new local store instance with the given number of partitions.
// This store implementation is not distributed and owns every partition.
func NewLocalStore(partitionCount uint64) store.IStore {
	if partitionCount == 0 {
		partitionCount = 1
	}
	return &storeImpl{
		partitionCount: partitionCount,
		groups:         xsync.NewMapOf[string, *group](),
	}
}

// getGroup returns the group with the given name, creating it if create is set.
//
// Thread-safety: LoadOrCompute guarantees a single group instance per name.
func (s *storeImpl) getGroup(name string, create bool) *group {
	if !create {
		g, _ := s.groups.Load(name)
		return g
	}
	g, _ := s.groups.LoadOrCompute(name, func() *group {
		g := &group{partitions: make([]*xsync.MapOf[string, []byte], s.partitionCount)}
		for i := range g.partitions {
			g.partitions[i] = xsync.NewMapOf[string, []byte]()
		}
		return g
	})
	return g
}

// invoke runs the processor inside Compute, which serializes all writers of the key.
// changed reports whether the entry was modified or removed.
func (s *storeImpl) invoke(m *xsync.MapOf[string, []byte], key string, p store.EntryProcessor) (result []byte, changed bool, err error) {
	m.Compute(key, func(old []byte, loaded bool) ([]byte, bool) {
		var (
			newValue []byte
			keep     bool
		)
		newValue, keep, result, err = store.Apply(p, key, old, loaded)
		if err != nil {
			// keep the old value, a missing entry stays missing
			return old, !loaded
		}
		changed = loaded != keep || !bytes.Equal(old, newValue)
		return newValue, !keep
	})
	return result, changed, err
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Invoke(groupName, key string, p store.EntryProcessor) ([]byte, error) {
	g := s.getGroup(groupName, true)
	result, _, err := s.invoke(g.partitions[s.PartitionOf(key)], key, p)
	return result, err
}

func (s *storeImpl) Query(groupName, key string, p store.EntryProcessor) ([]byte, error) {
	var (
		value  []byte
		exists bool
	)
	if g := s.getGroup(groupName, false); g != nil {
		value, exists = g.partitions[s.PartitionOf(key)].Load(key)
	}
	_, _, result, err := store.Apply(p, key, value, exists)
	return result, err
}

func (s *storeImpl) InvokeAll(ctx context.Context, groupName string, partitions []uint64, p store.EntryProcessor) (int, error) {
	g := s.getGroup(groupName, false)
	if g == nil {
		return 0, nil
	}

	affected := 0
	for _, partition := range partitions {
		if partition >= s.partitionCount {
			return affected, store.NewError(store.RetCInvalidOperation, "partition out of range")
		}
		m := g.partitions[partition]
		for _, key := range keysOf(m) {
			if err := ctx.Err(); err != nil {
				return affected, errors.Wrap(err, "invoke all")
			}
			_, changed, err := s.invoke(m, key, p)
			if err != nil {
				return affected, err
			}
			if changed {
				affected++
			}
		}
	}
	return affected, nil
}

func (s *storeImpl) Keys(groupName string, partitions []uint64) ([]string, error) {
	g := s.getGroup(groupName, false)
	if g == nil {
		return nil, nil
	}
	var keys []string
	for _, partition := range partitions {
		if partition >= s.partitionCount {
			return nil, store.NewError(store.RetCInvalidOperation, "partition out of range")
		}
		keys = append(keys, keysOf(g.partitions[partition])...)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *storeImpl) Groups() ([]string, error) {
	var names []string
	s.groups.Range(func(name string, g *group) bool {
		for _, m := range g.partitions {
			if m.Size() > 0 {
				names = append(names, name)
				break
			}
		}
		return true
	})
	sort.Strings(names)
	return names, nil
}

func (s *storeImpl) PartitionCount() uint64 {
	return s.partitionCount
}

func (s *storeImpl) PartitionOf(key string) uint64 {
	return store.PartitionOf(key, s.partitionCount)
}

func (s *storeImpl) OwnedPartitions() []uint64 {
	return store.AllPartitions(s.partitionCount)
}

func (s *storeImpl) Close() error {
	s.groups.Clear()
	return nil
}

func keysOf(m *xsync.MapOf[string, []byte]) []string {
	keys := make([]string, 0, m.Size())
	m.Range(func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}
