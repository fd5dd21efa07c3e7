package dstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/gridlock/lib/store"
	"github.com/ValentinKolb/gridlock/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// LockStateMachine is the state machine of one partition (one raft shard).
// It holds the entries of every group that fall into the partition.
//
// Update is serialized by dragonboat, Lookup runs concurrently with Update.
// Values are never modified in place, an update always stores a fresh slice.
// A snapshot recovery swaps the whole group map, so readers load it once per query.
type LockStateMachine struct {
	replicaID uint64
	shardID   uint64
	decode    store.ProcessorDecoder
	groups    atomic.Pointer[groupMap]
}

// groupMap maps a group name to the entries of that group
type groupMap = xsync.MapOf[string, *xsync.MapOf[string, []byte]]

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host.
// The decoder restores the entry processors carried by the raft log.
func CreateStateMachineFactory(decode store.ProcessorDecoder) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		fsm := &LockStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			decode:    decode,
		}
		fsm.groups.Store(xsync.NewMapOf[string, *xsync.MapOf[string, []byte]]())
		return fsm
	}
}

func (fsm *LockStateMachine) state() *groupMap {
	return fsm.groups.Load()
}

func (fsm *LockStateMachine) group(name string) *xsync.MapOf[string, []byte] {
	g, _ := fsm.state().LoadOrCompute(name, func() *xsync.MapOf[string, []byte] {
		return xsync.NewMapOf[string, []byte]()
	})
	return g
}

// Lookup handles read-only queries.
func (fsm *LockStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGet:
		p, err := fsm.decode(q.Processor)
		if err != nil {
			return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("failed to decode processor: %v", err))
		}
		var (
			value  []byte
			exists bool
		)
		if g, ok := fsm.state().Load(q.Group); ok {
			value, exists = g.Load(q.Key)
		}
		_, _, result, err := store.Apply(p, q.Key, value, exists)
		if err != nil {
			return nil, err
		}
		return internal.QueryResult{Result: result}, nil
	case internal.QueryTKeys:
		g, ok := fsm.state().Load(q.Group)
		if !ok {
			return []string{}, nil
		}
		return sortedKeys(g), nil
	case internal.QueryTGroups:
		var names []string
		fsm.state().Range(func(name string, g *xsync.MapOf[string, []byte]) bool {
			if g.Size() > 0 {
				names = append(names, name)
			}
			return true
		})
		sort.Strings(names)
		return names, nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update applies commands to the partition.
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *LockStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	var cmd internal.Command
	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = errorResult(store.RetCInvalidOperation, "empty command ignored")
			continue
		}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = errorResult(store.RetCInternalError, fmt.Sprintf("failed to deserialize command: %v", err))
			continue
		}
		p, err := fsm.decode(cmd.Processor)
		if err != nil {
			entries[idx].Result = errorResult(store.RetCInvalidOperation, fmt.Sprintf("failed to decode processor: %v", err))
			continue
		}

		switch cmd.Type {
		case internal.CommandTInvoke:
			result, _, err := fsm.apply(fsm.group(cmd.Group), cmd.Key, p)
			if err != nil {
				entries[idx].Result = resultOf(err)
				continue
			}
			entries[idx].Result = sm.Result{
				Value: uint64(store.RetCSuccess),
				Data:  result,
			}
		case internal.CommandTInvokeAll:
			entries[idx].Result = fsm.applyAll(cmd.Group, p)
		default:
			entries[idx].Result = errorResult(store.RetCInvalidOperation, fmt.Sprintf("unknown Command operation: %s", cmd.Type))
		}
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine of shard %d took long to update. Batch updated %d entries, took %.2fms", fsm.shardID, len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply runs the processor on one entry and stores or removes the new value
func (fsm *LockStateMachine) apply(g *xsync.MapOf[string, []byte], key string, p store.EntryProcessor) (result []byte, changed bool, err error) {
	old, exists := g.Load(key)
	value, keep, result, err := store.Apply(p, key, old, exists)
	if err != nil {
		return nil, false, err
	}
	if keep {
		g.Store(key, value)
	} else if exists {
		g.Delete(key)
	}
	return result, exists != keep || !bytes.Equal(old, value), nil
}

// applyAll runs the processor on every entry of the group in key order.
// The result data holds the number of changed entries (8 bytes, big endian).
func (fsm *LockStateMachine) applyAll(group string, p store.EntryProcessor) sm.Result {
	g, ok := fsm.state().Load(group)
	if !ok {
		return sm.Result{Value: uint64(store.RetCSuccess), Data: binary.BigEndian.AppendUint64(nil, 0)}
	}

	var (
		affected uint64
		firstErr error
	)
	for _, key := range sortedKeys(g) {
		_, changed, err := fsm.apply(g, key, p)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if changed {
			affected++
		}
	}
	if firstErr != nil {
		return resultOf(firstErr)
	}
	return sm.Result{Value: uint64(store.RetCSuccess), Data: binary.BigEndian.AppendUint64(nil, affected)}
}

// PrepareSnapshot copies the state. It is called while no Update is running.
func (fsm *LockStateMachine) PrepareSnapshot() (interface{}, error) {
	snapshot := make(map[string]map[string][]byte)
	fsm.state().Range(func(name string, g *xsync.MapOf[string, []byte]) bool {
		entries := make(map[string][]byte, g.Size())
		g.Range(func(key string, value []byte) bool {
			entries[key] = value
			return true
		})
		snapshot[name] = entries
		return true
	})
	return snapshot, nil
}

// SaveSnapshot writes the copy made by PrepareSnapshot as gob
func (fsm *LockStateMachine) SaveSnapshot(ctx interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	snapshot, ok := ctx.(map[string]map[string][]byte)
	if !ok {
		return fmt.Errorf("invalid snapshot context type: %T", ctx)
	}
	return gob.NewEncoder(writer).Encode(snapshot)
}

// RecoverFromSnapshot replaces the state with the snapshot content
func (fsm *LockStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	var snapshot map[string]map[string][]byte
	if err := gob.NewDecoder(r).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	groups := xsync.NewMapOf[string, *xsync.MapOf[string, []byte]]()
	for name, entries := range snapshot {
		g := xsync.NewMapOf[string, []byte]()
		for key, value := range entries {
			g.Store(key, value)
		}
		groups.Store(name, g)
	}
	fsm.groups.Store(groups)
	return nil
}

// Close performs any necessary cleanup.
func (fsm *LockStateMachine) Close() error {
	fsm.state().Clear()
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func sortedKeys(g *xsync.MapOf[string, []byte]) []string {
	keys := make([]string, 0, g.Size())
	g.Range(func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys
}

func errorResult(code store.RetCode, msg string) sm.Result {
	return sm.Result{Value: uint64(code), Data: []byte(msg)}
}

// resultOf keeps the code of store errors (e.g. LockNotHeld) so the caller can rebuild them
func resultOf(err error) sm.Result {
	if storeErr, ok := err.(*store.Error); ok {
		return errorResult(storeErr.Code, storeErr.Msg)
	}
	return errorResult(store.RetCInternalError, err.Error())
}
