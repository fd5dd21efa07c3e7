package store

import (
	"encoding"

	"github.com/ValentinKolb/gridlock/lib/util"
)

// Entry is the view of a single stored value handed to an EntryProcessor.
// A processor deletes the entry by setting Exists to false or by leaving Value empty.
type Entry struct {
	Key    string
	Value  []byte
	Exists bool
}

// EntryProcessor is a function object applied to one entry under the per-key serialization
// of the store. Replicated stores ship processors to other nodes, so every processor must
// be able to marshal itself; the receiving side restores it with a ProcessorDecoder.
type EntryProcessor interface {
	encoding.BinaryMarshaler

	// Process mutates the entry in place and returns an opaque result for the caller.
	// Returning an error leaves the entry untouched.
	Process(entry *Entry) (result []byte, err error)
}

// ProcessorDecoder restores an EntryProcessor from the bytes produced by its MarshalBinary method.
// It is injected into replicated stores so they do not depend on the processor implementations.
type ProcessorDecoder func(data []byte) (EntryProcessor, error)

// Apply runs the processor on a copy of the given value and reports the new value.
// keep is false if the entry must be removed afterward.
// Stores use this helper so that the deletion rules are the same for every implementation.
func Apply(p EntryProcessor, key string, value []byte, exists bool) (newValue []byte, keep bool, result []byte, err error) {
	entry := &Entry{Key: key, Exists: exists}
	if exists {
		entry.Value = append([]byte(nil), value...)
	}

	result, err = p.Process(entry)
	if err != nil {
		return value, exists, nil, err
	}

	if !entry.Exists || len(entry.Value) == 0 {
		return nil, false, result, nil
	}
	return entry.Value, true, result, nil
}

// PartitionOf returns the partition of a key for a store with partitionCount partitions.
func PartitionOf(key string, partitionCount uint64) uint64 {
	if partitionCount == 0 {
		return 0
	}
	return util.HashString(key, 0) % partitionCount
}

// AllPartitions returns the ids 0..partitionCount-1.
func AllPartitions(partitionCount uint64) []uint64 {
	partitions := make([]uint64, partitionCount)
	for i := range partitions {
		partitions[i] = uint64(i)
	}
	return partitions
}
