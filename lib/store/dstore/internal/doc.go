// Package internal provides the communication protocol structures and serialization
// logic for the dstore package. It defines the wire format used to transmit operations
// between the store client and the distributed state machine.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
// The package consists of two main components:
//
//   - Command System: write operations (Invoke, InvokeAll) that carry a marshalled
//     entry processor. Commands are serialized and proposed to the RAFT shard of the
//     partition, then decoded and applied by every replica.
//
//   - Query System: read operations (Get, Keys, Groups). Queries are executed locally on
//     the state machine and therefore do not require serialization.
//
// Command Format:
//
//	- 1 byte: Command type (Invoke, InvokeAll)
//	- 4 bytes: Group length (uint32, big endian)
//	- 4 bytes: Key length (uint32, big endian, 0 for InvokeAll)
//	- N bytes: Group data
//	- N bytes: Key data
//	- M bytes: Processor data (the MarshalBinary output of the processor)
//
// Thread Safety:
//
//	The types in this package are not thread-safe and should not be shared
//	across goroutines without external synchronization. However, this is not
//	typically an issue as the RAFT protocol ensures sequential processing of
//	commands on the state machine.
package internal
