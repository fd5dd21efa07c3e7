package internal

import (
	"encoding/binary"
	"fmt"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTInvoke    CommandType = iota // Apply a processor to one entry.
	CommandTInvokeAll                    // Apply a processor to every entry of a group in the shard.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTInvoke:
		return "Invoke"
	case CommandTInvokeAll:
		return "InvokeAll"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type      CommandType
	Group     string
	Key       string
	Processor []byte // the marshalled store.EntryProcessor
}

// headerSize is Type + GroupLen + KeyLen
const headerSize = 1 + 4 + 4

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return headerSize + len(command.Group) + len(command.Key) + len(command.Processor)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for group length (big endian),
// 4 bytes for key length (big endian),
// N bytes for group data,
// N bytes for key data,
// N bytes for processor data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint32(result[1:5], uint32(len(command.Group)))
	binary.BigEndian.PutUint32(result[5:9], uint32(len(command.Key)))

	offset := headerSize
	offset += copy(result[offset:], command.Group)
	offset += copy(result[offset:], command.Key)
	copy(result[offset:], command.Processor)

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	groupLen := int(binary.BigEndian.Uint32(data[1:5]))
	keyLen := int(binary.BigEndian.Uint32(data[5:9]))

	if len(data) < headerSize+groupLen+keyLen {
		return fmt.Errorf("data too short for group of length %d and key of length %d", groupLen, keyLen)
	}

	offset := headerSize
	command.Group = string(data[offset : offset+groupLen])
	offset += groupLen
	command.Key = string(data[offset : offset+keyLen])
	offset += keyLen

	if len(data) > offset {
		command.Processor = append(command.Processor[:0], data[offset:]...)
	} else {
		command.Processor = nil
	}

	return nil
}
