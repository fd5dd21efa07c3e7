package internal

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Invoke with group, key and processor",
			command: Command{
				Type:      CommandTInvoke,
				Group:     "orders",
				Key:       "order:1",
				Processor: []byte{1, 2, 3},
			},
			expected: 1 + 4 + 4 + 6 + 7 + 3, // Type + GroupLen + KeyLen + Group + Key + Processor
		},
		{
			name: "InvokeAll without key",
			command: Command{
				Type:      CommandTInvokeAll,
				Group:     "orders",
				Processor: []byte{9},
			},
			expected: 1 + 4 + 4 + 6 + 0 + 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Invoke command",
			command: Command{
				Type:      CommandTInvoke,
				Group:     "orders",
				Key:       "order:1",
				Processor: []byte{1, 0, 0, 0, 7},
			},
		},
		{
			name: "Command without processor",
			command: Command{
				Type:  CommandTInvoke,
				Group: "orders",
				Key:   "order:1",
			},
		},
		{
			name: "InvokeAll with empty key",
			command: Command{
				Type:      CommandTInvokeAll,
				Group:     "sessions",
				Processor: []byte{10, 0, 255},
			},
		},
		{
			name: "Command with Unicode group and key",
			command: Command{
				Type:      CommandTInvoke,
				Group:     "缓存",
				Key:       "你好世界",
				Processor: []byte("unicode test"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var newCommand Command
			if err := newCommand.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if newCommand.Type != tt.command.Type {
				t.Errorf("Type mismatch: got %v, want %v", newCommand.Type, tt.command.Type)
			}
			if newCommand.Group != tt.command.Group {
				t.Errorf("Group mismatch: got %q, want %q", newCommand.Group, tt.command.Group)
			}
			if newCommand.Key != tt.command.Key {
				t.Errorf("Key mismatch: got %q, want %q", newCommand.Key, tt.command.Key)
			}
			if tt.command.Processor == nil {
				if len(newCommand.Processor) != 0 {
					t.Errorf("Processor should be empty, got %v", newCommand.Processor)
				}
			} else if !bytes.Equal(newCommand.Processor, tt.command.Processor) {
				t.Errorf("Processor mismatch: got %v, want %v", newCommand.Processor, tt.command.Processor)
			}

			if tt.command.SizeBytes() != len(data) {
				t.Errorf("SizeBytes() = %d, but serialized data length = %d",
					tt.command.SizeBytes(), len(data))
			}
		})
	}
}

// TestDeserializeErrors tests error cases in Deserialize
func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expectedErr string
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectedErr: "data too short for command",
		},
		{
			name:        "Data too short (less than header)",
			data:        []byte{1, 2, 3, 4, 5},
			expectedErr: "data too short for command",
		},
		{
			name: "Invalid key length",
			data: func() []byte {
				data := make([]byte, headerSize)
				data[0] = byte(CommandTInvoke)
				binary.BigEndian.PutUint32(data[1:5], 0)
				binary.BigEndian.PutUint32(data[5:9], 1000)
				return data
			}(),
			expectedErr: "data too short for group of length 0 and key of length 1000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			err := cmd.Deserialize(tt.data)

			if err == nil {
				t.Fatalf("Expected error but got nil")
			}
			if err.Error() != tt.expectedErr {
				t.Errorf("Expected error %q, got %q", tt.expectedErr, err.Error())
			}
		})
	}
}

// TestBinaryFormat tests the exact binary format of serialized commands
func TestBinaryFormat(t *testing.T) {
	cmd := Command{
		Type:      CommandTInvokeAll,
		Group:     "grp",
		Key:       "testkey",
		Processor: []byte("proc"),
	}

	expected := make([]byte, cmd.SizeBytes())
	expected[0] = byte(CommandTInvokeAll)
	binary.BigEndian.PutUint32(expected[1:5], 3)
	binary.BigEndian.PutUint32(expected[5:9], 7)
	copy(expected[9:12], "grp")
	copy(expected[12:19], "testkey")
	copy(expected[19:], "proc")

	serialized := cmd.Serialize()
	if !bytes.Equal(serialized, expected) {
		t.Errorf("Binary format does not match:\nGot:      %v\nExpected: %v", serialized, expected)
	}
}

// TestBufferReuse tests that Deserialize does not alias the input buffer
func TestBufferReuse(t *testing.T) {
	cmd := Command{Type: CommandTInvoke, Group: "g", Key: "k", Processor: []byte("original")}
	data := cmd.Serialize()

	var decoded Command
	if err := decoded.Deserialize(data); err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}

	// raft reuses entry buffers, the processor must be a copy
	data[len(data)-1] = 'X'
	if !bytes.Equal(decoded.Processor, []byte("original")) {
		t.Errorf("Processor aliases the input buffer: got %q", decoded.Processor)
	}
}
