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
			name: "Create with data",
			command: Command{
				Type:   CommandTCreateSequential,
				Path:   "/locks/orders",
				Prefix: "write-",
				Data:   []byte("metadata"),
			},
			expected: 1 + 4 + 4 + 13 + 6 + 8, // Type + PathLen + PrefixLen + Path + Prefix + Data
		},
		{
			name: "Delete without prefix",
			command: Command{
				Type: CommandTDelete,
				Path: "/locks/orders",
			},
			expected: 1 + 4 + 4 + 13,
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
			name: "Create with data",
			command: Command{
				Type:   CommandTCreateSequential,
				Path:   "/locks/orders",
				Prefix: "read-",
				Data:   []byte{'P', 'B', 'U', 'F', 0, 255},
			},
		},
		{
			name: "Delete without data",
			command: Command{
				Type: CommandTDelete,
				Path: "/locks/orders/write-0000000001",
			},
		},
		{
			name: "Delete children with empty prefix",
			command: Command{
				Type: CommandTDeleteChildren,
				Path: "/locks/orders",
			},
		},
		{
			name: "Unicode path",
			command: Command{
				Type:   CommandTCreateSequential,
				Path:   "/locks/表",
				Prefix: "write-",
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
			if newCommand.Path != tt.command.Path {
				t.Errorf("Path mismatch: got %q, want %q", newCommand.Path, tt.command.Path)
			}
			if newCommand.Prefix != tt.command.Prefix {
				t.Errorf("Prefix mismatch: got %q, want %q", newCommand.Prefix, tt.command.Prefix)
			}
			if tt.command.Data == nil {
				if len(newCommand.Data) != 0 {
					t.Errorf("Data should be nil or empty, got %v", newCommand.Data)
				}
			} else if !bytes.Equal(newCommand.Data, tt.command.Data) {
				t.Errorf("Data mismatch: got %v, want %v", newCommand.Data, tt.command.Data)
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
			data:        []byte{1, 2, 3},
			expectedErr: "data too short for command",
		},
		{
			name: "Invalid path length",
			data: func() []byte {
				data := make([]byte, headerSize)
				data[0] = byte(CommandTDelete)
				binary.BigEndian.PutUint32(data[1:5], 1000)
				return data
			}(),
			expectedErr: "data too short for path of length 1000 and prefix of length 0",
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
		Type:   CommandTDeleteChildren,
		Path:   "/t",
		Prefix: "write-",
		Data:   []byte("x"),
	}

	expected := make([]byte, cmd.SizeBytes())
	expected[0] = byte(CommandTDeleteChildren)
	binary.BigEndian.PutUint32(expected[1:5], 2)
	binary.BigEndian.PutUint32(expected[5:9], 6)
	copy(expected[9:11], "/t")
	copy(expected[11:17], "write-")
	copy(expected[17:], "x")

	serialized := cmd.Serialize()
	if !bytes.Equal(serialized, expected) {
		t.Errorf("Binary format does not match:\nGot:      %v\nExpected: %v", serialized, expected)
	}
}
