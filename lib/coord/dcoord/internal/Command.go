package internal

import (
	"encoding/binary"
	"fmt"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTCreateSequential CommandType = iota // Create a sequential child node.
	CommandTDelete                              // Delete a childless node.
	CommandTDeleteChildren                      // Delete all matching children of a node at once.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTCreateSequential:
		return "CreateSequential"
	case CommandTDelete:
		return "Delete"
	case CommandTDeleteChildren:
		return "DeleteChildren"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// headerSize is the fixed part of a serialized command: type + path length + prefix length
const headerSize = 1 + 4 + 4

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type   CommandType
	Path   string // the parent for CreateSequential, the target otherwise
	Prefix string // name prefix for CreateSequential and DeleteChildren
	Data   []byte // node data for CreateSequential
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return headerSize + len(command.Path) + len(command.Prefix) + len(command.Data)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for path length (big endian),
// 4 bytes for prefix length (big endian),
// N bytes for path data,
// M bytes for prefix data,
// K bytes for node data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint32(result[1:5], uint32(len(command.Path)))
	binary.BigEndian.PutUint32(result[5:9], uint32(len(command.Prefix)))

	offset := headerSize
	offset += copy(result[offset:], command.Path)
	offset += copy(result[offset:], command.Prefix)
	copy(result[offset:], command.Data)

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	pathLen := int(binary.BigEndian.Uint32(data[1:5]))
	prefixLen := int(binary.BigEndian.Uint32(data[5:9]))

	if len(data) < headerSize+pathLen+prefixLen {
		return fmt.Errorf("data too short for path of length %d and prefix of length %d", pathLen, prefixLen)
	}

	offset := headerSize
	command.Path = string(data[offset : offset+pathLen])
	offset += pathLen
	command.Prefix = string(data[offset : offset+prefixLen])
	offset += prefixLen

	// Extract data if present
	if len(data) > offset {
		dataLen := len(data) - offset
		// Reuse existing buffer if possible to reduce allocations
		if command.Data == nil || cap(command.Data) < dataLen {
			command.Data = make([]byte, dataLen)
		} else {
			command.Data = command.Data[:dataLen]
		}
		copy(command.Data, data[offset:])
	} else {
		command.Data = nil
	}

	return nil
}
