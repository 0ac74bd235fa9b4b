package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dLock/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
//
//	1 byte MsgType | 2 bytes flags (big endian) | present fields in flag order
//
// Strings and byte slices are length prefixed (uint32), numbers are uint64,
// Children is a uint32 count followed by length prefixed names.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasPath     uint16 = 1 << 0
	hasPrefix   uint16 = 1 << 1
	hasData     uint16 = 1 << 2
	hasChildren uint16 = 1 << 3
	hasVersion  uint16 = 1 << 4
	hasCount    uint16 = 1 << 5
	hasWaitMs   uint16 = 1 << 6
	hasOk       uint16 = 1 << 7
	hasCode     uint16 = 1 << 8
	hasErr      uint16 = 1 << 9
	hasMeta     uint16 = 1 << 10
)

const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	result := make([]byte, headerSize, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags
	var flags uint16

	if msg.Path != "" {
		flags |= hasPath
		result = appendString(result, msg.Path)
	}
	if msg.Prefix != "" {
		flags |= hasPrefix
		result = appendString(result, msg.Prefix)
	}
	if msg.Data != nil {
		flags |= hasData
		result = appendBytes(result, msg.Data)
	}
	if msg.Children != nil {
		flags |= hasChildren
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Children)))
		for _, child := range msg.Children {
			result = appendString(result, child)
		}
	}
	if msg.Version > 0 {
		flags |= hasVersion
		result = binary.BigEndian.AppendUint64(result, msg.Version)
	}
	if msg.Count > 0 {
		flags |= hasCount
		result = binary.BigEndian.AppendUint64(result, msg.Count)
	}
	if msg.WaitMs > 0 {
		flags |= hasWaitMs
		result = binary.BigEndian.AppendUint64(result, msg.WaitMs)
	}
	if msg.Ok {
		// presence of the flag is the value
		flags |= hasOk
	}
	if msg.Code > 0 {
		flags |= hasCode
		result = binary.BigEndian.AppendUint64(result, msg.Code)
	}
	if msg.Err != "" {
		flags |= hasErr
		result = appendString(result, msg.Err)
	}
	if msg.Meta != nil {
		flags |= hasMeta
		result = appendBytes(result, msg.Meta)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type and flags
	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])

	r := reader{data: data, pos: headerSize}

	msg.Path = ""
	if flags&hasPath != 0 {
		msg.Path = string(r.bytes("path"))
	}

	msg.Prefix = ""
	if flags&hasPrefix != 0 {
		msg.Prefix = string(r.bytes("prefix"))
	}

	msg.Data = nil
	if flags&hasData != 0 {
		// copy, the input buffer may be reused by the transport
		msg.Data = append([]byte{}, r.bytes("data")...)
	}

	msg.Children = nil
	if flags&hasChildren != 0 {
		n := r.uint32("children count")
		if r.err == nil && int(n) > len(data) {
			return fmt.Errorf("invalid children count %d", n)
		}
		msg.Children = make([]string, 0, n)
		for i := uint32(0); i < n && r.err == nil; i++ {
			msg.Children = append(msg.Children, string(r.bytes("child")))
		}
	}

	msg.Version = 0
	if flags&hasVersion != 0 {
		msg.Version = r.uint64("version")
	}

	msg.Count = 0
	if flags&hasCount != 0 {
		msg.Count = r.uint64("count")
	}

	msg.WaitMs = 0
	if flags&hasWaitMs != 0 {
		msg.WaitMs = r.uint64("waitMs")
	}

	msg.Ok = flags&hasOk != 0

	msg.Code = 0
	if flags&hasCode != 0 {
		msg.Code = r.uint64("code")
	}

	msg.Err = ""
	if flags&hasErr != 0 {
		msg.Err = string(r.bytes("error"))
	}

	msg.Meta = nil
	if flags&hasMeta != 0 {
		msg.Meta = append([]byte{}, r.bytes("meta")...)
	}

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 2 bytes for flags
	size := headerSize

	// Add sizes for fields that require length encoding
	if msg.Path != "" {
		size += 4 + len(msg.Path)
	}
	if msg.Prefix != "" {
		size += 4 + len(msg.Prefix)
	}
	if msg.Data != nil {
		size += 4 + len(msg.Data)
	}
	if msg.Children != nil {
		size += 4
		for _, child := range msg.Children {
			size += 4 + len(child)
		}
	}
	if msg.Version > 0 {
		size += 8
	}
	if msg.Count > 0 {
		size += 8
	}
	if msg.WaitMs > 0 {
		size += 8
	}
	if msg.Code > 0 {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}

func appendString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

func appendBytes(b []byte, v []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(v)))
	return append(b, v...)
}

// reader reads fields sequentially. After the first error all reads return zero values
// and err keeps the first error.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", field)
		return nil
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v
}

func (r *reader) uint32(field string) uint32 {
	v := r.take(4, field)
	if v == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v)
}

func (r *reader) uint64(field string) uint64 {
	v := r.take(8, field)
	if v == nil {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func (r *reader) bytes(field string) []byte {
	n := r.uint32(field + " length")
	return r.take(int(n), field)
}
