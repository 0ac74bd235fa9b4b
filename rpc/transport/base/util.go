package base

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	// frameHeaderSize is shardId (8) + requestID (8) + data length (4)
	frameHeaderSize = 20
	// maxFrameSize bounds the payload of a single frame. Coordinator messages are small,
	// a larger length means a corrupt stream or a peer speaking another protocol.
	maxFrameSize = 64 << 20
)

// ErrFrameTooLarge is returned by readFrame if the announced payload exceeds maxFrameSize
var ErrFrameTooLarge = errors.New("frame too large")

// writeFrame writes a frame to the connection with the format:
// - 8 bytes: shardId (uint64, big endian)
// - 8 bytes: requestID (uint64, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn net.Conn, shardID uint64, requestID uint64, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint64(header[:8], shardID)
	binary.BigEndian.PutUint64(header[8:16], requestID)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(data)))

	// header and payload in one writev call
	b := net.Buffers{header[:], data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from the connection using the provided buffer.
// The payload is read into buf if it fits, otherwise a new buffer is allocated.
func readFrame(conn net.Conn, buf []byte) (uint64, uint64, []byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return 0, 0, nil, err
	}

	shardID := binary.BigEndian.Uint64(header[:8])
	requestID := binary.BigEndian.Uint64(header[8:16])
	contentLength := int(binary.BigEndian.Uint32(header[16:20]))

	if contentLength == 0 {
		return shardID, requestID, []byte{}, nil
	}
	if contentLength > maxFrameSize {
		return 0, 0, nil, fmt.Errorf("%w: %d bytes announced", ErrFrameTooLarge, contentLength)
	}

	if len(buf) < contentLength {
		buf = make([]byte, contentLength)
	}
	if _, err := io.ReadFull(conn, buf[:contentLength]); err != nil {
		return 0, 0, nil, err
	}
	return shardID, requestID, buf[:contentLength], nil
}
