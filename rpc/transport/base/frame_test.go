package base

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		shardID   uint64
		requestID uint64
		data      []byte
		buf       []byte
	}{
		{"empty payload", 1, 2, nil, nil},
		{"small payload", 100, 1 << 40, []byte("hello"), nil},
		{"pooled buffer", 7, 8, []byte("payload larger than the header"), make([]byte, 64)},
		{"buffer too small", 7, 9, bytes.Repeat([]byte{'x'}, 256), make([]byte, 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			errCh := make(chan error, 1)
			go func() { errCh <- writeFrame(client, tt.shardID, tt.requestID, tt.data) }()

			shardID, requestID, data, err := readFrame(server, tt.buf)
			if err != nil {
				t.Fatalf("readFrame() failed: %v", err)
			}
			if err := <-errCh; err != nil {
				t.Fatalf("writeFrame() failed: %v", err)
			}

			if shardID != tt.shardID || requestID != tt.requestID {
				t.Errorf("header = (%d, %d), want (%d, %d)", shardID, requestID, tt.shardID, tt.requestID)
			}
			if !bytes.Equal(data, tt.data) {
				t.Errorf("payload = %q, want %q", data, tt.data)
			}
		})
	}
}

func TestReadFrameClosed(t *testing.T) {
	client, server := net.Pipe()
	client.Close()
	if _, _, _, err := readFrame(server, nil); err == nil {
		t.Errorf("readFrame() on closed connection succeeded")
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// header announcing a payload above the limit
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(header[:8], 1)
	binary.BigEndian.PutUint64(header[8:16], 2)
	binary.BigEndian.PutUint32(header[16:20], maxFrameSize+1)
	go func() { _, _ = client.Write(header) }()

	if _, _, _, err := readFrame(server, nil); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("readFrame() error = %v, want ErrFrameTooLarge", err)
	}
}
