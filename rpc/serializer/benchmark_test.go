package serializer

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/dLock/rpc/common"
)

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	children := make([]string, 64)
	for i := range children {
		children[i] = fmt.Sprintf("read-%010d", i)
	}

	return map[string]common.Message{
		"Empty": {
			MsgType: common.MsgTSuccess,
		},
		"ChildrenRequest": {
			MsgType: common.MsgTChildren,
			Path:    "/dlock/table-lock/orders",
		},
		"SmallChildrenResponse": {
			MsgType:  common.MsgTChildren,
			Children: children[:2],
			Version:  17,
		},
		"LargeChildrenResponse": {
			MsgType:  common.MsgTChildren,
			Children: children,
			Version:  1 << 40,
		},
		"CreateSequential": {
			MsgType: common.MsgTCreateSequential,
			Path:    "/dlock/table-lock/orders",
			Prefix:  "write-",
			Data:    make([]byte, 96), // typical lock metadata
		},
		"LargeData": {
			MsgType: common.MsgTGetData,
			Data:    make([]byte, 1024*16), // 16KB of data
		},
		"WaitChildren": {
			MsgType: common.MsgTWaitChildren,
			Path:    "/dlock/table-lock/orders",
			Version: 12345,
			WaitMs:  30000,
		},
		"CompleteMessage": {
			MsgType:  common.MsgTCustom,
			Path:     "/complete/test/path",
			Prefix:   "write-",
			Data:     []byte("test-value-data"),
			Children: children[:4],
			Version:  10000,
			Count:    20000,
			WaitMs:   30000,
			Ok:       true,
			Code:     3,
			Err:      "This is a test error message",
			Meta:     []byte("test-meta-data-for-benchmarking"),
		},
		"ErrorMessage": {
			MsgType: common.MsgTError,
			Err:     "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
		},
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various message types
func BenchmarkSerialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					_, err := serializer.Serialize(msg)
					if err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various message types
func BenchmarkDeserialize(b *testing.B) {
	messages := benchmarkMessages()
	serializedData := make(map[string]map[string][]byte)

	// Pre-serialize all messages with all serializers
	for name, factory := range testSerializers {
		serializer := factory()
		serializedData[name] = make(map[string][]byte)

		for msgName, msg := range messages {
			data, err := serializer.Serialize(msg)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", msgName, name, err)
			}
			serializedData[name][msgName] = data
		}
	}

	// Benchmark deserialization
	for name, factory := range testSerializers {
		for msgName := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				data := serializedData[name][msgName]
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var msg common.Message
					err := serializer.Deserialize(data, &msg)
					if err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkSize measures and reports the serialized size for each message type
func BenchmarkSize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		serializer := factory()

		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}

				// Report the size as a custom metric
				b.ReportMetric(float64(len(data)), "bytes")

				// Minimal loop to satisfy benchmark requirements
				for i := 0; i < b.N; i++ {
					_ = data
				}
			})
		}
	}
}
