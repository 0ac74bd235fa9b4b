package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dLock/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// CreateSequential request
		{
			MsgType: common.MsgTCreateSequential,
			Path:    "/dlock/table-lock/orders",
			Prefix:  "write-",
			Data:    []byte("PBUF\x0a\x06orders"),
		},

		// Children response
		{
			MsgType:  common.MsgTChildren,
			Children: []string{"read-0000000001", "write-0000000002"},
			Version:  42,
		},

		// DeleteChildren response
		{
			MsgType: common.MsgTDeleteChildren,
			Count:   3,
		},

		// WaitChildren request and response
		{
			MsgType: common.MsgTWaitChildren,
			Path:    "/locks/orders",
			Version: 7,
			WaitMs:  30000,
		},
		{
			MsgType: common.MsgTWaitChildren,
			Ok:      true,
		},

		// Coordinator error response
		{
			MsgType: common.MsgTDelete,
			Code:    5,
			Err:     "node /locks/orders has children",
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},

		// Message with all fields filled
		{
			MsgType:  common.MsgTCustom,
			Path:     "/a/b",
			Prefix:   "p-",
			Data:     []byte("data"),
			Children: []string{"x"},
			Version:  1,
			Count:    2,
			WaitMs:   3,
			Ok:       true,
			Code:     4,
			Err:      "err",
			Meta:     []byte("test-meta-data"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestDeserializeOverwritesTarget checks that a reused message does not keep fields of the previous one
func TestDeserializeOverwritesTarget(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(*common.NewWaitChildrenResponse(false, nil))
			if err != nil {
				t.Fatalf("Serialize() error = %v", err)
			}

			result := common.Message{
				MsgType:  common.MsgTChildren,
				Path:     "/stale",
				Children: []string{"write-0000000001"},
				Version:  9,
				Ok:       true,
				Err:      "stale",
			}
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			want := common.Message{MsgType: common.MsgTWaitChildren}
			if !reflect.DeepEqual(result, want) {
				t.Errorf("Deserialize() = %+v, want %+v", result, want)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTCustom; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	// Test cases for empty or zero values
	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty data slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTGetData,
				Data:    []byte{},
			},
		},
		{
			name: "Empty children list but not nil",
			msg: common.Message{
				MsgType:  common.MsgTChildren,
				Children: []string{},
				Version:  1,
			},
		},
		{
			name: "Children with empty name",
			msg: common.Message{
				MsgType:  common.MsgTChildren,
				Children: []string{"", "a"},
			},
		},
		{
			name: "Empty meta slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTCustom,
				Meta:    []byte{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Serialize
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			// Deserialize into a dirty message, every field must be overwritten
			result := common.Message{Path: "stale", Ok: true, Err: "stale", Data: []byte("stale")}
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			// nil and empty slices are distinguished by the binary format
			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %#v\nResult: %#v", tc.msg, result)
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0}, // Message type and half of the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for path",
			data:        []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims path length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for data",
			data:        []byte{1, 0, 4, 0, 0, 0, 10}, // Claims data length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Missing version",
			data:        []byte{1, 0, 16, 0, 0, 0}, // Claims a version but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Too many children",
			data:        []byte{1, 0, 8, 0xff, 0xff, 0xff, 0xff}, // Claims 2^32-1 children
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
