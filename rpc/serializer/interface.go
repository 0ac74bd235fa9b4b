package serializer

import "github.com/ValentinKolb/dLock/rpc/common"

// IRPCSerializer converts Messages to bytes and back. Client and server must use the same implementation.
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize deserializes a byte array into a Message.
	// msg is overwritten completely, fields missing in b are zero afterwards.
	// It returns an error if any
	Deserialize(b []byte, msg *common.Message) error
}
