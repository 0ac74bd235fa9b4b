package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dLock/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding.
// The message type is written as its name (e.g. "waitChildren"), which keeps captured traffic readable.
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// omitempty fields are missing in the input and must not keep old values
	*msg = common.Message{}
	if err := json.Unmarshal(b, msg); err != nil {
		return fmt.Errorf("json: decoding message: %w", err)
	}
	return nil
}
