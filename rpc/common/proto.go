package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dLock/lib/coord"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Path     string   `json:"path,omitempty"`     // Used for: all requests (parent for CreateSequential), CreateSequential (response)
	Prefix   string   `json:"prefix,omitempty"`   // Used for: CreateSequential, DeleteChildren
	Data     []byte   `json:"data,omitempty"`     // Used for: CreateSequential (request), GetData (response)
	Children []string `json:"children,omitempty"` // Used for: Children (response)
	Version  uint64   `json:"version,omitempty"`  // Used for: Children (response), WaitChildren (request)
	Count    uint64   `json:"count,omitempty"`    // Used for: DeleteChildren (response)
	WaitMs   uint64   `json:"waitMs,omitempty"`   // Used for: WaitChildren (request)

	// Response only fields
	Ok   bool   `json:"ok,omitempty"`   // Used for: WaitChildren (response), true if the children changed
	Code uint64 `json:"code,omitempty"` // coord.RetCode of Err, 0 for errors that are not coordinator errors
	Err  string `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Unused, can be used for additional Adapters
}

// AsError converts the error fields of a response back into an error.
// Coordinator errors keep their return code, so errors.Is(err, coord.ErrNoNode) works on the client.
func (m *Message) AsError() error {
	if m.Err == "" && m.MsgType != MsgTError {
		return nil
	}
	if m.Code != 0 {
		return coord.NewError(coord.RetCode(m.Code), m.Err)
	}
	return errors.New(m.Err)
}

// setErr stores err in the response fields
func (m *Message) setErr(err error) *Message {
	if err == nil {
		return m
	}
	var ce *coord.Error
	if errors.As(err, &ce) {
		m.Code = uint64(ce.Code)
		m.Err = ce.Msg
	} else {
		m.Err = err.Error()
	}
	return m
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewCreateSequentialRequest creates a new CreateSequential request
func NewCreateSequentialRequest(parent, prefix string, data []byte) *Message {
	return &Message{
		MsgType: MsgTCreateSequential,
		Path:    parent,
		Prefix:  prefix,
		Data:    data,
	}
}

// NewCreateSequentialResponse creates a new CreateSequential response
func NewCreateSequentialResponse(path string, err error) *Message {
	msg := &Message{
		MsgType: MsgTCreateSequential,
		Path:    path,
	}
	return msg.setErr(err)
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(path string) *Message {
	return &Message{
		MsgType: MsgTDelete,
		Path:    path,
	}
}

// NewDeleteResponse creates a new Delete response
func NewDeleteResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTDelete,
	}
	return msg.setErr(err)
}

// NewDeleteChildrenRequest creates a new DeleteChildren request
func NewDeleteChildrenRequest(path, prefix string) *Message {
	return &Message{
		MsgType: MsgTDeleteChildren,
		Path:    path,
		Prefix:  prefix,
	}
}

// NewDeleteChildrenResponse creates a new DeleteChildren response
func NewDeleteChildrenResponse(deleted int, err error) *Message {
	msg := &Message{
		MsgType: MsgTDeleteChildren,
		Count:   uint64(deleted),
	}
	return msg.setErr(err)
}

// NewChildrenRequest creates a new Children request
func NewChildrenRequest(path string) *Message {
	return &Message{
		MsgType: MsgTChildren,
		Path:    path,
	}
}

// NewChildrenResponse creates a new Children response
func NewChildrenResponse(children []string, cversion uint64, err error) *Message {
	msg := &Message{
		MsgType:  MsgTChildren,
		Children: children,
		Version:  cversion,
	}
	return msg.setErr(err)
}

// NewGetDataRequest creates a new GetData request
func NewGetDataRequest(path string) *Message {
	return &Message{
		MsgType: MsgTGetData,
		Path:    path,
	}
}

// NewGetDataResponse creates a new GetData response
func NewGetDataResponse(data []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTGetData,
		Data:    data,
	}
	return msg.setErr(err)
}

// NewWaitChildrenRequest creates a new WaitChildren request. The server answers once the
// children version of path differs from cversion or after waitMs milliseconds.
func NewWaitChildrenRequest(path string, cversion uint64, waitMs uint64) *Message {
	return &Message{
		MsgType: MsgTWaitChildren,
		Path:    path,
		Version: cversion,
		WaitMs:  waitMs,
	}
}

// NewWaitChildrenResponse creates a new WaitChildren response
func NewWaitChildrenResponse(changed bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTWaitChildren,
		Ok:      changed,
	}
	return msg.setErr(err)
}

// NewCustomRequest creates a new Custom request
func NewCustomRequest(meta []byte) *Message {
	return &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
}

// NewCustomResponse creates a new Custom response
func NewCustomResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
	return msg.setErr(err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:          "success",
	MsgTError:            "error",
	MsgTCreateSequential: "createSequential",
	MsgTDelete:           "delete",
	MsgTDeleteChildren:   "deleteChildren",
	MsgTChildren:         "children",
	MsgTGetData:          "getData",
	MsgTWaitChildren:     "waitChildren",
	MsgTCustom:           "custom",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// ICoordinator operations

	MsgTCreateSequential // Create a sequential child node
	MsgTDelete           // Delete a node
	MsgTDeleteChildren   // Delete all children matching a prefix
	MsgTChildren         // List the children and the children version
	MsgTGetData          // Read the data of a node
	MsgTWaitChildren     // Wait until the children version changes (long poll)

	// Custom operations

	MsgTCustom // Custom operation type
)
