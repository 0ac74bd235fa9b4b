package coord

import (
	"context"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ICoordinator is the interface to a hierarchical, strongly consistent coordination namespace.
// Every method is atomic with respect to the namespace. Errors are returned as *Error
// (or wrapped *Error), so callers can test them with errors.Is against ErrNoNode etc.
type ICoordinator interface {
	// CreateSequential creates a new child of parent whose name is prefix followed by a
	// zero padded sequence number. The sequence is per parent and shared by all prefixes,
	// so sorting children by SequenceOf yields creation order.
	// Missing ancestors of parent are created (without data).
	// It returns the full path of the created node.
	CreateSequential(ctx context.Context, parent, prefix string, data []byte) (path string, err error)
	// Delete removes a node. It fails with ErrNoNode if the node does not exist and
	// with ErrNotEmpty if the node still has children.
	Delete(ctx context.Context, path string) (err error)
	// DeleteChildren removes all direct children of path whose name starts with prefix
	// in one atomic step. An empty prefix matches every child. The children themselves
	// must not have children. It returns how many nodes were removed.
	DeleteChildren(ctx context.Context, path, prefix string) (deleted int, err error)
	// Children lists the names of all direct children of path ordered by creation and returns
	// the current children version of path. The version changes whenever a child is added or removed.
	Children(ctx context.Context, path string) (children []string, cversion uint64, err error)
	// GetData returns the data stored in a node.
	GetData(ctx context.Context, path string) (data []byte, err error)
	// WatchChildren returns a channel that is closed once the children version of path differs
	// from cversion (immediately if it already does), or path stops existing.
	// The channel fires exactly once. It is also closed when ctx is done; callers are expected
	// to check ctx themselves after waking up.
	WatchChildren(ctx context.Context, path string, cversion uint64) (changed <-chan struct{}, err error)
	// Close releases resources held by the coordinator client.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code and a message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("CoordinatorError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is an *Error with the same return code.
// This makes errors.Is(err, coord.ErrNoNode) work for every error produced by NewError.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new Error with the given code and a formatted message.
func Errorf(code RetCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Sentinel values for errors.Is comparisons. Only the code is compared.
var (
	ErrInternal    = NewError(RetCInternalError, "internal error")
	ErrNoNode      = NewError(RetCNoNode, "node does not exist")
	ErrNodeExists  = NewError(RetCNodeExists, "node already exists")
	ErrNotEmpty    = NewError(RetCNotEmpty, "node has children")
	ErrInvalidPath = NewError(RetCInvalidPath, "invalid path")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                   // 1: Operation failed due to an internal error.
	RetCInvalidOperation                // 2: Unknown or malformed operation.
	RetCNoNode                          // 3: The node does not exist.
	RetCNodeExists                      // 4: The node already exists.
	RetCNotEmpty                        // 5: The node still has children.
	RetCInvalidPath                     // 6: The path is malformed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCNoNode:
		return "NoNode"
	case RetCNodeExists:
		return "NodeExists"
	case RetCNotEmpty:
		return "NotEmpty"
	case RetCInvalidPath:
		return "InvalidPath"
	default:
		return fmt.Sprintf("Unknown(%d)", uint64(c))
	}
}
