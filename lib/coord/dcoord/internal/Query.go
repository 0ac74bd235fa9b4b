package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTChildren QueryType = iota // List the children of a node.
	QueryTGet                       // Retrieve the data of a node.
	QueryTCVersion                  // Retrieve the children version of a node.
	QueryTInfo                      // Retrieve statistics about the namespace.
)

func (q QueryType) String() string {
	switch q {
	case QueryTChildren:
		return "Children"
	case QueryTGet:
		return "Get"
	case QueryTCVersion:
		return "CVersion"
	case QueryTInfo:
		return "Info"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type QueryType // The type of Query to perform.
	Path string    // The path for the Query (empty for QueryTInfo).
}

// ChildrenResult is the result of a QueryTChildren operation.
type ChildrenResult struct {
	Children []string
	CVersion uint64
}

// CVersionResult is the result of a QueryTCVersion operation.
// Ok is false if the node does not exist.
type CVersionResult struct {
	CVersion uint64
	Ok       bool
}

// InfoResult is the result of a QueryTInfo operation.
type InfoResult struct {
	Nodes     int
	Watchers  int
	LastIndex uint64
}
