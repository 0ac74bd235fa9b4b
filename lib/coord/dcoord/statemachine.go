package dcoord

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/lib/coord/dcoord/internal"
	"github.com/ValentinKolb/dLock/lib/coord/tree"
	"github.com/ValentinKolb/dLock/lib/coord/watch"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// CoordStateMachine is a state machine implementation for Dragonboat RAFT
// holding a replica of the coordination namespace.
type CoordStateMachine struct {
	replicaID uint64
	shardID   uint64
	tree      *tree.Tree
	hub       *watch.Hub
	lastIndex atomic.Uint64
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host.
// The hub is notified after every applied update, so coordinators on the same node host that share the hub
// can serve WatchChildren without polling. Use one hub per shard.
func CreateStateMachineFactory(hub *watch.Hub) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &CoordStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			tree:      tree.New(),
			hub:       hub,
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding tree method.
func (fsm *CoordStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, coord.Errorf(coord.RetCInternalError, "invalid Query type: %T", itf)
	}

	switch q.Type {
	case internal.QueryTChildren:
		children, cversion, err := fsm.tree.Children(q.Path)
		if err != nil {
			return nil, err
		}
		return internal.ChildrenResult{Children: children, CVersion: cversion}, nil
	case internal.QueryTGet:
		return fsm.tree.Get(q.Path)
	case internal.QueryTCVersion:
		cversion, ok := fsm.tree.CVersion(q.Path)
		return internal.CVersionResult{CVersion: cversion, Ok: ok}, nil
	case internal.QueryTInfo:
		return internal.InfoResult{
			Nodes:     fsm.tree.Len(),
			Watchers:  fsm.hub.Len(),
			LastIndex: fsm.lastIndex.Load(),
		}, nil
	default:
		return nil, coord.Errorf(coord.RetCInvalidOperation, "unknown Query operation: %d", q.Type)
	}
}

// Update applies write commands to the namespace.
// All write operations are serialized into []byte and are accessible via the entries struct.
//
// The result of an entry carries the RetCode in Value. On success Data holds the created path
// (CreateSequential) or the number of removed nodes (DeleteChildren, big endian uint64),
// on failure it holds the error message.
func (fsm *CoordStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	var changed []string
	cmd := internal.Command{}
	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(coord.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: uint64(coord.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}

		var (
			data  []byte
			paths []string
			err   error
		)
		switch cmd.Type {
		case internal.CommandTCreateSequential:
			var path string
			path, paths, err = fsm.tree.CreateSequential(cmd.Path, cmd.Prefix, cmd.Data)
			data = []byte(path)
		case internal.CommandTDelete:
			paths, err = fsm.tree.Delete(cmd.Path)
		case internal.CommandTDeleteChildren:
			var n int
			n, paths, err = fsm.tree.DeleteChildren(cmd.Path, cmd.Prefix)
			data = binary.BigEndian.AppendUint64(nil, uint64(n))
		default:
			err = coord.Errorf(coord.RetCInvalidOperation, "unknown Command operation: %s", cmd.Type)
		}

		changed = append(changed, paths...)
		entries[idx].Result = toResult(data, err)
	}
	fsm.lastIndex.Store(entries[len(entries)-1].Index)

	// Wake up local watchers once the whole batch is visible
	fsm.hub.Notify(changed...)

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// PrepareSnapshot captures the namespace. Dragonboat guarantees that no Update runs
// concurrently with this method, so the captured state is consistent.
func (fsm *CoordStateMachine) PrepareSnapshot() (interface{}, error) {
	var buf bytes.Buffer
	if err := fsm.tree.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveSnapshot writes the state captured by PrepareSnapshot to the writer
func (fsm *CoordStateMachine) SaveSnapshot(ctx interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	data, ok := ctx.([]byte)
	if !ok {
		return fmt.Errorf("unexpected snapshot context type: %T", ctx)
	}
	_, err := writer.Write(data)
	return err
}

// RecoverFromSnapshot replaces the namespace with the snapshot content.
// Every pending watcher is woken up since any node may have changed.
func (fsm *CoordStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if err := fsm.tree.Load(r); err != nil {
		return err
	}
	fsm.hub.NotifyAll()
	return nil
}

// Close performs any necessary cleanup.
func (fsm *CoordStateMachine) Close() error {
	fsm.hub.NotifyAll()
	return nil
}

// toResult converts the outcome of a tree operation into a raft result
func toResult(data []byte, err error) sm.Result {
	if err == nil {
		return sm.Result{Value: uint64(coord.RetCSuccess), Data: data}
	}
	if ce, ok := err.(*coord.Error); ok {
		return sm.Result{Value: uint64(ce.Code), Data: []byte(ce.Msg)}
	}
	return sm.Result{Value: uint64(coord.RetCInternalError), Data: []byte(err.Error())}
}
