package dcoord

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/lib/coord/dcoord/internal"
	"github.com/ValentinKolb/dLock/lib/coord/watch"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func newTestStateMachine() (*CoordStateMachine, *watch.Hub) {
	hub := watch.NewHub()
	fsm := CreateStateMachineFactory(hub)(1, 1).(*CoordStateMachine)
	return fsm, hub
}

func apply(t *testing.T, fsm *CoordStateMachine, index uint64, cmds ...internal.Command) []sm.Result {
	t.Helper()
	entries := make([]sm.Entry, len(cmds))
	for i, cmd := range cmds {
		entries[i] = sm.Entry{Index: index + uint64(i), Cmd: cmd.Serialize()}
	}
	res, err := fsm.Update(entries)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	results := make([]sm.Result, len(res))
	for i, e := range res {
		results[i] = e.Result
	}
	return results
}

func TestUpdate(t *testing.T) {
	fsm, _ := newTestStateMachine()

	results := apply(t, fsm, 1,
		internal.Command{Type: internal.CommandTCreateSequential, Path: "/l/t", Prefix: "write-", Data: []byte("w")},
		internal.Command{Type: internal.CommandTCreateSequential, Path: "/l/t", Prefix: "read-"},
		internal.Command{Type: internal.CommandTDelete, Path: "/l/t"},
		internal.Command{Type: internal.CommandTDeleteChildren, Path: "/l/t", Prefix: "write-"},
		internal.Command{Type: 99, Path: "/l/t"},
	)

	tests := []struct {
		name string
		code coord.RetCode
		data []byte
	}{
		{"create write", coord.RetCSuccess, []byte("/l/t/write-0000000000")},
		{"create read", coord.RetCSuccess, []byte("/l/t/read-0000000001")},
		{"delete non-empty", coord.RetCNotEmpty, nil},
		{"delete children", coord.RetCSuccess, binary.BigEndian.AppendUint64(nil, 1)},
		{"unknown", coord.RetCInvalidOperation, nil},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if coord.RetCode(results[i].Value) != tt.code {
				t.Errorf("code = %s, want %s (%s)", coord.RetCode(results[i].Value), tt.code, results[i].Data)
			}
			if tt.data != nil && !bytes.Equal(results[i].Data, tt.data) {
				t.Errorf("data = %v, want %v", results[i].Data, tt.data)
			}
		})
	}

	info, err := fsm.Lookup(internal.Query{Type: internal.QueryTInfo})
	if err != nil {
		t.Fatalf("Lookup(Info) error = %v", err)
	}
	if got := info.(internal.InfoResult).LastIndex; got != 5 {
		t.Errorf("LastIndex = %d, want 5", got)
	}
}

func TestUpdateInvalidEntries(t *testing.T) {
	fsm, _ := newTestStateMachine()
	res, err := fsm.Update([]sm.Entry{{Index: 1, Cmd: nil}, {Index: 2, Cmd: []byte{1, 2}}})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if coord.RetCode(res[0].Result.Value) != coord.RetCInvalidOperation {
		t.Errorf("empty command code = %s", coord.RetCode(res[0].Result.Value))
	}
	if coord.RetCode(res[1].Result.Value) != coord.RetCInternalError {
		t.Errorf("short command code = %s", coord.RetCode(res[1].Result.Value))
	}
}

func TestLookup(t *testing.T) {
	fsm, _ := newTestStateMachine()
	apply(t, fsm, 1, internal.Command{Type: internal.CommandTCreateSequential, Path: "/l", Prefix: "read-", Data: []byte("meta")})

	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTChildren, Path: "/l"})
	if err != nil {
		t.Fatalf("Lookup(Children) error = %v", err)
	}
	children := res.(internal.ChildrenResult)
	if len(children.Children) != 1 || children.Children[0] != "read-0000000000" || children.CVersion != 1 {
		t.Errorf("Lookup(Children) = %+v", children)
	}

	res, err = fsm.Lookup(internal.Query{Type: internal.QueryTGet, Path: "/l/read-0000000000"})
	if err != nil || !bytes.Equal(res.([]byte), []byte("meta")) {
		t.Errorf("Lookup(Get) = %v, %v", res, err)
	}

	res, _ = fsm.Lookup(internal.Query{Type: internal.QueryTCVersion, Path: "/missing"})
	if res.(internal.CVersionResult).Ok {
		t.Errorf("Lookup(CVersion) of missing node reported Ok")
	}

	if _, err := fsm.Lookup(internal.Query{Type: internal.QueryTGet, Path: "/missing"}); err == nil {
		t.Errorf("Lookup(Get) of missing node succeeded")
	}
	if _, err := fsm.Lookup("not a query"); err == nil {
		t.Errorf("Lookup() with invalid type succeeded")
	}
}

func TestUpdateNotifiesWatchers(t *testing.T) {
	fsm, hub := newTestStateMachine()
	apply(t, fsm, 1, internal.Command{Type: internal.CommandTCreateSequential, Path: "/l", Prefix: "write-"})

	ch, _ := hub.Watch(context.Background(), "/l")
	apply(t, fsm, 2, internal.Command{Type: internal.CommandTCreateSequential, Path: "/l", Prefix: "read-"})

	select {
	case <-ch:
	default:
		t.Errorf("Update() did not notify watchers of /l")
	}
}

func TestSnapshot(t *testing.T) {
	fsm, _ := newTestStateMachine()
	apply(t, fsm, 1,
		internal.Command{Type: internal.CommandTCreateSequential, Path: "/l/a", Prefix: "write-", Data: []byte("x")},
		internal.Command{Type: internal.CommandTCreateSequential, Path: "/l/b", Prefix: "read-"},
	)

	ctx, err := fsm.PrepareSnapshot()
	if err != nil {
		t.Fatalf("PrepareSnapshot() error = %v", err)
	}

	// changes after PrepareSnapshot are not part of the snapshot
	apply(t, fsm, 3, internal.Command{Type: internal.CommandTCreateSequential, Path: "/l/c", Prefix: "read-"})

	var buf bytes.Buffer
	if err := fsm.SaveSnapshot(ctx, &buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	restored, restoredHub := newTestStateMachine()
	ch, _ := restoredHub.Watch(context.Background(), "/l")
	if err := restored.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("RecoverFromSnapshot() error = %v", err)
	}
	select {
	case <-ch:
	default:
		t.Errorf("RecoverFromSnapshot() did not wake up watchers")
	}

	res, err := restored.Lookup(internal.Query{Type: internal.QueryTChildren, Path: "/l"})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got := res.(internal.ChildrenResult).Children; len(got) != 2 {
		t.Errorf("restored children = %v, want [a b]", got)
	}
}
