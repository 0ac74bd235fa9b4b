package serve

import (
	"testing"

	cmdUtil "github.com/ValentinKolb/dLock/cmd/util"
	"github.com/ValentinKolb/dLock/rpc/common"
)

func TestParseShards(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []common.ServerShard
		wantErr bool
	}{
		{
			name:  "single local",
			input: "100=lcoord",
			want:  []common.ServerShard{{ShardID: 100, Type: common.ShardTypeLocalCoordinator}},
		},
		{
			name:  "mixed with spaces",
			input: "100=lcoord, 200 = dcoord",
			want: []common.ServerShard{
				{ShardID: 100, Type: common.ShardTypeLocalCoordinator},
				{ShardID: 200, Type: common.ShardTypeRemoteCoordinator},
			},
		},
		{name: "missing type", input: "100", wantErr: true},
		{name: "invalid id", input: "abc=lcoord", wantErr: true},
		{name: "unknown type", input: "100=lstore", wantErr: true},
		{name: "duplicate id", input: "100=lcoord,100=dcoord", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseShards(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseShards() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseShards() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("shard %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseClusterMembers(t *testing.T) {
	members, err := parseClusterMembers("node-1=localhost:63001, node-2=localhost:63002")
	if err != nil {
		t.Fatalf("parseClusterMembers() error = %v", err)
	}
	if got := members[cmdUtil.HashString("node-1")]; got != "localhost:63001" {
		t.Errorf("node-1 address = %q, want localhost:63001", got)
	}
	if got := members[cmdUtil.HashString("node-2")]; got != "localhost:63002" {
		t.Errorf("node-2 address = %q, want localhost:63002", got)
	}

	if _, err := parseClusterMembers("node-1"); err == nil {
		t.Error("parseClusterMembers() without address returned no error")
	}
}
