package etcdcoord

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
	coordtesting "github.com/ValentinKolb/dLock/lib/coord/testing"
	"go.etcd.io/etcd/api/v3/mvccpb"
)

func TestKeyLayout(t *testing.T) {
	c := &coordImpl{ns: "/dlock"}

	tests := []struct {
		path   string
		node   string
		prefix string
		seq    string
	}{
		{"/", "/dlock/nodes", "/dlock/nodes/", "/dlock/seq"},
		{"/a", "/dlock/nodes/a", "/dlock/nodes/a/", "/dlock/seq/a"},
		{"/a/b", "/dlock/nodes/a/b", "/dlock/nodes/a/b/", "/dlock/seq/a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := c.nodeKey(tt.path); got != tt.node {
				t.Errorf("nodeKey() = %s, want %s", got, tt.node)
			}
			if got := c.childPrefix(tt.path); got != tt.prefix {
				t.Errorf("childPrefix() = %s, want %s", got, tt.prefix)
			}
			if got := c.seqKey(tt.path); got != tt.seq {
				t.Errorf("seqKey() = %s, want %s", got, tt.seq)
			}
		})
	}
}

func TestDirectChildren(t *testing.T) {
	kvs := []*mvccpb.KeyValue{
		{Key: []byte("/ns/nodes/t/write-0000000000")},
		{Key: []byte("/ns/nodes/t/write-0000000000/x")},
		{Key: []byte("/ns/nodes/t/read-0000000001")},
	}

	children := directChildren("/ns/nodes/t/", kvs)
	if len(children) != 2 {
		t.Fatalf("directChildren() returned %d entries, want 2", len(children))
	}
	if !hasDescendants("/ns/nodes/t/write-0000000000", kvs) {
		t.Errorf("hasDescendants() = false for a node with children")
	}
	if hasDescendants("/ns/nodes/t/read-0000000001", kvs) {
		t.Errorf("hasDescendants() = true for a leaf")
	}
}

// TestEtcdCoordinator runs the conformance suite against a real etcd cluster.
// Set DLOCK_ETCD_ENDPOINTS (comma separated) to enable it.
func TestEtcdCoordinator(t *testing.T) {
	endpoints := os.Getenv("DLOCK_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("DLOCK_ETCD_ENDPOINTS not set")
	}

	coordtesting.RunCoordinatorTests(t, "etcdcoord", func() coord.ICoordinator {
		conf := DefaultConfig()
		conf.Endpoints = strings.Split(endpoints, ",")
		conf.Namespace = fmt.Sprintf("/dlock-test-%d", time.Now().UnixNano())
		c, err := Connect(conf)
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		return c
	})
}
