package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
)

// CoordinatorFactory is a function that creates a new instance of an ICoordinator implementation
type CoordinatorFactory func() coord.ICoordinator

// RunCoordinatorTests runs a comprehensive test suite for an ICoordinator implementation.
// Every test works below its own base path, so the suite can also run against a shared
// external namespace.
func RunCoordinatorTests(t *testing.T, name string, factory CoordinatorFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("CreateSequential", func(t *testing.T) {
			testCreateSequential(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("DeleteChildren", func(t *testing.T) {
			testDeleteChildren(t, factory())
		})

		t.Run("GetData", func(t *testing.T) {
			testGetData(t, factory())
		})

		t.Run("InvalidPaths", func(t *testing.T) {
			testInvalidPaths(t, factory())
		})

		t.Run("WatchChildren", func(t *testing.T) {
			testWatchChildren(t, factory())
		})

		t.Run("WatchCancel", func(t *testing.T) {
			testWatchCancel(t, factory())
		})

		t.Run("ConcurrentCreate", func(t *testing.T) {
			testConcurrentCreate(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// basePath returns a path that is unique for the running test
func basePath(t testing.TB) string {
	return fmt.Sprintf("/coord-test/%d", time.Now().UnixNano())
}

// requireFired fails the test if ch is not closed within a second
func requireFired(t testing.TB, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("watch did not fire: %s", msg)
	}
}

// requireNotFired fails the test if ch is closed within a short period
func requireNotFired(t testing.TB, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("watch fired unexpectedly: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testCreateSequential(t *testing.T, c coord.ICoordinator) {
	defer c.Close()
	ctx := context.Background()
	base := basePath(t)
	parent := coord.Join(base, "orders")

	var created []string
	for i, prefix := range []string{"write-", "read-", "read-", "write-"} {
		path, err := c.CreateSequential(ctx, parent, prefix, []byte(fmt.Sprintf("data-%d", i)))
		if err != nil {
			t.Fatalf("CreateSequential(%s) error = %v", prefix, err)
		}
		dir, name := coord.Split(path)
		if dir != parent {
			t.Errorf("Expected %s to be created below %s", path, parent)
		}
		if len(name) != len(prefix)+coord.SequenceDigits || name[:len(prefix)] != prefix {
			t.Errorf("Unexpected sequential name %s for prefix %s", name, prefix)
		}
		created = append(created, name)
	}

	// sequence numbers are strictly increasing across prefixes
	for i := 1; i < len(created); i++ {
		prev, _ := coord.SequenceOf(created[i-1])
		cur, _ := coord.SequenceOf(created[i])
		if cur <= prev {
			t.Errorf("Expected sequence of %s to be greater than %s", created[i], created[i-1])
		}
	}

	children, _, err := c.Children(ctx, parent)
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}
	sort.Slice(children, func(i, j int) bool {
		a, _ := coord.SequenceOf(children[i])
		b, _ := coord.SequenceOf(children[j])
		return a < b
	})
	if fmt.Sprint(children) != fmt.Sprint(created) {
		t.Errorf("Children() = %v, want %v", children, created)
	}

	// ancestors were created on the way
	if _, _, err := c.Children(ctx, base); err != nil {
		t.Errorf("Expected ancestor %s to exist, got %v", base, err)
	}
}

func testDelete(t *testing.T, c coord.ICoordinator) {
	defer c.Close()
	ctx := context.Background()
	parent := coord.Join(basePath(t), "t")

	path, err := c.CreateSequential(ctx, parent, "write-", nil)
	if err != nil {
		t.Fatalf("CreateSequential() error = %v", err)
	}

	if err := c.Delete(ctx, parent); !errors.Is(err, coord.ErrNotEmpty) {
		t.Errorf("Delete(non-empty) error = %v, want ErrNotEmpty", err)
	}
	if err := c.Delete(ctx, coord.Join(parent, "missing")); !errors.Is(err, coord.ErrNoNode) {
		t.Errorf("Delete(missing) error = %v, want ErrNoNode", err)
	}
	if err := c.Delete(ctx, path); err != nil {
		t.Errorf("Delete(leaf) error = %v", err)
	}
	if err := c.Delete(ctx, path); !errors.Is(err, coord.ErrNoNode) {
		t.Errorf("Delete(leaf) twice error = %v, want ErrNoNode", err)
	}
	if err := c.Delete(ctx, parent); err != nil {
		t.Errorf("Delete(now empty) error = %v", err)
	}
	if _, _, err := c.Children(ctx, parent); !errors.Is(err, coord.ErrNoNode) {
		t.Errorf("Children(deleted) error = %v, want ErrNoNode", err)
	}
}

func testDeleteChildren(t *testing.T, c coord.ICoordinator) {
	defer c.Close()
	ctx := context.Background()
	parent := coord.Join(basePath(t), "t")

	for _, prefix := range []string{"write-", "read-", "write-", "read-"} {
		if _, err := c.CreateSequential(ctx, parent, prefix, nil); err != nil {
			t.Fatalf("CreateSequential() error = %v", err)
		}
	}
	_, before, _ := c.Children(ctx, parent)

	n, err := c.DeleteChildren(ctx, parent, "write-")
	if err != nil {
		t.Fatalf("DeleteChildren() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteChildren() = %d, want 2", n)
	}

	children, after, err := c.Children(ctx, parent)
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}
	if len(children) != 2 {
		t.Errorf("Expected 2 remaining children, got %v", children)
	}
	for _, name := range children {
		if name[:5] != "read-" {
			t.Errorf("Unexpected remaining child %s", name)
		}
	}
	if before == after {
		t.Errorf("Expected children version to change after DeleteChildren")
	}

	n, err = c.DeleteChildren(ctx, parent, "write-")
	if err != nil || n != 0 {
		t.Errorf("DeleteChildren() without matches = %d, %v, want 0, nil", n, err)
	}

	if _, err := c.DeleteChildren(ctx, coord.Join(parent, "missing"), ""); !errors.Is(err, coord.ErrNoNode) {
		t.Errorf("DeleteChildren(missing) error = %v, want ErrNoNode", err)
	}
}

func testGetData(t *testing.T, c coord.ICoordinator) {
	defer c.Close()
	ctx := context.Background()
	parent := coord.Join(basePath(t), "t")

	value := []byte{0, 1, 2, 'P', 'B', 'U', 'F', 255}
	path, err := c.CreateSequential(ctx, parent, "read-", value)
	if err != nil {
		t.Fatalf("CreateSequential() error = %v", err)
	}

	data, err := c.GetData(ctx, path)
	if err != nil {
		t.Fatalf("GetData() error = %v", err)
	}
	if !bytes.Equal(data, value) {
		t.Errorf("GetData() = %v, want %v", data, value)
	}

	// intermediate nodes carry no data
	data, err = c.GetData(ctx, parent)
	if err != nil || len(data) != 0 {
		t.Errorf("GetData(parent) = %v, %v, want empty, nil", data, err)
	}

	if _, err := c.GetData(ctx, coord.Join(parent, "missing")); !errors.Is(err, coord.ErrNoNode) {
		t.Errorf("GetData(missing) error = %v, want ErrNoNode", err)
	}
}

func testInvalidPaths(t *testing.T, c coord.ICoordinator) {
	defer c.Close()
	ctx := context.Background()

	for _, path := range []string{"", "relative", "/a//b", "/a/../b", "/a/./b"} {
		if _, err := c.CreateSequential(ctx, path, "x-", nil); !errors.Is(err, coord.ErrInvalidPath) {
			t.Errorf("CreateSequential(%q) error = %v, want ErrInvalidPath", path, err)
		}
		if _, _, err := c.Children(ctx, path); !errors.Is(err, coord.ErrInvalidPath) {
			t.Errorf("Children(%q) error = %v, want ErrInvalidPath", path, err)
		}
	}
	if _, err := c.CreateSequential(ctx, "/a", "x/y-", nil); !errors.Is(err, coord.ErrInvalidPath) {
		t.Errorf("CreateSequential() with separator in prefix error = %v, want ErrInvalidPath", err)
	}
}

func testWatchChildren(t *testing.T, c coord.ICoordinator) {
	defer c.Close()
	ctx := context.Background()
	parent := coord.Join(basePath(t), "t")

	first, err := c.CreateSequential(ctx, parent, "write-", nil)
	if err != nil {
		t.Fatalf("CreateSequential() error = %v", err)
	}
	_, cversion, err := c.Children(ctx, parent)
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}

	// nothing changed yet
	ch, err := c.WatchChildren(ctx, parent, cversion)
	if err != nil {
		t.Fatalf("WatchChildren() error = %v", err)
	}
	requireNotFired(t, ch, "no change since Children()")

	// a new child fires the watch
	if _, err := c.CreateSequential(ctx, parent, "read-", nil); err != nil {
		t.Fatalf("CreateSequential() error = %v", err)
	}
	requireFired(t, ch, "child created")

	// stale version fires immediately
	ch, err = c.WatchChildren(ctx, parent, cversion)
	if err != nil {
		t.Fatalf("WatchChildren() error = %v", err)
	}
	requireFired(t, ch, "stale version")

	// removing a child fires the watch
	_, cversion, _ = c.Children(ctx, parent)
	ch, err = c.WatchChildren(ctx, parent, cversion)
	if err != nil {
		t.Fatalf("WatchChildren() error = %v", err)
	}
	if err := c.Delete(ctx, first); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	requireFired(t, ch, "child deleted")

	// a missing node fires immediately
	ch, err = c.WatchChildren(ctx, coord.Join(parent, "missing"), 0)
	if err != nil {
		t.Fatalf("WatchChildren(missing) error = %v", err)
	}
	requireFired(t, ch, "missing node")
}

func testWatchCancel(t *testing.T, c coord.ICoordinator) {
	defer c.Close()
	parent := coord.Join(basePath(t), "t")

	if _, err := c.CreateSequential(context.Background(), parent, "write-", nil); err != nil {
		t.Fatalf("CreateSequential() error = %v", err)
	}
	_, cversion, _ := c.Children(context.Background(), parent)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.WatchChildren(ctx, parent, cversion)
	if err != nil {
		t.Fatalf("WatchChildren() error = %v", err)
	}
	cancel()
	requireFired(t, ch, "context cancelled")
}

func testConcurrentCreate(t *testing.T, c coord.ICoordinator) {
	defer c.Close()
	ctx := context.Background()
	parent := coord.Join(basePath(t), "t")

	const workers = 8
	const perWorker = 10

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			prefix := "write-"
			if w%2 == 0 {
				prefix = "read-"
			}
			for i := 0; i < perWorker; i++ {
				path, err := c.CreateSequential(ctx, parent, prefix, nil)
				if err != nil {
					t.Errorf("CreateSequential() error = %v", err)
					return
				}
				_, name := coord.Split(path)
				seq, _ := coord.SequenceOf(name)
				key := fmt.Sprint(seq)

				mu.Lock()
				if seen[key] {
					t.Errorf("Sequence %s handed out twice", key)
				}
				seen[key] = true
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	children, _, err := c.Children(ctx, parent)
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}
	if len(children) != workers*perWorker {
		t.Errorf("Expected %d children, got %d", workers*perWorker, len(children))
	}
}
