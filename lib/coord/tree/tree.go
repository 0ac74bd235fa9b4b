package tree

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ValentinKolb/dLock/lib/coord"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum    = "DLTREE\x00\x00" // Snapshot format identifier
	treeVersion = 1                // Snapshot format version
)

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// node is a single entry of the namespace
type node struct {
	data     []byte
	children []string // names in creation order
	cversion uint64   // incremented whenever a child is added or removed
	nextSeq  uint64   // next sequence number handed out by CreateSequential
}

// Tree is an in-memory hierarchical namespace. It is the data structure behind the local
// and the replicated coordinator.
//
// All mutating methods return the paths whose children version changed (or that were removed),
// so the caller can notify watchers after the operation completed.
//
// Thread-safety: All methods are safe for concurrent use.
type Tree struct {
	mu    sync.RWMutex
	nodes map[string]*node
}

// New creates an empty tree that only contains the root node.
func New() *Tree {
	return &Tree{
		nodes: map[string]*node{coord.Root: {}},
	}
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// CreateSequential creates a sequential child of parent. Missing ancestors are created.
func (t *Tree) CreateSequential(parent, prefix string, data []byte) (path string, changed []string, err error) {
	if err := coord.Validate(parent); err != nil {
		return "", nil, err
	}
	if prefix != "" {
		if err := coord.ValidateName(prefix); err != nil {
			return "", nil, err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// create missing ancestors (and the parent itself)
	for _, p := range append(coord.Ancestors(parent), parent) {
		if p == coord.Root {
			continue
		}
		if _, ok := t.nodes[p]; ok {
			continue
		}
		pp, name := coord.Split(p)
		t.addChild(pp, name, nil)
		changed = append(changed, pp)
	}

	pn := t.nodes[parent]
	name := coord.SequenceName(prefix, pn.nextSeq)
	pn.nextSeq++

	// sequence numbers are unique per parent, but a node with the same name could have been
	// created as an ancestor of another path
	if _, ok := t.nodes[coord.Join(parent, name)]; ok {
		return "", changed, coord.Errorf(coord.RetCNodeExists, "node %s already exists", coord.Join(parent, name))
	}

	t.addChild(parent, name, data)
	return coord.Join(parent, name), append(changed, parent), nil
}

// Delete removes a childless node.
func (t *Tree) Delete(path string) (changed []string, err error) {
	if err := coord.Validate(path); err != nil {
		return nil, err
	}
	if path == coord.Root {
		return nil, coord.NewError(coord.RetCInvalidOperation, "the root node can not be deleted")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[path]
	if !ok {
		return nil, coord.Errorf(coord.RetCNoNode, "node %s does not exist", path)
	}
	if len(n.children) > 0 {
		return nil, coord.Errorf(coord.RetCNotEmpty, "node %s has %d children", path, len(n.children))
	}

	parent, _ := coord.Split(path)
	t.removeChild(path)
	return []string{parent, path}, nil
}

// DeleteChildren removes all childless direct children of path whose name starts with prefix.
// The operation is all or nothing: if one matching child has children itself, nothing is removed.
func (t *Tree) DeleteChildren(path, prefix string) (deleted int, changed []string, err error) {
	if err := coord.Validate(path); err != nil {
		return 0, nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[path]
	if !ok {
		return 0, nil, coord.Errorf(coord.RetCNoNode, "node %s does not exist", path)
	}

	var victims []string
	for _, name := range n.children {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		child := coord.Join(path, name)
		if len(t.nodes[child].children) > 0 {
			return 0, nil, coord.Errorf(coord.RetCNotEmpty, "node %s has children", child)
		}
		victims = append(victims, child)
	}
	if len(victims) == 0 {
		return 0, nil, nil
	}

	for _, child := range victims {
		t.removeChild(child)
	}
	return len(victims), append([]string{path}, victims...), nil
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

// Children returns the names of all direct children of path in creation order
// and the current children version.
func (t *Tree) Children(path string) ([]string, uint64, error) {
	if err := coord.Validate(path); err != nil {
		return nil, 0, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[path]
	if !ok {
		return nil, 0, coord.Errorf(coord.RetCNoNode, "node %s does not exist", path)
	}
	children := make([]string, len(n.children))
	copy(children, n.children)
	return children, n.cversion, nil
}

// Get returns a copy of the data of a node.
func (t *Tree) Get(path string) ([]byte, error) {
	if err := coord.Validate(path); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[path]
	if !ok {
		return nil, coord.Errorf(coord.RetCNoNode, "node %s does not exist", path)
	}
	data := make([]byte, len(n.data))
	copy(data, n.data)
	return data, nil
}

// CVersion returns the children version of path. The boolean is false if the node does not exist.
func (t *Tree) CVersion(path string) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[path]
	if !ok {
		return 0, false
	}
	return n.cversion, true
}

// Len returns the number of nodes in the tree, including the root.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

// Save writes a snapshot of the tree to w. Parents are always written before their children
// and children in creation order, so Load can rebuild the tree in one pass.
//
// Thread-safety: Save holds a read lock while collecting the nodes, writes are blocked
// only during that phase.
func (t *Tree) Save(w io.Writer) error {
	type entry struct {
		path     string
		data     []byte
		cversion uint64
		nextSeq  uint64
	}

	// collect a consistent copy
	t.mu.RLock()
	entries := make([]entry, 0, len(t.nodes))
	var walk func(path string)
	walk = func(path string) {
		n := t.nodes[path]
		entries = append(entries, entry{path: path, data: n.data, cversion: n.cversion, nextSeq: n.nextSeq})
		for _, name := range n.children {
			walk(coord.Join(path, name))
		}
	}
	walk(coord.Root)
	t.mu.RUnlock()

	bw := bufio.NewWriterSize(w, 64*1024)

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(treeVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, e := range entries {
		if err := writeBytes(bw, []byte(e.path)); err != nil {
			return err
		}
		if err := writeBytes(bw, e.data); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, e.cversion); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, e.nextSeq); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load replaces the content of the tree with the snapshot read from r.
func (t *Tree) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 64*1024)

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid snapshot format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != treeVersion {
		return fmt.Errorf("unsupported snapshot version: %d (expected %d)", version, treeVersion)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	nodes := make(map[string]*node, count)
	for i := uint64(0); i < count; i++ {
		path, err := readBytes(br)
		if err != nil {
			return err
		}
		data, err := readBytes(br)
		if err != nil {
			return err
		}
		n := &node{data: data}
		if err := binary.Read(br, binary.LittleEndian, &n.cversion); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &n.nextSeq); err != nil {
			return err
		}

		p := string(path)
		if p != coord.Root {
			parent, name := coord.Split(p)
			pn, ok := nodes[parent]
			if !ok {
				return fmt.Errorf("invalid snapshot: parent of %s missing", p)
			}
			pn.children = append(pn.children, name)
		}
		nodes[p] = n
	}
	if _, ok := nodes[coord.Root]; !ok {
		nodes[coord.Root] = &node{}
	}

	t.mu.Lock()
	t.nodes = nodes
	t.mu.Unlock()
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// addChild inserts a new node below parent. The caller must hold the write lock.
func (t *Tree) addChild(parent, name string, data []byte) {
	pn := t.nodes[parent]
	pn.children = append(pn.children, name)
	pn.cversion++

	stored := make([]byte, len(data))
	copy(stored, data)
	t.nodes[coord.Join(parent, name)] = &node{data: stored}
}

// removeChild removes a node from the tree. The caller must hold the write lock.
func (t *Tree) removeChild(path string) {
	parent, name := coord.Split(path)
	pn := t.nodes[parent]
	for i, c := range pn.children {
		if c == name {
			pn.children = append(pn.children[:i], pn.children[i+1:]...)
			break
		}
	}
	pn.cversion++
	delete(t.nodes, path)
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
