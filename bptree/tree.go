/*
Copyright (C) 2026  GeddyDB Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package bptree

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/geddydb/geddydb/block"
	"github.com/geddydb/geddydb/rowpack"
)

const defaultCacheCapacity = 1024

// Tree is a persistent B+Tree index: one node per block of bm, addressed
// by block_id = xxh3(node_id) mod blockDomain, fronted by a bounded
// in-memory cache. The root node id and order survive a reopen via a
// sibling ".idx.meta" file (§4.5, SPEC_FULL.md §4.5).
type Tree struct {
	order    int
	bm       *block.Manager
	metaPath string
	rootID   uuid.UUID
	cache    *nodeCache
}

// Open opens an existing tree whose node blocks live in bm and whose
// root/order metadata lives at metaPath, or creates a fresh empty tree
// (a single empty leaf root) if metaPath does not yet exist.
func Open(bm *block.Manager, metaPath string, order int) (*Tree, error) {
	if order < 3 {
		return nil, fmt.Errorf("bptree: order must be >= 3, got %d", order)
	}
	t := &Tree{order: order, bm: bm, metaPath: metaPath, cache: newNodeCache(defaultCacheCapacity)}
	rootID, storedOrder, ok, err := readMeta(metaPath)
	if err != nil {
		return nil, err
	}
	if ok {
		t.order = storedOrder
		t.rootID = rootID
		return t, nil
	}
	root := newNode(true)
	if err := t.saveNode(root); err != nil {
		return nil, err
	}
	t.rootID = root.ID
	if err := t.writeMeta(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) loadNode(id uuid.UUID) (*Node, error) {
	if n, ok := t.cache.get(id); ok {
		return n, nil
	}
	raw, err := t.bm.ReadBlock(blockIDFor(id))
	if err != nil {
		return nil, fmt.Errorf("bptree: load node %s: %w", id, err)
	}
	n, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}
	t.cache.put(n)
	return n, nil
}

func (t *Tree) saveNode(n *Node) error {
	raw, err := encodeNode(n)
	if err != nil {
		return err
	}
	if err := t.bm.WriteBlock(blockIDFor(n.ID), raw); err != nil {
		return fmt.Errorf("bptree: save node %s: %w", n.ID, err)
	}
	t.cache.put(n)
	return nil
}

func (t *Tree) root() (*Node, error) {
	return t.loadNode(t.rootID)
}

// findIndex returns the first index i such that key < keys[i], or
// len(keys) if key is >= every element — the same linear scan the
// reference implementation uses, which doubles as both "child to
// descend into" for internal nodes and "insertion position" for leaves.
func findIndex(keys []rowpack.Value, key rowpack.Value) int {
	for i, k := range keys {
		if less(key, k) {
			return i
		}
	}
	return len(keys)
}

// Search returns the value stored under key, or ok=false if absent.
func (t *Tree) Search(key rowpack.Value) (int, bool, error) {
	node, err := t.root()
	if err != nil {
		return 0, false, err
	}
	for !node.Leaf {
		idx := findIndex(node.Keys, key)
		node, err = t.loadNode(node.Children[idx])
		if err != nil {
			return 0, false, err
		}
	}
	for i, k := range node.Keys {
		if equal(k, key) {
			return node.Values[i], true, nil
		}
	}
	return 0, false, nil
}

// Insert adds key -> value, preemptively splitting any full node on the
// way down (the node's key count never transiently exceeds order-1).
// It returns ErrDuplicateKey if key is already present.
func (t *Tree) Insert(key rowpack.Value, value int) error {
	root, err := t.root()
	if err != nil {
		return err
	}
	if len(root.Keys) == t.order-1 {
		newRoot := newNode(false)
		newRoot.Children = []uuid.UUID{root.ID}
		if err := t.splitChild(newRoot, 0); err != nil {
			return err
		}
		if err := t.saveNode(newRoot); err != nil {
			return err
		}
		t.rootID = newRoot.ID
		if err := t.writeMeta(); err != nil {
			return err
		}
	}
	root, err = t.root()
	if err != nil {
		return err
	}
	return t.insertNonFull(root, key, value)
}

func (t *Tree) insertNonFull(node *Node, key rowpack.Value, value int) error {
	idx := findIndex(node.Keys, key)
	if node.Leaf {
		for _, k := range node.Keys {
			if equal(k, key) {
				return ErrDuplicateKey
			}
		}
		node.Keys = insertValueAt(node.Keys, idx, key)
		node.Values = insertIntAt(node.Values, idx, value)
		return t.saveNode(node)
	}
	child, err := t.loadNode(node.Children[idx])
	if err != nil {
		return err
	}
	if len(child.Keys) == t.order-1 {
		if err := t.splitChild(node, idx); err != nil {
			return err
		}
		if err := t.saveNode(node); err != nil {
			return err
		}
		// re-resolve the child index: the split may have inserted a new
		// separator key at idx, shifting which side key now belongs on.
		if idx < len(node.Keys) && !less(key, node.Keys[idx]) {
			idx++
		}
	}
	child, err = t.loadNode(node.Children[idx])
	if err != nil {
		return err
	}
	return t.insertNonFull(child, key, value)
}

// splitChild splits the full child at parent.Children[idx] into two
// nodes joined by a separator key inserted into parent at idx.
func (t *Tree) splitChild(parent *Node, idx int) error {
	node, err := t.loadNode(parent.Children[idx])
	if err != nil {
		return err
	}
	mid := t.order / 2
	splitKey := node.Keys[mid]

	left := newNode(node.Leaf)
	right := newNode(node.Leaf)
	left.Keys = append([]rowpack.Value(nil), node.Keys[:mid]...)

	if node.Leaf {
		right.Keys = append([]rowpack.Value(nil), node.Keys[mid:]...)
		left.Values = append([]int(nil), node.Values[:mid]...)
		right.Values = append([]int(nil), node.Values[mid:]...)
		rightID := right.ID
		left.Next = &rightID
		right.Next = node.Next
	} else {
		right.Keys = append([]rowpack.Value(nil), node.Keys[mid+1:]...)
		left.Children = append([]uuid.UUID(nil), node.Children[:mid+1]...)
		right.Children = append([]uuid.UUID(nil), node.Children[mid+1:]...)
	}

	if err := t.saveNode(left); err != nil {
		return err
	}
	if err := t.saveNode(right); err != nil {
		return err
	}

	parent.Keys = insertValueAt(parent.Keys, idx, splitKey)
	parent.Children[idx] = left.ID
	parent.Children = insertUUIDAt(parent.Children, idx+1, right.ID)
	t.cache.invalidate(node.ID)
	return nil
}

func insertValueAt(s []rowpack.Value, idx int, v rowpack.Value) []rowpack.Value {
	s = append(s, rowpack.Value{})
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func insertIntAt(s []int, idx int, v int) []int {
	s = append(s, 0)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func insertUUIDAt(s []uuid.UUID, idx int, v uuid.UUID) []uuid.UUID {
	s = append(s, uuid.UUID{})
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

// Cursor walks an ordered range of (key, value) pairs via the leaf
// linked list, the same restartable-scan shape bbolt-style Go key/value
// stores expose.
type Cursor struct {
	tree *Tree
	node *Node
	idx  int
	err  error
}

// Scan returns a Cursor positioned at the leftmost leaf entry whose key
// is >= startKey, or at the very first entry if startKey is nil. Unlike
// the reference implementation (which always descends via the leftmost
// child regardless of startKey, then linearly searches only the first
// leaf it lands on), this descends the tree using startKey at every
// level so a startKey past the first leaf's range still finds the leaf
// that actually contains it (the operation's contract per §4.5: "find
// the leftmost leaf whose range covers start_key").
func (t *Tree) Scan(startKey *rowpack.Value) (*Cursor, error) {
	node, err := t.root()
	if err != nil {
		return nil, err
	}
	for !node.Leaf {
		var idx int
		if startKey != nil {
			idx = findIndex(node.Keys, *startKey)
		}
		node, err = t.loadNode(node.Children[idx])
		if err != nil {
			return nil, err
		}
	}
	idx := 0
	if startKey != nil {
		for idx < len(node.Keys) && less(node.Keys[idx], *startKey) {
			idx++
		}
	}
	return &Cursor{tree: t, node: node, idx: idx}, nil
}

// Next advances the cursor and returns the next (key, value) pair. ok
// is false once the scan is exhausted.
func (c *Cursor) Next() (rowpack.Value, int, bool) {
	for c.node != nil {
		if c.idx < len(c.node.Keys) {
			k, v := c.node.Keys[c.idx], c.node.Values[c.idx]
			c.idx++
			return k, v, true
		}
		if c.node.Next == nil {
			c.node = nil
			break
		}
		next, err := c.tree.loadNode(*c.node.Next)
		if err != nil {
			c.err = err
			c.node = nil
			break
		}
		c.node = next
		c.idx = 0
	}
	return rowpack.Value{}, 0, false
}

// Err returns the first error encountered while advancing the cursor,
// if any.
func (c *Cursor) Err() error { return c.err }

func readMeta(path string) (root uuid.UUID, order int, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return uuid.UUID{}, 0, false, nil
		}
		return uuid.UUID{}, 0, false, fmt.Errorf("bptree: open meta %s: %w", path, err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return uuid.UUID{}, 0, false, fmt.Errorf("bptree: meta %s missing root line", path)
	}
	root, err = uuid.Parse(sc.Text())
	if err != nil {
		return uuid.UUID{}, 0, false, fmt.Errorf("bptree: meta %s: %w", path, err)
	}
	if !sc.Scan() {
		return uuid.UUID{}, 0, false, fmt.Errorf("bptree: meta %s missing order line", path)
	}
	if _, err := fmt.Sscanf(sc.Text(), "%d", &order); err != nil {
		return uuid.UUID{}, 0, false, fmt.Errorf("bptree: meta %s: bad order: %w", path, err)
	}
	return root, order, true, nil
}

func (t *Tree) writeMeta() error {
	if dir := filepath.Dir(t.metaPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("bptree: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(t.metaPath)
	if err != nil {
		return fmt.Errorf("bptree: write meta %s: %w", t.metaPath, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s\n%d\n", t.rootID, t.order); err != nil {
		return fmt.Errorf("bptree: write meta %s: %w", t.metaPath, err)
	}
	return nil
}
