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
	"fmt"

	"github.com/google/uuid"

	"github.com/geddydb/geddydb/block"
	"github.com/geddydb/geddydb/rowpack"
)

// Item is one (key, value) pair fed to BulkLoad.
type Item struct {
	Key   rowpack.Value
	Value int
}

// BulkLoad builds a fresh tree directly from a pre-sorted, unique slice
// of items in O(n) instead of n sequential inserts, chunking leaves and
// then building internal levels bottom-up (§4.5, §8 scenario 5).
// items must already be sorted ascending by Key with no duplicates;
// BulkLoad checks this and returns ErrUnsorted rather than silently
// building a tree with a broken ordering invariant.
func BulkLoad(items []Item, order int, bm *block.Manager, metaPath string) (*Tree, error) {
	if order < 3 {
		return nil, fmt.Errorf("bptree: order must be >= 3, got %d", order)
	}
	for i := 1; i < len(items); i++ {
		if !less(items[i-1].Key, items[i].Key) {
			return nil, ErrUnsorted
		}
	}

	t := &Tree{order: order, bm: bm, metaPath: metaPath, cache: newNodeCache(defaultCacheCapacity)}

	if len(items) == 0 {
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

	nodeSize := order - 1
	var leaves []*Node
	for i := 0; i < len(items); i += nodeSize {
		end := i + nodeSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[i:end]
		leaf := newNode(true)
		leaf.Keys = make([]rowpack.Value, len(chunk))
		leaf.Values = make([]int, len(chunk))
		for j, it := range chunk {
			leaf.Keys[j] = it.Key
			leaf.Values[j] = it.Value
		}
		leaves = append(leaves, leaf)
	}
	for i := 0; i < len(leaves)-1; i++ {
		next := leaves[i+1].ID
		leaves[i].Next = &next
	}
	for _, leaf := range leaves {
		if err := t.saveNode(leaf); err != nil {
			return nil, err
		}
	}

	level := leaves
	for len(level) > 1 {
		var next []*Node
		for i := 0; i < len(level); i += nodeSize + 1 {
			end := i + nodeSize + 1
			if end > len(level) {
				end = len(level)
			}
			chunk := level[i:end]
			parent := newNode(false)
			parent.Keys = make([]rowpack.Value, 0, len(chunk)-1)
			parent.Children = make([]uuid.UUID, 0, len(chunk))
			for k, child := range chunk {
				parent.Children = append(parent.Children, child.ID)
				if k > 0 {
					parent.Keys = append(parent.Keys, child.Keys[0])
				}
			}
			if err := t.saveNode(parent); err != nil {
				return nil, err
			}
			next = append(next, parent)
		}
		level = next
	}

	t.rootID = level[0].ID
	if err := t.writeMeta(); err != nil {
		return nil, err
	}
	return t, nil
}
