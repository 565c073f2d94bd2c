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
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
)

// nodeCache is a bounded, in-memory least-recently-used cache of decoded
// nodes sitting in front of the block file, so a hot insert/search path
// doesn't re-read and re-decode the same handful of internal nodes on
// every call. Eviction order is kept in a google/btree.BTreeG ordered by
// a logical last-access clock rather than wall time, the same shape as
// the teacher's index.go delta overlay (storage/index.go's deltaBtree),
// repurposed here to track recency instead of pending row writes.
type nodeCache struct {
	mu       sync.Mutex
	capacity int
	clock    int64
	byID     map[uuid.UUID]*cacheEntry
	byAccess *btree.BTreeG[*cacheEntry]
}

type cacheEntry struct {
	id       uuid.UUID
	node     *Node
	accessed int64
}

func newNodeCache(capacity int) *nodeCache {
	if capacity < 1 {
		capacity = 1
	}
	less := func(a, b *cacheEntry) bool {
		if a.accessed != b.accessed {
			return a.accessed < b.accessed
		}
		return bytesLess(a.id, b.id)
	}
	return &nodeCache{
		capacity: capacity,
		byID:     make(map[uuid.UUID]*cacheEntry),
		byAccess: btree.NewG[*cacheEntry](8, less),
	}
}

func bytesLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (c *nodeCache) get(id uuid.UUID) (*Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	c.touch(e)
	return e.node, true
}

func (c *nodeCache) touch(e *cacheEntry) {
	c.byAccess.Delete(e)
	c.clock++
	e.accessed = c.clock
	c.byAccess.ReplaceOrInsert(e)
}

func (c *nodeCache) put(n *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.byID[n.ID]; ok {
		e.node = n
		c.touch(e)
		return
	}
	c.clock++
	e := &cacheEntry{id: n.ID, node: n, accessed: c.clock}
	c.byID[n.ID] = e
	c.byAccess.ReplaceOrInsert(e)
	if len(c.byID) > c.capacity {
		oldest, ok := c.byAccess.Min()
		if ok {
			c.byAccess.Delete(oldest)
			delete(c.byID, oldest.id)
		}
	}
}

func (c *nodeCache) invalidate(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.byID[id]; ok {
		c.byAccess.Delete(e)
		delete(c.byID, id)
	}
}
