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

// Package rowstore implements the per-table, WAL-backed row file: the
// OLTP side of a table, holding recently-written rows until they are
// flushed into column segments.
package rowstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/geddydb/geddydb/block"
	"github.com/geddydb/geddydb/rowpack"
	"github.com/geddydb/geddydb/wal"
)

// Store is a paged row file fronted by a write-ahead log.
type Store struct {
	mu         sync.Mutex
	pk         string
	bm         *block.Manager
	wal        *wal.Manager
	blockRows  map[int][]rowpack.Row
	blockOrder []int // insertion order of block numbers, for get_rows()
}

// Open opens (or creates) the row file and WAL for one table and
// recovers its resident rows purely from the WAL. Every InsertRow and
// BulkInsertRows call writes its WAL entry and block synchronously
// (see those methods below), so the block file never holds more than
// the WAL already describes; loading the blocks and then replaying the
// WAL on top of them would apply every logged INSERT and DELETE twice.
// Truncating the block file and rebuilding it fresh from the WAL keeps
// get_rows() reflecting each logged op exactly once, as spec.md
// requires.
func Open(blockPath, walPath, pk string) (*Store, error) {
	bm, err := block.Open(blockPath)
	if err != nil {
		return nil, fmt.Errorf("rowstore: %w", err)
	}
	wm, err := wal.Open(walPath)
	if err != nil {
		return nil, fmt.Errorf("rowstore: %w", err)
	}
	s := &Store{pk: pk, bm: bm, wal: wm, blockRows: make(map[int][]rowpack.Row)}
	if err := s.bm.Truncate(); err != nil {
		return nil, fmt.Errorf("rowstore: %w", err)
	}
	if err := s.recoverFromWAL(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) recoverFromWAL() error {
	var firstErr error
	s.wal.Replay(
		func(row rowpack.Row) {
			if err := s.insertWithoutWAL(row); err != nil && firstErr == nil {
				firstErr = err
			}
		},
		func(key rowpack.Value) {
			if _, err := s.deleteWithoutWAL(key); err != nil && firstErr == nil {
				firstErr = err
			}
		},
	)
	return firstErr
}

// InsertRow appends row to the WAL, then places it in the last block if
// it has room or allocates a fresh one.
func (s *Store) InsertRow(row rowpack.Row) error {
	if err := s.wal.LogInsert(row); err != nil {
		return fmt.Errorf("rowstore: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertWithoutWAL(row)
}

func (s *Store) insertWithoutWAL(row rowpack.Row) error {
	blockNum := -1
	if len(s.blockOrder) > 0 {
		last := s.blockOrder[len(s.blockOrder)-1]
		if len(s.blockRows[last]) < rowpack.MaxRowsPerBlock {
			blockNum = last
		}
	}
	if blockNum < 0 {
		n, err := s.bm.AllocateBlock()
		if err != nil {
			return fmt.Errorf("rowstore: %w", err)
		}
		blockNum = n
		s.blockOrder = append(s.blockOrder, blockNum)
		s.blockRows[blockNum] = nil
	}
	s.blockRows[blockNum] = append(s.blockRows[blockNum], row)
	return s.writeBlock(blockNum)
}

func (s *Store) writeBlock(blockNum int) error {
	payload, err := rowpack.Encode(s.blockRows[blockNum])
	if err != nil {
		return fmt.Errorf("rowstore: %w", err)
	}
	// zero-pad to a full block so a shorter rewrite leaves no residual
	// bytes from the block's previous contents for Decode to trip over
	if len(payload) < block.Size {
		payload = append(payload, make([]byte, block.Size-len(payload))...)
	}
	if err := s.bm.WriteBlock(blockNum, payload); err != nil {
		return fmt.Errorf("rowstore: %w", err)
	}
	return nil
}

// BulkInsertRows logs all rows in one batched WAL write, then packs them
// into 50-row blocks, writing each filled block exactly once.
func (s *Store) BulkInsertRows(rows []rowpack.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.wal.LogInsertMany(rows); err != nil {
		return fmt.Errorf("rowstore: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	blockNum := -1
	var buffer []rowpack.Row
	if len(s.blockOrder) > 0 {
		last := s.blockOrder[len(s.blockOrder)-1]
		if len(s.blockRows[last]) < rowpack.MaxRowsPerBlock {
			blockNum = last
			buffer = s.blockRows[last]
		}
	}
	for _, row := range rows {
		buffer = append(buffer, row)
		if len(buffer) >= rowpack.MaxRowsPerBlock {
			if blockNum < 0 {
				n, err := s.bm.AllocateBlock()
				if err != nil {
					return fmt.Errorf("rowstore: %w", err)
				}
				blockNum = n
				s.blockOrder = append(s.blockOrder, blockNum)
			}
			s.blockRows[blockNum] = buffer
			if err := s.writeBlock(blockNum); err != nil {
				return err
			}
			buffer = nil
			blockNum = -1
		}
	}
	if len(buffer) > 0 {
		if blockNum < 0 {
			n, err := s.bm.AllocateBlock()
			if err != nil {
				return fmt.Errorf("rowstore: %w", err)
			}
			blockNum = n
			s.blockOrder = append(s.blockOrder, blockNum)
		}
		s.blockRows[blockNum] = buffer
		if err := s.writeBlock(blockNum); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRow appends a DELETE entry to the WAL, then removes the first
// resident row whose primary-key column equals key. It reports whether a
// row was actually removed.
func (s *Store) DeleteRow(key rowpack.Value) (bool, error) {
	if err := s.wal.LogDelete(key); err != nil {
		return false, fmt.Errorf("rowstore: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	found, err := s.deleteWithoutWAL(key)
	if err != nil {
		return false, fmt.Errorf("rowstore: %w", err)
	}
	return found, nil
}

func (s *Store) deleteWithoutWAL(key rowpack.Value) (bool, error) {
	for _, blockNum := range s.blockOrder {
		rows := s.blockRows[blockNum]
		for i, row := range rows {
			if pk, ok := row[s.pk]; ok && pk.Equal(key) {
				s.blockRows[blockNum] = append(rows[:i:i], rows[i+1:]...)
				return true, s.writeBlock(blockNum)
			}
		}
	}
	return false, nil
}

// GetRows concatenates every resident block in block order.
func (s *Store) GetRows() []rowpack.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []rowpack.Row
	order := append([]int(nil), s.blockOrder...)
	sort.Ints(order)
	for _, n := range order {
		all = append(all, s.blockRows[n]...)
	}
	return all
}

// Clear drops all in-memory resident rows, truncates the block file and
// the WAL. Truncating the block file (not just forgetting it in memory)
// keeps a later reopen from resurrecting rows a prior flush already
// migrated into column segments — the state after Clear plus whatever
// the WAL gains afterward is meant to be the whole story (§4.4).
func (s *Store) Clear() error {
	s.mu.Lock()
	s.blockRows = make(map[int][]rowpack.Row)
	s.blockOrder = nil
	s.mu.Unlock()
	if err := s.bm.Truncate(); err != nil {
		return fmt.Errorf("rowstore: %w", err)
	}
	if err := s.wal.Clear(); err != nil {
		return fmt.Errorf("rowstore: %w", err)
	}
	return nil
}

// Close closes the row block file and WAL handles.
func (s *Store) Close() error {
	if err := s.bm.Close(); err != nil {
		return err
	}
	return s.wal.Close()
}
