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

// Package table implements the Table module (§4.7): per-table glue
// over a Storage Manager handle and one B+Tree per unique column —
// constraint validation, auto-increment assignment, duplicate-key
// rejection, and index maintenance. Grounded on
// original_source/core/table.py.
package table

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/docker/go-units"
	"golang.org/x/text/unicode/norm"

	"github.com/geddydb/geddydb/block"
	"github.com/geddydb/geddydb/bptree"
	"github.com/geddydb/geddydb/rowpack"
	"github.com/geddydb/geddydb/storagemgr"
)

// indexOrder is the B+Tree order used for every column index, matching
// the reference's BplusTree(order=32).
const indexOrder = 32

// ErrNullConstraint reports a NOT NULL column left absent or null.
type ErrNullConstraint struct{ Column string }

func (e ErrNullConstraint) Error() string {
	return fmt.Sprintf("table: column %q cannot be NULL", e.Column)
}

// ErrDuplicateKey reports a UNIQUE/PRIMARY KEY column value collision.
type ErrDuplicateKey struct {
	Column string
	Value  rowpack.Value
}

func (e ErrDuplicateKey) Error() string {
	return fmt.Sprintf("table: duplicate value for unique column %q", e.Column)
}

// uniqueIndex pairs one unique column's persistent B+Tree with the
// block.Manager backing it, since bptree.Tree does not own its block
// file's lifecycle.
type uniqueIndex struct {
	bm   *block.Manager
	tree *bptree.Tree
}

// Table holds columns, a Storage Manager handle, and one B+Tree per
// unique column. It mirrors the reference's self.rows: an in-memory
// list of every row ever inserted, used only to compute index row
// positions and never trimmed by delete_rows — positions recorded in a
// unique index are offsets into this list, not into the row store or
// segment files.
type Table struct {
	name     string
	mgr      *storagemgr.Manager
	indexDir string

	mu               sync.Mutex
	columns          []Column
	autoIncrementCol *Column
	nextIncrement    int64
	indexes          map[string]*uniqueIndex
	rows             []rowpack.Row
	deletedPositions map[int]bool
	// flushedThrough is the row-list length as of the last Flush: rows
	// at or beyond this offset are still row-store resident (or were
	// deleted from it without ever being flushed); rows before it have
	// moved into segments and are live there regardless of what
	// DeleteRows does to the row store.
	flushedThrough int
}

func indexPaths(indexDir, table, column string) (blockPath, metaPath string) {
	base := filepath.Join(indexDir, table+"_"+column+".idx")
	return base, base + ".meta"
}

// Open constructs (or reopens) table's indexes under indexDir and
// discovers next_increment by scanning the row store's current rows
// for the maximum existing auto-increment value.
func Open(mgr *storagemgr.Manager, indexDir, name string, columns []Column) (*Table, error) {
	if err := os.MkdirAll(indexDir, 0o750); err != nil {
		return nil, fmt.Errorf("table: %s: %w", name, err)
	}
	t := &Table{
		name:             name,
		mgr:              mgr,
		indexDir:         indexDir,
		columns:          columns,
		indexes:          make(map[string]*uniqueIndex),
		deletedPositions: make(map[int]bool),
		nextIncrement:    1,
	}
	for i := range columns {
		col := columns[i]
		if col.AutoIncrement {
			c := col
			t.autoIncrementCol = &c
		}
		if col.IsPrimary() {
			mgr.SetPrimaryKey(name, col.Name)
		}
		if col.IsUnique() {
			blockPath, metaPath := indexPaths(indexDir, name, col.Name)
			bm, err := block.Open(blockPath)
			if err != nil {
				return nil, fmt.Errorf("table: %s: open index %s: %w", name, col.Name, err)
			}
			tree, err := bptree.Open(bm, metaPath, indexOrder)
			if err != nil {
				bm.Close()
				return nil, fmt.Errorf("table: %s: open index %s: %w", name, col.Name, err)
			}
			t.indexes[col.Name] = &uniqueIndex{bm: bm, tree: tree}
		}
	}

	if t.autoIncrementCol != nil {
		rs, err := mgr.GetRowStore(name)
		if err != nil {
			return nil, fmt.Errorf("table: %s: %w", name, err)
		}
		var max int64
		for _, row := range rs.GetRows() {
			if v, ok := row[t.autoIncrementCol.Name]; ok && v.Kind == rowpack.KindInt && v.Int > max {
				max = v.Int
			}
		}
		t.nextIncrement = max + 1
	}
	return t, nil
}

func normalizeValue(v rowpack.Value) rowpack.Value {
	if v.Kind == rowpack.KindText {
		return rowpack.NewText(norm.NFC.String(v.Text))
	}
	return v
}

func normalizeRow(row rowpack.Row) rowpack.Row {
	out := make(rowpack.Row, len(row))
	for k, v := range row {
		out[k] = normalizeValue(v)
	}
	return out
}

func (t *Table) validate(row rowpack.Row) error {
	for _, col := range t.columns {
		if col.AutoIncrement {
			// filled in by assignAutoIncrement when absent or null
			continue
		}
		v, present := row[col.Name]
		if col.IsNotNull() && (!present || v.IsNull()) {
			return ErrNullConstraint{Column: col.Name}
		}
	}
	return nil
}

func (t *Table) assignAutoIncrement(row rowpack.Row) {
	if t.autoIncrementCol == nil {
		return
	}
	v, present := row[t.autoIncrementCol.Name]
	if !present || v.IsNull() {
		row[t.autoIncrementCol.Name] = rowpack.NewInt(t.nextIncrement)
		t.nextIncrement++
	}
}

// isLive reports whether pos still names a row DeleteRows has not
// tombstoned. Caller must hold t.mu.
func (t *Table) isLive(pos int) bool {
	return !t.deletedPositions[pos]
}

// checkDuplicate reports whether row[col] already exists as a live
// entry in idx, verifying any index hit against t.deletedPositions
// rather than trusting it unconditionally: delete_rows never rewrites
// index nodes (§9 (b)), so a stale index entry pointing at a removed
// row must not be treated as a real conflict.
func (t *Table) checkDuplicate(colName string, idx *uniqueIndex, key rowpack.Value) error {
	pos, found, err := idx.tree.Search(key)
	if err != nil {
		return fmt.Errorf("table: %s: search index %s: %w", t.name, colName, err)
	}
	if found && t.isLive(pos) {
		return ErrDuplicateKey{Column: colName, Value: key}
	}
	return nil
}

// Insert validates NOT NULL, assigns the auto-increment column if
// absent, rejects duplicate unique-column values, writes the row, then
// inserts it into every unique index keyed by the row's position in
// the in-memory row list.
func (t *Table) Insert(row rowpack.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	row = normalizeRow(row)
	if err := t.validate(row); err != nil {
		return err
	}
	t.assignAutoIncrement(row)

	for colName, idx := range t.indexes {
		if err := t.checkDuplicate(colName, idx, row[colName]); err != nil {
			return err
		}
	}

	if err := t.mgr.WriteRow(t.name, row); err != nil {
		return fmt.Errorf("table: %s: insert: %w", t.name, err)
	}

	pos := len(t.rows)
	t.rows = append(t.rows, row)
	for colName, idx := range t.indexes {
		if err := idx.tree.Insert(row[colName], pos); err != nil {
			return fmt.Errorf("table: %s: index %s: %w", t.name, colName, err)
		}
	}
	return nil
}

// BulkInsert writes rows in one batch. When bulkMode is false, every
// row is checked against both the batch and the existing indexes
// before anything is written; when true, the caller commits to calling
// RebuildIndex afterward and only intra-batch duplicates are
// pre-checked. Either way, every row's true sequential position in the
// in-memory row list is recorded — fixing §9 (c), where the reference
// records every row in a batch at the same stale len(self.rows).
func (t *Table) BulkInsert(rows []rowpack.Row, bulkMode bool) error {
	if len(rows) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	normalized := make([]rowpack.Row, len(rows))
	for i, row := range rows {
		normalized[i] = normalizeRow(row)
	}

	for _, row := range normalized {
		if err := t.validate(row); err != nil {
			return err
		}
		t.assignAutoIncrement(row)
	}

	for colName, idx := range t.indexes {
		seen := make(map[string]bool, len(normalized))
		for _, row := range normalized {
			key := row[colName]
			if !bulkMode {
				if err := t.checkDuplicate(colName, idx, key); err != nil {
					return err
				}
			}
			if seen[key.String()] {
				return ErrDuplicateKey{Column: colName, Value: key}
			}
			seen[key.String()] = true
		}
	}

	if err := t.mgr.BulkWrite(t.name, normalized); err != nil {
		return fmt.Errorf("table: %s: bulk_insert: %w", t.name, err)
	}

	start := len(t.rows)
	t.rows = append(t.rows, normalized...)
	if !bulkMode {
		for i, row := range normalized {
			pos := start + i
			for colName, idx := range t.indexes {
				if err := idx.tree.Insert(row[colName], pos); err != nil {
					return fmt.Errorf("table: %s: index %s: %w", t.name, colName, err)
				}
			}
		}
	}
	return nil
}

// RebuildIndex replaces every unique column's index with a fresh
// bulk_load built from (key, row_position) pairs over the full
// in-memory row list, sorted per column.
func (t *Table) RebuildIndex() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for colName, idx := range t.indexes {
		items := make([]bptree.Item, 0, len(t.rows))
		for pos, row := range t.rows {
			if t.deletedPositions[pos] {
				continue
			}
			items = append(items, bptree.Item{Key: row[colName], Value: pos})
		}
		sort.Slice(items, func(i, j int) bool { return bptree.Less(items[i].Key, items[j].Key) })

		blockPath, metaPath := indexPaths(t.indexDir, t.name, colName)
		idx.bm.Close()
		if err := os.Remove(blockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("table: %s: rebuild index %s: %w", t.name, colName, err)
		}
		bm, err := block.Open(blockPath)
		if err != nil {
			return fmt.Errorf("table: %s: rebuild index %s: %w", t.name, colName, err)
		}
		tree, err := bptree.BulkLoad(items, indexOrder, bm, metaPath)
		if err != nil {
			return fmt.Errorf("table: %s: rebuild index %s: %w", t.name, colName, err)
		}
		t.indexes[colName] = &uniqueIndex{bm: bm, tree: tree}
	}
	return nil
}

// DeleteRows removes every row store row whose column's stringified
// value equals value, matching the reference's str(row[column]) ==
// value comparison. Matching positions in the in-memory row list are
// marked deleted so later unique-index lookups treat any surviving
// index entry for them as stale rather than a live conflict (§9 (b));
// the row list itself, like the reference's self.rows, is never
// trimmed.
func (t *Table) DeleteRows(column, value string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rs, err := t.mgr.GetRowStore(t.name)
	if err != nil {
		return 0, fmt.Errorf("table: %s: delete_rows: %w", t.name, err)
	}
	current := rs.GetRows()
	kept := make([]rowpack.Row, 0, len(current))
	deleted := 0
	for _, row := range current {
		if row[column].String() == value {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	if deleted == 0 {
		return 0, nil
	}

	if err := rs.Clear(); err != nil {
		return 0, fmt.Errorf("table: %s: delete_rows: %w", t.name, err)
	}
	for _, row := range kept {
		if err := rs.InsertRow(row); err != nil {
			return 0, fmt.Errorf("table: %s: delete_rows: %w", t.name, err)
		}
	}

	// Only positions still row-store resident can be affected: a row
	// already moved into a segment by Flush is live there regardless of
	// what happens to the row store (delete_rows only ever touches
	// OLTP), so it must never be marked as a stale index candidate.
	for pos := t.flushedThrough; pos < len(t.rows); pos++ {
		if t.deletedPositions[pos] {
			continue
		}
		if t.rows[pos][column].String() == value {
			t.deletedPositions[pos] = true
		}
	}
	return deleted, nil
}

// Flush instructs the Storage Manager to move row-store rows into a
// new column segment and clear the row store.
func (t *Table) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.mgr.FlushTable(t.name); err != nil {
		return fmt.Errorf("table: %s: flush: %w", t.name, err)
	}
	t.flushedThrough = len(t.rows)
	return nil
}

// SelectAll concatenates row-store rows and segment rows.
func (t *Table) SelectAll() ([]rowpack.Row, error) {
	rs, err := t.mgr.GetRowStore(t.name)
	if err != nil {
		return nil, fmt.Errorf("table: %s: select_all: %w", t.name, err)
	}
	cs, err := t.mgr.GetColumnStore(t.name)
	if err != nil {
		return nil, fmt.Errorf("table: %s: select_all: %w", t.name, err)
	}
	olap, err := cs.LoadSegments()
	if err != nil {
		return nil, fmt.Errorf("table: %s: select_all: %w", t.name, err)
	}
	oltp := rs.GetRows()
	all := make([]rowpack.Row, 0, len(oltp)+len(olap))
	all = append(all, oltp...)
	all = append(all, olap...)
	return all, nil
}

// DiskUsage returns a human-readable size of every on-disk artifact
// currently backing the table's row blocks, WAL and column segments, via
// docker/go-units.BytesSize.
func (t *Table) DiskUsage(baseDir string) (string, error) {
	var total int64
	roots := []string{
		filepath.Join(baseDir, t.name+".tbl"),
		filepath.Join(baseDir, "wal", t.name+".wal"),
		filepath.Join(baseDir, "segments", t.name),
	}
	for _, root := range roots {
		err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if !info.IsDir() {
				total += info.Size()
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("table: %s: disk_usage: %w", t.name, err)
		}
	}
	return units.BytesSize(float64(total)), nil
}

// Close releases every unique index's block file.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, idx := range t.indexes {
		if err := idx.bm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
