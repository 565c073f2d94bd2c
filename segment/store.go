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

package segment

import (
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/geddydb/geddydb/rowpack"
)

// CompactChunkSize is the number of live rows packed per segment during
// compaction, matching the reference implementation's chunk_size = 1000.
const CompactChunkSize = 1000

// Store is the immutable, compressed columnar segment store for one
// table: flushed row batches become column-major compressed segment
// files, deletes are tracked as key tombstones until the next compact().
// Grounded on original_source/storage/column_store.py.
type Store struct {
	table   string
	pk      string
	backend Backend
	codec   Codec

	mu      sync.Mutex
	deleted []rowpack.Value

	// compactGroup coalesces concurrent Compact calls for this Store into
	// one physical compaction (§4.6, §5's per-table exclusive compaction
	// lock, satisfied here without a second lock primitive). Scoped to
	// the Store rather than the package so two Stores that happen to
	// share a table name but different backends never coalesce calls
	// meant for different underlying storage.
	compactGroup singleflight.Group
}

// Open loads any existing tombstone file for table and returns a ready
// Store. codec is used for every new segment this Store writes;
// existing segments are always read back using whichever codec their
// own tag byte names.
func Open(table, pk string, backend Backend, codec Codec) (*Store, error) {
	s := &Store{table: table, pk: pk, backend: backend, codec: codec}
	raw, err := backend.ReadTombstones(table)
	if err != nil {
		if err == ErrNotExist {
			return s, nil
		}
		return nil, fmt.Errorf("segment: open %s: %w", table, err)
	}
	if err := json.Unmarshal(raw, &s.deleted); err != nil {
		return nil, fmt.Errorf("segment: open %s: tombstones: %w", table, err)
	}
	return s, nil
}

func columnMajor(rows []rowpack.Row) map[string][]rowpack.Value {
	cols := make(map[string][]rowpack.Value)
	for col := range rows[0] {
		vals := make([]rowpack.Value, len(rows))
		for i, row := range rows {
			vals[i] = row[col]
		}
		cols[col] = vals
	}
	return cols
}

func rowMajor(cols map[string][]rowpack.Value) []rowpack.Row {
	if len(cols) == 0 {
		return nil
	}
	n := 0
	for _, vals := range cols {
		n = len(vals)
		break
	}
	rows := make([]rowpack.Row, n)
	for i := range rows {
		rows[i] = make(rowpack.Row, len(cols))
	}
	for col, vals := range cols {
		for i, v := range vals {
			rows[i][col] = v
		}
	}
	return rows
}

// Flush writes rows as one new immutable segment, column-major and
// compressed with the Store's configured codec. A nil/empty rows is a
// no-op, matching the reference's "if not rows: return".
func (s *Store) Flush(rows []rowpack.Row) error {
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSegment(rows)
}

func (s *Store) writeSegment(rows []rowpack.Row) error {
	existing, err := s.backend.ListSegments(s.table)
	if err != nil {
		return fmt.Errorf("segment: flush %s: %w", s.table, err)
	}
	name := fmt.Sprintf("seg_%d.json.%s", len(existing), s.codec.Extension())
	return s.writeSegmentNamed(name, rows)
}

func (s *Store) writeSegmentNamed(name string, rows []rowpack.Row) error {
	payload, err := json.Marshal(columnMajor(rows))
	if err != nil {
		return fmt.Errorf("segment: encode %s: %w", name, err)
	}
	compressed, err := s.codec.Compress(payload)
	if err != nil {
		return fmt.Errorf("segment: compress %s: %w", name, err)
	}
	buf := make([]byte, 1+len(compressed))
	buf[0] = s.codec.Tag()
	copy(buf[1:], compressed)
	if err := s.backend.WriteSegment(s.table, name, buf); err != nil {
		return fmt.Errorf("segment: write %s: %w", name, err)
	}
	return nil
}

func (s *Store) readSegment(name string) ([]rowpack.Row, error) {
	raw, err := s.backend.ReadSegment(s.table, name)
	if err != nil {
		return nil, fmt.Errorf("segment: read %s: %w", name, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	codec, err := codecForTag(raw[0])
	if err != nil {
		return nil, fmt.Errorf("segment: %s: %w", name, err)
	}
	payload, err := codec.Decompress(raw[1:])
	if err != nil {
		return nil, fmt.Errorf("segment: decompress %s: %w", name, err)
	}
	var cols map[string][]rowpack.Value
	if err := json.Unmarshal(payload, &cols); err != nil {
		return nil, fmt.Errorf("segment: decode %s: %w", name, err)
	}
	return rowMajor(cols), nil
}

// LogDelete tombstones key, persisting the updated tombstone set
// immediately (matching the reference's log_delete, which rewrites
// deletes.json on every call rather than batching).
func (s *Store) LogDelete(key rowpack.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.deleted {
		if k.Equal(key) {
			return nil
		}
	}
	s.deleted = append(s.deleted, key)
	raw, err := json.Marshal(s.deleted)
	if err != nil {
		return fmt.Errorf("segment: log_delete %s: %w", s.table, err)
	}
	if err := s.backend.WriteTombstones(s.table, raw); err != nil {
		return fmt.Errorf("segment: log_delete %s: %w", s.table, err)
	}
	return nil
}

func (s *Store) isDeleted(key rowpack.Value) bool {
	for _, k := range s.deleted {
		if k.Equal(key) {
			return true
		}
	}
	return false
}

// LoadSegments returns every live row across every segment, filtering
// out rows whose primary-key column is tombstoned.
func (s *Store) LoadSegments() ([]rowpack.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLive()
}

func (s *Store) loadLive() ([]rowpack.Row, error) {
	names, err := s.backend.ListSegments(s.table)
	if err != nil {
		return nil, fmt.Errorf("segment: load %s: %w", s.table, err)
	}
	var all []rowpack.Row
	for _, name := range names {
		rows, err := s.readSegment(name)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if pk, ok := row[s.pk]; !ok || !s.isDeleted(pk) {
				all = append(all, row)
			}
		}
	}
	return all, nil
}

// Compact rewrites every live row into fresh CompactChunkSize-row
// segments, discarding tombstoned rows and the tombstone file itself.
// Concurrent Compact calls on this Store coalesce into a single
// physical compaction via compactGroup.
func (s *Store) Compact() error {
	_, err, _ := s.compactGroup.Do(s.table, func() (any, error) {
		return nil, s.compact()
	})
	return err
}

func (s *Store) compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.loadLive()
	if err != nil {
		return fmt.Errorf("segment: compact %s: %w", s.table, err)
	}

	names, err := s.backend.ListSegments(s.table)
	if err != nil {
		return fmt.Errorf("segment: compact %s: %w", s.table, err)
	}
	for _, name := range names {
		if err := s.backend.RemoveSegment(s.table, name); err != nil {
			return fmt.Errorf("segment: compact %s: %w", s.table, err)
		}
	}

	for i := 0; i < len(live); i += CompactChunkSize {
		end := i + CompactChunkSize
		if end > len(live) {
			end = len(live)
		}
		chunk := live[i:end]
		if len(chunk) == 0 {
			continue
		}
		name := fmt.Sprintf("seg_%d.json.%s", i/CompactChunkSize, s.codec.Extension())
		if err := s.writeSegmentNamed(name, chunk); err != nil {
			return err
		}
	}

	if err := s.backend.RemoveTombstones(s.table); err != nil {
		return fmt.Errorf("segment: compact %s: %w", s.table, err)
	}
	s.deleted = nil
	return nil
}
