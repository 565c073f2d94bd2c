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

// Package rowpack encodes and decodes a batch of rows into the textual
// row-block payload used by the row store and, unpacked one row at a
// time, the WAL.
package rowpack

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Row is a mapping from column name to scalar Value.
type Row map[string]Value

// MaxRowsPerBlock bounds how many rows a single row block may hold (§3).
const MaxRowsPerBlock = 50

// ErrCorrupt is returned when a row block's payload cannot be parsed as
// valid JSON once its padding is stripped.
var ErrCorrupt = fmt.Errorf("rowpack: corrupt row block")

// Encode packs rows into a row-block payload: a 2-byte big-endian row
// count followed by a canonical JSON array of row objects. The result
// may be shorter than block.Size; the caller (row store) is responsible
// for writing it into a block.
func Encode(rows []Row) ([]byte, error) {
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("rowpack: encode: %w", err)
	}
	if len(rows) > 0xFFFF {
		return nil, fmt.Errorf("rowpack: %d rows exceeds 2-byte count field", len(rows))
	}
	header := make([]byte, 2)
	binary.BigEndian.PutUint16(header, uint16(len(rows)))
	return append(header, payload...), nil
}

// Decode reverses Encode. data is expected to be a full block.Size read
// (or any slice at least 2 bytes long); trailing zero padding beyond the
// JSON payload is stripped before parsing.
func Decode(data []byte) ([]Row, error) {
	if len(data) < 2 {
		return nil, nil
	}
	count := binary.BigEndian.Uint16(data[:2])
	if count == 0 {
		return nil, nil
	}
	payload := bytes.TrimRight(data[2:], "\x00")
	var rows []Row
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return rows, nil
}
