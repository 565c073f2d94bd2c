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

import "github.com/geddydb/geddydb/rowpack"

// less implements the tree's total order over keys. All keys within one
// tree are expected to come from the same unique column and therefore
// share a Kind; a Kind mismatch falls back to ordering by Kind so the
// tree still has a well-defined (if not meaningful) order instead of
// panicking.
func less(a, b rowpack.Value) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	switch a.Kind {
	case rowpack.KindInt:
		return a.Int < b.Int
	case rowpack.KindFloat:
		return a.Float < b.Float
	case rowpack.KindText:
		return a.Text < b.Text
	case rowpack.KindBool:
		return !a.Bool && b.Bool
	case rowpack.KindDecimal:
		return a.Dec.LessThan(b.Dec)
	default:
		return false
	}
}

func equal(a, b rowpack.Value) bool {
	return a.Equal(b)
}

// Less exposes the tree's key ordering so callers preparing input for
// BulkLoad (e.g. table.RebuildIndex) can sort with the exact order the
// tree itself enforces, rather than approximating it.
func Less(a, b rowpack.Value) bool {
	return less(a, b)
}
