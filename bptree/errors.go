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

import "errors"

// ErrDuplicateKey is returned by Insert when the key is already present;
// this index enforces uniqueness, matching the Python original's insert
// raising on a duplicate key (§4.5).
var ErrDuplicateKey = errors.New("bptree: duplicate key")

// ErrCorrupt is wrapped into errors raised while decoding a node whose
// on-disk bytes don't parse.
var ErrCorrupt = errors.New("bptree: corrupt node")

// ErrUnsorted is returned by BulkLoad when the supplied items are not
// strictly increasing by key, violating its precondition.
var ErrUnsorted = errors.New("bptree: bulk_load items are not sorted by key")
