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

// Package segment implements the immutable, compressed columnar segment
// store (§4.6): column-major flushed batches, tombstone-based deletes,
// and offline compaction, grounded on
// original_source/storage/column_store.py with a pluggable Codec and
// Backend per SPEC_FULL.md §4.6.
package segment

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Codec compresses and decompresses one segment's serialized column
// payload. Tag is written as a one-byte prefix on every segment so
// load_segments can decompress a file regardless of which codec wrote
// it, even if the store's configured default codec later changes.
type Codec interface {
	Tag() byte
	Extension() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

const (
	tagZstd byte = 1
	tagLZ4  byte = 2
	tagXZ   byte = 3
)

// ZstdCodec is the default codec, matching the reference implementation's
// zstandard choice (column_store.py uses the zstandard package).
type ZstdCodec struct{}

func (ZstdCodec) Tag() byte        { return tagZstd }
func (ZstdCodec) Extension() string { return "zst" }

func (ZstdCodec) Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("segment: zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func (ZstdCodec) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("segment: zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("segment: zstd decode: %w", err)
	}
	return out, nil
}

// LZ4Codec is a faster, lower-ratio alternative using the teacher's own
// compression library (launix-de-memcp imports pierrec/lz4 for its
// network protocol framing; geddydb reuses it here for segments).
type LZ4Codec struct{}

func (LZ4Codec) Tag() byte        { return tagLZ4 }
func (LZ4Codec) Extension() string { return "lz4" }

func (LZ4Codec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("segment: lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("segment: lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (LZ4Codec) Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("segment: lz4 decompress: %w", err)
	}
	return out, nil
}

// XZCodec trades compression speed for ratio, for cold archival
// segments. Uses the teacher's own ulikunitz/xz, its choice for the
// network protocol's large-payload compression.
type XZCodec struct{}

func (XZCodec) Tag() byte        { return tagXZ }
func (XZCodec) Extension() string { return "xz" }

func (XZCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("segment: xz writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("segment: xz compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("segment: xz compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (XZCodec) Decompress(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("segment: xz reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("segment: xz decompress: %w", err)
	}
	return out, nil
}

func codecForTag(tag byte) (Codec, error) {
	switch tag {
	case tagZstd:
		return ZstdCodec{}, nil
	case tagLZ4:
		return LZ4Codec{}, nil
	case tagXZ:
		return XZCodec{}, nil
	default:
		return nil, fmt.Errorf("segment: unknown codec tag %d", tag)
	}
}
