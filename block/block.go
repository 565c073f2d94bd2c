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

// Package block implements fixed-size block I/O over a single file, the
// lowest layer every on-disk artifact in geddydb sits on.
package block

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Size is the fixed block size in bytes. Every block on disk, row blocks
// and B+Tree nodes alike, is exactly this many bytes.
const Size = 8192

// Manager provides synchronous fixed-size block I/O over one file. It
// creates the file (and any parent directory) on first use; AllocateBlock
// appends new blocks and Truncate is the only call that shrinks the file.
type Manager struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// Open opens (creating if necessary) the block file at path.
func Open(path string) (*Manager, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("block: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		return nil, fmt.Errorf("block: open %s: %w", path, err)
	}
	return &Manager{path: path, f: f}, nil
}

// NumBlocks returns the number of whole blocks currently in the file.
func (m *Manager) NumBlocks() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numBlocksLocked()
}

func (m *Manager) numBlocksLocked() (int, error) {
	info, err := m.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("block: stat %s: %w", m.path, err)
	}
	return int(info.Size() / Size), nil
}

// ReadBlock reads block n (0-based) in full, always returning exactly
// Size bytes even if the underlying block was only partially written;
// the gap is read back as the zero bytes an extend-on-write file leaves
// behind.
func (m *Manager) ReadBlock(n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, Size)
	read, err := m.f.ReadAt(buf, int64(n)*Size)
	if err != nil && read == 0 {
		return nil, fmt.Errorf("block: read block %d of %s: %w", n, m.path, err)
	}
	return buf, nil
}

// WriteBlock writes data at block n. data may be shorter than Size, in
// which case only the prefix is overwritten — residual bytes from a
// previous, longer write stay on disk beyond len(data). Callers that
// write variable-length payloads must either pad them to Size themselves
// (the row store does) or encode the payload length (B+Tree node
// serialisation does); WriteBlock never zero-pads the remainder for them.
func (m *Manager) WriteBlock(n int, data []byte) error {
	if len(data) > Size {
		return fmt.Errorf("block: payload of %d bytes exceeds block size %d", len(data), Size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.f.WriteAt(data, int64(n)*Size); err != nil {
		return fmt.Errorf("block: write block %d of %s: %w", n, m.path, err)
	}
	return nil
}

// AllocateBlock appends one zero-filled block and returns its index.
func (m *Manager) AllocateBlock() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.numBlocksLocked()
	if err != nil {
		return 0, err
	}
	zero := make([]byte, Size)
	if _, err := m.f.WriteAt(zero, int64(n)*Size); err != nil {
		return 0, fmt.Errorf("block: allocate block %d of %s: %w", n, m.path, err)
	}
	return n, nil
}

// Truncate discards every block, resetting the file to zero length. The
// next AllocateBlock call after Truncate returns block 0.
func (m *Manager) Truncate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.f.Truncate(0); err != nil {
		return fmt.Errorf("block: truncate %s: %w", m.path, err)
	}
	return nil
}

// Close closes the underlying file handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.f.Close()
}
