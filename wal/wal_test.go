package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/geddydb/geddydb/rowpack"
)

func TestLogAndReplay(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(filepath.Join(dir, "orders.wal"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	rows := []rowpack.Row{
		{"id": rowpack.NewInt(1), "name": rowpack.NewText("Alice")},
		{"id": rowpack.NewInt(2), "name": rowpack.NewText("Bob")},
	}
	for _, r := range rows {
		if err := m.LogInsert(r); err != nil {
			t.Fatalf("LogInsert: %v", err)
		}
	}
	if err := m.LogDelete(rowpack.NewInt(1)); err != nil {
		t.Fatalf("LogDelete: %v", err)
	}

	var inserted []rowpack.Row
	var deleted []rowpack.Value
	err = m.Replay(func(r rowpack.Row) {
		inserted = append(inserted, r)
	}, func(k rowpack.Value) {
		deleted = append(deleted, k)
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(inserted) != 2 {
		t.Fatalf("expected 2 inserts replayed, got %d", len(inserted))
	}
	if len(deleted) != 1 || !deleted[0].Equal(rowpack.NewInt(1)) {
		t.Fatalf("expected single delete for key 1, got %v", deleted)
	}
}

func TestReplayIgnoresPartialTrailingLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.wal")
	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.LogInsert(rowpack.Row{"id": rowpack.NewInt(1)}); err != nil {
		t.Fatalf("LogInsert: %v", err)
	}
	m.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := f.WriteString(`{"op":"INSERT","row":{"id":2`); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	f.Close()

	m2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer m2.Close()

	var inserted []rowpack.Row
	err = m2.Replay(func(r rowpack.Row) {
		inserted = append(inserted, r)
	}, func(rowpack.Value) {})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("expected partial trailing line ignored, got %d inserts", len(inserted))
	}
}

func TestClearTruncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.wal")
	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()
	m.LogInsert(rowpack.Row{"id": rowpack.NewInt(1)})
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected zero-length WAL after Clear, got %d bytes", info.Size())
	}
}

func TestLogInsertManyBatches(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(filepath.Join(dir, "orders.wal"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	rows := make([]rowpack.Row, 0, 120)
	for i := 0; i < 120; i++ {
		rows = append(rows, rowpack.Row{"id": rowpack.NewInt(int64(i))})
	}
	if err := m.LogInsertMany(rows); err != nil {
		t.Fatalf("LogInsertMany: %v", err)
	}
	var inserted []rowpack.Row
	err = m.Replay(func(r rowpack.Row) {
		inserted = append(inserted, r)
	}, func(rowpack.Value) {})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(inserted) != 120 {
		t.Fatalf("expected 120 rows replayed, got %d", len(inserted))
	}
}
