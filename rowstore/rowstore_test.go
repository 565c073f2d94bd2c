package rowstore

import (
	"path/filepath"
	"testing"

	"github.com/geddydb/geddydb/rowpack"
)

func open(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(filepath.Join(dir, "users.tbl"), filepath.Join(dir, "users.wal"), "id")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestInsertAndGetRows(t *testing.T) {
	dir := t.TempDir()
	s := open(t, dir)
	defer s.Close()

	names := []string{"Alice", "Bob", "Carol"}
	for i, n := range names {
		row := rowpack.Row{"id": rowpack.NewInt(int64(i + 1)), "name": rowpack.NewText(n)}
		if err := s.InsertRow(row); err != nil {
			t.Fatalf("InsertRow: %v", err)
		}
	}
	rows := s.GetRows()
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, n := range names {
		if rows[i]["name"].Text != n {
			t.Fatalf("row %d: expected %q, got %q", i, n, rows[i]["name"].Text)
		}
	}
}

func TestDeleteRow(t *testing.T) {
	dir := t.TempDir()
	s := open(t, dir)
	defer s.Close()

	s.InsertRow(rowpack.Row{"id": rowpack.NewInt(1), "name": rowpack.NewText("Alice")})
	s.InsertRow(rowpack.Row{"id": rowpack.NewInt(2), "name": rowpack.NewText("Bob")})

	found, err := s.DeleteRow(rowpack.NewInt(1))
	if err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	if !found {
		t.Fatalf("expected delete to find row")
	}
	rows := s.GetRows()
	if len(rows) != 1 || rows[0]["name"].Text != "Bob" {
		t.Fatalf("unexpected remaining rows: %+v", rows)
	}

	found, err = s.DeleteRow(rowpack.NewInt(99))
	if err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	if found {
		t.Fatalf("expected delete of missing key to report not found")
	}
}

func TestBulkInsertSpansMultipleBlocks(t *testing.T) {
	dir := t.TempDir()
	s := open(t, dir)
	defer s.Close()

	rows := make([]rowpack.Row, 0, 120)
	for i := 0; i < 120; i++ {
		rows = append(rows, rowpack.Row{"id": rowpack.NewInt(int64(i))})
	}
	if err := s.BulkInsertRows(rows); err != nil {
		t.Fatalf("BulkInsertRows: %v", err)
	}
	got := s.GetRows()
	if len(got) != 120 {
		t.Fatalf("expected 120 rows, got %d", len(got))
	}
	for i, r := range got {
		if r["id"].Int != int64(i) {
			t.Fatalf("row %d out of order: %+v", i, r)
		}
	}
}

func TestWALRecoveryAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s := open(t, dir)

	for i := 0; i < 120; i++ {
		if err := s.InsertRow(rowpack.Row{"id": rowpack.NewInt(int64(i))}); err != nil {
			t.Fatalf("InsertRow: %v", err)
		}
	}
	// simulate a crash: close the file handles without calling Clear or flushing.
	s.Close()

	reopened := open(t, dir)
	defer reopened.Close()
	rows := reopened.GetRows()
	if len(rows) != 120 {
		t.Fatalf("expected 120 recovered rows, got %d", len(rows))
	}
}

func TestClearThenReopenIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := open(t, dir)
	s.InsertRow(rowpack.Row{"id": rowpack.NewInt(1)})
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	s.Close()

	reopened := open(t, dir)
	defer reopened.Close()
	if rows := reopened.GetRows(); len(rows) != 0 {
		t.Fatalf("expected no rows after Clear+reopen, got %d", len(rows))
	}
}
