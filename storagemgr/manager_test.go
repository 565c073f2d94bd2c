package storagemgr

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/geddydb/geddydb/rowpack"
)

func TestOpenCreatesDirectoryLayout(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, sub := range []string{"wal", "segments", "indexes"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s to exist as a directory: %v", sub, err)
		}
	}
}

func TestWriteRowAndFlushTable(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.SetPrimaryKey("users", "id")

	for i := 0; i < 5; i++ {
		if err := m.WriteRow("users", rowpack.Row{"id": rowpack.NewInt(int64(i))}); err != nil {
			t.Fatalf("WriteRow(%d): %v", i, err)
		}
	}
	rs, err := m.GetRowStore("users")
	if err != nil {
		t.Fatalf("GetRowStore: %v", err)
	}
	if len(rs.GetRows()) != 5 {
		t.Fatalf("expected 5 resident rows before flush, got %d", len(rs.GetRows()))
	}

	if err := m.FlushTable("users"); err != nil {
		t.Fatalf("FlushTable: %v", err)
	}
	if len(rs.GetRows()) != 0 {
		t.Fatalf("expected row store empty after flush, got %d", len(rs.GetRows()))
	}

	cs, err := m.GetColumnStore("users")
	if err != nil {
		t.Fatalf("GetColumnStore: %v", err)
	}
	rows, err := cs.LoadSegments()
	if err != nil {
		t.Fatalf("LoadSegments: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows migrated to segments, got %d", len(rows))
	}
}

func TestDropTableRemovesArtifacts(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.SetPrimaryKey("orders", "id")
	if err := m.WriteRow("orders", rowpack.Row{"id": rowpack.NewInt(1)}); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if err := m.FlushTable("orders"); err != nil {
		t.Fatalf("FlushTable: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "indexes", "orders_id.idx.meta"), []byte("x"), 0o640); err != nil {
		t.Fatalf("seed index file: %v", err)
	}

	if err := m.DropTable("orders"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "orders.tbl")); !os.IsNotExist(err) {
		t.Fatalf("expected row blocks removed, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "segments", "orders")); !os.IsNotExist(err) {
		t.Fatalf("expected segments directory removed, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "indexes", "orders_id.idx.meta")); !os.IsNotExist(err) {
		t.Fatalf("expected index artifact removed, stat err=%v", err)
	}
}

func TestWatchReportsWalCreation(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.SetPrimaryKey("accounts", "id")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events := make(chan TableEvent, 4)
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx, events) }()

	time.Sleep(50 * time.Millisecond)
	if err := m.WriteRow("accounts", rowpack.Row{"id": rowpack.NewInt(1)}); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Table != "accounts" || !ev.Created {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("timed out waiting for wal-creation event")
	}
	cancel()
	<-done
}
