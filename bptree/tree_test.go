package bptree

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/geddydb/geddydb/block"
	"github.com/geddydb/geddydb/rowpack"
)

func openTree(t *testing.T, dir string, order int) *Tree {
	t.Helper()
	bm, err := block.Open(filepath.Join(dir, "idx.blk"))
	if err != nil {
		t.Fatalf("block.Open: %v", err)
	}
	tr, err := Open(bm, filepath.Join(dir, "idx.meta"), order)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tr
}

func TestInsertSearchAndDuplicate(t *testing.T) {
	tr := openTree(t, t.TempDir(), 4)
	for i := 0; i < 50; i++ {
		if err := tr.Insert(rowpack.NewInt(int64(i)), i*10); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := 0; i < 50; i++ {
		v, ok, err := tr.Search(rowpack.NewInt(int64(i)))
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		if !ok || v != i*10 {
			t.Fatalf("Search(%d) = %d, %v; want %d, true", i, v, ok, i*10)
		}
	}
	if _, ok, _ := tr.Search(rowpack.NewInt(999)); ok {
		t.Fatalf("Search found a key that was never inserted")
	}
	if err := tr.Insert(rowpack.NewInt(10), 1); err != ErrDuplicateKey {
		t.Fatalf("Insert duplicate: got %v, want ErrDuplicateKey", err)
	}
}

func TestNodeOrderInvariant(t *testing.T) {
	const order = 4
	tr := openTree(t, t.TempDir(), order)
	for i := 0; i < 300; i++ {
		if err := tr.Insert(rowpack.NewInt(int64(i)), i); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	visited := map[uuid.UUID]bool{}
	var walk func(id uuid.UUID) error
	walk = func(id uuid.UUID) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		n, err := tr.loadNode(id)
		if err != nil {
			return err
		}
		if len(n.Keys) > order-1 {
			t.Fatalf("node %s holds %d keys, exceeds order-1=%d", n.ID, len(n.Keys), order-1)
		}
		if !n.Leaf {
			for _, c := range n.Children {
				if err := walk(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	root, err := tr.root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if err := walk(root.ID); err != nil {
		t.Fatalf("walk: %v", err)
	}
}

func TestScanYieldsAscendingOrder(t *testing.T) {
	tr := openTree(t, t.TempDir(), 5)
	want := []int64{5, 1, 9, 3, 7, 2, 8, 0, 4, 6}
	for _, k := range want {
		if err := tr.Insert(rowpack.NewInt(k), int(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	cur, err := tr.Scan(nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	var got []int64
	for {
		k, _, ok := cur.Next()
		if !ok {
			break
		}
		got = append(got, k.Int)
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("cursor error: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("scan not strictly ascending at %d: %v", i, got)
		}
	}
}

func TestScanFromStartKey(t *testing.T) {
	tr := openTree(t, t.TempDir(), 4)
	for i := 0; i < 40; i++ {
		if err := tr.Insert(rowpack.NewInt(int64(i)), i); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	start := rowpack.NewInt(17)
	cur, err := tr.Scan(&start)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	k, v, ok := cur.Next()
	if !ok || k.Int != 17 || v != 17 {
		t.Fatalf("first entry after start key 17: got %v %v %v", k, v, ok)
	}
	count := 1
	for {
		_, _, ok := cur.Next()
		if !ok {
			break
		}
		count++
	}
	if count != 40-17 {
		t.Fatalf("expected %d entries from key 17 onward, got %d", 40-17, count)
	}
}

func TestBulkLoadMatchesSequentialInserts(t *testing.T) {
	const n = 2000
	const order = 32

	seqDir := t.TempDir()
	seq := openTree(t, seqDir, order)
	for i := 0; i < n; i++ {
		if err := seq.Insert(rowpack.NewInt(int64(i)), i*2); err != nil {
			t.Fatalf("sequential Insert(%d): %v", i, err)
		}
	}

	bulkDir := t.TempDir()
	bm, err := block.Open(filepath.Join(bulkDir, "idx.blk"))
	if err != nil {
		t.Fatalf("block.Open: %v", err)
	}
	items := make([]Item, n)
	for i := 0; i < n; i++ {
		items[i] = Item{Key: rowpack.NewInt(int64(i)), Value: i * 2}
	}
	bulk, err := BulkLoad(items, order, bm, filepath.Join(bulkDir, "idx.meta"))
	if err != nil {
		t.Fatalf("BulkLoad: %v", err)
	}

	for i := 0; i < n; i++ {
		want, ok, err := seq.Search(rowpack.NewInt(int64(i)))
		if err != nil || !ok {
			t.Fatalf("sequential Search(%d): %v, %v", i, ok, err)
		}
		got, ok, err := bulk.Search(rowpack.NewInt(int64(i)))
		if err != nil || !ok {
			t.Fatalf("bulk Search(%d): %v, %v", i, ok, err)
		}
		if got != want {
			t.Fatalf("Search(%d): bulk=%d sequential=%d", i, got, want)
		}
	}

	seqCur, err := seq.Scan(nil)
	if err != nil {
		t.Fatalf("seq.Scan: %v", err)
	}
	bulkCur, err := bulk.Scan(nil)
	if err != nil {
		t.Fatalf("bulk.Scan: %v", err)
	}
	for i := 0; i < n; i++ {
		sk, sv, sok := seqCur.Next()
		bk, bv, bok := bulkCur.Next()
		if !sok || !bok {
			t.Fatalf("scan exhausted early at %d: seq=%v bulk=%v", i, sok, bok)
		}
		if sk.Int != bk.Int || sv != bv {
			t.Fatalf("scan mismatch at %d: seq=(%v,%v) bulk=(%v,%v)", i, sk, sv, bk, bv)
		}
	}
	if _, _, ok := seqCur.Next(); ok {
		t.Fatalf("sequential scan has extra entries")
	}
	if _, _, ok := bulkCur.Next(); ok {
		t.Fatalf("bulk scan has extra entries")
	}
}

func TestBulkLoadRejectsUnsortedInput(t *testing.T) {
	dir := t.TempDir()
	bm, err := block.Open(filepath.Join(dir, "idx.blk"))
	if err != nil {
		t.Fatalf("block.Open: %v", err)
	}
	items := []Item{
		{Key: rowpack.NewInt(3), Value: 3},
		{Key: rowpack.NewInt(1), Value: 1},
	}
	if _, err := BulkLoad(items, 8, bm, filepath.Join(dir, "idx.meta")); err != ErrUnsorted {
		t.Fatalf("BulkLoad unsorted: got %v, want ErrUnsorted", err)
	}
}

func TestTreeSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	bm, err := block.Open(filepath.Join(dir, "idx.blk"))
	if err != nil {
		t.Fatalf("block.Open: %v", err)
	}
	meta := filepath.Join(dir, "idx.meta")
	tr, err := Open(bm, meta, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 60; i++ {
		if err := tr.Insert(rowpack.NewInt(int64(i)), i); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	bm.Close()

	bm2, err := block.Open(filepath.Join(dir, "idx.blk"))
	if err != nil {
		t.Fatalf("reopen block.Open: %v", err)
	}
	tr2, err := Open(bm2, meta, 4)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	for i := 0; i < 60; i++ {
		v, ok, err := tr2.Search(rowpack.NewInt(int64(i)))
		if err != nil || !ok || v != i {
			t.Fatalf("reopened Search(%d) = %d, %v, %v", i, v, ok, err)
		}
	}
}
