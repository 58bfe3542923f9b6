package sortedfile

import (
	"math/rand"
	"testing"

	"github.com/cairndb/cairn/core/storage"
)

func newTestAccess(t *testing.T) *storage.AccessPagedData {
	t.Helper()
	dev := storage.NewMemDevice()
	cf, err := storage.OpenCompactFile(dev)
	if err != nil {
		t.Fatalf("OpenCompactFile: %v", err)
	}
	shared := storage.NewSharedPagedData(cf)
	return shared.OpenWriter()
}

func TestFileInsertGetWithinSinglePage(t *testing.T) {
	access := newTestAccess(t)
	f, err := NewFile(access, 8, intFactory)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	for i := uint32(0); i < 500; i++ {
		if err := f.Insert(intRecord{key: i, value: i + 1}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := uint32(0); i < 500; i++ {
		rec, ok, err := f.Get(intRecord{key: i})
		if err != nil || !ok {
			t.Fatalf("Get(%d) = _, %v, %v", i, ok, err)
		}
		if rec.(intRecord).value != i+1 {
			t.Fatalf("Get(%d).value = %d, want %d", i, rec.(intRecord).value, i+1)
		}
	}
}

func TestFileSplitsIntoDirectory(t *testing.T) {
	access := newTestAccess(t)
	f, err := NewFile(access, 8, intFactory)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	const n = 3000 // exceeds MaxNodes, forcing at least one leaf split
	order := rand.New(rand.NewSource(7)).Perm(n)
	for _, k := range order {
		if err := f.Insert(intRecord{key: uint32(k), value: uint32(k) * 2}); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}

	kind, _, err := f.loadTree(f.root)
	if err != nil {
		t.Fatalf("loadTree: %v", err)
	}
	if kind != kindDir {
		t.Fatal("expected root to become a directory page after exceeding a single leaf's node budget")
	}

	for k := 0; k < n; k++ {
		rec, ok, err := f.Get(intRecord{key: uint32(k)})
		if err != nil || !ok {
			t.Fatalf("Get(%d) = _, %v, %v", k, ok, err)
		}
		if rec.(intRecord).value != uint32(k)*2 {
			t.Fatalf("Get(%d).value = %d, want %d", k, rec.(intRecord).value, uint32(k)*2)
		}
	}

	c, err := f.Asc()
	if err != nil {
		t.Fatalf("Asc: %v", err)
	}
	prev := int64(-1)
	count := 0
	for {
		rec, ok := c.Next()
		if !ok {
			break
		}
		k := int64(rec.(intRecord).key)
		if k <= prev {
			t.Fatalf("file-level ascending cursor produced non-increasing key: %d after %d", k, prev)
		}
		prev = k
		count++
	}
	if count != n {
		t.Fatalf("ascending cursor yielded %d records, want %d", count, n)
	}
}

func TestFileRemoveAcrossSplit(t *testing.T) {
	access := newTestAccess(t)
	f, _ := NewFile(access, 8, intFactory)
	const n = 2500
	for k := 0; k < n; k++ {
		if err := f.Insert(intRecord{key: uint32(k), value: uint32(k)}); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	for k := 0; k < n; k += 2 {
		removed, err := f.Remove(intRecord{key: uint32(k)})
		if err != nil || !removed {
			t.Fatalf("Remove(%d) = %v, %v", k, removed, err)
		}
	}
	for k := 0; k < n; k++ {
		_, ok, err := f.Get(intRecord{key: uint32(k)})
		if err != nil {
			t.Fatalf("Get(%d): %v", k, err)
		}
		if k%2 == 0 && ok {
			t.Fatalf("key %d should have been removed", k)
		}
		if k%2 == 1 && !ok {
			t.Fatalf("key %d should still be present", k)
		}
	}
}
