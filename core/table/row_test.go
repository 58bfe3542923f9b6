package table

import (
	"bytes"
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
	return storage.NewSharedPagedData(cf).OpenWriter()
}

func testInfo() *Info {
	return NewInfo("main.people", []ColumnDef{
		{Name: "age", Type: Int},
		{Name: "balance", Type: Double},
		{Name: "active", Type: Bool},
		{Name: "name", Type: String},
		{Name: "photo", Type: Binary},
	})
}

func TestInsertGetRoundTrip(t *testing.T) {
	tbl, err := NewTable(2, testInfo(), newTestAccess(t))
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	id, err := tbl.Insert([]Value{int64(30), 12.5, true, "short name", []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	row, ok, err := tbl.Get(id)
	if err != nil || !ok {
		t.Fatalf("Get(%d) = _, %v, %v", id, ok, err)
	}
	if row.Values[0].(int64) != 30 {
		t.Fatalf("age = %v, want 30", row.Values[0])
	}
	if row.Values[1].(float64) != 12.5 {
		t.Fatalf("balance = %v, want 12.5", row.Values[1])
	}
	if row.Values[2].(bool) != true {
		t.Fatalf("active = %v, want true", row.Values[2])
	}
	if row.Values[3].(string) != "short name" {
		t.Fatalf("name = %q, want %q", row.Values[3], "short name")
	}
	if !bytes.Equal(row.Values[4].([]byte), []byte{1, 2, 3}) {
		t.Fatalf("photo = %v, want [1 2 3]", row.Values[4])
	}
}

func TestStringOverflowSpillsToByteStore(t *testing.T) {
	tbl, err := NewTable(2, testInfo(), newTestAccess(t))
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	long := bytes.Repeat([]byte("w"), 500)
	id, err := tbl.Insert([]Value{int64(1), 0.0, false, string(long), nil})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	row, ok, err := tbl.Get(id)
	if err != nil || !ok {
		t.Fatalf("Get: %v, %v", ok, err)
	}
	if row.Values[3].(string) != string(long) {
		t.Fatalf("long string round trip failed: got %d bytes, want %d", len(row.Values[3].(string)), len(long))
	}
}

func TestIDAllocationStrictlyIncreasing(t *testing.T) {
	tbl, _ := NewTable(2, testInfo(), newTestAccess(t))
	prev := uint64(0)
	for i := 0; i < 50; i++ {
		id, err := tbl.Insert([]Value{int64(i), 0.0, false, "", nil})
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		if id <= prev {
			t.Fatalf("id %d did not strictly increase past %d", id, prev)
		}
		prev = id
	}
}

func TestUpdateAndDelete(t *testing.T) {
	tbl, _ := NewTable(2, testInfo(), newTestAccess(t))
	id, _ := tbl.Insert([]Value{int64(1), 1.0, true, "a", nil})

	if err := tbl.Update(id, []Value{int64(2), 2.0, false, "b", nil}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	row, ok, err := tbl.Get(id)
	if err != nil || !ok || row.Values[0].(int64) != 2 {
		t.Fatalf("Get after update: %+v, %v, %v", row, ok, err)
	}

	removed, err := tbl.Delete(id)
	if err != nil || !removed {
		t.Fatalf("Delete: %v, %v", removed, err)
	}
	_, ok, err = tbl.Get(id)
	if err != nil || ok {
		t.Fatalf("row should be gone after Delete: ok=%v err=%v", ok, err)
	}
}

func TestAscendingRowOrder(t *testing.T) {
	tbl, _ := NewTable(2, testInfo(), newTestAccess(t))
	for i := 0; i < 20; i++ {
		if _, err := tbl.Insert([]Value{int64(i), 0.0, false, "", nil}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	c, err := tbl.Asc()
	if err != nil {
		t.Fatalf("Asc: %v", err)
	}
	prev := uint64(0)
	count := 0
	for {
		row, ok, err := c.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		if row.ID <= prev {
			t.Fatalf("row id %d did not increase past %d", row.ID, prev)
		}
		prev = row.ID
		count++
	}
	if count != 20 {
		t.Fatalf("got %d rows, want 20", count)
	}
}
