package catalog

import (
	"testing"

	"github.com/cairndb/cairn/core/storage"
	"github.com/cairndb/cairn/core/table"
)

func newTestDevice(t *testing.T) *storage.SharedPagedData {
	t.Helper()
	dev := storage.NewMemDevice()
	cf, err := storage.OpenCompactFile(dev)
	if err != nil {
		t.Fatalf("OpenCompactFile: %v", err)
	}
	return storage.NewSharedPagedData(cf)
}

func TestBootstrapCreatesSysAndPublicSchemas(t *testing.T) {
	shared := newTestDevice(t)
	cat, err := Bootstrap(shared.OpenWriter())
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, ok, err := cat.GetSchema("sys"); err != nil || !ok {
		t.Fatalf("GetSchema(sys) = %v, %v", ok, err)
	}
	if _, ok, err := cat.GetSchema("public"); err != nil || !ok {
		t.Fatalf("GetSchema(public) = %v, %v", ok, err)
	}
	if _, ok, err := cat.GetSchema("nope"); err != nil || ok {
		t.Fatalf("GetSchema(nope) = %v, %v, want not found", ok, err)
	}
}

func TestCreateTableThenGetTableRoundTrip(t *testing.T) {
	shared := newTestDevice(t)
	access := shared.OpenWriter()
	cat, err := Bootstrap(access)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, err := cat.CreateSchema("app"); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	cols := []table.ColumnDef{
		{Name: "name", Type: table.String},
		{Name: "age", Type: table.Int},
	}
	tbl, err := cat.CreateTable("app", "people", cols)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := tbl.Insert([]table.Value{"alice", int64(30)}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := cat.GetTable("app", "people")
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if got != tbl {
		t.Fatal("GetTable should return the cached handle just created")
	}
	if len(got.Info.Columns) != 2 || got.Info.Columns[0].Name != "name" || got.Info.Columns[1].Name != "age" {
		t.Fatalf("unexpected columns: %+v", got.Info.Columns)
	}

	if _, err := cat.CreateTable("app", "people", cols); err == nil {
		t.Fatal("expected error creating a duplicate table")
	}
	if _, err := cat.GetTable("app", "nope"); err == nil {
		t.Fatal("expected not-found error for unknown table")
	}
}

func TestDropTableRemovesRowsAndEvictsCache(t *testing.T) {
	shared := newTestDevice(t)
	access := shared.OpenWriter()
	cat, err := Bootstrap(access)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, err := cat.CreateSchema("app"); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	if _, err := cat.CreateTable("app", "widgets", []table.ColumnDef{{Name: "n", Type: table.Int}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := cat.DropTable("app", "widgets"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if _, err := cat.GetTable("app", "widgets"); err == nil {
		t.Fatal("expected not-found error after DropTable")
	}
}

func TestOpenReconstructsCatalogFromExistingFile(t *testing.T) {
	shared := newTestDevice(t)
	access := shared.OpenWriter()
	cat, err := Bootstrap(access)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, err := cat.CreateSchema("app"); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	tbl, err := cat.CreateTable("app", "people", []table.ColumnDef{
		{Name: "name", Type: table.String},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := tbl.Insert([]table.Value{"alice"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := cat.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := Open(shared.OpenWriter())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok, err := reopened.GetSchema("app"); err != nil || !ok {
		t.Fatalf("GetSchema(app) after reopen = %v, %v", ok, err)
	}
	got, err := reopened.GetTable("app", "people")
	if err != nil {
		t.Fatalf("GetTable after reopen: %v", err)
	}
	row, ok, err := got.Get(1)
	if err != nil || !ok {
		t.Fatalf("Get(1) = %v, %v, want row present", ok, err)
	}
	if row.Values[0].(string) != "alice" {
		t.Fatalf("row = %v, want alice", row.Values)
	}
}

func TestCreateRoutineAndLazyResolve(t *testing.T) {
	shared := newTestDevice(t)
	access := shared.OpenWriter()
	cat, err := Bootstrap(access)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	src := "CREATE FN sys.double(n bigint) RETURNS bigint BEGIN DECLARE @r bigint SET @r = n * 2 RETURN @r END"
	if _, err := cat.CreateRoutine("sys", "double", src); err != nil {
		t.Fatalf("CreateRoutine: %v", err)
	}

	r, err := cat.Routine("sys", "double")
	if err != nil {
		t.Fatalf("Routine: %v", err)
	}
	if r.ParamCount != 1 {
		t.Fatalf("ParamCount = %d, want 1", r.ParamCount)
	}
	if !r.HasReturn || r.ReturnType != table.BigInt {
		t.Fatalf("ReturnType = %+v, HasReturn = %v", r.ReturnType, r.HasReturn)
	}
	if len(r.LocalTypes) != 2 || r.LocalTypes[0] != table.BigInt || r.LocalTypes[1] != table.BigInt {
		t.Fatalf("LocalTypes = %v, want [bigint bigint] (1 param + 1 DECLARE)", r.LocalTypes)
	}
	if r.Compiled {
		t.Fatal("a freshly resolved Routine should not be marked Compiled")
	}

	r2, err := cat.Routine("sys", "double")
	if err != nil {
		t.Fatalf("Routine (cached): %v", err)
	}
	if r2 != r {
		t.Fatal("second Routine call should return the cached *vm.Routine")
	}

	if _, err := cat.Routine("sys", "missing"); err == nil {
		t.Fatal("expected not-found error for unknown routine")
	}
}

func TestCreateRoutineRejectsDuplicate(t *testing.T) {
	shared := newTestDevice(t)
	access := shared.OpenWriter()
	cat, err := Bootstrap(access)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	src := "CREATE PROC sys.noop() BEGIN RETURN END"
	if _, err := cat.CreateRoutine("sys", "noop", src); err != nil {
		t.Fatalf("CreateRoutine: %v", err)
	}
	if _, err := cat.CreateRoutine("sys", "noop", src); err == nil {
		t.Fatal("expected error creating a duplicate routine")
	}
}
