package catalog

import (
	"time"

	"github.com/cairndb/cairn/core/cache"
	cairnerrors "github.com/cairndb/cairn/core/errors"
	"github.com/cairndb/cairn/core/storage"
	"github.com/cairndb/cairn/core/table"
	"github.com/cairndb/cairn/core/vm"
	internalcache "github.com/cairndb/cairn/internal/cache"
)

// The four bootstrap tables' root pages are deterministic: Bootstrap is
// the first thing ever run against a fresh AccessPagedData, and
// table.NewTable allocates its byte-store root then its row-file root (in
// that order, see core/bytestore.New / core/sortedfile.NewFile), so four
// back-to-back NewTable calls on an empty file always produce these eight
// page numbers. Open reopens the bootstrap tables directly at these
// constants rather than discovering them through sys.Table — sys.Table
// can't very well describe its own location.
const (
	schemaStoreRoot = 0
	schemaRowsRoot  = 1
	tableStoreRoot  = 2
	tableRowsRoot   = 3
	columnStoreRoot = 4
	columnRowsRoot  = 5
	routineStoreRoot = 6
	routineRowsRoot  = 7
)

// tableInfoCacheTTL is long enough that GetTable's cache never expires on
// its own; DropTable (and any future ALTER TABLE) invalidates it
// explicitly by calling tableCache.Invalidate.
const tableInfoCacheTTL = 100 * 365 * 24 * time.Hour

// tableEntry is a cached, already-open table handle plus the sys.Table
// row id it was built from (so Save can find its way back to that row).
type tableEntry struct {
	rowID uint64
	tbl   *table.Table
}

// Catalog is the system catalog: the four bootstrap tables plus the
// caches that spare CreateTable/GetTable/Routine a linear scan on every
// call (spec §4.12).
type Catalog struct {
	access *storage.AccessPagedData

	schemas  *table.Table
	tables   *table.Table
	columns  *table.Table
	routines *table.Table

	tableCache   *internalcache.TTLCache[string, *tableEntry]
	routineCache cache.Cache[string, *vm.Routine]
}

func newCatalog(access *storage.AccessPagedData, schemas, tables, columns, routines *table.Table) *Catalog {
	return &Catalog{
		access:   access,
		schemas:  schemas,
		tables:   tables,
		columns:  columns,
		routines: routines,
		tableCache: internalcache.New[string, *tableEntry](tableInfoCacheTTL),
		routineCache: cache.NewLRUCache[string, *vm.Routine](cache.Config{MaxSize: 256}),
	}
}

// Bootstrap initialises a fresh database: the four system tables, the
// "sys" and "public" schemas, and each system table's own self-describing
// row (original_source/lib.rs's hard-coded sysinit batch, expressed as
// direct table operations instead of parsed SQL since there is no DDL
// executor yet to run it through).
func Bootstrap(access *storage.AccessPagedData) (*Catalog, error) {
	schemas, err := table.NewTable(schemaCatalogID, schemaInfo, access)
	if err != nil {
		return nil, err
	}
	tables, err := table.NewTable(tableCatalogID, tableInfo, access)
	if err != nil {
		return nil, err
	}
	columns, err := table.NewTable(columnCatalogID, columnInfo, access)
	if err != nil {
		return nil, err
	}
	routines, err := table.NewTable(routineCatalogID, routineInfo, access)
	if err != nil {
		return nil, err
	}

	sysSchemaID, err := schemas.Insert([]table.Value{"sys"})
	if err != nil {
		return nil, err
	}
	if _, err := schemas.Insert([]table.Value{"public"}); err != nil {
		return nil, err
	}

	type bootstrapTable struct {
		name string
		tbl  *table.Table
		cols []table.ColumnDef
	}
	bootstrapTables := []bootstrapTable{
		{"Schema", schemas, schemaInfo.ColumnDefs()},
		{"Table", tables, tableInfo.ColumnDefs()},
		{"Column", columns, columnInfo.ColumnDefs()},
		{"Routine", routines, routineInfo.ColumnDefs()},
	}
	for _, bt := range bootstrapTables {
		rowID, err := tables.Insert([]table.Value{
			packRoot(bt.tbl.RowsRoot(), bt.tbl.StoreRoot()),
			int64(sysSchemaID),
			bt.name,
			boolToTinyInt(false),
			"",
			int64(bt.tbl.IDAlloc()),
		})
		if err != nil {
			return nil, err
		}
		for _, col := range bt.cols {
			if _, err := columns.Insert([]table.Value{int64(rowID), col.Name, encodeType(col.Type)}); err != nil {
				return nil, err
			}
		}
	}

	return newCatalog(access, schemas, tables, columns, routines), nil
}

// Open reconstructs a Catalog from an already-bootstrapped file, reading
// each bootstrap table's id_alloc from its own sys.Table row (spec §4.12:
// "On open, each system table is initialised by reading its IdGen from
// its own sys.Table row").
func Open(access *storage.AccessPagedData) (*Catalog, error) {
	tablesProbe, err := table.OpenTable(tableCatalogID, tableInfo, access, tableRowsRoot, tableStoreRoot, 0)
	if err != nil {
		return nil, err
	}
	tablesRow, ok, err := tablesProbe.Get(tableCatalogID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cairnerrors.NewNotFound("sys.Table", "self")
	}
	tables, err := table.OpenTable(tableCatalogID, tableInfo, access, tableRowsRoot, tableStoreRoot, uint64(tablesRow.Values[5].(int64)))
	if err != nil {
		return nil, err
	}

	open := func(catalogID uint64, info *table.Info, rowsRoot, storeRoot uint64) (*table.Table, error) {
		row, ok, err := tables.Get(catalogID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, cairnerrors.NewNotFound("sys.Table", info.FullName)
		}
		return table.OpenTable(catalogID, info, access, rowsRoot, storeRoot, uint64(row.Values[5].(int64)))
	}

	schemas, err := open(schemaCatalogID, schemaInfo, schemaRowsRoot, schemaStoreRoot)
	if err != nil {
		return nil, err
	}
	columns, err := open(columnCatalogID, columnInfo, columnRowsRoot, columnStoreRoot)
	if err != nil {
		return nil, err
	}
	routines, err := open(routineCatalogID, routineInfo, routineRowsRoot, routineStoreRoot)
	if err != nil {
		return nil, err
	}

	return newCatalog(access, schemas, tables, columns, routines), nil
}

// Save persists the id_alloc counters of every table touched since the
// last Save (system tables and user tables alike) back into their
// sys.Table rows, mirroring original_source/lib.rs's db.save() loop.
func (c *Catalog) Save() error {
	for _, sys := range []*table.Table{c.schemas, c.tables, c.columns, c.routines} {
		if err := c.saveAlloc(sys.CatalogID, sys); err != nil {
			return err
		}
	}
	for _, entry := range c.tableCache.GetAll() {
		if err := c.saveAlloc(entry.rowID, entry.tbl); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) saveAlloc(rowID uint64, t *table.Table) error {
	if !t.Dirty {
		return nil
	}
	row, ok, err := c.tables.Get(rowID)
	if err != nil || !ok {
		return err
	}
	row.Values[5] = int64(t.IDAlloc())
	if err := c.tables.Update(rowID, row.Values); err != nil {
		return err
	}
	t.Dirty = false
	return nil
}

func cacheKey(schema, name string) string { return schema + "." + name }
