package catalog

import (
	cairnerrors "github.com/cairndb/cairn/core/errors"
	"github.com/cairndb/cairn/core/table"
)

// CreateSchema adds a new schema, returning its sys.Schema row id.
func (c *Catalog) CreateSchema(name string) (uint64, error) {
	if _, ok, err := c.GetSchema(name); err != nil {
		return 0, err
	} else if ok {
		return 0, cairnerrors.NewValidation("schema", "schema "+name+" already exists")
	}
	return c.schemas.Insert([]table.Value{name})
}

// GetSchema resolves a schema name to its sys.Schema row id.
func (c *Catalog) GetSchema(name string) (uint64, bool, error) {
	cur, err := c.schemas.Asc()
	if err != nil {
		return 0, false, err
	}
	for {
		row, ok, err := cur.Next()
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, nil
		}
		if row.Values[0].(string) == name {
			return row.ID, true, nil
		}
	}
}

// CreateTable creates a new user table, persisting its layout into
// sys.Table/sys.Column and opening a live handle cached for GetTable.
func (c *Catalog) CreateTable(schema, name string, cols []table.ColumnDef) (*table.Table, error) {
	schemaID, ok, err := c.GetSchema(schema)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cairnerrors.NewNotFound("schema", schema)
	}
	if _, ok, err := c.lookupTableRow(schemaID, name); err != nil {
		return nil, err
	} else if ok {
		return nil, cairnerrors.NewValidation("table", "table "+schema+"."+name+" already exists")
	}

	info := table.NewInfo(schema+"."+name, cols)
	tbl, err := table.NewTable(0, info, c.access)
	if err != nil {
		return nil, err
	}

	rowID, err := c.tables.Insert([]table.Value{
		packRoot(tbl.RowsRoot(), tbl.StoreRoot()),
		int64(schemaID),
		name,
		boolToTinyInt(false),
		"",
		int64(tbl.IDAlloc()),
	})
	if err != nil {
		return nil, err
	}
	tbl.CatalogID = rowID
	for _, col := range cols {
		if _, err := c.columns.Insert([]table.Value{int64(rowID), col.Name, encodeType(col.Type)}); err != nil {
			return nil, err
		}
	}

	c.tableCache.Set(cacheKey(schema, name), &tableEntry{rowID: rowID, tbl: tbl})
	return tbl, nil
}

// GetTable resolves schema.name to a live table handle, consulting the
// cache before falling back to a catalog scan.
func (c *Catalog) GetTable(schema, name string) (*table.Table, error) {
	key := cacheKey(schema, name)
	if entry, ok := c.tableCache.Get(key); ok {
		return entry.tbl, nil
	}

	schemaID, ok, err := c.GetSchema(schema)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cairnerrors.NewNotFound("schema", schema)
	}
	row, ok, err := c.lookupTableRow(schemaID, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cairnerrors.NewNotFound("table", schema+"."+name)
	}

	cols, err := c.tableColumns(row.ID)
	if err != nil {
		return nil, err
	}
	info := table.NewInfo(schema+"."+name, cols)
	rowsRoot, storeRoot := unpackRoot(row.Values[0].(int64))
	tbl, err := table.OpenTable(row.ID, info, c.access, rowsRoot, storeRoot, uint64(row.Values[5].(int64)))
	if err != nil {
		return nil, err
	}

	c.tableCache.Set(key, &tableEntry{rowID: row.ID, tbl: tbl})
	return tbl, nil
}

// DropTable removes a user table's catalog entry (sys.Table row and every
// matching sys.Column row) and evicts it from the cache. The underlying
// sorted-file pages are not reclaimed: freeing a whole table's page chain
// is a job for the storage layer's free list, not the catalog.
func (c *Catalog) DropTable(schema, name string) error {
	schemaID, ok, err := c.GetSchema(schema)
	if err != nil {
		return err
	}
	if !ok {
		return cairnerrors.NewNotFound("schema", schema)
	}
	row, ok, err := c.lookupTableRow(schemaID, name)
	if err != nil {
		return err
	}
	if !ok {
		return cairnerrors.NewNotFound("table", schema+"."+name)
	}

	colCur, err := c.columns.Asc()
	if err != nil {
		return err
	}
	var colIDs []uint64
	for {
		colRow, ok, err := colCur.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if uint64(colRow.Values[0].(int64)) == row.ID {
			colIDs = append(colIDs, colRow.ID)
		}
	}
	for _, id := range colIDs {
		if _, err := c.columns.Delete(id); err != nil {
			return err
		}
	}
	if _, err := c.tables.Delete(row.ID); err != nil {
		return err
	}
	c.tableCache.Invalidate()
	return nil
}

// lookupTableRow linear-scans sys.Table for a (schema, name) match.
func (c *Catalog) lookupTableRow(schemaID uint64, name string) (*table.Row, bool, error) {
	cur, err := c.tables.Asc()
	if err != nil {
		return nil, false, err
	}
	for {
		row, ok, err := cur.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if uint64(row.Values[1].(int64)) == schemaID && row.Values[2].(string) == name {
			return row, true, nil
		}
	}
}

// tableColumns collects a table's columns in declaration order: sys.
// Column rows for a given table id are inserted consecutively at CREATE
// TABLE time and ids only increase, so an ascending scan naturally
// recovers declaration order.
func (c *Catalog) tableColumns(tid uint64) ([]table.ColumnDef, error) {
	cur, err := c.columns.Asc()
	if err != nil {
		return nil, err
	}
	var cols []table.ColumnDef
	for {
		row, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if uint64(row.Values[0].(int64)) == tid {
			cols = append(cols, table.ColumnDef{
				Name: row.Values[1].(string),
				Type: decodeType(row.Values[2].(int64)),
			})
		}
	}
	return cols, nil
}
