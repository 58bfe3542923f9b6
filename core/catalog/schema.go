// Package catalog implements the system catalog (spec §4.12): the
// bootstrap sys.Schema/sys.Table/sys.Column/sys.Routine tables that
// describe every other table and routine in the database, plus the
// lookup/create operations core/db's batch runner drives CREATE/ALTER/
// DROP and routine-call resolution through.
package catalog

import "github.com/cairndb/cairn/core/table"

// The four bootstrap tables, per spec §4.12. sys.Routine's id is not
// literally fixed by the spec ("created by the bootstrap script") but is
// assigned here alongside the other three for the same reason: nothing
// ever needs to look it up by a value other than this constant.
const (
	schemaCatalogID   = 1
	tableCatalogID    = 2
	columnCatalogID   = 3
	routineCatalogID  = 4
	firstUserCatalogID = 5
)

var schemaInfo = table.NewInfo("sys.Schema", []table.ColumnDef{
	{Name: "Name", Type: table.String},
})

// tableInfo's Root column packs both of a table's root pages (its
// sorted-file row root and its byte-store root) into one bigint, since
// spec §4.12 names a single Root column but this port gives every table
// its own byte store rather than one store shared database-wide (see
// original_source/lib.rs's single `bs: ByteStorage::new(0)`). See
// packRoot/unpackRoot below.
var tableInfo = table.NewInfo("sys.Table", []table.ColumnDef{
	{Name: "Root", Type: table.BigInt},
	{Name: "Schema", Type: table.BigInt},
	{Name: "Name", Type: table.String},
	{Name: "IsView", Type: table.TinyInt},
	{Name: "Def", Type: table.String},
	{Name: "IdGen", Type: table.BigInt},
})

var columnInfo = table.NewInfo("sys.Column", []table.ColumnDef{
	{Name: "Table", Type: table.BigInt},
	{Name: "Name", Type: table.String},
	{Name: "Type", Type: table.BigInt},
})

var routineInfo = table.NewInfo("sys.Routine", []table.ColumnDef{
	{Name: "Schema", Type: table.BigInt},
	{Name: "Name", Type: table.String},
	{Name: "Def", Type: table.String},
})

// packRoot/unpackRoot fold a table's two root page numbers into the one
// bigint sys.Table.Root has room for.
func packRoot(rowsRoot, storeRoot uint64) int64 {
	return int64(rowsRoot<<32 | (storeRoot & 0xffffffff))
}

func unpackRoot(v int64) (rowsRoot, storeRoot uint64) {
	u := uint64(v)
	return u >> 32, u & 0xffffffff
}

// encodeType/decodeType give sys.Column.Type a stable integer encoding:
// a type's Kind and byte Size packed into one bigint.
func encodeType(t table.Type) int64 { return int64(t.Kind)*100 + int64(t.Size) }

func decodeType(code int64) table.Type {
	return table.Type{Kind: table.Kind(code / 100), Size: int(code % 100)}
}

func boolToTinyInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
