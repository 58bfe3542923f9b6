package db

import (
	"github.com/cairndb/cairn/core/table"
	"github.com/cairndb/cairn/core/vm"
)

// RoutineCatalog is exactly core/vm.Catalog, restated as its own name here
// since CatalogImpl embeds it alongside DDLExecutor (a *core/catalog.Catalog
// satisfies both with no adapter code).
type RoutineCatalog = vm.Catalog

// DDLExecutor is the subset of *core/catalog.Catalog the batch runner
// dispatches CREATE/ALTER/DROP statements against directly, without ever
// routing them through the compiler or evaluator (spec's DDL takes effect
// immediately, in place, within its own GO section).
type DDLExecutor interface {
	CreateSchema(name string) (uint64, error)
	GetSchema(name string) (uint64, bool, error)
	CreateTable(schema, name string, cols []table.ColumnDef) (*table.Table, error)
	DropTable(schema, name string) error
	CreateRoutine(schema, name, source string) (uint64, error)
	AlterRoutine(schema, name, source string) error
	Save() error
}
