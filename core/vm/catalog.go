package vm

import "github.com/cairndb/cairn/core/table"

// Catalog is the evaluator's view onto the system catalog (core/catalog):
// resolving a user routine call to its (lazily compiled) Routine, and
// resolving a FOR/INSERT/UPDATE/DELETE target to its live table handle.
// Kept as a narrow interface here, implemented concretely by
// core/catalog, so core/vm never imports core/catalog — core/catalog
// imports core/vm to build Routine/Inst values, and the reverse import
// would cycle.
type Catalog interface {
	// Routine resolves schema.name to a Routine, compiling its body on
	// first call (spec §4.11's "Lazy-compile") and returning the cached
	// compiled form on subsequent calls until the next schema-altering
	// save invalidates it.
	Routine(schema, name string) (*Routine, error)
	// GetTable resolves schema.name to a live table handle, the target
	// the statement compiler resolves a FOR/INSERT/UPDATE/DELETE's base
	// table reference against.
	GetTable(schema, name string) (*table.Table, error)
}
