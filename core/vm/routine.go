// Package vm implements the stack-machine evaluator that runs compiled
// batches: a value stack, indexed local slots, loop-state boxes keyed by
// loop id, and the instruction set the compiler's output is assembled
// into (spec §4.11).
package vm

import (
	"github.com/cairndb/cairn/core/sql"
	"github.com/cairndb/cairn/core/table"
)

// Routine is a function or procedure body: parsed at CREATE time,
// compiled lazily on its first call. Compiled stays false until that
// first call assembles Instructions; a later schema-altering save
// invalidates it so the next call recompiles.
//
// LocalNames/LocalTypes cover both the routine's parameters and its
// top-level DECLAREs, in that order, one slot apiece — the same layout
// core/catalog.parseRoutineSignature already recovers without needing to
// compile the body. Body is that body's parsed statement list, kept
// around unevaluated until a call actually needs it compiled.
type Routine struct {
	Schema       string
	Name         string
	ParamCount   int
	ReturnType   table.Type
	HasReturn    bool
	LocalNames   []string
	LocalTypes   []table.Type
	Body         []sql.Stmt
	Source       string
	Instructions []Inst
	Compiled     bool
}
