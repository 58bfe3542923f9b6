// Package compiler type-checks the untyped trees core/sql produces and
// emits compiled scalar expressions: closures over their already-compiled
// operand children, evaluated against an Env at runtime by core/vm.
package compiler

import "github.com/cairndb/cairn/core/table"

// Env is everything a compiled expression needs from the running
// evaluator. It is defined here, not in core/vm, so core/compiler never
// imports core/vm: vm.Frame (or whatever the evaluator's per-call state is
// named) implements this interface instead.
type Env interface {
	// Local returns the current value of local slot ix.
	Local(ix int) table.Value
	// SetLocal stores v into local slot ix.
	SetLocal(ix int, v table.Value)
	// Column returns the current FOR/UPDATE row's value for the column at
	// resolved index ix.
	Column(ix int) table.Value
	// Now returns request-scoped wall-clock state (global(0) in the spec's
	// Request collaborator contract): microseconds since the Unix epoch.
	Now() int64
	// CallRoutine invokes a user-defined scalar routine by name, returning
	// its RETURN value (None if the routine has no return type).
	CallRoutine(schema, name string, args []table.Value) (table.Value, error)
	// LastID returns the most recently allocated row id in this batch, for
	// the LASTID() builtin.
	LastID() uint64
	// GetError/SetError/ClearError manage the batch-scoped error slot
	// EXCEPTION() reads and clears.
	GetError() string
	SetError(msg string)
	ClearError() string
}

// ColumnResolver resolves a bare or qualified column name against the
// active FROM table.
type ColumnResolver interface {
	Column(name string) (ix int, typ table.Type, ok bool)
}

// RoutineSignature is what the compiler needs to type-check a call site
// without seeing the callee's body.
type RoutineSignature struct {
	ParamTypes []table.Type
	ReturnType table.Type
	HasReturn  bool
}

// RoutineResolver resolves a schema-qualified routine name to its
// signature, without forcing compilation of its body (lazy-compile, per
// the routine call contract).
type RoutineResolver interface {
	Routine(schema, name string) (RoutineSignature, bool)
}
