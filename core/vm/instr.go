package vm

import "github.com/cairndb/cairn/core/compiler"

// Inst is one instruction in a routine's or batch's compiled instruction
// list. Concrete types below mirror the instruction set in spec §4.11;
// the three push forms are PushConst, PushLocal and PushExpr (a constant,
// a local slot, or any compiled scalar expression).
type Inst interface{ isInst() }

type baseInst struct{}

func (baseInst) isInst() {}

// Jump unconditionally sets the program counter to Target.
type Jump struct {
	baseInst
	Target int
}

// JumpIfFalse evaluates Cond; if false, sets pc to Target.
type JumpIfFalse struct {
	baseInst
	Target int
	Cond   compiler.CExpr
}

// Return unwinds the current routine frame, leaving its return value (if
// any) on the stack for the caller.
type Return struct{ baseInst }

// Throw unwinds to the batch boundary, taking the top-of-stack string as
// the error message.
type Throw struct{ baseInst }

// Execute pops a string off the stack and runs it as a sub-batch (parsed,
// compiled, and executed against the same Evaluator and Catalog).
type Execute struct{ baseInst }

// PopToLocal pops the top of the stack into local slot Ix.
type PopToLocal struct {
	baseInst
	Ix int
}

// ForInit materialises a cursor over Table under LoopID.
type ForInit struct {
	baseInst
	LoopID int
	Table  TableExpr
}

// ForNext advances the cursor at LoopID; on exhaustion, jumps to Target.
type ForNext struct {
	baseInst
	Target int
	Info   *ForNextInfo
}

// ForNextInfo is the per-row work ForNext performs once it has a row:
// evaluate Where (skip the row if false), then each expression in Exps
// into the paired local slot in Assigns (append instead of assign where
// AssignAppend[i] is true).
type ForNextInfo struct {
	LoopID       int
	Assigns      []int
	AssignAppend []bool
	Exps         []compiler.CExpr
	Where        compiler.CExpr
}

// ForSortInit drains LoopID's source cursor once, evaluating OrderBy and
// Exps for every row, and sorts the materialised rows by Desc.
type ForSortInit struct {
	baseInst
	LoopID  int
	Select  *CSelectExpression
}

// ForSortNext iterates the rows ForSortInit materialised, placing the
// Ix'th projected value into Assigns[Ix] each step; exhaustion jumps to
// Target.
type ForSortNext struct {
	baseInst
	Target  int
	LoopID  int
	Assigns []int
}

// DataOp executes one non-loop, non-branching database mutation: Insert,
// Update, or Delete (spec §4.11 "Data operations"). Schema DDL
// (CREATE/ALTER/DROP) is executed directly by core/db's batch runner
// against the AST, not compiled into instructions here — see DESIGN.md.
type DataOp struct {
	baseInst
	Op DataOperation
}

// Select runs Select against the evaluator's Request, emitting one row
// per match via Request.Selected.
type Select struct {
	baseInst
	Select *CSelectExpression
}

// Set runs Select for its side effect on locals only (SET ... FROM ...),
// emitting no rows.
type Set struct {
	baseInst
	Select *CSelectExpression
}

// Call invokes Routine: pushes a new frame, binds ParamCount popped stack
// values into locals 0..ParamCount-1, runs the routine body, and restores
// the caller's frame on Return.
type Call struct {
	baseInst
	Routine *Routine
}

// PushConst pushes a literal value.
type PushConst struct {
	baseInst
	Value any
}

// PushLocal pushes the current frame's local slot Ix.
type PushLocal struct {
	baseInst
	Ix int
}

// PushExpr evaluates Expr against the current row/locals and pushes the
// result — the general case covering any compiled scalar expression.
type PushExpr struct {
	baseInst
	Expr compiler.CExpr
}

// Pop discards the top of the stack: emitted after EXEC of a routine that
// HasReturn, since Call always leaves the routine's return value on the
// stack but an EXEC statement runs a routine for its side effects only.
type Pop struct{ baseInst }
