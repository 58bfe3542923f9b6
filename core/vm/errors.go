package vm

import cairnerrors "github.com/cairndb/cairn/core/errors"

var (
	errUnknownTableExpr = cairnerrors.NewRuntime("", "unsupported table expression")
	errNoActiveLoop     = cairnerrors.NewRuntime("", "ForNext/ForSortNext with no matching ForInit")
	errStackUnderflow   = cairnerrors.NewRuntime("", "value stack underflow")
	errNoFrame          = cairnerrors.NewRuntime("", "no active local frame")
	errUnknownInst      = cairnerrors.NewRuntime("", "unrecognised instruction")
)

// thrown wraps a batch-level THROW or an unhandled runtime error as it
// unwinds the instruction loop to the batch boundary.
type thrown struct{ msg string }

func (t *thrown) Error() string { return t.msg }
