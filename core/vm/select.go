package vm

import "github.com/cairndb/cairn/core/compiler"

// CSelectExpression is a compiled SELECT/SET/FOR projection: the column
// names (for SELECT's output header), the local slots each expression
// feeds (for SET/FOR; empty for a bare SELECT), the projection
// expressions themselves, an optional FROM source, an optional WHERE
// predicate, and — when this backs a sorted FOR — the ORDER BY
// expressions and their ascending/descending flags.
type CSelectExpression struct {
	ColNames     []string
	Assigns      []int
	AssignAppend []bool
	Exps         []compiler.CExpr
	From         TableExpr
	Where        compiler.CExpr
	OrderBy      []compiler.CExpr
	Desc         []bool
}
