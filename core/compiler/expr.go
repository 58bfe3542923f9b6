package compiler

import "github.com/cairndb/cairn/core/table"

// CExpr is a compiled scalar expression: a closure over its already
// type-checked operand children, ready to evaluate repeatedly against
// different Envs (once per row, typically).
type CExpr interface {
	Eval(env Env) (table.Value, error)
	Type() table.Type
}

type constExpr struct {
	v table.Value
	t table.Type
}

func (c constExpr) Eval(Env) (table.Value, error) { return c.v, nil }
func (c constExpr) Type() table.Type              { return c.t }

// Const builds a compiled constant expression.
func Const(v table.Value, t table.Type) CExpr { return constExpr{v: v, t: t} }

type localExpr struct {
	ix int
	t  table.Type
}

func (l localExpr) Eval(env Env) (table.Value, error) { return env.Local(l.ix), nil }
func (l localExpr) Type() table.Type                  { return l.t }

type columnExpr struct {
	ix int
	t  table.Type
}

func (c columnExpr) Eval(env Env) (table.Value, error) { return env.Column(c.ix), nil }
func (c columnExpr) Type() table.Type                  { return c.t }

// Col builds a compiled column reference, the form core/vm's DataOp/
// ForNext machinery needs to build select lists directly (outside the
// normal Compile path, which resolves these against a ColumnResolver).
func Col(ix int, t table.Type) CExpr { return columnExpr{ix: ix, t: t} }

// Local builds a compiled local-variable reference, for the same reason
// Col does — constructing CExprs outside a parsed AST.
func Local(ix int, t table.Type) CExpr { return localExpr{ix: ix, t: t} }

// funcExpr evaluates its argument expressions, then routes the call back
// through Env (the evaluator owns routine frames and lazy compilation).
type funcExpr struct {
	schema, name string
	args         []CExpr
	ret          table.Type
}

func (f funcExpr) Eval(env Env) (table.Value, error) {
	vals := make([]table.Value, len(f.args))
	for i, a := range f.args {
		v, err := a.Eval(env)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return env.CallRoutine(f.schema, f.name, vals)
}

func (f funcExpr) Type() table.Type { return f.ret }
