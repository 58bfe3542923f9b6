package compiler

import (
	cairnerrors "github.com/cairndb/cairn/core/errors"
	"github.com/cairndb/cairn/core/sql"
	"github.com/cairndb/cairn/core/table"
)

// LocalSlot is one declared local or parameter's index and type.
type LocalSlot struct {
	Index int
	Type  table.Type
}

// Compiler walks a core/sql expression tree once, type-checking it and
// producing a CExpr, resolving names against its current local scope and
// (if set) the active FROM table.
type Compiler struct {
	routine  string
	locals   map[string]LocalSlot
	from     ColumnResolver
	routines RoutineResolver
	builtins map[string]BuiltinCompileFunc
}

// NewCompiler creates a Compiler attributing errors to routine, resolving
// column names against from (nil if there is no active FROM clause) and
// user routine calls against routines.
func NewCompiler(routine string, locals map[string]LocalSlot, from ColumnResolver, routines RoutineResolver) *Compiler {
	return &Compiler{routine: routine, locals: locals, from: from, routines: routines, builtins: Builtins}
}

// Compile type-checks e and returns its compiled form.
func (c *Compiler) Compile(e sql.Expr) (CExpr, error) {
	switch n := e.(type) {
	case *sql.ConstExpr:
		return Const(n.Value, constType(n.Kind)), nil
	case *sql.LocalExpr:
		slot, ok := c.locals[n.Name]
		if !ok {
			return nil, typeError(n.Pos(), c.routine, "undeclared variable %q", n.Name)
		}
		return localExpr{ix: slot.Index, t: slot.Type}, nil
	case *sql.ColNameExpr:
		if _, ok := c.locals[n.Name]; ok {
			slot := c.locals[n.Name]
			return localExpr{ix: slot.Index, t: slot.Type}, nil
		}
		if c.from == nil {
			return nil, typeError(n.Pos(), c.routine, "column %q used with no active FROM table", n.Name)
		}
		ix, typ, ok := c.from.Column(n.Name)
		if !ok {
			return nil, typeError(n.Pos(), c.routine, "unresolved column or variable name %q", n.Name)
		}
		return columnExpr{ix: ix, t: typ}, nil
	case *sql.BinaryExpr:
		return c.compileBinary(n)
	case *sql.NotExpr:
		return c.compileNot(n)
	case *sql.MinusExpr:
		return c.compileMinus(n)
	case *sql.CaseExpr:
		return c.compileCase(n)
	case *sql.BuiltinCallExpr:
		return c.compileBuiltin(n)
	case *sql.FuncCallExpr:
		return c.compileFuncCall(n)
	case *sql.ListExpr:
		return nil, typeError(n.Pos(), c.routine, "a list expression may only appear on the right of IN")
	default:
		return nil, typeError(e.Pos(), c.routine, "expression form %T cannot be used as a scalar value here", e)
	}
}

func constType(k table.Kind) table.Type {
	switch k {
	case table.KindInt:
		return table.BigInt
	case table.KindFloat:
		return table.Double
	case table.KindString:
		return table.String
	case table.KindBool:
		return table.Bool
	case table.KindBinary:
		return table.Binary
	default:
		return table.None
	}
}

func (c *Compiler) compileFuncCall(n *sql.FuncCallExpr) (CExpr, error) {
	if c.routines == nil {
		return nil, typeError(n.Pos(), c.routine, "routine %s cannot be resolved in this context", n.Name)
	}
	sig, ok := c.routines.Routine(n.Name.Schema, n.Name.Name)
	if !ok {
		return nil, typeError(n.Pos(), c.routine, "routine %s is not defined", n.Name)
	}
	if !sig.HasReturn {
		return nil, typeError(n.Pos(), c.routine, "routine %s has no return value and cannot be used as an expression", n.Name)
	}
	if len(n.Params) != len(sig.ParamTypes) {
		return nil, typeError(n.Pos(), c.routine, "routine %s expects %d parameter(s), got %d", n.Name, len(sig.ParamTypes), len(n.Params))
	}
	args := make([]CExpr, len(n.Params))
	for i, p := range n.Params {
		ce, err := c.Compile(p)
		if err != nil {
			return nil, err
		}
		if ce.Type().Kind != sig.ParamTypes[i].Kind {
			return nil, typeError(n.Pos(), c.routine, "routine %s parameter %d: type mismatch, expected %s got %s", n.Name, i, sig.ParamTypes[i].Kind, ce.Type().Kind)
		}
		args[i] = ce
	}
	return &funcExpr{schema: n.Name.Schema, name: n.Name.Name, args: args, ret: sig.ReturnType}, nil
}

// CompileBool compiles e and requires the result be bool-typed, the shape
// every WHERE/IF/WHILE predicate needs.
func (c *Compiler) CompileBool(e sql.Expr) (CExpr, error) {
	ce, err := c.Compile(e)
	if err != nil {
		return nil, err
	}
	if ce.Type().Kind != table.KindBool {
		return nil, typeError(e.Pos(), c.routine, "expected a bool expression, got %s", ce.Type().Kind)
	}
	return ce, nil
}

// DefLocal adds a new local slot, failing on a duplicate name (the compiler
// enforces the same "no duplicate locals" rule as DECLARE parsing).
func (c *Compiler) DefLocal(name string, t table.Type) (int, error) {
	if _, exists := c.locals[name]; exists {
		return 0, cairnerrors.NewSql(c.routine, 0, 0, "duplicate variable name "+name)
	}
	ix := len(c.locals)
	c.locals[name] = LocalSlot{Index: ix, Type: t}
	return ix, nil
}

// Local looks up a previously declared local by name.
func (c *Compiler) Local(name string) (LocalSlot, bool) {
	s, ok := c.locals[name]
	return s, ok
}

// SetFrom changes the active FROM table column resolver (e.g. entering a
// FOR loop body or an UPDATE's row scope).
func (c *Compiler) SetFrom(from ColumnResolver) { c.from = from }

// From returns the currently active FROM column resolver (nil if none),
// so a caller can restore it after temporarily changing scope (e.g. a
// nested FOR loop body restoring its enclosing scope on exit).
func (c *Compiler) From() ColumnResolver { return c.from }
