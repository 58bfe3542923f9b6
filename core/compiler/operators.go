package compiler

import (
	"fmt"

	cairnerrors "github.com/cairndb/cairn/core/errors"
	"github.com/cairndb/cairn/core/sql"
	"github.com/cairndb/cairn/core/table"
)

func typeError(pos sql.Pos, routine, format string, args ...any) error {
	return cairnerrors.NewSql(routine, pos.Line, pos.Column, fmt.Sprintf(format, args...))
}

func isNumeric(k table.Kind) bool { return k == table.KindInt || k == table.KindFloat }

// compileBinary type-checks and emits a CExpr for one binary operator,
// per the promotion/coercion rules in the compiler's type-checking section:
// int+float promotes to float, '||' coerces both sides to string, '=' and
// friends require matching kinds, AND/OR/IN have their own shapes.
func (c *Compiler) compileBinary(e *sql.BinaryExpr) (CExpr, error) {
	switch e.Op {
	case sql.And, sql.Or:
		return c.compileLogical(e)
	case sql.VBar:
		return c.compileConcat(e)
	case sql.In:
		return c.compileIn(e)
	case sql.Plus, sql.Minus, sql.Times, sql.Divide, sql.Percent:
		return c.compileArith(e)
	default:
		return c.compileComparison(e)
	}
}

func (c *Compiler) compileLogical(e *sql.BinaryExpr) (CExpr, error) {
	l, err := c.Compile(e.Left)
	if err != nil {
		return nil, err
	}
	r, err := c.Compile(e.Right)
	if err != nil {
		return nil, err
	}
	if l.Type().Kind != table.KindBool || r.Type().Kind != table.KindBool {
		return nil, typeError(e.Pos(), c.routine, "type mismatch: %s requires bool operands", e.Op)
	}
	op := e.Op
	return &closureExpr{t: table.Bool, fn: func(env Env) (table.Value, error) {
		lv, err := l.Eval(env)
		if err != nil {
			return nil, err
		}
		lb := lv.(bool)
		if op == sql.And && !lb {
			return false, nil
		}
		if op == sql.Or && lb {
			return true, nil
		}
		rv, err := r.Eval(env)
		if err != nil {
			return nil, err
		}
		return rv.(bool), nil
	}}, nil
}

// valueToString implements the value-to-string coercion rule shared by
// concatenation and the STRING() builtin.
func valueToString(v table.Value) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return fmt.Sprintf("%d", x)
	case float64:
		return fmt.Sprintf("%g", x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case []byte:
		return fmt.Sprintf("%x", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func (c *Compiler) compileConcat(e *sql.BinaryExpr) (CExpr, error) {
	l, err := c.Compile(e.Left)
	if err != nil {
		return nil, err
	}
	r, err := c.Compile(e.Right)
	if err != nil {
		return nil, err
	}
	return &closureExpr{t: table.String, fn: func(env Env) (table.Value, error) {
		lv, err := l.Eval(env)
		if err != nil {
			return nil, err
		}
		rv, err := r.Eval(env)
		if err != nil {
			return nil, err
		}
		return valueToString(lv) + valueToString(rv), nil
	}}, nil
}

func (c *Compiler) compileArith(e *sql.BinaryExpr) (CExpr, error) {
	l, err := c.Compile(e.Left)
	if err != nil {
		return nil, err
	}
	r, err := c.Compile(e.Right)
	if err != nil {
		return nil, err
	}
	lk, rk := l.Type().Kind, r.Type().Kind
	if !isNumeric(lk) || !isNumeric(rk) {
		return nil, typeError(e.Pos(), c.routine, "type mismatch: arithmetic requires numeric operands, got %s and %s", lk, rk)
	}
	resultFloat := lk == table.KindFloat || rk == table.KindFloat
	op := e.Op
	if resultFloat {
		return &closureExpr{t: table.Double, fn: func(env Env) (table.Value, error) {
			lv, err := l.Eval(env)
			if err != nil {
				return nil, err
			}
			rv, err := r.Eval(env)
			if err != nil {
				return nil, err
			}
			return arithFloat(op, asF64(lv), asF64(rv))
		}}, nil
	}
	return &closureExpr{t: table.BigInt, fn: func(env Env) (table.Value, error) {
		lv, err := l.Eval(env)
		if err != nil {
			return nil, err
		}
		rv, err := r.Eval(env)
		if err != nil {
			return nil, err
		}
		return arithInt(op, lv.(int64), rv.(int64))
	}}, nil
}

func asF64(v table.Value) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	default:
		return 0
	}
}

func arithFloat(op sql.Token, a, b float64) (table.Value, error) {
	switch op {
	case sql.Plus:
		return a + b, nil
	case sql.Minus:
		return a - b, nil
	case sql.Times:
		return a * b, nil
	case sql.Divide:
		if b == 0 {
			return nil, cairnerrors.NewRuntime("", "division by zero")
		}
		return a / b, nil
	case sql.Percent:
		return nil, cairnerrors.NewRuntime("", "modulo requires integer operands")
	default:
		return nil, cairnerrors.NewRuntime("", "unsupported arithmetic operator")
	}
}

func arithInt(op sql.Token, a, b int64) (table.Value, error) {
	switch op {
	case sql.Plus:
		return a + b, nil
	case sql.Minus:
		return a - b, nil
	case sql.Times:
		return a * b, nil
	case sql.Divide:
		if b == 0 {
			return nil, cairnerrors.NewRuntime("", "division by zero")
		}
		return a / b, nil
	case sql.Percent:
		if b == 0 {
			return nil, cairnerrors.NewRuntime("", "division by zero")
		}
		return a % b, nil
	default:
		return nil, cairnerrors.NewRuntime("", "unsupported arithmetic operator")
	}
}

func (c *Compiler) compileComparison(e *sql.BinaryExpr) (CExpr, error) {
	l, err := c.Compile(e.Left)
	if err != nil {
		return nil, err
	}
	r, err := c.Compile(e.Right)
	if err != nil {
		return nil, err
	}
	if l.Type().Kind != r.Type().Kind {
		return nil, typeError(e.Pos(), c.routine, "type mismatch: cannot compare %s to %s", l.Type().Kind, r.Type().Kind)
	}
	op := e.Op
	return &closureExpr{t: table.Bool, fn: func(env Env) (table.Value, error) {
		lv, err := l.Eval(env)
		if err != nil {
			return nil, err
		}
		rv, err := r.Eval(env)
		if err != nil {
			return nil, err
		}
		cmp := compareValues(lv, rv)
		switch op {
		case sql.Less:
			return cmp < 0, nil
		case sql.LessEqual:
			return cmp <= 0, nil
		case sql.Greater:
			return cmp > 0, nil
		case sql.GreaterEqual:
			return cmp >= 0, nil
		case sql.Equal:
			return cmp == 0, nil
		case sql.NotEqual:
			return cmp != 0, nil
		default:
			return false, cairnerrors.NewRuntime("", "unsupported comparison operator")
		}
	}}, nil
}

// compareValues orders two values of the same dynamic kind; it mirrors the
// teacher's ordered Value comparison used for sort/range operations.
func compareValues(a, b table.Value) int {
	switch x := a.(type) {
	case int64:
		y := b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case bool:
		y := b.(bool)
		if x == y {
			return 0
		}
		if !x {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// compileIn reduces "x IN (a, b, c)" to chained equality: x=a OR x=b OR x=c.
func (c *Compiler) compileIn(e *sql.BinaryExpr) (CExpr, error) {
	left, err := c.Compile(e.Left)
	if err != nil {
		return nil, err
	}
	var items []sql.Expr
	if list, ok := e.Right.(*sql.ListExpr); ok {
		items = list.Items
	} else {
		items = []sql.Expr{e.Right}
	}
	compiled := make([]CExpr, len(items))
	for i, it := range items {
		ce, err := c.Compile(it)
		if err != nil {
			return nil, err
		}
		if ce.Type().Kind != left.Type().Kind {
			return nil, typeError(e.Pos(), c.routine, "type mismatch: IN list element %d is %s, expected %s", i, ce.Type().Kind, left.Type().Kind)
		}
		compiled[i] = ce
	}
	return &closureExpr{t: table.Bool, fn: func(env Env) (table.Value, error) {
		lv, err := left.Eval(env)
		if err != nil {
			return nil, err
		}
		for _, ce := range compiled {
			rv, err := ce.Eval(env)
			if err != nil {
				return nil, err
			}
			if compareValues(lv, rv) == 0 {
				return true, nil
			}
		}
		return false, nil
	}}, nil
}

func (c *Compiler) compileNot(e *sql.NotExpr) (CExpr, error) {
	operand, err := c.Compile(e.Operand)
	if err != nil {
		return nil, err
	}
	if operand.Type().Kind != table.KindBool {
		return nil, typeError(e.Pos(), c.routine, "type mismatch: NOT requires a bool operand")
	}
	return &closureExpr{t: table.Bool, fn: func(env Env) (table.Value, error) {
		v, err := operand.Eval(env)
		if err != nil {
			return nil, err
		}
		return !v.(bool), nil
	}}, nil
}

func (c *Compiler) compileMinus(e *sql.MinusExpr) (CExpr, error) {
	operand, err := c.Compile(e.Operand)
	if err != nil {
		return nil, err
	}
	k := operand.Type().Kind
	if !isNumeric(k) {
		return nil, typeError(e.Pos(), c.routine, "type mismatch: unary minus requires a numeric operand")
	}
	if k == table.KindFloat {
		return &closureExpr{t: operand.Type(), fn: func(env Env) (table.Value, error) {
			v, err := operand.Eval(env)
			if err != nil {
				return nil, err
			}
			return -v.(float64), nil
		}}, nil
	}
	return &closureExpr{t: operand.Type(), fn: func(env Env) (table.Value, error) {
		v, err := operand.Eval(env)
		if err != nil {
			return nil, err
		}
		return -v.(int64), nil
	}}, nil
}

func (c *Compiler) compileCase(e *sql.CaseExpr) (CExpr, error) {
	type branch struct {
		when CExpr
		then CExpr
	}
	var branches []branch
	var resultType *table.Type
	for _, wt := range e.Branches {
		w, err := c.Compile(wt.When)
		if err != nil {
			return nil, err
		}
		if w.Type().Kind != table.KindBool {
			return nil, typeError(e.Pos(), c.routine, "type mismatch: CASE WHEN requires a bool condition")
		}
		t, err := c.Compile(wt.Then)
		if err != nil {
			return nil, err
		}
		if resultType == nil {
			tt := t.Type()
			resultType = &tt
		}
		branches = append(branches, branch{when: w, then: t})
	}
	var elseExpr CExpr
	if e.Else != nil {
		ce, err := c.Compile(e.Else)
		if err != nil {
			return nil, err
		}
		elseExpr = ce
		if resultType == nil {
			rt := ce.Type()
			resultType = &rt
		}
	}
	if resultType == nil {
		rt := table.None
		resultType = &rt
	}
	rt := *resultType
	return &closureExpr{t: rt, fn: func(env Env) (table.Value, error) {
		for _, b := range branches {
			wv, err := b.when.Eval(env)
			if err != nil {
				return nil, err
			}
			if wv.(bool) {
				return b.then.Eval(env)
			}
		}
		if elseExpr != nil {
			return elseExpr.Eval(env)
		}
		return nil, nil
	}}, nil
}

// closureExpr is the generic CExpr implementation every operator above
// builds: a type tag plus an evaluation closure over already-compiled
// children.
type closureExpr struct {
	t  table.Type
	fn func(env Env) (table.Value, error)
}

func (c *closureExpr) Eval(env Env) (table.Value, error) { return c.fn(env) }
func (c *closureExpr) Type() table.Type                  { return c.t }
