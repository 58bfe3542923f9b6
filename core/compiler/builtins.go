package compiler

import (
	"fmt"
	"strconv"
	"strings"

	cairnerrors "github.com/cairndb/cairn/core/errors"
	"github.com/cairndb/cairn/core/sql"
	"github.com/cairndb/cairn/core/table"
)

// BuiltinCompileFunc type-checks a builtin call's arguments (via
// checkArity/checkKind, the shared helpers the registered functions
// call) and returns the compiled call. Builtins never go through
// Env.CallRoutine: they're inlined as closures directly, the way the
// teacher's generic LRU (core/cache) is a library function rather than a
// dispatched call.
type BuiltinCompileFunc func(c *Compiler, pos sql.Pos, args []CExpr) (CExpr, error)

// Builtins is the registry of builtin scalar functions core/sql's parser
// already recognises by name shape; core/compiler re-validates arity and
// argument types here via the call's own compile function.
var Builtins = map[string]BuiltinCompileFunc{
	"LEN":        compileLen,
	"SUBSTRING":  compileSubstring,
	"REPLACE":    compileReplace,
	"LASTID":     compileLastID,
	"EXCEPTION":  compileException,
	"PARSEINT":   compileParseInt,
	"PARSEFLOAT": compileParseFloat,
	"TINYINT":    castBuiltin(table.TinyInt),
	"SMALLINT":   castBuiltin(table.SmallInt),
	"INT":        castBuiltin(table.Int),
	"BIGINT":     castBuiltin(table.BigInt),
	"FLOAT":      castBuiltin(table.Float),
	"DOUBLE":     castBuiltin(table.Double),
	"STRING":     castBuiltin(table.String),
	"BINARY":     castBuiltin(table.Binary),
}

func (c *Compiler) compileBuiltin(n *sql.BuiltinCallExpr) (CExpr, error) {
	fn, ok := c.builtins[strings.ToUpper(n.Name)]
	if !ok {
		return nil, typeError(n.Pos(), c.routine, "unknown builtin function %s", n.Name)
	}
	args := make([]CExpr, len(n.Params))
	for i, p := range n.Params {
		ce, err := c.Compile(p)
		if err != nil {
			return nil, err
		}
		args[i] = ce
	}
	return fn(c, n.Pos(), args)
}

// checkArity is the shared arity check every builtin's compile function
// calls before inspecting individual argument types.
func checkArity(c *Compiler, pos sql.Pos, name string, args []CExpr, want int) error {
	if len(args) != want {
		return typeError(pos, c.routine, "%s expects %d argument(s), got %d", name, want, len(args))
	}
	return nil
}

func checkKind(c *Compiler, pos sql.Pos, name string, arg CExpr, want table.Kind) error {
	if arg.Type().Kind != want {
		return typeError(pos, c.routine, "%s: argument type mismatch, expected %s got %s", name, want, arg.Type().Kind)
	}
	return nil
}

func compileLen(c *Compiler, pos sql.Pos, args []CExpr) (CExpr, error) {
	if err := checkArity(c, pos, "LEN", args, 1); err != nil {
		return nil, err
	}
	k := args[0].Type().Kind
	if k != table.KindString && k != table.KindBinary {
		return nil, typeError(pos, c.routine, "LEN: argument must be string or binary, got %s", k)
	}
	arg := args[0]
	return &closureExpr{t: table.BigInt, fn: func(env Env) (table.Value, error) {
		v, err := arg.Eval(env)
		if err != nil {
			return nil, err
		}
		switch x := v.(type) {
		case string:
			return int64(len(x)), nil
		case []byte:
			return int64(len(x)), nil
		default:
			return int64(0), nil
		}
	}}, nil
}

func compileSubstring(c *Compiler, pos sql.Pos, args []CExpr) (CExpr, error) {
	if err := checkArity(c, pos, "SUBSTRING", args, 3); err != nil {
		return nil, err
	}
	if err := checkKind(c, pos, "SUBSTRING", args[0], table.KindString); err != nil {
		return nil, err
	}
	if err := checkKind(c, pos, "SUBSTRING", args[1], table.KindInt); err != nil {
		return nil, err
	}
	if err := checkKind(c, pos, "SUBSTRING", args[2], table.KindInt); err != nil {
		return nil, err
	}
	s, start, length := args[0], args[1], args[2]
	return &closureExpr{t: table.String, fn: func(env Env) (table.Value, error) {
		sv, err := s.Eval(env)
		if err != nil {
			return nil, err
		}
		startV, err := start.Eval(env)
		if err != nil {
			return nil, err
		}
		lenV, err := length.Eval(env)
		if err != nil {
			return nil, err
		}
		str := sv.(string)
		from := int(startV.(int64))
		n := int(lenV.(int64))
		if from < 0 || from > len(str) || n < 0 || from+n > len(str) {
			return nil, cairnerrors.NewRuntime(c.routine, "SUBSTRING: range out of bounds")
		}
		return str[from : from+n], nil
	}}, nil
}

func compileReplace(c *Compiler, pos sql.Pos, args []CExpr) (CExpr, error) {
	if err := checkArity(c, pos, "REPLACE", args, 3); err != nil {
		return nil, err
	}
	for _, a := range args {
		if err := checkKind(c, pos, "REPLACE", a, table.KindString); err != nil {
			return nil, err
		}
	}
	s, old, newS := args[0], args[1], args[2]
	return &closureExpr{t: table.String, fn: func(env Env) (table.Value, error) {
		sv, err := s.Eval(env)
		if err != nil {
			return nil, err
		}
		ov, err := old.Eval(env)
		if err != nil {
			return nil, err
		}
		nv, err := newS.Eval(env)
		if err != nil {
			return nil, err
		}
		return strings.ReplaceAll(sv.(string), ov.(string), nv.(string)), nil
	}}, nil
}

func compileLastID(c *Compiler, pos sql.Pos, args []CExpr) (CExpr, error) {
	if err := checkArity(c, pos, "LASTID", args, 0); err != nil {
		return nil, err
	}
	return &closureExpr{t: table.BigInt, fn: func(env Env) (table.Value, error) {
		return int64(env.LastID()), nil
	}}, nil
}

func compileException(c *Compiler, pos sql.Pos, args []CExpr) (CExpr, error) {
	if err := checkArity(c, pos, "EXCEPTION", args, 0); err != nil {
		return nil, err
	}
	return &closureExpr{t: table.String, fn: func(env Env) (table.Value, error) {
		return env.ClearError(), nil
	}}, nil
}

func compileParseInt(c *Compiler, pos sql.Pos, args []CExpr) (CExpr, error) {
	if err := checkArity(c, pos, "PARSEINT", args, 1); err != nil {
		return nil, err
	}
	if err := checkKind(c, pos, "PARSEINT", args[0], table.KindString); err != nil {
		return nil, err
	}
	s := args[0]
	return &closureExpr{t: table.BigInt, fn: func(env Env) (table.Value, error) {
		v, err := s.Eval(env)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v.(string)), 10, 64)
		if err != nil {
			return nil, cairnerrors.NewRuntime(c.routine, "PARSEINT: "+err.Error())
		}
		return n, nil
	}}, nil
}

func compileParseFloat(c *Compiler, pos sql.Pos, args []CExpr) (CExpr, error) {
	if err := checkArity(c, pos, "PARSEFLOAT", args, 1); err != nil {
		return nil, err
	}
	if err := checkKind(c, pos, "PARSEFLOAT", args[0], table.KindString); err != nil {
		return nil, err
	}
	s := args[0]
	return &closureExpr{t: table.Double, fn: func(env Env) (table.Value, error) {
		v, err := s.Eval(env)
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v.(string)), 64)
		if err != nil {
			return nil, cairnerrors.NewRuntime(c.routine, "PARSEFLOAT: "+err.Error())
		}
		return f, nil
	}}, nil
}

// castBuiltin builds a type-cast builtin (INT(x), STRING(x), ...): one
// argument of any scalar kind, coerced to target.
func castBuiltin(target table.Type) BuiltinCompileFunc {
	return func(c *Compiler, pos sql.Pos, args []CExpr) (CExpr, error) {
		if err := checkArity(c, pos, target.Kind.String(), args, 1); err != nil {
			return nil, err
		}
		arg := args[0]
		return &closureExpr{t: target, fn: func(env Env) (table.Value, error) {
			v, err := arg.Eval(env)
			if err != nil {
				return nil, err
			}
			return castValue(v, target.Kind)
		}}, nil
	}
}

func castValue(v table.Value, to table.Kind) (table.Value, error) {
	switch to {
	case table.KindString:
		return valueToString(v), nil
	case table.KindInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return nil, cairnerrors.NewRuntime("", fmt.Sprintf("cannot convert %q to int", x))
			}
			return n, nil
		default:
			return nil, cairnerrors.NewRuntime("", "cannot convert value to int")
		}
	case table.KindFloat:
		switch x := v.(type) {
		case int64:
			return float64(x), nil
		case float64:
			return x, nil
		default:
			return nil, cairnerrors.NewRuntime("", "cannot convert value to float")
		}
	default:
		return v, nil
	}
}
