package vm

import (
	"github.com/cairndb/cairn/core/compiler"
	"github.com/cairndb/cairn/core/table"
)

// TableExpr is a compiled FROM clause: either a base table scanned in id
// order, or a literal VALUES row set (spec §4.11's CTableExpression).
type TableExpr interface{ isTableExpr() }

type baseTableExpr struct{}

func (baseTableExpr) isTableExpr() {}

// BaseTable scans an existing table in ascending id order.
type BaseTable struct {
	baseTableExpr
	Table *table.Table
}

// ValuesTable is a literal row set: each inner slice is one row's
// compiled column expressions, evaluated fresh per cursor Next.
type ValuesTable struct {
	baseTableExpr
	Rows [][]compiler.CExpr
}

// rowCursor is the common shape ForInit/ForNext drive regardless of
// whether the underlying TableExpr is a base table or a VALUES literal.
type rowCursor interface {
	next(env compiler.Env) ([]table.Value, bool, error)
}

type baseTableCursor struct{ cur *table.RowCursor }

func (c *baseTableCursor) next(compiler.Env) ([]table.Value, bool, error) {
	row, ok, err := c.cur.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	return row.Values, true, nil
}

type valuesCursor struct {
	rows [][]compiler.CExpr
	ix   int
}

func (c *valuesCursor) next(env compiler.Env) ([]table.Value, bool, error) {
	if c.ix >= len(c.rows) {
		return nil, false, nil
	}
	row := c.rows[c.ix]
	c.ix++
	vals := make([]table.Value, len(row))
	for i, e := range row {
		v, err := e.Eval(env)
		if err != nil {
			return nil, false, err
		}
		vals[i] = v
	}
	return vals, true, nil
}

func newCursor(t TableExpr) (rowCursor, error) {
	switch tt := t.(type) {
	case *BaseTable:
		c, err := tt.Table.Asc()
		if err != nil {
			return nil, err
		}
		return &baseTableCursor{cur: c}, nil
	case *ValuesTable:
		return &valuesCursor{rows: tt.Rows}, nil
	default:
		return nil, errUnknownTableExpr
	}
}
