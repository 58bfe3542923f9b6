package vm

import (
	"github.com/cairndb/cairn/core/compiler"
	"github.com/cairndb/cairn/core/table"
)

// DataOperation is one compiled INSERT/UPDATE/DELETE (spec §4.11's "Data
// operations"). Each carries the target table and whatever compiled
// expressions it needs to run without any further name resolution.
type DataOperation interface{ isDataOperation() }

type baseDataOp struct{}

func (baseDataOp) isDataOperation() {}

// InsertOp inserts every row produced by Source, assembled by placing
// each produced value at the table column index named in Columns (a
// column named in the INSERT's column list maps to Columns[i]; columns
// omitted from that list receive their type's default).
type InsertOp struct {
	baseDataOp
	Table   *table.Table
	Columns []int
	Source  TableExpr
}

// UpdateOp scans Table's rows in id order, applying Exps (indexed the
// same way as Columns) to every row for which Where evaluates true (or
// unconditionally if Where is nil).
type UpdateOp struct {
	baseDataOp
	Table   *table.Table
	Columns []int
	Exps    []compiler.CExpr
	Where   compiler.CExpr
}

// DeleteOp removes every row of Table matching Where (or every row, if
// Where is nil).
type DeleteOp struct {
	baseDataOp
	Table *table.Table
	Where compiler.CExpr
}

func (e *Evaluator) execDataOp(op DataOperation) error {
	switch o := op.(type) {
	case *InsertOp:
		return e.execInsert(o)
	case *UpdateOp:
		return e.execUpdate(o)
	case *DeleteOp:
		return e.execDelete(o)
	default:
		return errUnknownInst
	}
}

func (e *Evaluator) execInsert(op *InsertOp) error {
	cur, err := newCursor(op.Source)
	if err != nil {
		return err
	}
	colCount := len(op.Table.Info.Columns)
	for {
		src, ok, err := cur.next(e)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		values := make([]table.Value, colCount)
		for i := range values {
			values[i] = table.Default(op.Table.Info.Columns[i].Type)
		}
		for i, colIx := range op.Columns {
			values[colIx] = src[i]
		}
		id, err := op.Table.Insert(values)
		if err != nil {
			return err
		}
		e.lastID = id
	}
}

// execUpdate scans before mutating: rewriting a row while the cursor is
// mid-traversal could move pages the cursor still needs to visit, the
// same hazard collect-then-apply avoids for execDelete below.
func (e *Evaluator) execUpdate(op *UpdateOp) error {
	cur, err := op.Table.Asc()
	if err != nil {
		return err
	}
	type pending struct {
		id     uint64
		values []table.Value
	}
	var updates []pending
	for {
		row, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		e.curRow = row.Values
		if op.Where != nil {
			wv, err := op.Where.Eval(e)
			if err != nil {
				return err
			}
			if !wv.(bool) {
				continue
			}
		}
		next := make([]table.Value, len(row.Values))
		copy(next, row.Values)
		for i, colIx := range op.Columns {
			v, err := op.Exps[i].Eval(e)
			if err != nil {
				return err
			}
			next[colIx] = v
		}
		updates = append(updates, pending{id: row.ID, values: next})
	}
	for _, u := range updates {
		if err := op.Table.Update(u.id, u.values); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) execDelete(op *DeleteOp) error {
	cur, err := op.Table.Asc()
	if err != nil {
		return err
	}
	var toDelete []uint64
	for {
		row, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		e.curRow = row.Values
		if op.Where != nil {
			wv, err := op.Where.Eval(e)
			if err != nil {
				return err
			}
			if !wv.(bool) {
				continue
			}
		}
		toDelete = append(toDelete, row.ID)
	}
	for _, id := range toDelete {
		if _, err := op.Table.Delete(id); err != nil {
			return err
		}
	}
	return nil
}
