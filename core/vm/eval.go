package vm

import (
	"sort"

	"github.com/cairndb/cairn/core/compiler"
	"github.com/cairndb/cairn/core/table"
)

// Evaluator is the stack-machine runtime: a value stack, a stack of
// local-variable frames (one per nested routine call, innermost last),
// the current row's column values (set by whichever DataOp/ForNext last
// positioned a cursor), loop-state boxes keyed by loop id, and the two
// collaborators every instruction eventually bottoms out on (spec
// §4.11's "Evaluation environment").
type Evaluator struct {
	stack   []table.Value
	frames  []*frame
	curRow  []table.Value
	loops   map[int]*loopState
	catalog Catalog
	req     Request
	lastID  uint64
}

// NewEvaluator creates an Evaluator with one outermost frame of localCount
// slots (the batch's own DECLAREs), running against catalog and req.
func NewEvaluator(catalog Catalog, req Request, localCount int) *Evaluator {
	return &Evaluator{
		frames:  []*frame{{locals: make([]table.Value, localCount)}},
		loops:   make(map[int]*loopState),
		catalog: catalog,
		req:     req,
	}
}

func (e *Evaluator) top() *frame { return e.frames[len(e.frames)-1] }

func (e *Evaluator) push(v table.Value) { e.stack = append(e.stack, v) }

func (e *Evaluator) pop() (table.Value, error) {
	n := len(e.stack)
	if n == 0 {
		return nil, errStackUnderflow
	}
	v := e.stack[n-1]
	e.stack = e.stack[:n-1]
	return v, nil
}

// --- compiler.Env -------------------------------------------------------

func (e *Evaluator) Local(ix int) table.Value       { return e.top().locals[ix] }
func (e *Evaluator) SetLocal(ix int, v table.Value) { e.top().locals[ix] = v }
func (e *Evaluator) Column(ix int) table.Value      { return e.curRow[ix] }
func (e *Evaluator) Now() int64                     { return e.req.Global(0) }
func (e *Evaluator) LastID() uint64                 { return e.lastID }
func (e *Evaluator) GetError() string               { return e.req.GetError() }
func (e *Evaluator) SetError(msg string)             { e.req.SetError(msg) }
func (e *Evaluator) ClearError() string {
	msg := e.req.GetError()
	e.req.SetError("")
	return msg
}

// CallRoutine resolves schema.name, binds args into a fresh frame's
// parameter slots, runs the routine body to completion, and returns
// whatever Return left on the stack (nil if the routine has no return
// type).
func (e *Evaluator) CallRoutine(schema, name string, args []table.Value) (table.Value, error) {
	r, err := e.catalog.Routine(schema, name)
	if err != nil {
		return nil, err
	}
	return e.callRoutine(r, args)
}

func (e *Evaluator) callRoutine(r *Routine, args []table.Value) (table.Value, error) {
	if r.Instructions == nil {
		instrs, err := compileRoutineBody(r, e.catalog)
		if err != nil {
			return nil, err
		}
		r.Instructions = instrs
		r.Compiled = true
	}
	locals := make([]table.Value, len(r.LocalTypes))
	for i, t := range r.LocalTypes {
		locals[i] = table.Default(t)
	}
	copy(locals, args)
	e.frames = append(e.frames, &frame{locals: locals})
	savedRow := e.curRow
	defer func() {
		e.frames = e.frames[:len(e.frames)-1]
		e.curRow = savedRow
	}()
	if err := e.run(r.Instructions); err != nil {
		return nil, err
	}
	if !r.HasReturn {
		return nil, nil
	}
	return e.pop()
}

// Run executes instrs as a top-level batch (the outermost frame already
// installed by NewEvaluator), converting any unwound Throw/runtime error
// into the request's error slot the way spec §4.11's exception handling
// describes, rather than propagating it to the caller as a Go error.
func (e *Evaluator) Run(instrs []Inst) {
	if err := e.run(instrs); err != nil {
		e.req.SetError(err.Error())
	}
}

// run drives one instruction list to completion (Return/falling off the
// end) or until an error/Throw unwinds it.
func (e *Evaluator) run(instrs []Inst) error {
	pc := 0
	for pc < len(instrs) {
		inst := instrs[pc]
		next := pc + 1
		switch ins := inst.(type) {
		case *Jump:
			next = ins.Target
		case *JumpIfFalse:
			v, err := ins.Cond.Eval(e)
			if err != nil {
				return err
			}
			if !v.(bool) {
				next = ins.Target
			}
		case *Return:
			return nil
		case *Throw:
			msg, err := e.pop()
			if err != nil {
				return err
			}
			return &thrown{msg: msg.(string)}
		case *Execute:
			if err := e.execSubBatch(); err != nil {
				return err
			}
		case *PopToLocal:
			v, err := e.pop()
			if err != nil {
				return err
			}
			e.top().locals[ins.Ix] = v
		case *ForInit:
			if err := e.execForInit(ins); err != nil {
				return err
			}
		case *ForNext:
			done, err := e.execForNext(ins)
			if err != nil {
				return err
			}
			if done {
				next = ins.Target
			}
		case *ForSortInit:
			if err := e.execForSortInit(ins); err != nil {
				return err
			}
		case *ForSortNext:
			done, err := e.execForSortNext(ins)
			if err != nil {
				return err
			}
			if done {
				next = ins.Target
			}
		case *DataOp:
			if err := e.execDataOp(ins.Op); err != nil {
				return err
			}
		case *Select:
			if err := e.execSelect(ins.Select); err != nil {
				return err
			}
		case *Set:
			if err := e.execSet(ins.Select); err != nil {
				return err
			}
		case *Call:
			args := make([]table.Value, ins.Routine.ParamCount)
			for i := ins.Routine.ParamCount - 1; i >= 0; i-- {
				v, err := e.pop()
				if err != nil {
					return err
				}
				args[i] = v
			}
			ret, err := e.callRoutine(ins.Routine, args)
			if err != nil {
				return err
			}
			if ins.Routine.HasReturn {
				e.push(ret)
			}
		case *PushConst:
			e.push(ins.Value)
		case *PushLocal:
			e.push(e.top().locals[ins.Ix])
		case *PushExpr:
			v, err := ins.Expr.Eval(e)
			if err != nil {
				return err
			}
			e.push(v)
		case *Pop:
			if _, err := e.pop(); err != nil {
				return err
			}
		default:
			return errUnknownInst
		}
		pc = next
	}
	return nil
}

// execSubBatch pops a source string and runs it as a nested batch:
// parsed, compiled, and executed in its own local frame against this
// same Evaluator and Catalog (spec §4.11's EXECUTE). DDL is not valid
// inside a dynamic EXECUTE string — core/db's batch runner is the only
// place CREATE/ALTER/DROP are dispatched, since it alone can commit the
// catalog change; see compileAdHocBatch.
func (e *Evaluator) execSubBatch() error {
	v, err := e.pop()
	if err != nil {
		return err
	}
	src, _ := v.(string)
	instrs, localCount, err := compileAdHocBatch(src, e.catalog)
	if err != nil {
		return err
	}
	e.frames = append(e.frames, &frame{locals: make([]table.Value, localCount)})
	savedRow := e.curRow
	defer func() {
		e.frames = e.frames[:len(e.frames)-1]
		e.curRow = savedRow
	}()
	return e.run(instrs)
}

func (e *Evaluator) execForInit(ins *ForInit) error {
	cur, err := newCursor(ins.Table)
	if err != nil {
		return err
	}
	e.loops[ins.LoopID] = &loopState{cursor: cur}
	return nil
}

func (e *Evaluator) execForNext(ins *ForNext) (bool, error) {
	ls, ok := e.loops[ins.Info.LoopID]
	if !ok || ls.cursor == nil {
		return false, errNoActiveLoop
	}
	for {
		row, hasRow, err := ls.cursor.next(e)
		if err != nil {
			return false, err
		}
		if !hasRow {
			return true, nil
		}
		e.curRow = row
		if ins.Info.Where != nil {
			wv, err := ins.Info.Where.Eval(e)
			if err != nil {
				return false, err
			}
			if !wv.(bool) {
				continue
			}
		}
		for i, slot := range ins.Info.Assigns {
			v, err := ins.Info.Exps[i].Eval(e)
			if err != nil {
				return false, err
			}
			if ins.Info.AssignAppend[i] {
				e.top().locals[slot] = valuesAppend(e.top().locals[slot], v)
			} else {
				e.top().locals[slot] = v
			}
		}
		return false, nil
	}
}

func valuesAppend(existing, v table.Value) table.Value {
	if existing == nil {
		return v
	}
	switch ex := existing.(type) {
	case string:
		return ex + valueToStr(v)
	case int64:
		if n, ok := v.(int64); ok {
			return ex + n
		}
		return v
	case float64:
		if f, ok := v.(float64); ok {
			return ex + f
		}
		return v
	default:
		return v
	}
}

func valueToStr(v table.Value) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func (e *Evaluator) execForSortInit(ins *ForSortInit) error {
	sel := ins.Select
	cur, err := newCursor(sel.From)
	if err != nil {
		return err
	}
	var rows []sortedRow
	for {
		rv, ok, err := cur.next(e)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		e.curRow = rv
		if sel.Where != nil {
			wv, err := sel.Where.Eval(e)
			if err != nil {
				return err
			}
			if !wv.(bool) {
				continue
			}
		}
		key := make([]table.Value, len(sel.OrderBy))
		for i, ob := range sel.OrderBy {
			v, err := ob.Eval(e)
			if err != nil {
				return err
			}
			key[i] = v
		}
		vals := make([]table.Value, len(sel.Exps))
		for i, ex := range sel.Exps {
			v, err := ex.Eval(e)
			if err != nil {
				return err
			}
			vals[i] = v
		}
		rows = append(rows, sortedRow{key: key, vals: vals})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return compareRows(rows[i].key, rows[j].key, sel.Desc) < 0
	})
	e.loops[ins.LoopID] = &loopState{sorted: &sortedLoopState{rows: rows}}
	return nil
}

func (e *Evaluator) execForSortNext(ins *ForSortNext) (bool, error) {
	ls, ok := e.loops[ins.LoopID]
	if !ok || ls.sorted == nil {
		return false, errNoActiveLoop
	}
	s := ls.sorted
	if s.ix >= len(s.rows) {
		return true, nil
	}
	row := s.rows[s.ix]
	s.ix++
	for i, slot := range ins.Assigns {
		e.top().locals[slot] = row.vals[i]
	}
	return false, nil
}

func (e *Evaluator) execSelect(sel *CSelectExpression) error {
	return e.runProjection(sel, func(vals []table.Value) {
		e.req.Selected(vals)
	})
}

func (e *Evaluator) execSet(sel *CSelectExpression) error {
	return e.runProjection(sel, func(vals []table.Value) {
		for i, slot := range sel.Assigns {
			if sel.AssignAppend[i] {
				e.top().locals[slot] = valuesAppend(e.top().locals[slot], vals[i])
			} else {
				e.top().locals[slot] = vals[i]
			}
		}
	})
}

// runProjection evaluates sel once per source row (or exactly once, with
// no current-row columns, if sel has no FROM), calling emit with the
// projected values for every row that passes Where.
func (e *Evaluator) runProjection(sel *CSelectExpression, emit func([]table.Value)) error {
	eval := func() error {
		if sel.Where != nil {
			wv, err := sel.Where.Eval(e)
			if err != nil {
				return err
			}
			if !wv.(bool) {
				return nil
			}
		}
		vals := make([]table.Value, len(sel.Exps))
		for i, ex := range sel.Exps {
			v, err := ex.Eval(e)
			if err != nil {
				return err
			}
			vals[i] = v
		}
		emit(vals)
		return nil
	}
	if sel.From == nil {
		return eval()
	}
	cur, err := newCursor(sel.From)
	if err != nil {
		return err
	}
	for {
		row, ok, err := cur.next(e)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		e.curRow = row
		if err := eval(); err != nil {
			return err
		}
	}
}

// compareRows orders two rows key-by-key, applying desc[i] to flip the
// i'th comparison, matching original_source/run.rs's compare().
func compareRows(a, b []table.Value, desc []bool) int {
	for i := range a {
		c := compareOne(a[i], b[i])
		if c != 0 {
			if desc[i] {
				return -c
			}
			return c
		}
	}
	return 0
}

func compareOne(a, b table.Value) int {
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

var _ compiler.Env = (*Evaluator)(nil)
