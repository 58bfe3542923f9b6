package vm

import (
	"github.com/cairndb/cairn/core/compiler"
	cairnerrors "github.com/cairndb/cairn/core/errors"
	"github.com/cairndb/cairn/core/sql"
	"github.com/cairndb/cairn/core/table"
)

// This file is the missing link between core/sql's parsed statement trees
// and core/compiler's scalar-expression compiler: it walks a routine body
// or an ad-hoc batch's statement list and emits the flat []Inst program
// the evaluator's run() drives, backpatching GOTO/label and loop-exit
// jump targets in a final pass once every instruction has a fixed index
// (original_source/sql.rs's Block/resolve_jumps).
//
// DDL (CREATE/ALTER/DROP) is deliberately not handled here: it is
// executed directly against the catalog by core/db's batch runner before
// the surrounding statements ever reach this compiler, since a schema
// change needs to take effect for the statements textually after it in
// the same GO-section (spec's "a batch's DDL takes effect before the
// next section is even parsed").

// routineResolver adapts a Catalog into compiler.RoutineResolver, letting
// the scalar-expression compiler type-check a call to another routine
// without forcing that routine's body to compile (lazy-compile).
type routineResolver struct{ cat Catalog }

func (r routineResolver) Routine(schema, name string) (compiler.RoutineSignature, bool) {
	rt, err := r.cat.Routine(schema, name)
	if err != nil {
		return compiler.RoutineSignature{}, false
	}
	return compiler.RoutineSignature{
		ParamTypes: rt.LocalTypes[:rt.ParamCount],
		ReturnType: rt.ReturnType,
		HasReturn:  rt.HasReturn,
	}, true
}

// compileRoutineBody compiles r's already-parsed Body into Instructions,
// called exactly once per Routine (by its first call) since the result
// is cached back onto r by the caller.
func compileRoutineBody(r *Routine, cat Catalog) ([]Inst, error) {
	locals := make(map[string]compiler.LocalSlot, len(r.LocalTypes))
	for i, name := range r.LocalNames {
		locals[name] = compiler.LocalSlot{Index: i, Type: r.LocalTypes[i]}
	}
	c := compiler.NewCompiler(r.Name, locals, nil, routineResolver{cat})
	sc := newStmtCompiler(r.Name, c, cat)
	if err := sc.compileStmts(r.Body); err != nil {
		return nil, err
	}
	if err := sc.resolveGotos(); err != nil {
		return nil, err
	}
	return sc.instrs, nil
}

// compileAdHocBatch parses source as a standalone statement block (no
// enclosing CREATE FN/PROC), pre-scans its top-level DECLAREs for the
// local frame it needs, and compiles it the same way a routine body
// compiles. Returns the frame size alongside the instructions since the
// caller (Evaluator.execSubBatch) must size a fresh frame before running
// them.
func compileAdHocBatch(source string, cat Catalog) ([]Inst, int, error) {
	stmts, err := sql.NewParser(source, "execute").ParseBlock()
	if err != nil {
		return nil, 0, err
	}
	return CompileBatchStmts("execute", stmts, cat)
}

// CompileBatchStmts compiles an already-parsed, DDL-free statement list
// into a flat instruction program plus the local-frame size it needs,
// pre-scanning its top-level DECLAREs the same way a routine body's
// locals are recovered. core/db's batch runner calls this for each
// consecutive run of non-DDL statements between DDL boundaries within one
// GO-delimited section (spec §4.11/§4.12's batch runner).
func CompileBatchStmts(name string, stmts []sql.Stmt, cat Catalog) ([]Inst, int, error) {
	names, types, err := topLevelLocals(stmts)
	if err != nil {
		return nil, 0, err
	}
	locals := make(map[string]compiler.LocalSlot, len(types))
	for i, n := range names {
		locals[n] = compiler.LocalSlot{Index: i, Type: types[i]}
	}
	c := compiler.NewCompiler(name, locals, nil, routineResolver{cat})
	sc := newStmtCompiler(name, c, cat)
	if err := sc.compileStmts(stmts); err != nil {
		return nil, 0, err
	}
	if err := sc.resolveGotos(); err != nil {
		return nil, 0, err
	}
	return sc.instrs, len(types), nil
}

// topLevelLocals collects every DECLAREd name/type among stmts' top
// level, in source order, the same layout core/catalog's
// parseRoutineSignature recovers for a routine's own locals.
func topLevelLocals(stmts []sql.Stmt) ([]string, []table.Type, error) {
	var names []string
	var types []table.Type
	seen := make(map[string]bool)
	for _, s := range stmts {
		decl, ok := s.(*sql.DeclareStmt)
		if !ok {
			continue
		}
		for _, n := range decl.Names {
			if seen[n] {
				return nil, nil, cairnerrors.NewSql("execute", s.Pos().Line, s.Pos().Column, "duplicate variable name "+n)
			}
			seen[n] = true
			names = append(names, n)
			types = append(types, decl.Type)
		}
	}
	return names, types, nil
}

// stmtCompiler assembles one flat instruction list, tracking label
// positions, pending GOTOs, and the innermost enclosing loops' BREAK
// fixups as it walks a (possibly nested) statement list.
type stmtCompiler struct {
	routine string
	c       *compiler.Compiler
	cat     Catalog

	instrs []Inst
	labels map[string]int
	gotos  []pendingGoto

	breaks [][]int
	nextLoopID int
}

type pendingGoto struct {
	index int
	label string
	pos   sql.Pos
}

func newStmtCompiler(routine string, c *compiler.Compiler, cat Catalog) *stmtCompiler {
	return &stmtCompiler{routine: routine, c: c, cat: cat, labels: make(map[string]int)}
}

func (sc *stmtCompiler) emit(i Inst) int {
	sc.instrs = append(sc.instrs, i)
	return len(sc.instrs) - 1
}

func (sc *stmtCompiler) pos() int { return len(sc.instrs) }

func (sc *stmtCompiler) err(p sql.Pos, format string, args ...any) error {
	return cairnerrors.NewSqlf(sc.routine, p.Line, p.Column, format, args...)
}

func (sc *stmtCompiler) resolveGotos() error {
	for _, g := range sc.gotos {
		target, ok := sc.labels[g.label]
		if !ok {
			return sc.err(g.pos, "undefined label %q", g.label)
		}
		sc.instrs[g.index].(*Jump).Target = target
	}
	return nil
}

func (sc *stmtCompiler) pushLoop() int {
	sc.breaks = append(sc.breaks, nil)
	id := sc.nextLoopID
	sc.nextLoopID++
	return id
}

func (sc *stmtCompiler) popLoop(target int) {
	top := len(sc.breaks) - 1
	for _, idx := range sc.breaks[top] {
		sc.instrs[idx].(*Jump).Target = target
	}
	sc.breaks = sc.breaks[:top]
}

func (sc *stmtCompiler) compileStmts(stmts []sql.Stmt) error {
	for _, s := range stmts {
		if err := sc.compileStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (sc *stmtCompiler) compileStmt(s sql.Stmt) error {
	switch n := s.(type) {
	case *sql.DeclareStmt:
		return nil // slot already reserved; see topLevelLocals/parseRoutineSignature
	case *sql.SetStmt:
		return sc.compileSetOrSelect(n.Select, false)
	case *sql.SelectStmt:
		return sc.compileSetOrSelect(n.Select, true)
	case *sql.IfStmt:
		return sc.compileIf(n)
	case *sql.WhileStmt:
		return sc.compileWhile(n)
	case *sql.BreakStmt:
		return sc.compileBreak(n)
	case *sql.GotoStmt:
		idx := sc.emit(&Jump{})
		sc.gotos = append(sc.gotos, pendingGoto{index: idx, label: n.Label, pos: n.Pos()})
		return nil
	case *sql.LabelStmt:
		sc.labels[n.Name] = sc.pos()
		return nil
	case *sql.ForStmt:
		return sc.compileFor(n)
	case *sql.ReturnStmt:
		return sc.compileReturn(n)
	case *sql.ThrowStmt:
		return sc.compileThrow(n)
	case *sql.ExecStmt:
		return sc.compileExec(n)
	case *sql.InsertStmt:
		return sc.compileInsert(n)
	case *sql.UpdateStmt:
		return sc.compileUpdate(n)
	case *sql.DeleteStmt:
		return sc.compileDelete(n)
	case *sql.CreateStmt, *sql.AlterStmt, *sql.DropStmt:
		return sc.err(s.Pos(), "DDL statements may only appear at a batch's top level, run directly by the batch runner")
	default:
		return sc.err(s.Pos(), "statement form %T is not yet supported", s)
	}
}

func (sc *stmtCompiler) compileIf(s *sql.IfStmt) error {
	cond, err := sc.c.CompileBool(s.Cond)
	if err != nil {
		return err
	}
	jIdx := sc.emit(&JumpIfFalse{Cond: cond})
	if err := sc.compileStmts(s.Then); err != nil {
		return err
	}
	if len(s.Else) > 0 {
		jEnd := sc.emit(&Jump{})
		sc.instrs[jIdx].(*JumpIfFalse).Target = sc.pos()
		if err := sc.compileStmts(s.Else); err != nil {
			return err
		}
		sc.instrs[jEnd].(*Jump).Target = sc.pos()
	} else {
		sc.instrs[jIdx].(*JumpIfFalse).Target = sc.pos()
	}
	return nil
}

func (sc *stmtCompiler) compileWhile(s *sql.WhileStmt) error {
	top := sc.pos()
	cond, err := sc.c.CompileBool(s.Cond)
	if err != nil {
		return err
	}
	jEnd := sc.emit(&JumpIfFalse{Cond: cond})
	sc.pushLoop()
	if err := sc.compileStmts(s.Body); err != nil {
		return err
	}
	sc.emit(&Jump{Target: top})
	end := sc.pos()
	sc.instrs[jEnd].(*JumpIfFalse).Target = end
	sc.popLoop(end)
	return nil
}

func (sc *stmtCompiler) compileBreak(s *sql.BreakStmt) error {
	if len(sc.breaks) == 0 {
		return sc.err(s.Pos(), "BREAK outside a loop")
	}
	idx := sc.emit(&Jump{})
	top := len(sc.breaks) - 1
	sc.breaks[top] = append(sc.breaks[top], idx)
	return nil
}

// resolveTableExpr resolves a parsed TableExpr into its compiled form and
// (for a base table) the column resolver its row scope exposes.
func (sc *stmtCompiler) resolveTableExpr(t sql.TableExpr) (TableExpr, compiler.ColumnResolver, error) {
	switch tt := t.(type) {
	case *sql.BaseTableExpr:
		tbl, err := sc.cat.GetTable(tt.Name.Schema, tt.Name.Name)
		if err != nil {
			return nil, nil, err
		}
		return &BaseTable{Table: tbl}, tbl.Info, nil
	case *sql.ValuesTableExpr:
		rows := make([][]compiler.CExpr, len(tt.Rows))
		for i, r := range tt.Rows {
			row := make([]compiler.CExpr, len(r))
			for j, e := range r {
				ce, err := sc.c.Compile(e)
				if err != nil {
					return nil, nil, err
				}
				row[j] = ce
			}
			rows[i] = row
		}
		return &ValuesTable{Rows: rows}, nil, nil
	default:
		return nil, nil, cairnerrors.NewSql(sc.routine, 0, 0, "unsupported table expression")
	}
}

// compileSelectExpr compiles a parsed SelectExpr into its runtime form,
// restoring the compiler's previous FROM scope before returning.
func (sc *stmtCompiler) compileSelectExpr(sel *sql.SelectExpr) (*CSelectExpression, error) {
	prevFrom := sc.c.From()
	defer sc.c.SetFrom(prevFrom)

	out := &CSelectExpression{ColNames: sel.ColNames}
	if sel.From != nil {
		te, resolver, err := sc.resolveTableExpr(sel.From)
		if err != nil {
			return nil, err
		}
		out.From = te
		sc.c.SetFrom(resolver)
	}
	if sel.Where != nil {
		w, err := sc.c.CompileBool(sel.Where)
		if err != nil {
			return nil, err
		}
		out.Where = w
	}
	out.Exps = make([]compiler.CExpr, len(sel.Exps))
	for i, e := range sel.Exps {
		ce, err := sc.c.Compile(e)
		if err != nil {
			return nil, err
		}
		out.Exps[i] = ce
	}
	if len(sel.Assigns) > 0 {
		out.Assigns = make([]int, len(sel.Assigns))
		out.AssignAppend = make([]bool, len(sel.Assigns))
		for i, a := range sel.Assigns {
			slot, ok := sc.c.Local(a.LocalName)
			if !ok {
				return nil, cairnerrors.NewSql(sc.routine, 0, 0, "undeclared variable "+a.LocalName)
			}
			out.Assigns[i] = slot.Index
			out.AssignAppend[i] = a.Op == sql.OpAppend
		}
	}
	if len(sel.OrderBy) > 0 {
		out.OrderBy = make([]compiler.CExpr, len(sel.OrderBy))
		out.Desc = make([]bool, len(sel.OrderBy))
		for i, ob := range sel.OrderBy {
			ce, err := sc.c.Compile(ob.Expr)
			if err != nil {
				return nil, err
			}
			out.OrderBy[i] = ce
			out.Desc[i] = ob.Desc
		}
	}
	return out, nil
}

func (sc *stmtCompiler) compileSetOrSelect(sel *sql.SelectExpr, isSelect bool) error {
	csel, err := sc.compileSelectExpr(sel)
	if err != nil {
		return err
	}
	if isSelect {
		sc.emit(&Select{Select: csel})
	} else {
		sc.emit(&Set{Select: csel})
	}
	return nil
}

func (sc *stmtCompiler) compileFor(s *sql.ForStmt) error {
	sel := s.Select
	if len(sel.OrderBy) > 0 {
		return sc.compileForSort(s)
	}
	prevFrom := sc.c.From()
	te, resolver, err := sc.resolveTableExpr(sel.From)
	if err != nil {
		return err
	}
	sc.c.SetFrom(resolver)

	var where compiler.CExpr
	if sel.Where != nil {
		where, err = sc.c.CompileBool(sel.Where)
		if err != nil {
			sc.c.SetFrom(prevFrom)
			return err
		}
	}
	exps := make([]compiler.CExpr, len(sel.Exps))
	for i, e := range sel.Exps {
		ce, err := sc.c.Compile(e)
		if err != nil {
			sc.c.SetFrom(prevFrom)
			return err
		}
		exps[i] = ce
	}
	assigns := make([]int, len(sel.Assigns))
	appends := make([]bool, len(sel.Assigns))
	for i, a := range sel.Assigns {
		slot, ok := sc.c.Local(a.LocalName)
		if !ok {
			sc.c.SetFrom(prevFrom)
			return cairnerrors.NewSql(sc.routine, 0, 0, "undeclared variable "+a.LocalName)
		}
		assigns[i] = slot.Index
		appends[i] = a.Op == sql.OpAppend
	}

	loopID := sc.pushLoop()
	sc.emit(&ForInit{LoopID: loopID, Table: te})
	forNextIdx := sc.emit(&ForNext{Info: &ForNextInfo{
		LoopID: loopID, Assigns: assigns, AssignAppend: appends, Exps: exps, Where: where,
	}})
	if err := sc.compileStmts(s.Body); err != nil {
		sc.c.SetFrom(prevFrom)
		return err
	}
	sc.emit(&Jump{Target: forNextIdx})
	end := sc.pos()
	sc.instrs[forNextIdx].(*ForNext).Target = end
	sc.popLoop(end)
	sc.c.SetFrom(prevFrom)
	return nil
}

func (sc *stmtCompiler) compileForSort(s *sql.ForStmt) error {
	prevFrom := sc.c.From()
	csel, err := sc.compileSelectExpr(s.Select)
	sc.c.SetFrom(prevFrom)
	if err != nil {
		return err
	}

	loopID := sc.pushLoop()
	sc.emit(&ForSortInit{LoopID: loopID, Select: csel})
	forNextIdx := sc.emit(&ForSortNext{LoopID: loopID, Assigns: csel.Assigns})
	if err := sc.compileStmts(s.Body); err != nil {
		return err
	}
	sc.emit(&Jump{Target: forNextIdx})
	end := sc.pos()
	sc.instrs[forNextIdx].(*ForSortNext).Target = end
	sc.popLoop(end)
	return nil
}

func (sc *stmtCompiler) compileReturn(s *sql.ReturnStmt) error {
	if s.Value != nil {
		ce, err := sc.c.Compile(s.Value)
		if err != nil {
			return err
		}
		sc.emit(&PushExpr{Expr: ce})
	}
	sc.emit(&Return{})
	return nil
}

func (sc *stmtCompiler) compileThrow(s *sql.ThrowStmt) error {
	ce, err := sc.c.Compile(s.Value)
	if err != nil {
		return err
	}
	if ce.Type().Kind != table.KindString {
		return sc.err(s.Pos(), "THROW requires a string expression, got %s", ce.Type().Kind)
	}
	sc.emit(&PushExpr{Expr: ce})
	sc.emit(&Throw{})
	return nil
}

func (sc *stmtCompiler) compileExec(s *sql.ExecStmt) error {
	r, err := sc.cat.Routine(s.Name.Schema, s.Name.Name)
	if err != nil {
		return err
	}
	if len(s.Params) != r.ParamCount {
		return sc.err(s.Pos(), "routine %s expects %d parameter(s), got %d", s.Name, r.ParamCount, len(s.Params))
	}
	for i, p := range s.Params {
		ce, err := sc.c.Compile(p)
		if err != nil {
			return err
		}
		if ce.Type().Kind != r.LocalTypes[i].Kind {
			return sc.err(s.Pos(), "routine %s parameter %d: type mismatch, expected %s got %s", s.Name, i, r.LocalTypes[i].Kind, ce.Type().Kind)
		}
		sc.emit(&PushExpr{Expr: ce})
	}
	sc.emit(&Call{Routine: r})
	if r.HasReturn {
		sc.emit(&Pop{})
	}
	return nil
}

// columnIndexes maps an INSERT/UPDATE's explicit column-name list to the
// target table's column indices, or every column in declared order if
// names is empty (the dialect's "no column list" shorthand).
func columnIndexes(info *table.Info, names []string) ([]int, error) {
	if len(names) == 0 {
		ixs := make([]int, len(info.Columns))
		for i := range ixs {
			ixs[i] = i
		}
		return ixs, nil
	}
	ixs := make([]int, len(names))
	for i, n := range names {
		ix := info.IndexOf(n)
		if ix < 0 {
			return nil, cairnerrors.NewValidation("column", "unknown column "+n+" on table "+info.FullName)
		}
		ixs[i] = ix
	}
	return ixs, nil
}

func (sc *stmtCompiler) compileInsert(s *sql.InsertStmt) error {
	tbl, err := sc.cat.GetTable(s.Table.Schema, s.Table.Name)
	if err != nil {
		return err
	}
	cols, err := columnIndexes(tbl.Info, s.Columns)
	if err != nil {
		return err
	}
	src, _, err := sc.resolveTableExpr(s.Source)
	if err != nil {
		return err
	}
	sc.emit(&DataOp{Op: &InsertOp{Table: tbl, Columns: cols, Source: src}})
	return nil
}

func (sc *stmtCompiler) compileUpdate(s *sql.UpdateStmt) error {
	tbl, err := sc.cat.GetTable(s.Table.Schema, s.Table.Name)
	if err != nil {
		return err
	}
	cols, err := columnIndexes(tbl.Info, s.Columns)
	if err != nil {
		return err
	}
	prevFrom := sc.c.From()
	sc.c.SetFrom(tbl.Info)
	defer sc.c.SetFrom(prevFrom)

	exps := make([]compiler.CExpr, len(s.Values))
	for i, e := range s.Values {
		ce, err := sc.c.Compile(e)
		if err != nil {
			return err
		}
		exps[i] = ce
	}
	var where compiler.CExpr
	if s.Where != nil {
		where, err = sc.c.CompileBool(s.Where)
		if err != nil {
			return err
		}
	}
	sc.emit(&DataOp{Op: &UpdateOp{Table: tbl, Columns: cols, Exps: exps, Where: where}})
	return nil
}

func (sc *stmtCompiler) compileDelete(s *sql.DeleteStmt) error {
	tbl, err := sc.cat.GetTable(s.Table.Schema, s.Table.Name)
	if err != nil {
		return err
	}
	prevFrom := sc.c.From()
	sc.c.SetFrom(tbl.Info)
	defer sc.c.SetFrom(prevFrom)

	var where compiler.CExpr
	if s.Where != nil {
		where, err = sc.c.CompileBool(s.Where)
		if err != nil {
			return err
		}
	}
	sc.emit(&DataOp{Op: &DeleteOp{Table: tbl, Where: where}})
	return nil
}
