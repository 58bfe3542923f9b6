package sql

import (
	"fmt"
	"strconv"
	"strings"

	cairnerrors "github.com/cairndb/cairn/core/errors"
	"github.com/cairndb/cairn/core/table"
)

// Parser is a precedence-climbing recursive-descent parser sitting on top
// of Lexer's one-token pull interface. ParseOnly is a caller-set flag that
// the parser itself never reads. Routine bodies are kept as source text at
// CREATE time and compiled lazily on first call, per the batch language's
// routine contract.
type Parser struct {
	lex       *Lexer
	cur       Lexeme
	routine   string
	locals    map[string]bool
	ParseOnly bool
}

// NewParser creates a Parser over source, attributing errors to routine
// (the batch or routine name, used only for SqlError.Routine).
func NewParser(source, routine string) *Parser {
	p := &Parser{lex: NewLexer(source), routine: routine, locals: map[string]bool{}}
	p.cur = p.lex.Next()
	return p
}

// MarkLocal pre-seeds a name as a known local, the way a routine's
// parameter list or an earlier DECLARE would. Exported for callers (e.g.
// core/compiler) that need to parse a standalone expression against a
// local scope established outside ParseBatch.
func (p *Parser) MarkLocal(name string) { p.locals[name] = true }

// ParseExpr parses a single expression from the parser's current
// position, exposing the expression grammar to callers that don't need a
// full statement (core/compiler's tests compile bare expressions this
// way).
func (p *Parser) ParseExpr() (Expr, error) { return p.parseExpr(0) }

// ParseBlock parses a bare BEGIN...END statement block from the parser's
// current position. core/catalog uses this to recover a routine's
// top-level DECLAREs from its stored body text; core/vm's compiler also
// parses block source with it.
func (p *Parser) ParseBlock() ([]Stmt, error) { return p.parseBlock() }

func (p *Parser) advance() Lexeme {
	tok := p.cur
	p.cur = p.lex.Next()
	return tok
}

func (p *Parser) errf(format string, args ...any) error {
	return cairnerrors.NewSql(p.routine, p.cur.Line, p.cur.Column, fmt.Sprintf(format, args...))
}

// expectKeyword requires the current token be Ident with the given
// (case-insensitive) text, consuming it.
func (p *Parser) expectKeyword(word string) error {
	if p.cur.Token != Ident || !strings.EqualFold(p.cur.Text, word) {
		return p.errf("expected %q, found %s %q", word, p.cur.Token, p.cur.Text)
	}
	p.advance()
	return nil
}

func (p *Parser) atKeyword(word string) bool {
	return p.cur.Token == Ident && strings.EqualFold(p.cur.Text, word)
}

func (p *Parser) expectToken(tok Token) (Lexeme, error) {
	if p.cur.Token != tok {
		return Lexeme{}, p.errf("expected %s, found %s %q", tok, p.cur.Token, p.cur.Text)
	}
	return p.advance(), nil
}

func (p *Parser) expectIdent() (string, error) {
	if p.cur.Token != Ident {
		return "", p.errf("expected identifier, found %s %q", p.cur.Token, p.cur.Text)
	}
	return p.advance().Text, nil
}

// parseObjRef parses [schema.]name, defaulting schema to "" (caller
// supplies the active schema default where one applies).
func (p *Parser) parseObjRef() (ObjRef, error) {
	first, err := p.expectIdent()
	if err != nil {
		return ObjRef{}, err
	}
	if p.cur.Token == Dot {
		p.advance()
		second, err := p.expectIdent()
		if err != nil {
			return ObjRef{}, err
		}
		return ObjRef{Schema: first, Name: second}, nil
	}
	return ObjRef{Schema: "", Name: first}, nil
}

// ParseBatch parses the whole input into one flat Batch. A standalone "GO"
// is skipped, so statements on both sides of it land in the same Batch;
// SplitBatches is what splits source into GO-delimited sections.
func (p *Parser) ParseBatch() (*Batch, error) {
	b := &Batch{}
	for p.cur.Token != EndOfFile {
		if p.atKeyword("GO") {
			p.advance()
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			b.Statements = append(b.Statements, stmt)
		}
		if p.cur.Token == Semicolon {
			p.advance()
		}
	}
	return b, nil
}

func (p *Parser) pos() Pos { return Pos{Line: p.cur.Line, Column: p.cur.Column} }

func (p *Parser) parseStatement() (Stmt, error) {
	start := p.pos()
	switch {
	case p.atKeyword("DECLARE"):
		return p.parseDeclare(start)
	case p.atKeyword("SET"):
		return p.parseSet(start)
	case p.atKeyword("SELECT"):
		return p.parseSelectStmt(start)
	case p.atKeyword("IF"):
		return p.parseIf(start)
	case p.atKeyword("WHILE"):
		return p.parseWhile(start)
	case p.atKeyword("BREAK"):
		p.advance()
		return &BreakStmt{baseStmt{start}}, nil
	case p.atKeyword("GOTO"):
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &GotoStmt{baseStmt{start}, name}, nil
	case p.atKeyword("FOR"):
		return p.parseFor(start)
	case p.atKeyword("RETURN"):
		p.advance()
		var v Expr
		if !p.atStmtEnd() {
			var err error
			v, err = p.parseExpr(0)
			if err != nil {
				return nil, err
			}
		}
		return &ReturnStmt{baseStmt{start}, v}, nil
	case p.atKeyword("THROW"):
		p.advance()
		v, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		return &ThrowStmt{baseStmt{start}, v}, nil
	case p.atKeyword("EXEC"):
		return p.parseExec(start)
	case p.atKeyword("INSERT"):
		return p.parseInsert(start)
	case p.atKeyword("UPDATE"):
		return p.parseUpdate(start)
	case p.atKeyword("DELETE"):
		return p.parseDelete(start)
	case p.atKeyword("CREATE"):
		return p.parseCreate(start)
	case p.atKeyword("ALTER"):
		return p.parseAlter(start)
	case p.atKeyword("DROP"):
		return p.parseDrop(start)
	case p.cur.Token == Ident && p.peekIsColon():
		// label:
		name := p.advance().Text
		p.advance() // colon
		return &LabelStmt{baseStmt{start}, name}, nil
	default:
		return nil, p.errf("unexpected token %s %q at start of statement", p.cur.Token, p.cur.Text)
	}
}

// peekIsColon is a one-token lookahead hack: the lexer only exposes a
// single current token, so label detection re-lexes from a saved position
// when the current identifier might be "label:".
func (p *Parser) peekIsColon() bool {
	save := *p.lex
	savedCur := p.cur
	p.advance()
	is := p.cur.Token == Colon
	*p.lex = save
	p.cur = savedCur
	return is
}

func (p *Parser) atStmtEnd() bool {
	return p.cur.Token == EndOfFile || p.cur.Token == Semicolon || p.atKeyword("END") || p.atKeyword("GO")
}

func (p *Parser) parseBlock() ([]Stmt, error) {
	if err := p.expectKeyword("BEGIN"); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for !p.atKeyword("END") {
		if p.cur.Token == EndOfFile {
			return nil, p.errf("unterminated BEGIN block")
		}
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if p.cur.Token == Semicolon {
			p.advance()
		}
	}
	p.advance() // END
	return stmts, nil
}

func (p *Parser) parseDeclare(start Pos) (Stmt, error) {
	p.advance()
	var names []string
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if p.cur.Token != Comma {
			break
		}
		p.advance()
	}
	typ, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		p.locals[n] = true
	}
	return &DeclareStmt{baseStmt{start}, names, typ}, nil
}

func (p *Parser) parseTypeName() (table.Type, error) {
	name, err := p.expectIdent()
	if err != nil {
		return table.Type{}, err
	}
	switch strings.ToLower(name) {
	case "tinyint":
		return table.TinyInt, nil
	case "smallint":
		return table.SmallInt, nil
	case "int":
		return table.Int, nil
	case "bigint":
		return table.BigInt, nil
	case "float":
		return table.Float, nil
	case "double":
		return table.Double, nil
	case "bool":
		return table.Bool, nil
	case "string":
		return table.String, nil
	case "binary":
		return table.Binary, nil
	default:
		return table.Type{}, p.errf("unknown type %q", name)
	}
}

// parseSelectExpr parses the shared shape used by SET, SELECT, and FOR:
// a comma-separated projection list (each item optionally "expr AS name" or
// "local = expr" / "local += expr"), an optional FROM/WHERE/ORDER BY.
func (p *Parser) parseSelectExpr(allowFrom bool) (*SelectExpr, error) {
	sel := &SelectExpr{}
	for {
		assign, colname, exp, err := p.parseProjectionItem()
		if err != nil {
			return nil, err
		}
		sel.Assigns = append(sel.Assigns, assign)
		sel.ColNames = append(sel.ColNames, colname)
		sel.Exps = append(sel.Exps, exp)
		if p.cur.Token != Comma {
			break
		}
		p.advance()
	}
	if allowFrom && p.atKeyword("FROM") {
		p.advance()
		te, err := p.parseTableExpr()
		if err != nil {
			return nil, err
		}
		sel.From = te
	}
	if p.atKeyword("WHERE") {
		p.advance()
		w, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		sel.Where = w
	}
	if p.atKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			oe, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			desc := false
			if p.atKeyword("DESC") {
				p.advance()
				desc = true
			} else if p.atKeyword("ASC") {
				p.advance()
			}
			sel.OrderBy = append(sel.OrderBy, OrderTerm{Expr: oe, Desc: desc})
			if p.cur.Token != Comma {
				break
			}
			p.advance()
		}
	}
	return sel, nil
}

// parseProjectionItem parses one projection item, recognising the
// "local = expr" / "local += expr" assignment forms ahead of a plain
// expression (optionally aliased "AS name").
func (p *Parser) parseProjectionItem() (Assign, string, Expr, error) {
	if p.cur.Token == Ident && p.locals[p.cur.Text] {
		save := *p.lex
		savedCur := p.cur
		name := p.advance().Text
		if p.cur.Token == Equal {
			p.advance()
			exp, err := p.parseExpr(0)
			if err != nil {
				return Assign{}, "", nil, err
			}
			return Assign{LocalName: name, Op: OpAssign}, name, exp, nil
		}
		if p.cur.Token == Plus && p.lexSeesAppendEqual() {
			p.advance() // +
			p.advance() // =
			exp, err := p.parseExpr(0)
			if err != nil {
				return Assign{}, "", nil, err
			}
			return Assign{LocalName: name, Op: OpAppend}, name, exp, nil
		}
		*p.lex = save
		p.cur = savedCur
	}
	exp, err := p.parseExpr(0)
	if err != nil {
		return Assign{}, "", nil, err
	}
	colname := ""
	if p.atKeyword("AS") {
		p.advance()
		colname, err = p.expectIdent()
		if err != nil {
			return Assign{}, "", nil, err
		}
	}
	return Assign{}, colname, exp, nil
}

// lexSeesAppendEqual reports whether the current Plus token is directly
// followed by Equal, i.e. the "+=" append-assignment spelling.
func (p *Parser) lexSeesAppendEqual() bool {
	save := *p.lex
	savedCur := p.cur
	p.advance()
	is := p.cur.Token == Equal
	*p.lex = save
	p.cur = savedCur
	return is
}

func (p *Parser) parseTableExpr() (TableExpr, error) {
	if p.atKeyword("VALUES") {
		p.advance()
		var rows [][]Expr
		for {
			if _, err := p.expectToken(LBra); err != nil {
				return nil, err
			}
			var row []Expr
			for {
				e, err := p.parseExpr(0)
				if err != nil {
					return nil, err
				}
				row = append(row, e)
				if p.cur.Token != Comma {
					break
				}
				p.advance()
			}
			if _, err := p.expectToken(RBra); err != nil {
				return nil, err
			}
			rows = append(rows, row)
			if p.cur.Token != Comma {
				break
			}
			p.advance()
		}
		return ValuesTableExpr{Rows: rows}, nil
	}
	ref, err := p.parseObjRef()
	if err != nil {
		return nil, err
	}
	return BaseTableExpr{Name: ref}, nil
}

func (p *Parser) parseSet(start Pos) (Stmt, error) {
	p.advance()
	sel, err := p.parseSelectExpr(false)
	if err != nil {
		return nil, err
	}
	return &SetStmt{baseStmt{start}, sel}, nil
}

func (p *Parser) parseSelectStmt(start Pos) (Stmt, error) {
	p.advance()
	sel, err := p.parseSelectExpr(true)
	if err != nil {
		return nil, err
	}
	return &SelectStmt{baseStmt{start}, sel}, nil
}

func (p *Parser) parseIf(start Pos) (Stmt, error) {
	p.advance()
	cond, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var els []Stmt
	if p.atKeyword("ELSE") {
		p.advance()
		if p.atKeyword("IF") {
			s, err := p.parseIf(p.pos())
			if err != nil {
				return nil, err
			}
			els = []Stmt{s}
		} else {
			els, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		}
	}
	return &IfStmt{baseStmt{start}, cond, then, els}, nil
}

func (p *Parser) parseWhile(start Pos) (Stmt, error) {
	p.advance()
	cond, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{baseStmt{start}, cond, body}, nil
}

func (p *Parser) parseFor(start Pos) (Stmt, error) {
	p.advance()
	sel, err := p.parseSelectExpr(true)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ForStmt{baseStmt{start}, sel, body}, nil
}

func (p *Parser) parseExec(start Pos) (Stmt, error) {
	p.advance()
	ref, err := p.parseObjRef()
	if err != nil {
		return nil, err
	}
	var params []Expr
	if p.cur.Token == LBra {
		p.advance()
		if p.cur.Token != RBra {
			for {
				e, err := p.parseExpr(0)
				if err != nil {
					return nil, err
				}
				params = append(params, e)
				if p.cur.Token != Comma {
					break
				}
				p.advance()
			}
		}
		if _, err := p.expectToken(RBra); err != nil {
			return nil, err
		}
	}
	return &ExecStmt{baseStmt{start}, ref, params}, nil
}

func (p *Parser) parseInsert(start Pos) (Stmt, error) {
	p.advance()
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	tbl, err := p.parseObjRef()
	if err != nil {
		return nil, err
	}
	var cols []string
	if _, err := p.expectToken(LBra); err != nil {
		return nil, err
	}
	for {
		c, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
		if p.cur.Token != Comma {
			break
		}
		p.advance()
	}
	if _, err := p.expectToken(RBra); err != nil {
		return nil, err
	}
	src, err := p.parseTableExpr()
	if err != nil {
		return nil, err
	}
	return &InsertStmt{baseStmt{start}, tbl, cols, src}, nil
}

func (p *Parser) parseUpdate(start Pos) (Stmt, error) {
	p.advance()
	tbl, err := p.parseObjRef()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	var cols []string
	var vals []Expr
	for {
		c, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectToken(Equal); err != nil {
			return nil, err
		}
		v, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
		vals = append(vals, v)
		if p.cur.Token != Comma {
			break
		}
		p.advance()
	}
	var where Expr
	if p.atKeyword("WHERE") {
		p.advance()
		where, err = p.parseExpr(0)
		if err != nil {
			return nil, err
		}
	}
	return &UpdateStmt{baseStmt{start}, tbl, cols, vals, where}, nil
}

func (p *Parser) parseDelete(start Pos) (Stmt, error) {
	p.advance()
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	tbl, err := p.parseObjRef()
	if err != nil {
		return nil, err
	}
	var where Expr
	if p.atKeyword("WHERE") {
		p.advance()
		where, err = p.parseExpr(0)
		if err != nil {
			return nil, err
		}
	}
	return &DeleteStmt{baseStmt{start}, tbl, where}, nil
}

func (p *Parser) parseObjectKind() (ObjectKind, error) {
	switch {
	case p.atKeyword("SCHEMA"):
		p.advance()
		return KindSchema, nil
	case p.atKeyword("TABLE"):
		p.advance()
		return KindTable, nil
	case p.atKeyword("VIEW"):
		p.advance()
		return KindView, nil
	case p.atKeyword("FN"):
		p.advance()
		return KindFn, nil
	case p.atKeyword("PROC"):
		p.advance()
		return KindProc, nil
	case p.atKeyword("ROUTINE"):
		p.advance()
		return KindProc, nil
	case p.atKeyword("INDEX"):
		p.advance()
		return KindIndex, nil
	default:
		return 0, p.errf("expected SCHEMA, TABLE, VIEW, FN, PROC or INDEX, found %q", p.cur.Text)
	}
}

func (p *Parser) parseCreate(start Pos) (Stmt, error) {
	p.advance()
	kind, err := p.parseObjectKind()
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindSchema:
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &CreateStmt{baseStmt: baseStmt{start}, Kind: kind, Name: ObjRef{Name: name}}, nil
	case KindTable:
		ref, err := p.parseObjRef()
		if err != nil {
			return nil, err
		}
		cols, err := p.parseColumnList()
		if err != nil {
			return nil, err
		}
		return &CreateStmt{baseStmt: baseStmt{start}, Kind: kind, Name: ref, Columns: cols}, nil
	case KindIndex:
		iname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("ON"); err != nil {
			return nil, err
		}
		onTable, err := p.parseObjRef()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectToken(LBra); err != nil {
			return nil, err
		}
		var cols []string
		for {
			c, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			cols = append(cols, c)
			if p.cur.Token != Comma {
				break
			}
			p.advance()
		}
		if _, err := p.expectToken(RBra); err != nil {
			return nil, err
		}
		return &CreateStmt{baseStmt: baseStmt{start}, Kind: kind, Name: ObjRef{Name: iname}, IndexOn: onTable, IndexCol: cols}, nil
	case KindFn, KindProc:
		ref, err := p.parseObjRef()
		if err != nil {
			return nil, err
		}
		params, err := p.parseParamList()
		if err != nil {
			return nil, err
		}
		var ret *table.Type
		if kind == KindFn {
			if err := p.expectKeyword("RETURNS"); err != nil {
				return nil, err
			}
			t, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			ret = &t
		}
		body := p.remainingSource()
		return &CreateStmt{baseStmt: baseStmt{start}, Kind: kind, Name: ref, Params: params, Return: ret, Body: body}, nil
	case KindView:
		ref, err := p.parseObjRef()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AS"); err != nil {
			return nil, err
		}
		body := p.remainingSource()
		return &CreateStmt{baseStmt: baseStmt{start}, Kind: kind, Name: ref, Body: body}, nil
	}
	return nil, p.errf("unsupported CREATE target")
}

// remainingSource consumes tokens to end-of-batch (a bare GO or end of
// input) and returns their original text span, used to store a routine or
// view body verbatim for lazy compilation.
func (p *Parser) remainingSource() string {
	if p.cur.Token == EndOfFile {
		return ""
	}
	startOff := p.cur.Offset
	endOff := startOff
	for !p.atKeyword("GO") && p.cur.Token != EndOfFile {
		endOff = p.lex.pos
		p.advance()
	}
	return p.lex.Source(startOff, endOff)
}

func (p *Parser) parseColumnList() ([]ColumnSpec, error) {
	if _, err := p.expectToken(LBra); err != nil {
		return nil, err
	}
	var cols []ColumnSpec
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		typ, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		cols = append(cols, ColumnSpec{Name: name, Type: typ})
		if p.cur.Token != Comma {
			break
		}
		p.advance()
	}
	if _, err := p.expectToken(RBra); err != nil {
		return nil, err
	}
	return cols, nil
}

func (p *Parser) parseParamList() ([]ColumnSpec, error) {
	if _, err := p.expectToken(LBra); err != nil {
		return nil, err
	}
	var params []ColumnSpec
	if p.cur.Token != RBra {
		for {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			typ, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			params = append(params, ColumnSpec{Name: name, Type: typ})
			if p.cur.Token != Comma {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expectToken(RBra); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseAlter(start Pos) (Stmt, error) {
	p.advance()
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	tbl, err := p.parseObjRef()
	if err != nil {
		return nil, err
	}
	var actions []AlterAction
	for {
		a, err := p.parseAlterAction()
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
		if p.cur.Token != Comma {
			break
		}
		p.advance()
	}
	return &AlterStmt{baseStmt{start}, tbl, actions}, nil
}

func (p *Parser) parseAlterAction() (AlterAction, error) {
	switch {
	case p.atKeyword("ADD"):
		p.advance()
		if p.atKeyword("COLUMN") {
			p.advance()
		}
		name, err := p.expectIdent()
		if err != nil {
			return AlterAction{}, err
		}
		typ, err := p.parseTypeName()
		if err != nil {
			return AlterAction{}, err
		}
		return AlterAction{Kind: AlterAdd, Name: name, Type: typ}, nil
	case p.atKeyword("DROP"):
		p.advance()
		if p.atKeyword("COLUMN") {
			p.advance()
		}
		name, err := p.expectIdent()
		if err != nil {
			return AlterAction{}, err
		}
		return AlterAction{Kind: AlterDrop, Name: name}, nil
	case p.atKeyword("RENAME"):
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return AlterAction{}, err
		}
		if err := p.expectKeyword("TO"); err != nil {
			return AlterAction{}, err
		}
		newName, err := p.expectIdent()
		if err != nil {
			return AlterAction{}, err
		}
		return AlterAction{Kind: AlterRename, Name: name, NewName: newName}, nil
	case p.atKeyword("MODIFY"):
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return AlterAction{}, err
		}
		typ, err := p.parseTypeName()
		if err != nil {
			return AlterAction{}, err
		}
		return AlterAction{Kind: AlterModify, Name: name, Type: typ}, nil
	default:
		return AlterAction{}, p.errf("expected ADD, DROP, RENAME or MODIFY, found %q", p.cur.Text)
	}
}

func (p *Parser) parseDrop(start Pos) (Stmt, error) {
	p.advance()
	kind, err := p.parseObjectKind()
	if err != nil {
		return nil, err
	}
	ref, err := p.parseObjRef()
	if err != nil {
		return nil, err
	}
	return &DropStmt{baseStmt{start}, kind, ref}, nil
}

// SplitBatches splits source text on top-level "GO" markers, the way a
// batch runner feeds a multi-section script (such as the catalog bootstrap
// script) to the parser one section at a time: DDL in an earlier section
// must take effect before a later section is compiled, so sections are
// parsed and executed independently rather than as one combined Batch.
func SplitBatches(source string) []string {
	l := NewLexer(source)
	var sections []string
	start := 0
	for {
		lx := l.Next()
		if lx.Token == EndOfFile {
			if trimmed := strings.TrimSpace(l.Source(start, len(l.src))); trimmed != "" {
				sections = append(sections, l.Source(start, len(l.src)))
			}
			return sections
		}
		if lx.Token == Ident && strings.EqualFold(lx.Text, "GO") {
			sections = append(sections, l.Source(start, lx.Offset))
			start = l.pos
		}
	}
}

// --- expression parsing -----------------------------------------------

var binaryTokens = map[Token]bool{
	Less: true, LessEqual: true, GreaterEqual: true, Greater: true,
	Equal: true, NotEqual: true, In: true, Plus: true, Minus: true,
	Times: true, Divide: true, Percent: true, VBar: true, And: true, Or: true,
}

// parseExpr implements precedence climbing: minPrec is the lowest binding
// power this call is willing to consume.
func (p *Parser) parseExpr(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.asBinaryOp()
		if !ok {
			break
		}
		prec := op.Precedence()
		if prec < minPrec {
			break
		}
		pos := p.pos()
		p.advance()
		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{baseExpr{pos}, op, left, right}
	}
	return left, nil
}

// asBinaryOp maps the current token to a binary Token if it is one,
// recognising the keyword forms AND/OR/IN alongside the symbolic ones.
func (p *Parser) asBinaryOp() (Token, bool) {
	switch {
	case p.atKeyword("AND"):
		return And, true
	case p.atKeyword("OR"):
		return Or, true
	case p.atKeyword("IN"):
		return In, true
	}
	if binaryTokens[p.cur.Token] {
		return p.cur.Token, true
	}
	return 0, false
}

func (p *Parser) parseUnary() (Expr, error) {
	pos := p.pos()
	switch {
	case p.cur.Token == Minus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &MinusExpr{baseExpr{pos}, operand}, nil
	case p.atKeyword("NOT"):
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{baseExpr{pos}, operand}, nil
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	pos := p.pos()
	switch p.cur.Token {
	case Number:
		text := p.advance().Text
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, p.errf("invalid integer literal %q", text)
		}
		return &ConstExpr{baseExpr{pos}, n, table.KindInt}, nil
	case Decimal:
		text := p.advance().Text
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.errf("invalid numeric literal %q", text)
		}
		return &ConstExpr{baseExpr{pos}, f, table.KindFloat}, nil
	case Hex:
		text := p.advance().Text
		n, err := strconv.ParseInt(text[2:], 16, 64)
		if err != nil {
			return nil, p.errf("invalid hex literal %q", text)
		}
		return &ConstExpr{baseExpr{pos}, n, table.KindInt}, nil
	case String:
		text := p.advance().Text
		return &ConstExpr{baseExpr{pos}, text, table.KindString}, nil
	case LBra:
		return p.parseParenExpr(pos)
	case Ident:
		return p.parseIdentExpr(pos)
	default:
		return nil, p.errf("unexpected token %s %q in expression", p.cur.Token, p.cur.Text)
	}
}

// parseParenExpr parses "(expr)", "(expr, expr, ...)" (a List), or
// "(SELECT ...)" (a scalar sub-select).
func (p *Parser) parseParenExpr(pos Pos) (Expr, error) {
	p.advance() // (
	if p.atKeyword("SELECT") {
		p.advance()
		sel, err := p.parseSelectExpr(true)
		if err != nil {
			return nil, err
		}
		if _, err := p.expectToken(RBra); err != nil {
			return nil, err
		}
		return &ScalarSelectExpr{baseExpr{pos}, sel}, nil
	}
	first, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if p.cur.Token == Comma {
		items := []Expr{first}
		for p.cur.Token == Comma {
			p.advance()
			e, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			items = append(items, e)
		}
		if _, err := p.expectToken(RBra); err != nil {
			return nil, err
		}
		return &ListExpr{baseExpr{pos}, items}, nil
	}
	if _, err := p.expectToken(RBra); err != nil {
		return nil, err
	}
	return first, nil
}

// parseIdentExpr disambiguates a bare identifier: CASE, a known builtin
// marker ("$" prefix reserved for builtins is not used; builtins share the
// function-call syntax and are told apart by core/compiler's registry), a
// function call "name(...)", a declared local, or a bare column name.
func (p *Parser) parseIdentExpr(pos Pos) (Expr, error) {
	if p.atKeyword("CASE") {
		return p.parseCase(pos)
	}
	if p.atKeyword("TRUE") {
		p.advance()
		return &ConstExpr{baseExpr{pos}, true, table.KindBool}, nil
	}
	if p.atKeyword("FALSE") {
		p.advance()
		return &ConstExpr{baseExpr{pos}, false, table.KindBool}, nil
	}
	if IsKeyword(strings.ToUpper(p.cur.Text)) {
		return nil, p.errf("unexpected keyword %q in expression", p.cur.Text)
	}
	name := p.advance().Text
	if p.cur.Token == Dot {
		p.advance()
		second, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if p.cur.Token == LBra {
			params, err := p.parseCallParams()
			if err != nil {
				return nil, err
			}
			return &FuncCallExpr{baseExpr{pos}, ObjRef{Schema: name, Name: second}, params}, nil
		}
		return &ColNameExpr{baseExpr{pos}, name + "." + second}, nil
	}
	if p.cur.Token == LBra {
		params, err := p.parseCallParams()
		if err != nil {
			return nil, err
		}
		if isBuiltinName(name) {
			return &BuiltinCallExpr{baseExpr{pos}, name, params}, nil
		}
		return &FuncCallExpr{baseExpr{pos}, ObjRef{Name: name}, params}, nil
	}
	if p.locals[name] {
		return &LocalExpr{baseExpr{pos}, name}, nil
	}
	return &ColNameExpr{baseExpr{pos}, name}, nil
}

func (p *Parser) parseCallParams() ([]Expr, error) {
	p.advance() // (
	var params []Expr
	if p.cur.Token != RBra {
		for {
			e, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			params = append(params, e)
			if p.cur.Token != Comma {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expectToken(RBra); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseCase(pos Pos) (Expr, error) {
	p.advance() // CASE
	var branches []WhenThen
	for p.atKeyword("WHEN") {
		p.advance()
		when, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("THEN"); err != nil {
			return nil, err
		}
		then, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		branches = append(branches, WhenThen{When: when, Then: then})
	}
	var elseExpr Expr
	if p.atKeyword("ELSE") {
		p.advance()
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		elseExpr = e
	}
	if err := p.expectKeyword("END"); err != nil {
		return nil, err
	}
	return &CaseExpr{baseExpr{pos}, branches, elseExpr}, nil
}

// isBuiltinName reports whether an unqualified call name is a registered
// builtin rather than a user routine. The parser only needs a name-shape
// decision; core/compiler holds the actual registry and re-validates.
func isBuiltinName(name string) bool {
	switch strings.ToUpper(name) {
	case "LEN", "SUBSTRING", "REPLACE", "LASTID", "EXCEPTION", "PARSEINT",
		"PARSEFLOAT", "TINYINT", "SMALLINT", "INT", "BIGINT", "FLOAT",
		"DOUBLE", "STRING", "BINARY":
		return true
	default:
		return false
	}
}
