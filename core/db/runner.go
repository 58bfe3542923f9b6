package db

import (
	"time"

	"github.com/google/uuid"

	cairnerrors "github.com/cairndb/cairn/core/errors"
	"github.com/cairndb/cairn/core/sql"
	"github.com/cairndb/cairn/core/table"
	"github.com/cairndb/cairn/core/vm"
	"github.com/cairndb/cairn/internal/logging"
)

// RunBatch runs source (one or more GO-delimited sections, spec §4.9/§6.4)
// against db, using req as the Request collaborator every SELECT/SET/EXEC
// ultimately bottoms out on. Each GO section is parsed once; within a
// section, CREATE/ALTER/DROP statements are dispatched straight against
// the catalog as they're encountered (so a later statement in the same
// section sees the schema change), while runs of non-DDL statements
// between them are compiled and executed as one instruction program —
// exactly the split core/vm/compile.go's stmtCompiler assumes when it
// refuses to compile DDL itself.
//
// On success, the catalog's dirty id_alloc counters and the underlying
// paged file are both committed. On any error the batch unwinds with no
// commit at all (spec §7: "no save() is called"), though any DDL already
// dispatched earlier in the same RunBatch call remains visible in this
// process's in-memory catalog until the process exits or reopens the file.
func (db *Database) RunBatch(source string, req vm.Request) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	runID := uuid.NewString()
	started := time.Now()
	statements := 0

	committed, err := func() (bool, error) {
		for _, section := range sql.SplitBatches(source) {
			n, err := db.runSection(section, req)
			statements += n
			if err != nil {
				return false, err
			}
		}

		if err := db.cat.Save(); err != nil {
			return false, err
		}
		if err := db.writer.Save(); err != nil {
			return false, err
		}
		return true, nil
	}()

	logging.BatchExecuted(runID, statements, committed, time.Since(started))
	return err
}

func (db *Database) runSection(source string, req vm.Request) (int, error) {
	batch, err := sql.NewParser(source, "batch").ParseBatch()
	if err != nil {
		return 0, err
	}

	count := len(batch.Statements)

	var pending []sql.Stmt
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		instrs, localCount, err := vm.CompileBatchStmts("batch", pending, db.cat)
		pending = nil
		if err != nil {
			return err
		}
		ev := vm.NewEvaluator(db.cat, req, localCount)
		ev.Run(instrs)
		if msg := req.GetError(); msg != "" {
			return cairnerrors.NewRuntime("batch", msg)
		}
		return nil
	}

	for _, s := range batch.Statements {
		create, isCreate := s.(*sql.CreateStmt)
		alter, isAlter := s.(*sql.AlterStmt)
		drop, isDrop := s.(*sql.DropStmt)
		if !isCreate && !isAlter && !isDrop {
			pending = append(pending, s)
			continue
		}
		if err := flush(); err != nil {
			return count, err
		}
		switch {
		case isCreate:
			err = db.execCreate(create)
		case isAlter:
			err = db.execAlter(alter)
		case isDrop:
			err = db.execDrop(drop)
		}
		if err != nil {
			return count, err
		}
	}
	return count, flush()
}

func (db *Database) execCreate(s *sql.CreateStmt) error {
	switch s.Kind {
	case sql.KindSchema:
		_, err := db.cat.CreateSchema(s.Name.Name)
		return err
	case sql.KindTable:
		cols := make([]table.ColumnDef, len(s.Columns))
		for i, c := range s.Columns {
			cols[i] = table.ColumnDef{Name: c.Name, Type: c.Type}
		}
		_, err := db.cat.CreateTable(s.Name.Schema, s.Name.Name, cols)
		return err
	case sql.KindFn, sql.KindProc:
		_, err := db.cat.CreateRoutine(s.Name.Schema, s.Name.Name, formatRoutineSource(s))
		return err
	case sql.KindView:
		return cairnerrors.NewUnsupported("CREATE VIEW", "views are not implemented; see DESIGN.md")
	case sql.KindIndex:
		return cairnerrors.NewUnsupported("CREATE INDEX", "secondary indexes are not implemented; see DESIGN.md")
	default:
		return cairnerrors.NewUnsupported("CREATE", "unrecognised object kind")
	}
}

func (db *Database) execAlter(s *sql.AlterStmt) error {
	return cairnerrors.NewUnsupported("ALTER TABLE", "schema migration across binary format changes is a spec non-goal; see DESIGN.md")
}

func (db *Database) execDrop(s *sql.DropStmt) error {
	switch s.Kind {
	case sql.KindTable:
		return db.cat.DropTable(s.Name.Schema, s.Name.Name)
	case sql.KindSchema:
		return cairnerrors.NewUnsupported("DROP SCHEMA", "no empty-schema/cascade policy is specified; see DESIGN.md")
	case sql.KindFn, sql.KindProc:
		return cairnerrors.NewUnsupported("DROP FN/PROC", "routine removal is not implemented; see DESIGN.md")
	case sql.KindView:
		return cairnerrors.NewUnsupported("DROP VIEW", "views are not implemented; see DESIGN.md")
	case sql.KindIndex:
		return cairnerrors.NewUnsupported("DROP INDEX", "secondary indexes are not implemented; see DESIGN.md")
	default:
		return cairnerrors.NewUnsupported("DROP", "unrecognised object kind")
	}
}
