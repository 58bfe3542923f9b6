package catalog

import (
	cairnerrors "github.com/cairndb/cairn/core/errors"
	"github.com/cairndb/cairn/core/sql"
	"github.com/cairndb/cairn/core/table"
	"github.com/cairndb/cairn/core/vm"
)

var _ vm.Catalog = (*Catalog)(nil)

// CreateRoutine stores the literal "CREATE FN ..."/"CREATE PROC ..." text
// verbatim (original_source/sys.rs's create_routine), deferring all
// parsing to the first call.
func (c *Catalog) CreateRoutine(schema, name, source string) (uint64, error) {
	schemaID, ok, err := c.GetSchema(schema)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, cairnerrors.NewNotFound("schema", schema)
	}
	if _, ok, err := c.lookupRoutineRow(schemaID, name); err != nil {
		return 0, err
	} else if ok {
		return 0, cairnerrors.NewValidation("routine", "routine "+schema+"."+name+" already exists")
	}
	return c.routines.Insert([]table.Value{int64(schemaID), name, source})
}

// AlterRoutine replaces an existing routine's stored source text
// (original_source/sys.rs's alter_routine) and evicts any cached,
// previously-resolved signature.
func (c *Catalog) AlterRoutine(schema, name, source string) error {
	schemaID, ok, err := c.GetSchema(schema)
	if err != nil {
		return err
	}
	if !ok {
		return cairnerrors.NewNotFound("schema", schema)
	}
	row, ok, err := c.lookupRoutineRow(schemaID, name)
	if err != nil {
		return err
	}
	if !ok {
		return cairnerrors.NewNotFound("routine", schema+"."+name)
	}
	row.Values[2] = source
	if err := c.routines.Update(row.ID, row.Values); err != nil {
		return err
	}
	c.routineCache.Remove(cacheKey(schema, name))
	return nil
}

// Routine implements vm.Catalog: resolve schema.name to a Routine,
// parsing its stored source on first lookup and caching the result
// (original_source/sys.rs's get_routine/parse_routine). Only the
// routine's signature and local-slot layout are recovered here — param
// count, return type, and DECLAREd local names/types, plus the parsed
// body statements core/vm's statement compiler needs — not its compiled
// instruction list: core/vm.Evaluator compiles a Routine's body lazily on
// its first actual call, so every Routine returned here has
// Compiled == false and a nil Instructions until that call happens.
func (c *Catalog) Routine(schema, name string) (*vm.Routine, error) {
	key := cacheKey(schema, name)
	if r, ok := c.routineCache.Get(key); ok {
		return r, nil
	}

	schemaID, ok, err := c.GetSchema(schema)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cairnerrors.NewNotFound("schema", schema)
	}
	row, ok, err := c.lookupRoutineRow(schemaID, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cairnerrors.NewNotFound("routine", schema+"."+name)
	}

	r, err := parseRoutineSignature(schema, name, row.Values[2].(string))
	if err != nil {
		return nil, err
	}
	c.routineCache.Put(key, r)
	return r, nil
}

func (c *Catalog) lookupRoutineRow(schemaID uint64, name string) (*table.Row, bool, error) {
	cur, err := c.routines.Asc()
	if err != nil {
		return nil, false, err
	}
	for {
		row, ok, err := cur.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if uint64(row.Values[0].(int64)) == schemaID && row.Values[1].(string) == name {
			return row, true, nil
		}
	}
}

// parseRoutineSignature parses source as a single CREATE FN/PROC
// statement and recovers its parameter types, return type, and top-level
// DECLAREd local types. The dialect requires a routine body to be a bare
// BEGIN...END block (no leading AS), so the body text captured by
// core/sql's CREATE FN/PROC grammar parses directly as a statement block.
func parseRoutineSignature(schema, name, source string) (*vm.Routine, error) {
	batch, err := sql.NewParser(source, name).ParseBatch()
	if err != nil {
		return nil, err
	}
	if len(batch.Statements) != 1 {
		return nil, cairnerrors.NewSql(name, 0, 0, "routine definition must be a single CREATE FN/PROC statement")
	}
	create, ok := batch.Statements[0].(*sql.CreateStmt)
	if !ok || (create.Kind != sql.KindFn && create.Kind != sql.KindProc) {
		return nil, cairnerrors.NewSql(name, 0, 0, "routine definition is not a CREATE FN/PROC statement")
	}

	localNames := make([]string, len(create.Params))
	localTypes := make([]table.Type, len(create.Params))
	for i, p := range create.Params {
		localNames[i] = p.Name
		localTypes[i] = p.Type
	}

	bodyStmts, err := sql.NewParser(create.Body, name).ParseBlock()
	if err != nil {
		return nil, err
	}
	for _, s := range bodyStmts {
		if decl, ok := s.(*sql.DeclareStmt); ok {
			for _, n := range decl.Names {
				localNames = append(localNames, n)
				localTypes = append(localTypes, decl.Type)
			}
		}
	}

	hasReturn := create.Return != nil
	var ret table.Type
	if hasReturn {
		ret = *create.Return
	}

	return &vm.Routine{
		Schema:     schema,
		Name:       name,
		ParamCount: len(create.Params),
		ReturnType: ret,
		HasReturn:  hasReturn,
		LocalNames: localNames,
		LocalTypes: localTypes,
		Body:       bodyStmts,
		Source:     source,
	}, nil
}
