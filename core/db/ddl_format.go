package db

import (
	"strings"

	"github.com/cairndb/cairn/core/sql"
	"github.com/cairndb/cairn/core/table"
)

// formatRoutineSource reconstructs the verbatim "CREATE FN/PROC ..." text
// CreateRoutine stores and later re-parses on first call (core/catalog's
// parseRoutineSignature expects a single complete CREATE FN/PROC
// statement, but sql.CreateStmt.Body only captures the BEGIN...END block
// the parser already split off — so the header is rebuilt here from the
// rest of the AST rather than re-sliced from the original source text).
func formatRoutineSource(s *sql.CreateStmt) string {
	var b strings.Builder
	if s.Kind == sql.KindFn {
		b.WriteString("CREATE FN ")
	} else {
		b.WriteString("CREATE PROC ")
	}
	if s.Name.Schema != "" {
		b.WriteString(s.Name.Schema)
		b.WriteByte('.')
	}
	b.WriteString(s.Name.Name)
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteByte(' ')
		b.WriteString(typeName(p.Type))
	}
	b.WriteByte(')')
	if s.Kind == sql.KindFn && s.Return != nil {
		b.WriteString(" RETURNS ")
		b.WriteString(typeName(*s.Return))
	}
	b.WriteByte(' ')
	b.WriteString(s.Body)
	return b.String()
}

// typeName is the reverse of core/sql's Parser.parseTypeName.
func typeName(t table.Type) string {
	switch t.Kind {
	case table.KindInt:
		switch t.Size {
		case 1:
			return "TINYINT"
		case 2:
			return "SMALLINT"
		case 8:
			return "BIGINT"
		default:
			return "INT"
		}
	case table.KindFloat:
		if t.Size == 8 {
			return "DOUBLE"
		}
		return "FLOAT"
	case table.KindBool:
		return "BOOL"
	case table.KindString:
		return "STRING"
	case table.KindBinary:
		return "BINARY"
	default:
		return "STRING"
	}
}
