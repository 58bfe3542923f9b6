package table

// ColumnDef describes one column as declared by CREATE TABLE, before
// offsets are computed.
type ColumnDef struct {
	Name string
	Type Type
}

// Column is a fully laid-out column: its declared type plus its
// precomputed byte offset and size within an encoded row.
type Column struct {
	Name   string
	Type   Type
	Offset int
	Size   int
}

// Info is a table's fully-qualified name, ordered column layout, and a
// name-to-index map for resolving column references during compilation
// (spec §4.8, "Table info").
type Info struct {
	FullName  string
	Columns   []Column
	byName    map[string]int
	RowSize   int
}

// NewInfo lays out columns in declaration order, starting after the
// 8-byte row id.
func NewInfo(fullName string, defs []ColumnDef) *Info {
	info := &Info{FullName: fullName, byName: make(map[string]int, len(defs))}
	offset := 8
	info.Columns = make([]Column, len(defs))
	for i, d := range defs {
		size := ColumnSize(d.Type)
		info.Columns[i] = Column{Name: d.Name, Type: d.Type, Offset: offset, Size: size}
		info.byName[d.Name] = i
		offset += size
	}
	info.RowSize = offset
	return info
}

// IndexOf returns the column index for name, or -1 if no such column
// exists on this table.
func (info *Info) IndexOf(name string) int {
	if i, ok := info.byName[name]; ok {
		return i
	}
	return -1
}

// ColumnDefs reconstructs the declaration-order []ColumnDef this Info was
// built from, stripping the computed Offset/Size (core/catalog uses this
// to persist a table's layout into sys.Column).
func (info *Info) ColumnDefs() []ColumnDef {
	defs := make([]ColumnDef, len(info.Columns))
	for i, c := range info.Columns {
		defs[i] = ColumnDef{Name: c.Name, Type: c.Type}
	}
	return defs
}

// Column implements core/compiler's ColumnResolver, letting a Compiler
// resolve bare names against this table's layout directly.
func (info *Info) Column(name string) (int, Type, bool) {
	i, ok := info.byName[name]
	if !ok {
		return 0, None, false
	}
	return i, info.Columns[i].Type, true
}
