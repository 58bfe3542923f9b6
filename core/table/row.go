package table

import (
	"encoding/binary"

	"github.com/cairndb/cairn/core/bytestore"
	"github.com/cairndb/cairn/core/sortedfile"
	"github.com/cairndb/cairn/core/storage"
)

// Row is one table record: its 64-bit id plus one Value per column, in
// column-declaration order. Row is a plain data holder, not itself a
// sortedfile.Record — encodedRow carries the on-page bytes.
type Row struct {
	ID     uint64
	Values []Value
}

// encodedRow is the sortedfile.Record actually stored on page: the row's
// id plus its fully-encoded bytes (including any out-of-line string/
// binary codes already resolved against the table's byte store).
type encodedRow struct {
	id  uint64
	buf []byte
}

func (r encodedRow) Compare(other []byte) int {
	otherID := binary.LittleEndian.Uint64(other[0:8])
	switch {
	case r.id < otherID:
		return -1
	case r.id > otherID:
		return 1
	default:
		return 0
	}
}

func (r encodedRow) Save(buf []byte) { copy(buf, r.buf) }

// idKey probes a Table by bare row id without constructing a full row.
type idKey uint64

func (k idKey) Compare(other []byte) int {
	otherID := binary.LittleEndian.Uint64(other[0:8])
	switch {
	case uint64(k) < otherID:
		return -1
	case uint64(k) > otherID:
		return 1
	default:
		return 0
	}
}

func (k idKey) Save(buf []byte) { binary.LittleEndian.PutUint64(buf[0:8], uint64(k)) }

// Table is (id, root_lpnum, id_alloc, info): a sortedfile.File of encoded
// rows keyed by id, the table's catalog id, and its layout (spec §4.8).
type Table struct {
	CatalogID uint64
	Info      *Info
	file      *sortedfile.File
	store     *bytestore.Store
	idAlloc   uint64
	Dirty     bool
}

func rowFactory(info *Info) sortedfile.RecordFactory {
	return func(buf []byte) sortedfile.Record {
		id := binary.LittleEndian.Uint64(buf[0:8])
		owned := make([]byte, len(buf))
		copy(owned, buf)
		return encodedRow{id: id, buf: owned}
	}
}

// NewTable creates a fresh, empty table backed by access, with its own
// byte store for out-of-line string/binary data.
func NewTable(catalogID uint64, info *Info, access *storage.AccessPagedData) (*Table, error) {
	store, err := bytestore.New(access)
	if err != nil {
		return nil, err
	}
	f, err := sortedfile.NewFile(access, info.RowSize, rowFactory(info))
	if err != nil {
		return nil, err
	}
	return &Table{CatalogID: catalogID, Info: info, file: f, store: store}, nil
}

// OpenTable reconstructs a Table handle from its persisted root page ids
// and id_alloc (as stored in the owning sys.Table row).
func OpenTable(catalogID uint64, info *Info, access *storage.AccessPagedData, rowsRoot, storeRoot uint64, idAlloc uint64) (*Table, error) {
	store, err := bytestore.Open(access, storeRoot)
	if err != nil {
		return nil, err
	}
	f := sortedfile.OpenFile(access, rowsRoot, info.RowSize, rowFactory(info))
	return &Table{CatalogID: catalogID, Info: info, file: f, store: store, idAlloc: idAlloc}, nil
}

// RowsRoot and StoreRoot return this table's two root page numbers, to
// persist back into its sys.Table row.
func (t *Table) RowsRoot() uint64  { return t.file.Root() }
func (t *Table) StoreRoot() uint64 { return t.store.Root() }

// IDAlloc is the id_alloc counter to persist alongside this table.
func (t *Table) IDAlloc() uint64 { return t.idAlloc }

func (t *Table) decode(raw encodedRow) (*Row, error) {
	row := &Row{ID: raw.id, Values: make([]Value, len(t.Info.Columns))}
	for i, col := range t.Info.Columns {
		v, err := decodeValue(raw.buf[col.Offset:col.Offset+col.Size], col.Type, t.store)
		if err != nil {
			return nil, err
		}
		row.Values[i] = v
	}
	return row, nil
}

func (t *Table) encode(id uint64, values []Value) (encodedRow, error) {
	buf := make([]byte, t.Info.RowSize)
	binary.LittleEndian.PutUint64(buf[0:8], id)
	for i, col := range t.Info.Columns {
		if err := encodeValue(buf[col.Offset:col.Offset+col.Size], col.Type, values[i], t.store); err != nil {
			return encodedRow{}, err
		}
	}
	return encodedRow{id: id, buf: buf}, nil
}

// AllocID hands out the next id for this table: strictly greater than
// every prior live id, and flags the table dirty so id_alloc gets
// persisted on Save (spec invariant: "Every record id returned by a
// table's id allocator is strictly greater than all prior live ids").
func (t *Table) AllocID() uint64 {
	t.idAlloc++
	t.Dirty = true
	return t.idAlloc
}

// Insert assigns a fresh id to values and writes the row.
func (t *Table) Insert(values []Value) (uint64, error) {
	id := t.AllocID()
	enc, err := t.encode(id, values)
	if err != nil {
		return 0, err
	}
	return id, t.file.Insert(enc)
}

// Update rewrites the row with the given id, preserving its id.
func (t *Table) Update(id uint64, values []Value) error {
	enc, err := t.encode(id, values)
	if err != nil {
		return err
	}
	return t.file.Insert(enc)
}

// Delete removes the row with the given id, if present.
func (t *Table) Delete(id uint64) (bool, error) {
	return t.file.Remove(idKey(id))
}

// Get looks up the row with the given id.
func (t *Table) Get(id uint64) (*Row, bool, error) {
	rec, ok, err := t.file.Get(idKey(id))
	if err != nil || !ok {
		return nil, ok, err
	}
	row, err := t.decode(rec.(encodedRow))
	return row, err == nil, err
}

// RowCursor walks a table's rows in id order (ascending or descending).
type RowCursor struct {
	t *Table
	c *sortedfile.FileCursor
}

func (c *RowCursor) Next() (*Row, bool, error) {
	rec, ok := c.c.Next()
	if !ok {
		return nil, false, nil
	}
	row, err := c.t.decode(rec.(encodedRow))
	return row, true, err
}

func (t *Table) Asc() (*RowCursor, error) {
	c, err := t.file.Asc()
	if err != nil {
		return nil, err
	}
	return &RowCursor{t: t, c: c}, nil
}

func (t *Table) Dsc() (*RowCursor, error) {
	c, err := t.file.Dsc()
	if err != nil {
		return nil, err
	}
	return &RowCursor{t: t, c: c}, nil
}
