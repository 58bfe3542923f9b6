package sortedfile

import (
	"encoding/binary"

	"github.com/cairndb/cairn/core/storage"
)

const (
	kindLeaf byte = 0
	kindDir  byte = 1
)

// File is a sorted collection of fixed-size records spanning one or more
// logical pages. A single leaf page holds every record until it exhausts
// its node budget (MaxNodes), at which point the root becomes a directory
// page indexing two leaf pages by their minimum key. Directories are a
// single level deep: ample for any table or byte-storage chain built by
// the test and demo workloads this engine targets, and simpler than a
// recursive B-tree for the same reason the compact file uses a flat
// starter array instead of a multi-level index.
type File struct {
	access     *storage.AccessPagedData
	root       uint64
	recSize    int
	factory    RecordFactory
	dirRecSize int
	dirFactory RecordFactory
}

// NewFile allocates a fresh, empty File.
func NewFile(access *storage.AccessPagedData, recSize int, factory RecordFactory) (*File, error) {
	pid, err := access.AllocPage()
	if err != nil {
		return nil, err
	}
	f := &File{
		access:     access,
		root:       pid,
		recSize:    recSize,
		factory:    factory,
		dirRecSize: recSize + 8,
	}
	f.dirFactory = makeDirFactory(recSize, factory)
	if err := f.saveTree(pid, kindLeaf, NewEmptyTree(recSize, factory)); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenFile reconstructs a File handle over an already-populated root page.
func OpenFile(access *storage.AccessPagedData, root uint64, recSize int, factory RecordFactory) *File {
	f := &File{access: access, root: root, recSize: recSize, factory: factory, dirRecSize: recSize + 8}
	f.dirFactory = makeDirFactory(recSize, factory)
	return f
}

// Root returns the logical page number to persist as this file's root
// (e.g. in a sys.Table row), so OpenFile can reconstruct the handle later.
func (f *File) Root() uint64 { return f.root }

func (f *File) loadTree(pid uint64) (byte, *Tree, error) {
	data, err := f.access.GetPage(pid)
	if err != nil {
		return 0, nil, err
	}
	if len(data) == 0 {
		return kindLeaf, NewEmptyTree(f.recSize, f.factory), nil
	}
	kind := data[0]
	if kind == kindDir {
		return kind, NewTree(data[1:], f.dirRecSize, f.dirFactory), nil
	}
	return kind, NewTree(data[1:], f.recSize, f.factory), nil
}

func (f *File) saveTree(pid uint64, kind byte, tr *Tree) error {
	buf := make([]byte, 1+len(tr.Bytes()))
	buf[0] = kind
	copy(buf[1:], tr.Bytes())
	return f.access.SetPage(pid, buf)
}

// dirRecord is the fixed-size boundary entry stored in a directory page:
// the full key-defining bytes of the first record on the referenced leaf,
// followed by that leaf's page id.
type dirRecord struct {
	keyBytes []byte
	pageID   uint64
	factory  RecordFactory
}

func (d dirRecord) Compare(other []byte) int {
	return d.factory(d.keyBytes).Compare(other)
}

func (d dirRecord) Save(buf []byte) {
	copy(buf, d.keyBytes)
	binary.LittleEndian.PutUint64(buf[len(d.keyBytes):], d.pageID)
}

func makeDirFactory(recSize int, dataFactory RecordFactory) RecordFactory {
	return func(buf []byte) Record {
		key := make([]byte, recSize)
		copy(key, buf[:recSize])
		pid := binary.LittleEndian.Uint64(buf[recSize:])
		return dirRecord{keyBytes: key, pageID: pid, factory: dataFactory}
	}
}

func recordToBytes(r Record, size int) []byte {
	buf := make([]byte, size)
	r.Save(buf)
	return buf
}

// insertSorted returns all with rec inserted at its sorted position,
// ordered by rec's own Compare semantics against each existing record's
// encoded bytes.
func insertSorted(all []Record, rec Record, recSize int) []Record {
	pos := len(all)
	for i, r := range all {
		if rec.Compare(recordToBytes(r, recSize)) < 0 {
			pos = i
			break
		}
	}
	out := make([]Record, 0, len(all)+1)
	out = append(out, all[:pos]...)
	out = append(out, rec)
	out = append(out, all[pos:]...)
	return out
}

func drainAsc(tr *Tree) []Record {
	var all []Record
	c := tr.Asc()
	for {
		r, ok := c.Next()
		if !ok {
			break
		}
		all = append(all, r)
	}
	return all
}

func buildLeaf(recs []Record, recSize int, factory RecordFactory) *Tree {
	tr := NewEmptyTree(recSize, factory)
	for _, r := range recs {
		tr.Insert(r)
	}
	return tr
}

// Insert adds rec to the file, splitting the affected leaf page (and, if
// the file is still single-page, promoting the root to a directory) when
// the leaf's node budget is exhausted.
func (f *File) Insert(rec Record) error {
	kind, tr, err := f.loadTree(f.root)
	if err != nil {
		return err
	}
	if kind == kindLeaf {
		if err := tr.Insert(rec); err != nil {
			if err == errTreeFull {
				return f.splitRootLeaf(tr, rec)
			}
			return err
		}
		return f.saveTree(f.root, kindLeaf, tr)
	}
	return f.insertIntoDirectory(tr, rec)
}

func (f *File) splitRootLeaf(tr *Tree, rec Record) error {
	all := insertSorted(drainAsc(tr), rec, f.recSize)
	mid := len(all) / 2
	leftRecs, rightRecs := all[:mid], all[mid:]

	leftPage, err := f.access.AllocPage()
	if err != nil {
		return err
	}
	rightPage, err := f.access.AllocPage()
	if err != nil {
		return err
	}
	if err := f.saveTree(leftPage, kindLeaf, buildLeaf(leftRecs, f.recSize, f.factory)); err != nil {
		return err
	}
	if err := f.saveTree(rightPage, kindLeaf, buildLeaf(rightRecs, f.recSize, f.factory)); err != nil {
		return err
	}

	dir := NewEmptyTree(f.dirRecSize, f.dirFactory)
	if err := dir.Insert(dirRecord{keyBytes: recordToBytes(leftRecs[0], f.recSize), pageID: leftPage, factory: f.factory}); err != nil {
		return err
	}
	if err := dir.Insert(dirRecord{keyBytes: recordToBytes(rightRecs[0], f.recSize), pageID: rightPage, factory: f.factory}); err != nil {
		return err
	}
	return f.saveTree(f.root, kindDir, dir)
}

// boundaryFor finds the directory entry whose leaf page should contain
// key: the entry with the greatest key not exceeding it, or the very
// first entry if key precedes all of them.
func (f *File) boundaryFor(dir *Tree, key Record) (dirRecord, bool) {
	if d, ok := dir.Floor(key); ok {
		return d.(dirRecord), true
	}
	c := dir.Asc()
	if d, ok := c.Next(); ok {
		return d.(dirRecord), true
	}
	return dirRecord{}, false
}

func (f *File) insertIntoDirectory(dir *Tree, rec Record) error {
	bnd, ok := f.boundaryFor(dir, rec)
	if !ok {
		return errTreeFull
	}
	_, leaf, err := f.loadTree(bnd.pageID)
	if err != nil {
		return err
	}
	if err := leaf.Insert(rec); err != nil {
		if err == errTreeFull {
			return f.splitLeaf(dir, bnd, leaf, rec)
		}
		return err
	}
	return f.saveTree(bnd.pageID, kindLeaf, leaf)
}

func (f *File) splitLeaf(dir *Tree, bnd dirRecord, leaf *Tree, rec Record) error {
	all := insertSorted(drainAsc(leaf), rec, f.recSize)
	mid := len(all) / 2
	leftRecs, rightRecs := all[:mid], all[mid:]

	if err := f.saveTree(bnd.pageID, kindLeaf, buildLeaf(leftRecs, f.recSize, f.factory)); err != nil {
		return err
	}
	rightPage, err := f.access.AllocPage()
	if err != nil {
		return err
	}
	if err := f.saveTree(rightPage, kindLeaf, buildLeaf(rightRecs, f.recSize, f.factory)); err != nil {
		return err
	}

	dir.Remove(f.factory(bnd.keyBytes))
	if err := dir.Insert(dirRecord{keyBytes: recordToBytes(leftRecs[0], f.recSize), pageID: bnd.pageID, factory: f.factory}); err != nil {
		return err
	}
	if err := dir.Insert(dirRecord{keyBytes: recordToBytes(rightRecs[0], f.recSize), pageID: rightPage, factory: f.factory}); err != nil {
		return err
	}
	return f.saveTree(f.root, kindDir, dir)
}

// Get looks up the record matching key.
func (f *File) Get(key Record) (Record, bool, error) {
	kind, tr, err := f.loadTree(f.root)
	if err != nil {
		return nil, false, err
	}
	if kind == kindLeaf {
		rec, ok := tr.Get(key)
		return rec, ok, nil
	}
	bnd, ok := f.boundaryFor(tr, key)
	if !ok {
		return nil, false, nil
	}
	_, leaf, err := f.loadTree(bnd.pageID)
	if err != nil {
		return nil, false, err
	}
	rec, ok := leaf.Get(key)
	return rec, ok, nil
}

// Remove deletes the record matching key, if present. Leaves that become
// empty are left in place rather than merged or reclaimed: an acceptable
// simplification at the directory depth this file supports (see File's
// doc comment).
func (f *File) Remove(key Record) (bool, error) {
	kind, tr, err := f.loadTree(f.root)
	if err != nil {
		return false, err
	}
	if kind == kindLeaf {
		removed := tr.Remove(key)
		if removed {
			if err := f.saveTree(f.root, kindLeaf, tr); err != nil {
				return false, err
			}
		}
		return removed, nil
	}
	bnd, ok := f.boundaryFor(tr, key)
	if !ok {
		return false, nil
	}
	_, leaf, err := f.loadTree(bnd.pageID)
	if err != nil {
		return false, err
	}
	removed := leaf.Remove(key)
	if removed {
		if err := f.saveTree(bnd.pageID, kindLeaf, leaf); err != nil {
			return false, err
		}
	}
	return removed, nil
}

// FileCursor walks a File's records in order, chaining each leaf page's
// own Cursor in directory order.
type FileCursor struct {
	cursors []*Cursor
	idx     int
}

func (fc *FileCursor) Next() (Record, bool) {
	for fc.idx < len(fc.cursors) {
		if r, ok := fc.cursors[fc.idx].Next(); ok {
			return r, true
		}
		fc.idx++
	}
	return nil, false
}

// Asc returns a cursor over every record in ascending key order.
func (f *File) Asc() (*FileCursor, error) {
	kind, tr, err := f.loadTree(f.root)
	if err != nil {
		return nil, err
	}
	if kind == kindLeaf {
		return &FileCursor{cursors: []*Cursor{tr.Asc()}}, nil
	}
	var cursors []*Cursor
	c := tr.Asc()
	for {
		d, ok := c.Next()
		if !ok {
			break
		}
		_, leaf, err := f.loadTree(d.(dirRecord).pageID)
		if err != nil {
			return nil, err
		}
		cursors = append(cursors, leaf.Asc())
	}
	return &FileCursor{cursors: cursors}, nil
}

// Dsc returns a cursor over every record in descending key order.
func (f *File) Dsc() (*FileCursor, error) {
	kind, tr, err := f.loadTree(f.root)
	if err != nil {
		return nil, err
	}
	if kind == kindLeaf {
		return &FileCursor{cursors: []*Cursor{tr.Dsc()}}, nil
	}
	var cursors []*Cursor
	c := tr.Dsc()
	for {
		d, ok := c.Next()
		if !ok {
			break
		}
		_, leaf, err := f.loadTree(d.(dirRecord).pageID)
		if err != nil {
			return nil, err
		}
		cursors = append(cursors, leaf.Dsc())
	}
	return &FileCursor{cursors: cursors}, nil
}
