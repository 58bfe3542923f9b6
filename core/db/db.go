// Package db ties the parser, compiler, catalog, and evaluator together
// into the top-level engine handle a host program opens: core/db.Database
// is what cmd/cairn and internal/server actually hold (spec §4.12/§6.2,
// SPEC_FULL.md §5's "core/db: top-level Database handle").
package db

import (
	"sync"

	"github.com/cairndb/cairn/core/storage"
	"github.com/cairndb/cairn/internal/dsn"
)

// Database is one open Cairn file: the shared paged storage, the system
// catalog built on top of it, and the single persistent writer handle
// RunBatch serialises every mutating batch through (spec §5: one writer,
// many readers).
type Database struct {
	mu      sync.Mutex
	shared  *storage.SharedPagedData
	cat     CatalogImpl
	writer  *storage.AccessPagedData
	closers []func() error
}

// CatalogImpl is the subset of *core/catalog.Catalog the batch runner
// needs, factored as an interface so db_test.go can exercise RunBatch
// against a fake without pulling in the real storage stack.
type CatalogImpl interface {
	DDLExecutor
	RoutineCatalog
}

// Open parses dsn (e.g. "file:/var/cairn/app.db;fsync=true") and opens (or
// bootstraps, if the file is new) a Database over it.
func Open(source string) (*Database, error) {
	d, err := dsn.Parse(source)
	if err != nil {
		return nil, err
	}
	return openAt(d.Path)
}

// OpenMemory opens an ephemeral, in-memory Database (no backing file),
// used by tests.
func OpenMemory() (*Database, error) {
	return build(storage.NewMemDevice(), storage.NewMemDevice())
}

func openAt(path string) (*Database, error) {
	main, err := storage.OpenFileDevice(path, true)
	if err != nil {
		return nil, err
	}
	update, err := storage.OpenFileDevice(path+".wal", true)
	if err != nil {
		return nil, err
	}
	if update.Size() > 0 {
		if err := storage.Recover(main, update); err != nil {
			return nil, err
		}
	}
	return build(main, update)
}

func build(main, update storage.Device) (*Database, error) {
	fresh := main.Size() < storage.HSIZE
	atomic := storage.NewAtomicFile(main, update)
	cf, err := storage.OpenCompactFile(atomic)
	if err != nil {
		return nil, err
	}
	shared := storage.NewSharedPagedData(cf)
	writer := shared.OpenWriter()

	cat, err := openOrBootstrap(writer, fresh)
	if err != nil {
		return nil, err
	}

	db := &Database{shared: shared, cat: cat, writer: writer}
	if c, ok := main.(interface{ Close() error }); ok {
		db.closers = append(db.closers, c.Close)
	}
	if c, ok := update.(interface{ Close() error }); ok {
		db.closers = append(db.closers, c.Close)
	}
	return db, nil
}

// openOrBootstrap is a seam: production wires it to defaultOpenOrBootstrap
// (real core/catalog), tests can replace it with a fake CatalogImpl.
var openOrBootstrap = defaultOpenOrBootstrap

// Close releases any OS-level resources (file handles, advisory locks)
// the Database's devices hold. A Database backed by OpenMemory has
// nothing to release.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	var first error
	for _, c := range db.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
