package db

import (
	"github.com/cairndb/cairn/core/catalog"
	"github.com/cairndb/cairn/core/storage"
)

// defaultOpenOrBootstrap wires Database's writer handle to the real
// core/catalog package: a freshly-created backing file gets the bootstrap
// batch (sys/public schemas, the four system tables), an existing one is
// reopened from its own self-describing sys.Table rows (spec §4.12).
func defaultOpenOrBootstrap(writer *storage.AccessPagedData, fresh bool) (CatalogImpl, error) {
	if fresh {
		return catalog.Bootstrap(writer)
	}
	return catalog.Open(writer)
}
