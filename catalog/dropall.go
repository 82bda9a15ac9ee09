package catalog

import (
	"os"
	"path/filepath"
)

// DropAll wipes every table, partition, and file row from the
// catalog, leaving the schema itself in place (grounded on the
// original catalog's DropAll, SqliteMetaImpl::DropAll, which drops
// the tables and files SQL tables wholesale rather than filtering by
// state). Physical segment directories under root are also removed,
// since a metadata-only wipe would otherwise strand every vector file
// on disk with no catalog row to GC it. Intended for test teardown
// and full-database resets, not routine use.
func (c *Catalog) DropAll() error {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return newStatus(TransactionFailed, "begin: %v", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM files`); err != nil {
		return newStatus(DBError, "drop all: files: %v", err)
	}
	if _, err := tx.Exec(`DELETE FROM tables`); err != nil {
		return newStatus(DBError, "drop all: tables: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return newStatus(TransactionFailed, "commit: %v", err)
	}

	if c.root != ":memory:" {
		tablesRoot := filepath.Join(c.root, "tables")
		entries, err := os.ReadDir(tablesRoot)
		if err != nil {
			return newStatus(DBError, "drop all: read tables dir: %v", err)
		}
		for _, e := range entries {
			_ = os.RemoveAll(filepath.Join(tablesRoot, e.Name()))
		}
	}
	return nil
}
