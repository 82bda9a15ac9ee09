// Package catalog is the single source of truth for table schemas and
// file states: the metadata catalog (spec section 4.1). It is backed
// by an embedded relational store (SQLite) with WAL journaling, and
// serializes all mutating operations behind a single coarse mutex —
// simpler than reasoning about savepoint isolation under concurrent
// writers.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" //nolint:revive // driver registration
)

// Catalog is the embedded-store-backed metadata catalog.
type Catalog struct {
	db   *sql.DB
	root string // data root; holds meta.sqlite and tables/

	// metaMu serializes every mutating operation (spec: meta_mutex).
	// Read operations do not take it.
	metaMu sync.Mutex

	genMu   sync.Mutex // spec: genid_mutex
	nextGen int64

	ongoing *OngoingFiles
}

// Open opens (creating if absent) the catalog database under root and
// validates its schema. root may be ":memory:" for tests, in which
// case no on-disk directory tree is created.
func Open(root string) (*Catalog, error) {
	dsn := root
	inMemory := root == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Join(root, "tables"), 0o750); err != nil {
			return nil, fmt.Errorf("catalog: mkdir root: %w", err)
		}
		dsn = filepath.Join(root, "meta.sqlite")
	}

	db, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_foreign_keys=off")
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	// SQLite serializes writers internally; a single connection avoids
	// SQLITE_BUSY under our own coarse metaMu anyway, and keeps
	// :memory: catalogs from being invisible across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}

	c := &Catalog{db: db, root: root, ongoing: newOngoingFiles()}

	if err := c.checkSchemaVersion(); err != nil {
		db.Close()
		return nil, err
	}
	if err := c.seedGenerator(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Ongoing returns the process-wide ongoing-file reference set.
func (c *Catalog) Ongoing() *OngoingFiles {
	return c.ongoing
}
