package catalog

import (
	"database/sql"
	"errors"
)

// SetGlobalLastLSN upserts the environment row's global_lsn. The stored
// value never moves backwards: an lsn lower than the one already
// stored leaves the row unchanged.
func (c *Catalog) SetGlobalLastLSN(lsn uint64) error {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	_, err := c.db.Exec(`
		INSERT INTO environment(id, global_lsn) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET global_lsn = excluded.global_lsn
		WHERE excluded.global_lsn > environment.global_lsn`, lsn)
	if err != nil {
		return newStatus(DBError, "set global lsn: %v", err)
	}
	return nil
}

// GetGlobalLastLSN returns the highest LSN durably applied across the
// process's lifetime. Returns 0 if no row has been written yet.
func (c *Catalog) GetGlobalLastLSN() (uint64, error) {
	row := c.db.QueryRow(`SELECT global_lsn FROM environment WHERE id = 1`)
	var lsn uint64
	if err := row.Scan(&lsn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, newStatus(DBError, "get global lsn: %v", err)
	}
	return lsn, nil
}
