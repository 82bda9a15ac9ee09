package catalog

import (
	"database/sql"
	"fmt"
	"time"
)

// seedGenerator initializes the monotonic id counter from the highest
// row id already persisted, so a restarted process never reissues an
// id handed out before it crashed.
func (c *Catalog) seedGenerator() error {
	var maxTable, maxFile sql.NullInt64
	if err := c.db.QueryRow(`SELECT MAX(id) FROM tables`).Scan(&maxTable); err != nil {
		return newStatus(DBError, "seed generator (tables): %v", err)
	}
	if err := c.db.QueryRow(`SELECT MAX(id) FROM files`).Scan(&maxFile); err != nil {
		return newStatus(DBError, "seed generator (files): %v", err)
	}
	c.nextGen = maxTable.Int64
	if maxFile.Int64 > c.nextGen {
		c.nextGen = maxFile.Int64
	}
	return nil
}

// generateID hands out the next process-global monotonic id, guarded
// by genMu so concurrent allocations never collide (spec: genid_mutex).
func (c *Catalog) generateID() int64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	c.nextGen++
	return c.nextGen
}

// generateFileID derives the human-readable file_id from the
// allocated numeric id and the current time, matching the
// timestamp-shard scheme used to bucket segment directories on disk.
func (c *Catalog) generateFileID(id int64) string {
	return fmt.Sprintf("%d_%d", time.Now().UnixMicro(), id)
}
