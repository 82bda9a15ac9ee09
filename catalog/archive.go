package catalog

import (
	"database/sql"
	"time"

	"github.com/vecshelf/lifecycle/model"
)

// ArchivePolicy configures Archive's soft-delete criteria. Both
// policies may be active together; a file matching either is
// soft-deleted at most once.
type ArchivePolicy struct {
	// DisableDays, when false, soft-deletes serving files created
	// more than Days ago.
	DisableDays bool
	Days        int

	// DisableDisk, when false, soft-deletes the oldest serving files,
	// oldest-first discard order, until total serving size <= DiskGB.
	DisableDisk bool
	DiskGB      float64
}

// archiveBatchSize is how many of the oldest serving files Archive's disk
// policy soft-deletes per iteration. A single Archive() call repeats
// iterations, holding metaMu throughout, until the total serving size is
// within the limit or no serving files remain.
const archiveBatchSize = 10

// Archive applies the configured retention policies, soft-deleting
// (state := TO_DELETE) files that violate them (spec 4.1).
func (c *Catalog) Archive(policy ArchivePolicy) error {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	if !policy.DisableDays {
		if err := c.archiveByDaysLocked(policy.Days); err != nil {
			return err
		}
	}
	if !policy.DisableDisk {
		if err := c.archiveByDiskLocked(policy.DiskGB); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) archiveByDaysLocked(days int) error {
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixMicro()
	_, err := c.db.Exec(`
		UPDATE files SET file_type = ?, updated_time = ?
		WHERE file_type IN (?, ?, ?) AND created_on < ?`,
		model.FileToDelete.String(), time.Now().UnixMicro(),
		model.FileRaw.String(), model.FileToIndex.String(), model.FileIndex.String(), cutoff)
	if err != nil {
		return newStatus(DBError, "archive by days: %v", err)
	}
	return nil
}

func (c *Catalog) archiveByDiskLocked(limitGB float64) error {
	limitBytes := int64(limitGB * (1 << 30))

	for {
		var total sql.NullInt64
		if err := c.db.QueryRow(`SELECT SUM(file_size) FROM files WHERE file_type IN (?, ?, ?)`,
			model.FileRaw.String(), model.FileToIndex.String(), model.FileIndex.String()).Scan(&total); err != nil {
			return newStatus(DBError, "archive by disk: sum: %v", err)
		}
		if total.Int64 <= limitBytes {
			return nil
		}

		rows, err := c.db.Query(`SELECT id FROM files WHERE file_type IN (?, ?, ?)
			ORDER BY created_on ASC LIMIT ?`,
			model.FileRaw.String(), model.FileToIndex.String(), model.FileIndex.String(), archiveBatchSize)
		if err != nil {
			return newStatus(DBError, "archive by disk: select: %v", err)
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return newStatus(DBError, "archive by disk: scan: %v", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if len(ids) == 0 {
			return nil
		}

		now := time.Now().UnixMicro()
		for _, id := range ids {
			if _, err := c.db.Exec(`UPDATE files SET file_type = ?, updated_time = ? WHERE id = ?`,
				model.FileToDelete.String(), now, id); err != nil {
				return newStatus(DBError, "archive by disk: update: %v", err)
			}
		}
	}
}
