package catalog

import (
	"os"
	"time"

	"github.com/vecshelf/lifecycle/model"
)

// CleanUpShadowFiles physically removes every row left in an
// in-flight state (NEW, NEW_MERGE, NEW_INDEX): files a previous
// process crashed before durably transitioning. Meant to run once at
// startup, before recovery replay begins.
func (c *Catalog) CleanUpShadowFiles() (int, error) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	shadow := []model.FileState{model.FileNew, model.FileNewMerge, model.FileNewIndex}
	var removed int
	for _, st := range shadow {
		rows, err := c.db.Query(`SELECT id, file_id, segment_id, table_id, file_type, file_size, row_count,
			date, engine_type, created_on, updated_time, flush_lsn FROM files WHERE file_type = ?`, st.String())
		if err != nil {
			return removed, newStatus(DBError, "shadow scan: %v", err)
		}
		var files []model.FileSchema
		for rows.Next() {
			var f model.FileSchema
			var typeStr string
			if err := rows.Scan(&f.ID, &f.FileID, &f.SegmentID, &f.TableID, &typeStr, &f.FileSize, &f.RowCount,
				&f.Date, &f.EngineType, &f.CreatedOn, &f.UpdatedTime, &f.FlushLSN); err != nil {
				rows.Close()
				return removed, newStatus(DBError, "shadow scan row: %v", err)
			}
			f.FileType = st
			files = append(files, f)
		}
		rows.Close()

		for _, f := range files {
			_ = os.Remove(c.VectorPath(f))
			_ = os.Remove(c.IndexPath(f))
			if _, err := c.db.Exec(`DELETE FROM files WHERE id = ?`, f.ID); err != nil {
				return removed, newStatus(DBError, "shadow delete row %d: %v", f.ID, err)
			}
			removed++
		}
	}
	return removed, nil
}

// CleanUpFilesWithTTL runs the three-phase GC described in spec 4.1:
// reap expired TO_DELETE/BACKUP files, then empty TO_DELETE tables,
// then prune directories left empty by phase 1.
func (c *Catalog) CleanUpFilesWithTTL(ttl time.Duration) (filesRemoved, tablesRemoved int, err error) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	cutoff := time.Now().Add(-ttl).UnixMicro()

	// Phase 1: reap expired TO_DELETE/BACKUP files not referenced by
	// any in-flight query or builder.
	rows, err := c.db.Query(`SELECT id, file_id, segment_id, table_id, file_type, file_size, row_count,
		date, engine_type, created_on, updated_time, flush_lsn FROM files
		WHERE file_type IN (?, ?) AND updated_time < ?`,
		model.FileToDelete.String(), model.FileBackup.String(), cutoff)
	if err != nil {
		return 0, 0, newStatus(DBError, "gc phase1 scan: %v", err)
	}
	var candidates []model.FileSchema
	for rows.Next() {
		var f model.FileSchema
		var typeStr string
		if err := rows.Scan(&f.ID, &f.FileID, &f.SegmentID, &f.TableID, &typeStr, &f.FileSize, &f.RowCount,
			&f.Date, &f.EngineType, &f.CreatedOn, &f.UpdatedTime, &f.FlushLSN); err != nil {
			rows.Close()
			return 0, 0, newStatus(DBError, "gc phase1 row: %v", err)
		}
		f.FileType, _ = model.ParseFileState(typeStr)
		candidates = append(candidates, f)
	}
	rows.Close()

	referenced := c.ongoing.Snapshot()
	touched := make(map[string]model.FileSchema) // segment dir key -> a representative file
	for _, f := range candidates {
		if referenced.Contains(uint32(f.ID)) { //nolint:gosec // file ids fit uint32 in practice
			continue
		}
		_ = os.Remove(c.VectorPath(f))
		_ = os.Remove(c.IndexPath(f))
		if _, err := c.db.Exec(`DELETE FROM files WHERE id = ?`, f.ID); err != nil {
			return filesRemoved, tablesRemoved, newStatus(DBError, "gc phase1 delete %d: %v", f.ID, err)
		}
		filesRemoved++
		touched[c.SegmentDir(f)] = f
	}

	// Phase 2: drop TO_DELETE table rows and their (now hopefully
	// empty) directories.
	trows, err := c.db.Query(`SELECT table_id FROM tables WHERE state = ?`, model.TableToDelete.String())
	if err != nil {
		return filesRemoved, tablesRemoved, newStatus(DBError, "gc phase2 scan: %v", err)
	}
	var deadTables []string
	for trows.Next() {
		var tid string
		if err := trows.Scan(&tid); err != nil {
			trows.Close()
			return filesRemoved, tablesRemoved, newStatus(DBError, "gc phase2 row: %v", err)
		}
		deadTables = append(deadTables, tid)
	}
	trows.Close()

	for _, tid := range deadTables {
		var remaining int
		if err := c.db.QueryRow(`SELECT COUNT(*) FROM files WHERE table_id = ?`, tid).Scan(&remaining); err != nil {
			return filesRemoved, tablesRemoved, newStatus(DBError, "gc phase2 count: %v", err)
		}
		if remaining > 0 {
			continue
		}
		if _, err := c.db.Exec(`DELETE FROM tables WHERE table_id = ?`, tid); err != nil {
			return filesRemoved, tablesRemoved, newStatus(DBError, "gc phase2 delete %s: %v", tid, err)
		}
		_ = os.RemoveAll(c.TableDir(tid))
		tablesRemoved++
	}

	// Phase 3: for each table/segment directory touched in phase 1,
	// remove it if no files remain under it.
	for dir, f := range touched {
		var remaining int
		if err := c.db.QueryRow(`SELECT COUNT(*) FROM files WHERE table_id = ? AND segment_id = ?`,
			f.TableID, f.SegmentID).Scan(&remaining); err != nil {
			return filesRemoved, tablesRemoved, newStatus(DBError, "gc phase3 count: %v", err)
		}
		if remaining == 0 {
			_ = os.Remove(dir)
		}
	}

	return filesRemoved, tablesRemoved, nil
}
