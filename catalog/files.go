package catalog

import (
	"database/sql"
	"strings"
	"time"

	"github.com/vecshelf/lifecycle/kernel"
	"github.com/vecshelf/lifecycle/model"
)

// CreateFile allocates id and file_id and inserts a new file row.
// The owning table must exist and not be TO_DELETE; dimension,
// engine_type and metric are inherited from it.
func (c *Catalog) CreateFile(f model.FileSchema) (model.FileSchema, error) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	table, err := c.describeTableLocked(f.TableID, false)
	if err != nil {
		return model.FileSchema{}, err
	}

	f.ID = c.generateID()
	f.FileID = c.generateFileID(f.ID)
	now := time.Now().UnixMicro()
	f.CreatedOn = now
	f.UpdatedTime = now
	if f.Date == "" {
		f.Date = time.UnixMicro(now).UTC().Format("20060102")
	}
	f.EngineType = table.EngineType
	f.Dimension = table.Dimension
	f.Metric = table.Metric

	_, err = c.db.Exec(`
		INSERT INTO files(id, file_id, segment_id, table_id, file_type, file_size, row_count,
			date, engine_type, created_on, updated_time, flush_lsn)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.FileID, f.SegmentID, f.TableID, f.FileType.String(), f.FileSize, f.RowCount,
		f.Date, f.EngineType, f.CreatedOn, f.UpdatedTime, f.FlushLSN)
	if err != nil {
		return model.FileSchema{}, newStatus(DBError, "insert file: %v", err)
	}
	return f, nil
}

// UpdateFile persists changes to an existing file row. If the owning
// table is missing or TO_DELETE, the file's state is forced to
// TO_DELETE before persistence, matching spec 4.1.
func (c *Catalog) UpdateFile(f model.FileSchema) error {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	return c.updateFilesLocked([]model.FileSchema{f})
}

// UpdateFiles persists a batch of file rows in a single transaction.
func (c *Catalog) UpdateFiles(files []model.FileSchema) error {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	return c.updateFilesLocked(files)
}

// UpdateFileAndFlushLSN persists f (as UpdateFile does) and advances
// f.TableID's flush_lsn to lsn in the same transaction, so a crash
// between the two can never leave a durably-RAW file whose table's
// flush_lsn wasn't also advanced to cover it (spec 4.3: flush
// "atomically transitions the file to RAW and updates the table's
// flush_lsn"). flush_lsn only moves forward, never backwards, so a
// slow or replayed flush is a safe no-op on the table-row update.
func (c *Catalog) UpdateFileAndFlushLSN(f model.FileSchema, lsn uint64) error {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return newStatus(TransactionFailed, "begin: %v", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixMicro()
	state := f.FileType
	var exists int
	err = tx.QueryRow(`SELECT 1 FROM tables WHERE table_id = ? AND state != ?`,
		f.TableID, model.TableToDelete.String()).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		state = model.FileToDelete
	case err != nil:
		return newStatus(DBError, "check table %q: %v", f.TableID, err)
	}
	if _, err := tx.Exec(`
		UPDATE files SET segment_id = ?, file_type = ?, file_size = ?, row_count = ?,
			updated_time = ?, flush_lsn = ? WHERE id = ?`,
		f.SegmentID, state.String(), f.FileSize, f.RowCount, now, f.FlushLSN, f.ID); err != nil {
		return newStatus(DBError, "update file %d: %v", f.ID, err)
	}
	if _, err := tx.Exec(`UPDATE tables SET flush_lsn = ? WHERE table_id = ? AND flush_lsn < ?`,
		lsn, f.TableID, lsn); err != nil {
		return newStatus(DBError, "update flush_lsn: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return newStatus(TransactionFailed, "commit: %v", err)
	}
	return nil
}

func (c *Catalog) updateFilesLocked(files []model.FileSchema) error {
	if len(files) == 0 {
		return nil
	}
	tx, err := c.db.Begin()
	if err != nil {
		return newStatus(TransactionFailed, "begin: %v", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixMicro()
	for _, f := range files {
		state := f.FileType
		var exists int
		err = tx.QueryRow(`SELECT 1 FROM tables WHERE table_id = ? AND state != ?`,
			f.TableID, model.TableToDelete.String()).Scan(&exists)
		switch {
		case err == sql.ErrNoRows:
			state = model.FileToDelete
		case err != nil:
			return newStatus(DBError, "check table %q: %v", f.TableID, err)
		}
		if _, err := tx.Exec(`
			UPDATE files SET segment_id = ?, file_type = ?, file_size = ?, row_count = ?,
				updated_time = ?, flush_lsn = ? WHERE id = ?`,
			f.SegmentID, state.String(), f.FileSize, f.RowCount, now, f.FlushLSN, f.ID); err != nil {
			return newStatus(DBError, "update file %d: %v", f.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return newStatus(TransactionFailed, "commit: %v", err)
	}
	return nil
}

// FilesToSearch returns files in {RAW, TO_INDEX, INDEX} for tableID.
// An empty ids slice means "all files for the table". Each row is
// denormalized with the owning table's dimension/engine/metric.
func (c *Catalog) FilesToSearch(tableID string, ids []int64) ([]model.FileSchema, error) {
	args := []any{tableID, model.FileRaw.String(), model.FileToIndex.String(), model.FileIndex.String()}
	q := `SELECT f.id, f.file_id, f.segment_id, f.table_id, f.file_type, f.file_size, f.row_count,
		f.date, f.engine_type, f.created_on, f.updated_time, f.flush_lsn, t.dimension, t.metric
		FROM files f JOIN tables t ON t.table_id = f.table_id
		WHERE f.table_id = ? AND f.file_type IN (?, ?, ?)`
	if len(ids) > 0 {
		q += " AND f.id IN (" + placeholders(len(ids)) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	return c.queryFiles(q, args...)
}

// FilesToMerge returns RAW files strictly smaller than the owning
// table's index_file_size, ordered by file_size descending.
func (c *Catalog) FilesToMerge(tableID string) ([]model.FileSchema, error) {
	q := `SELECT f.id, f.file_id, f.segment_id, f.table_id, f.file_type, f.file_size, f.row_count,
		f.date, f.engine_type, f.created_on, f.updated_time, f.flush_lsn, t.dimension, t.metric
		FROM files f JOIN tables t ON t.table_id = f.table_id
		WHERE f.table_id = ? AND f.file_type = ? AND f.file_size < t.index_file_size
		ORDER BY f.file_size DESC`
	return c.queryFiles(q, tableID, model.FileRaw.String())
}

// FilesToIndex returns every TO_INDEX file across all tables.
func (c *Catalog) FilesToIndex() ([]model.FileSchema, error) {
	q := `SELECT f.id, f.file_id, f.segment_id, f.table_id, f.file_type, f.file_size, f.row_count,
		f.date, f.engine_type, f.created_on, f.updated_time, f.flush_lsn, t.dimension, t.metric
		FROM files f JOIN tables t ON t.table_id = f.table_id
		WHERE f.file_type = ?`
	return c.queryFiles(q, model.FileToIndex.String())
}

// FilesByType is a diagnostic enumeration of files in the given states.
func (c *Catalog) FilesByType(tableID string, types []model.FileState) ([]model.FileSchema, error) {
	if len(types) == 0 {
		return nil, nil
	}
	args := []any{tableID}
	q := `SELECT f.id, f.file_id, f.segment_id, f.table_id, f.file_type, f.file_size, f.row_count,
		f.date, f.engine_type, f.created_on, f.updated_time, f.flush_lsn, t.dimension, t.metric
		FROM files f JOIN tables t ON t.table_id = f.table_id
		WHERE f.table_id = ? AND f.file_type IN (` + placeholders(len(types)) + `)`
	for _, ty := range types {
		args = append(args, ty.String())
	}
	return c.queryFiles(q, args...)
}

// Count sums row_count over files in serving states for tableID.
func (c *Catalog) Count(tableID string) (int64, error) {
	row := c.db.QueryRow(`SELECT COALESCE(SUM(row_count), 0) FROM files
		WHERE table_id = ? AND file_type IN (?, ?, ?)`,
		tableID, model.FileRaw.String(), model.FileToIndex.String(), model.FileIndex.String())
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, newStatus(DBError, "count: %v", err)
	}
	return n, nil
}

func (c *Catalog) queryFiles(q string, args ...any) ([]model.FileSchema, error) {
	rows, err := c.db.Query(q, args...)
	if err != nil {
		return nil, newStatus(DBError, "query files: %v", err)
	}
	defer rows.Close()

	var out []model.FileSchema
	for rows.Next() {
		f, err := scanFileRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFileRow(rows *sql.Rows) (model.FileSchema, error) {
	var f model.FileSchema
	var typeStr, metricStr string
	if err := rows.Scan(&f.ID, &f.FileID, &f.SegmentID, &f.TableID, &typeStr, &f.FileSize, &f.RowCount,
		&f.Date, &f.EngineType, &f.CreatedOn, &f.UpdatedTime, &f.FlushLSN, &f.Dimension, &metricStr); err != nil {
		return model.FileSchema{}, newStatus(DBError, "scan file: %v", err)
	}
	state, ok := model.ParseFileState(typeStr)
	if !ok {
		return model.FileSchema{}, newStatus(CorruptFile, "unknown file_type %q", typeStr)
	}
	f.FileType = state
	metric, ok := kernel.ParseMetric(metricStr)
	if !ok {
		return model.FileSchema{}, newStatus(CorruptFile, "unknown metric %q", metricStr)
	}
	f.Metric = metric
	return f, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	sb := strings.Builder{}
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('?')
	}
	return sb.String()
}
