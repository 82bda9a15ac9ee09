package catalog

import (
	"database/sql"
	"strings"
	"time"

	"github.com/vecshelf/lifecycle/kernel"
	"github.com/vecshelf/lifecycle/model"
)

// CreateTable inserts a new table or partition row. Fails with a
// *Status whose Code is AlreadyExist if an active row with the same
// table_id exists, or PendingDelete if the conflicting row is
// TO_DELETE (spec 4.1) — errors.Is(err, ErrTablePendingDelete) and
// errors.Is(err, ErrTableAlreadyExists) both work against either via
// Status.Is. table_id is trimmed before both the lookup and the
// insert, same as OwnerTable/PartitionTag. Partition validity (owner
// exists, is NORMAL, shares dim/metric, no nesting, unique trimmed
// tag) is the caller's responsibility to check before calling — CreateTable itself
// only enforces table_id uniqueness, matching the catalog's role as
// storage, not schema policy.
func (c *Catalog) CreateTable(schema model.TableSchema) (model.TableSchema, error) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	schema.TableID = strings.TrimSpace(schema.TableID)

	existing, err := c.describeTableLocked(schema.TableID, true)
	if err == nil {
		if existing.State == model.TableToDelete {
			return model.TableSchema{}, newStatus(PendingDelete, "table %q is pending delete", schema.TableID)
		}
		return model.TableSchema{}, newStatus(AlreadyExist, "table %q already exists", schema.TableID)
	}

	schema.ID = c.generateID()
	schema.CreatedOn = time.Now().UnixMicro()
	schema.State = model.TableNormal
	if schema.SchemaVersion == 0 {
		schema.SchemaVersion = schemaVersion
	}

	_, err = c.db.Exec(`
		INSERT INTO tables(id, table_id, dimension, index_file_size, engine_type, engine_params,
			metric, created_on, flush_lsn, state, owner_table, partition_tag, schema_version, flag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schema.ID, schema.TableID, schema.Dimension, schema.IndexFileSize, schema.EngineType, schema.EngineParams,
		schema.Metric.String(), schema.CreatedOn, schema.FlushLSN, schema.State.String(),
		strings.TrimSpace(schema.OwnerTable), strings.TrimSpace(schema.PartitionTag), schema.SchemaVersion, schema.Flag)
	if err != nil {
		return model.TableSchema{}, newStatus(DBError, "insert table: %v", err)
	}
	return schema, nil
}

// DropTable soft-deletes a table row (state := TO_DELETE). Idempotent
// against already-deleted rows. If recursive is true, every file
// belonging to the table is also marked TO_DELETE in the same
// transaction.
func (c *Catalog) DropTable(tableID string, recursive bool) error {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return newStatus(TransactionFailed, "begin: %v", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixMicro()
	if _, err := tx.Exec(`UPDATE tables SET state = ? WHERE table_id = ? AND state != ?`,
		model.TableToDelete.String(), tableID, model.TableToDelete.String()); err != nil {
		return newStatus(DBError, "drop table: %v", err)
	}

	if recursive {
		if _, err := tx.Exec(`UPDATE files SET file_type = ?, updated_time = ? WHERE table_id = ? AND file_type != ?`,
			model.FileToDelete.String(), now, tableID, model.FileToDelete.String()); err != nil {
			return newStatus(DBError, "drop table files: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return newStatus(TransactionFailed, "commit: %v", err)
	}
	return nil
}

// UpdateTableFlag overwrites table_id's opaque flag bitfield to flag,
// unconditionally: no existence or state check, matching the original
// catalog's UpdateTableFlag (SqliteMetaImpl::UpdateTableFlag), which
// issues an unqualified UPDATE regardless of whether the row exists.
// A no-op against a nonexistent table_id.
func (c *Catalog) UpdateTableFlag(tableID string, flag int64) error {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	tableID = strings.TrimSpace(tableID)
	if _, err := c.db.Exec(`UPDATE tables SET flag = ? WHERE table_id = ?`, flag, tableID); err != nil {
		return newStatus(DBError, "update flag: %v", err)
	}
	return nil
}

// DescribeTable returns the active (non-TO_DELETE) row for table_id.
func (c *Catalog) DescribeTable(tableID string) (model.TableSchema, error) {
	return c.describeTableLocked(tableID, false)
}

// DescribeTableAny returns table_id's row regardless of state,
// including TO_DELETE. Used by WAL recovery to resolve a table's
// dimension for a table that was dropped after logging inserts but
// before GC removed its row (spec 4.3 recovery must still parse the
// record stream correctly even for a table on its way out).
func (c *Catalog) DescribeTableAny(tableID string) (model.TableSchema, error) {
	return c.describeTableLocked(tableID, true)
}

func (c *Catalog) describeTableLocked(tableID string, includeDeleted bool) (model.TableSchema, error) {
	q := `SELECT id, table_id, dimension, index_file_size, engine_type, engine_params, metric,
		created_on, flush_lsn, state, owner_table, partition_tag, schema_version, flag
		FROM tables WHERE table_id = ?`
	if !includeDeleted {
		q += ` AND state != '` + model.TableToDelete.String() + `'`
	}
	row := c.db.QueryRow(q, tableID)
	return scanTable(row)
}

func scanTable(row *sql.Row) (model.TableSchema, error) {
	var t model.TableSchema
	var metricStr, stateStr string
	if err := row.Scan(&t.ID, &t.TableID, &t.Dimension, &t.IndexFileSize, &t.EngineType, &t.EngineParams,
		&metricStr, &t.CreatedOn, &t.FlushLSN, &stateStr, &t.OwnerTable, &t.PartitionTag, &t.SchemaVersion, &t.Flag); err != nil {
		if err == sql.ErrNoRows {
			return model.TableSchema{}, newStatus(NotFound, "table not found")
		}
		return model.TableSchema{}, newStatus(DBError, "scan table: %v", err)
	}
	metric, ok := kernel.ParseMetric(metricStr)
	if !ok {
		return model.TableSchema{}, newStatus(CorruptFile, "unknown metric %q", metricStr)
	}
	t.Metric = metric
	if stateStr == model.TableToDelete.String() {
		t.State = model.TableToDelete
	} else {
		t.State = model.TableNormal
	}
	return t, nil
}

// HasTable reports whether an active row with the given table_id exists.
func (c *Catalog) HasTable(tableID string) (bool, error) {
	_, err := c.DescribeTable(tableID)
	if err == nil {
		return true, nil
	}
	if s, ok := AsStatus(err); ok && s.Code == NotFound {
		return false, nil
	}
	return false, err
}

// AllTables returns every active table and partition row.
func (c *Catalog) AllTables() ([]model.TableSchema, error) {
	rows, err := c.db.Query(`SELECT id, table_id, dimension, index_file_size, engine_type, engine_params, metric,
		created_on, flush_lsn, state, owner_table, partition_tag, schema_version, flag
		FROM tables WHERE state != ? ORDER BY id`, model.TableToDelete.String())
	if err != nil {
		return nil, newStatus(DBError, "query tables: %v", err)
	}
	defer rows.Close()

	var out []model.TableSchema
	for rows.Next() {
		var t model.TableSchema
		var metricStr, stateStr string
		if err := rows.Scan(&t.ID, &t.TableID, &t.Dimension, &t.IndexFileSize, &t.EngineType, &t.EngineParams,
			&metricStr, &t.CreatedOn, &t.FlushLSN, &stateStr, &t.OwnerTable, &t.PartitionTag, &t.SchemaVersion, &t.Flag); err != nil {
			return nil, newStatus(DBError, "scan table: %v", err)
		}
		metric, ok := kernel.ParseMetric(metricStr)
		if !ok {
			return nil, newStatus(CorruptFile, "unknown metric %q", metricStr)
		}
		t.Metric = metric
		t.State = model.TableNormal
		out = append(out, t)
	}
	return out, rows.Err()
}

// Partitions returns every active partition row owned by ownerTable.
func (c *Catalog) Partitions(ownerTable string) ([]model.TableSchema, error) {
	all, err := c.AllTables()
	if err != nil {
		return nil, err
	}
	var out []model.TableSchema
	for _, t := range all {
		if t.OwnerTable == ownerTable {
			out = append(out, t)
		}
	}
	return out, nil
}
