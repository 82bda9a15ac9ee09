package catalog

// schemaVersion identifies the DDL shape below. Bumping it without a
// migration path is what triggers IncompatibleMeta on Open.
const schemaVersion = 1

const ddl = `
CREATE TABLE IF NOT EXISTS tables (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	table_id        TEXT NOT NULL,
	dimension       INTEGER NOT NULL,
	index_file_size INTEGER NOT NULL,
	engine_type     TEXT NOT NULL,
	engine_params   TEXT NOT NULL DEFAULT '{}',
	metric          TEXT NOT NULL,
	created_on      INTEGER NOT NULL,
	flush_lsn       INTEGER NOT NULL DEFAULT 0,
	state           TEXT NOT NULL,
	owner_table     TEXT NOT NULL DEFAULT '',
	partition_tag   TEXT NOT NULL DEFAULT '',
	schema_version  INTEGER NOT NULL,
	flag            INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS files (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id       TEXT NOT NULL UNIQUE,
	segment_id    INTEGER NOT NULL,
	table_id      TEXT NOT NULL,
	file_type     TEXT NOT NULL,
	file_size     INTEGER NOT NULL DEFAULT 0,
	row_count     INTEGER NOT NULL DEFAULT 0,
	date          TEXT NOT NULL,
	engine_type   TEXT NOT NULL,
	created_on    INTEGER NOT NULL,
	updated_time  INTEGER NOT NULL,
	flush_lsn     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS environment (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	global_lsn INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS schema_meta (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tables_table_id ON tables(table_id);
CREATE INDEX IF NOT EXISTS idx_tables_owner ON tables(owner_table);
CREATE INDEX IF NOT EXISTS idx_files_table_id ON files(table_id, file_type);
CREATE INDEX IF NOT EXISTS idx_files_segment ON files(table_id, segment_id);
`

// checkSchemaVersion compares the on-disk schema_meta row against
// schemaVersion. An empty database is stamped with the current
// version. Grounded on the original C++ catalog's practice of
// refusing to open a metadata store it cannot recognize
// (SqliteMetaImpl::ValidateMetaSchema) rather than silently
// upgrading or truncating it.
func (c *Catalog) checkSchemaVersion() error {
	row := c.db.QueryRow(`SELECT version FROM schema_meta WHERE id = 1`)
	var v int
	err := row.Scan(&v)
	if err != nil {
		if _, ierr := c.db.Exec(`INSERT INTO schema_meta(id, version) VALUES (1, ?)`, schemaVersion); ierr != nil {
			return newStatus(DBError, "stamp schema version: %v", ierr)
		}
		return nil
	}
	if v != schemaVersion {
		return newStatus(IncompatibleMeta, "on-disk schema version %d != runtime version %d", v, schemaVersion)
	}
	return nil
}
