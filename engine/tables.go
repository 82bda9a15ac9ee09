package engine

import (
	"github.com/vecshelf/lifecycle"
	"github.com/vecshelf/lifecycle/kernel"
	"github.com/vecshelf/lifecycle/model"
)

// TableInfo summarizes a table's schema plus its current file
// population, for the control surface's GetTableInfo operation.
type TableInfo struct {
	model.TableSchema
	RowCount      int64
	RawFiles      int
	ToIndexFiles  int
	IndexFiles    int
	BackupFiles   int
	ToDeleteFiles int
}

// CreateTable creates a new top-level table (spec 4.1 CreateTable).
func (db *DB) CreateTable(tableID string, dim int, metric kernel.Metric, engineType, engineParams string, indexFileSize int64) (model.TableSchema, error) {
	if dim <= 0 {
		return model.TableSchema{}, &lifecycle.ErrInvalidDimension{Dimension: dim}
	}
	schema, err := db.catalog.CreateTable(model.TableSchema{
		TableID:       tableID,
		Dimension:     dim,
		IndexFileSize: indexFileSize,
		EngineType:    engineType,
		EngineParams:  engineParams,
		Metric:        metric,
	})
	return schema, lifecycle.TranslateError(err)
}

// DropTable soft-deletes tableID; recursive also marks its files
// TO_DELETE in the same transaction.
func (db *DB) DropTable(tableID string, recursive bool) error {
	return lifecycle.TranslateError(db.catalog.DropTable(tableID, recursive))
}

// DescribeTable returns tableID's active schema row.
func (db *DB) DescribeTable(tableID string) (model.TableSchema, error) {
	t, err := db.catalog.DescribeTable(tableID)
	return t, lifecycle.TranslateError(err)
}

// HasTable reports whether tableID has an active (non-TO_DELETE) row.
func (db *DB) HasTable(tableID string) (bool, error) {
	ok, err := db.catalog.HasTable(tableID)
	return ok, lifecycle.TranslateError(err)
}

// AllTables returns every active table and partition.
func (db *DB) AllTables() ([]model.TableSchema, error) {
	t, err := db.catalog.AllTables()
	return t, lifecycle.TranslateError(err)
}

// UpdateTableFlag overwrites tableID's opaque flag bitfield.
func (db *DB) UpdateTableFlag(tableID string, flag int64) error {
	return lifecycle.TranslateError(db.catalog.UpdateTableFlag(tableID, flag))
}

// DropAll wipes every table, partition, and file from the database,
// including their on-disk segment directories. Intended for tests and
// full resets, not routine operation.
func (db *DB) DropAll() error {
	return lifecycle.TranslateError(db.catalog.DropAll())
}

// GetTableRowCount sums row_count over tableID's serving files.
func (db *DB) GetTableRowCount(tableID string) (int64, error) {
	n, err := db.catalog.Count(tableID)
	return n, lifecycle.TranslateError(err)
}

// GetTableInfo returns tableID's schema plus its file population by state.
func (db *DB) GetTableInfo(tableID string) (TableInfo, error) {
	schema, err := db.catalog.DescribeTable(tableID)
	if err != nil {
		return TableInfo{}, lifecycle.TranslateError(err)
	}
	rowCount, err := db.catalog.Count(tableID)
	if err != nil {
		return TableInfo{}, lifecycle.TranslateError(err)
	}
	states := []model.FileState{model.FileRaw, model.FileToIndex, model.FileIndex, model.FileBackup, model.FileToDelete}
	files, err := db.catalog.FilesByType(tableID, states)
	if err != nil {
		return TableInfo{}, lifecycle.TranslateError(err)
	}

	info := TableInfo{TableSchema: schema, RowCount: rowCount}
	for _, f := range files {
		switch f.FileType {
		case model.FileRaw:
			info.RawFiles++
		case model.FileToIndex:
			info.ToIndexFiles++
		case model.FileIndex:
			info.IndexFiles++
		case model.FileBackup:
			info.BackupFiles++
		case model.FileToDelete:
			info.ToDeleteFiles++
		}
	}
	return info, nil
}
