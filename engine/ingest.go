package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/vecshelf/lifecycle"
	"github.com/vecshelf/lifecycle/wal"
)

// InsertVectors resolves (tableID, tag) to a concrete table, validates
// dimension, assigns any missing ids, appends a WAL(INSERT) record
// ahead of updating the in-memory buffer, and triggers a flush if the
// table's buffer has crossed BufferSize (spec 4.3 "Ingest"). Returns
// the ids actually stored, in the same order as vectors.
func (db *DB) InsertVectors(ctx context.Context, tableID, tag string, ids []int64, vectors []float32) ([]int64, error) {
	start := time.Now()
	target, err := db.resolveTarget(tableID, tag)
	if err != nil {
		db.metrics.RecordInsert(0, time.Since(start), err)
		return nil, err
	}
	dim := target.Dimension

	var rowCount int
	switch {
	case len(ids) > 0:
		rowCount = len(ids)
		if len(vectors) != rowCount*dim {
			err := &lifecycle.ErrDimensionMismatch{TableID: target.TableID, Expected: rowCount * dim, Actual: len(vectors)}
			db.metrics.RecordInsert(0, time.Since(start), err)
			return nil, err
		}
	case dim > 0 && len(vectors)%dim == 0:
		rowCount = len(vectors) / dim
		ids = make([]int64, rowCount)
		for i := range ids {
			ids[i] = db.nextID()
		}
	default:
		err := &lifecycle.ErrDimensionMismatch{TableID: target.TableID, Expected: dim, Actual: len(vectors)}
		db.metrics.RecordInsert(0, time.Since(start), err)
		return nil, err
	}

	if db.wal != nil {
		lsn, err := db.wal.Append(wal.Record{Op: wal.OpInsert, TableID: target.TableID, Dim: dim, IDs: ids, Vectors: vectors})
		if err != nil {
			db.metrics.RecordInsert(0, time.Since(start), err)
			return nil, fmt.Errorf("engine: wal append: %w", err)
		}
		db.recordLSN(target.TableID, lsn)
	}

	seg := db.activeSegment(target.TableID)
	for i, id := range ids {
		vec := vectors[i*dim : (i+1)*dim]
		db.mem.Append(target.TableID, seg, dim, id, vec)
	}
	db.unmarkDeleted(target.TableID, ids)

	db.metrics.RecordInsert(rowCount, time.Since(start), nil)
	db.logger.WithTable(target.TableID).InfoContext(ctx, "insert accepted", "rows", rowCount)

	if db.mem.TableBytes(target.TableID) >= db.cfg.BufferSize {
		if err := db.Flush(ctx, target.TableID); err != nil {
			db.logger.ErrorContext(ctx, "threshold-triggered flush failed", "table_id", target.TableID, "error", err)
		}
	}
	return ids, nil
}

// DeleteVector marks a single vector id deleted (spec: DeleteVector).
func (db *DB) DeleteVector(ctx context.Context, tableID, tag string, id int64) error {
	return db.DeleteVectors(ctx, tableID, tag, []int64{id})
}

// DeleteVectors appends a WAL(DELETE) record and adds ids to the
// table's delete blacklist, honored by every subsequent Query and
// GetVectorByID call. Deletion does not rewrite the underlying
// segment rows, and a merge copies them into its output unchanged;
// only the blacklist keeps them out of results.
func (db *DB) DeleteVectors(ctx context.Context, tableID, tag string, ids []int64) error {
	target, err := db.resolveTarget(tableID, tag)
	if err != nil {
		return err
	}
	if db.wal != nil {
		lsn, err := db.wal.Append(wal.Record{Op: wal.OpDelete, TableID: target.TableID, IDs: ids})
		if err != nil {
			return fmt.Errorf("engine: wal append delete: %w", err)
		}
		db.recordLSN(target.TableID, lsn)
	}
	db.markDeleted(target.TableID, ids)
	db.logger.WithTable(target.TableID).InfoContext(ctx, "delete accepted", "rows", len(ids))
	return nil
}

// GetVectorByID returns the exact vector stored under id, checking
// the in-memory buffer first and then every serving segment file.
// Returns NOT_FOUND if id was never inserted or has since been
// deleted.
func (db *DB) GetVectorByID(ctx context.Context, tableID, tag string, id int64) ([]float32, error) {
	target, err := db.resolveTarget(tableID, tag)
	if err != nil {
		return nil, err
	}
	if db.isDeleted(target.TableID, id) {
		return nil, fmt.Errorf("engine: vector %d in table %q: %w", id, target.TableID, errNotFound)
	}

	if ids, vecs := db.mem.Snapshot(target.TableID); len(ids) > 0 {
		if v, ok := lookupRow(ids, vecs, target.Dimension, id); ok {
			return v, nil
		}
	}

	return db.scanFilesForID(ctx, target.TableID, id)
}
