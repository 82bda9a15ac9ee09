package engine

import (
	"context"
	"os"
	"time"

	"github.com/vecshelf/lifecycle"
	"github.com/vecshelf/lifecycle/model"
	"github.com/vecshelf/lifecycle/segment"
)

// Flush drains tableID's in-memory buffer, if non-empty, into a new
// durable RAW segment (spec 4.3 "Flush"): create a NEW file via the
// catalog, write it via the segment package, then atomically
// transition it to RAW and advance the table's flush_lsn, finally
// notifying the merge loop. Held under the same flush_merge_compact
// lock the scheduler's merge pass uses, so a flush never races a
// merge of the same table.
func (db *DB) Flush(ctx context.Context, tableID string) error {
	unlock := db.scheduler.LockTable(tableID)
	defer unlock()

	start := time.Now()
	buffers := db.mem.Drain(tableID)
	if len(buffers) == 0 {
		return nil
	}
	db.rotateSegment(tableID)

	table, err := db.catalog.DescribeTable(tableID)
	if err != nil {
		db.metrics.RecordFlush(0, time.Since(start), err)
		return lifecycle.TranslateError(err)
	}

	var ids []int64
	var vectors []float32
	rowCount := 0
	for _, b := range buffers {
		ids = append(ids, b.IDs...)
		vectors = append(vectors, b.Vectors...)
		rowCount += b.RowCount()
	}
	lsn := db.currentLSN(tableID)

	f, err := db.catalog.CreateFile(model.FileSchema{
		TableID:  tableID,
		FileType: model.FileNew,
		RowCount: int64(rowCount),
		FlushLSN: lsn,
	})
	if err != nil {
		db.metrics.RecordFlush(rowCount, time.Since(start), err)
		db.logger.LogFlush(ctx, tableID, rowCount, lsn, err)
		return lifecycle.TranslateError(err)
	}

	path := db.catalog.VectorPath(f)
	writeErr := segment.Write(path, segment.Data{
		Metric:  table.Metric,
		Dim:     table.Dimension,
		LSN:     lsn,
		IDs:     ids,
		Vectors: vectors,
	})
	if writeErr != nil {
		f.FileType = model.FileToDelete
		_ = db.catalog.UpdateFile(f)
		db.metrics.RecordFlush(rowCount, time.Since(start), writeErr)
		db.logger.LogFlush(ctx, tableID, rowCount, lsn, writeErr)
		return writeErr
	}

	if fi, err := os.Stat(path); err == nil {
		f.FileSize = fi.Size()
	}
	f.FileType = model.FileRaw
	if err := db.catalog.UpdateFileAndFlushLSN(f, lsn); err != nil {
		db.metrics.RecordFlush(rowCount, time.Since(start), err)
		db.logger.LogFlush(ctx, tableID, rowCount, lsn, err)
		return lifecycle.TranslateError(err)
	}

	db.metrics.RecordFlush(rowCount, time.Since(start), nil)
	db.logger.LogFlush(ctx, tableID, rowCount, lsn, nil)
	db.scheduler.NotifyMerge(tableID)
	return nil
}

// FlushAll flushes every active table's buffer, realizing the control
// surface's argument-less Flush().
func (db *DB) FlushAll() error {
	tables, err := db.catalog.AllTables()
	if err != nil {
		return lifecycle.TranslateError(err)
	}
	ctx := context.Background()
	var firstErr error
	for _, t := range tables {
		if err := db.Flush(ctx, t.TableID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Compact posts tableID to the merge loop's coalesced notify channel
// and returns without waiting for the merge pass to run (Design Note
// 9's decision (c): Compact is asynchronous, and a subsequent Flush
// acts as a barrier).
func (db *DB) Compact(tableID string) {
	db.scheduler.NotifyMerge(tableID)
}

// flushLoop is the timer-driven flush trigger from spec 4.3.
func (db *DB) flushLoop(stopCh <-chan struct{}) {
	if db.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(db.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			_ = db.FlushAll()
		}
	}
}
