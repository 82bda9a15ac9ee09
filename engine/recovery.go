package engine

import (
	"context"
	"fmt"

	"github.com/vecshelf/lifecycle/wal"
)

// recover replays db.wal into the in-memory buffers and delete
// blacklists, then seeds the WAL's LSN counter and the catalog's
// global LSN so a subsequent Append continues the sequence without a
// gap (spec 4.3 "Recovery"). Called once, from Open, before the
// scheduler starts.
func (db *DB) recover(ctx context.Context) error {
	flushLSN := make(map[string]uint64)
	tableFlushLSN := func(tableID string) uint64 {
		if lsn, ok := flushLSN[tableID]; ok {
			return lsn
		}
		t, err := db.catalog.DescribeTableAny(tableID)
		if err != nil {
			flushLSN[tableID] = 0
			return 0
		}
		flushLSN[tableID] = t.FlushLSN
		return t.FlushLSN
	}
	dimFor := func(tableID string) int {
		t, err := db.catalog.DescribeTableAny(tableID)
		if err != nil {
			return 0
		}
		return t.Dimension
	}

	var maxLSN uint64
	replayed := 0

	err := wal.Replay(db.wal.Path(), dimFor, func(rec wal.Record) error {
		if rec.LSN > maxLSN {
			maxLSN = rec.LSN
		}
		switch rec.Op {
		case wal.OpFlushMark:
			return nil
		case wal.OpInsert:
			// Replay is idempotent w.r.t. flush_lsn: a record already
			// covered by the table's durable flush_lsn was already
			// materialized into a RAW file and must not be re-applied.
			if rec.LSN <= tableFlushLSN(rec.TableID) {
				return nil
			}
			seg := db.activeSegment(rec.TableID)
			for i, id := range rec.IDs {
				vec := rec.Vectors[i*rec.Dim : (i+1)*rec.Dim]
				db.mem.Append(rec.TableID, seg, rec.Dim, id, vec)
			}
			db.recordLSN(rec.TableID, rec.LSN)
			replayed++
		case wal.OpDelete:
			if rec.LSN <= tableFlushLSN(rec.TableID) {
				return nil
			}
			db.markDeleted(rec.TableID, rec.IDs)
			db.recordLSN(rec.TableID, rec.LSN)
			replayed++
		}
		return nil
	})
	if err != nil {
		db.logger.LogRecovery(ctx, "*", replayed, err)
		return fmt.Errorf("replay: %w", err)
	}

	if global, gerr := db.catalog.GetGlobalLastLSN(); gerr == nil && global > maxLSN {
		maxLSN = global
	}
	db.wal.SetLastLSN(maxLSN)
	if err := db.catalog.SetGlobalLastLSN(maxLSN); err != nil {
		return fmt.Errorf("persist recovered lsn: %w", err)
	}

	db.logger.LogRecovery(ctx, "*", replayed, nil)

	if replayed == 0 {
		return nil
	}
	// Get recovered buffers onto durable storage immediately rather
	// than leaving them exposed to a second crash before the next
	// natural flush trigger.
	if err := db.FlushAll(); err != nil {
		return fmt.Errorf("flush recovered buffers: %w", err)
	}
	return nil
}
