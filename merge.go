package lifecycle

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vecshelf/lifecycle/model"
	"github.com/vecshelf/lifecycle/segment"
)

// mergeLoop packs small RAW files into larger ones, triggered by a
// timer and by NotifyMerge (spec 4.2: "Triggered by a timer and by an
// edge-triggered condition variable posted whenever a flush
// completes").
func (s *Scheduler) mergeLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.MergeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runMergePass(ctx, s.allTableIDs())
		case <-s.mergeWake:
			s.runMergePass(ctx, s.drainMergePending())
		}
	}
}

func (s *Scheduler) runMergePass(ctx context.Context, tableIDs []string) {
	for _, tableID := range tableIDs {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.mergeTable(ctx, tableID)
	}
}

// mergeTable implements spec 4.1's compaction step: fetch
// FilesToMerge, and if 2 or more are returned, pack them into the
// smallest number of output segments each of size <= index_file_size,
// writing outputs through segment.Write and promoting atomically
// (inputs -> TO_DELETE, outputs -> RAW) in one catalog transaction.
func (s *Scheduler) mergeTable(ctx context.Context, tableID string) {
	unlock := s.LockTable(tableID)
	defer unlock()

	start := time.Now()
	files, err := s.catalog.FilesToMerge(tableID)
	if err != nil {
		s.metrics.RecordMerge(0, 0, time.Since(start), err)
		s.logger.LogMerge(ctx, tableID, 0, 0, err)
		return
	}
	if len(files) < 2 {
		return
	}

	table, err := s.catalog.DescribeTable(tableID)
	if err != nil {
		s.metrics.RecordMerge(len(files), 0, time.Since(start), err)
		s.logger.LogMerge(ctx, tableID, len(files), 0, err)
		return
	}

	bins := packBins(files, table.IndexFileSize)

	batch := make([]model.FileSchema, 0, len(files)+len(bins))
	outputCount := 0
	for _, bin := range bins {
		select {
		case <-s.stopCh:
			return // cancellable at a safepoint: between output segments
		default:
		}

		out, err := s.mergeBin(tableID, table, bin)
		if err != nil {
			s.metrics.RecordMerge(len(files), outputCount, time.Since(start), err)
			s.logger.LogMerge(ctx, tableID, len(files), outputCount, err)
			return
		}
		batch = append(batch, out)
		outputCount++
		for _, f := range bin {
			f.FileType = model.FileToDelete
			batch = append(batch, f)
		}
	}

	if err := s.catalog.UpdateFiles(batch); err != nil {
		s.metrics.RecordMerge(len(files), outputCount, time.Since(start), err)
		s.logger.LogMerge(ctx, tableID, len(files), outputCount, err)
		return
	}

	s.metrics.RecordMerge(len(files), outputCount, time.Since(start), nil)
	s.logger.LogMerge(ctx, tableID, len(files), outputCount, nil)
	s.TriggerBuildIndex()
}

// mergeBin reads every file in bin, concatenates their rows, and
// writes the result as a new NEW_MERGE segment, returning the row
// with FileType left as RAW (the caller batches it into the same
// transaction that soft-deletes the inputs).
func (s *Scheduler) mergeBin(tableID string, table model.TableSchema, bin []model.FileSchema) (model.FileSchema, error) {
	var ids []int64
	var vectors []float32
	var maxLSN uint64
	var rowCount int64
	for _, f := range bin {
		d, err := segment.Read(s.catalog.VectorPath(f))
		if err != nil {
			return model.FileSchema{}, fmt.Errorf("merge: read %s: %w", f.FileID, err)
		}
		ids = append(ids, d.IDs...)
		vectors = append(vectors, d.Vectors...)
		if d.LSN > maxLSN {
			maxLSN = d.LSN
		}
		rowCount += f.RowCount
	}

	out, err := s.catalog.CreateFile(model.FileSchema{
		TableID:   tableID,
		SegmentID: newSegmentID(),
		FileType:  model.FileNewMerge,
		RowCount:  rowCount,
		FlushLSN:  maxLSN,
	})
	if err != nil {
		return model.FileSchema{}, fmt.Errorf("merge: allocate output file: %w", err)
	}

	path := s.catalog.VectorPath(out)
	if err := segment.Write(path, segment.Data{
		Metric:  table.Metric,
		Dim:     table.Dimension,
		LSN:     maxLSN,
		IDs:     ids,
		Vectors: vectors,
	}); err != nil {
		return model.FileSchema{}, fmt.Errorf("merge: write output segment: %w", err)
	}

	if fi, err := os.Stat(path); err == nil {
		out.FileSize = fi.Size()
	}
	out.FileType = model.FileRaw
	return out, nil
}

// packBins performs first-fit-decreasing bin packing of files
// (already ordered largest-first by FilesToMerge) into the smallest
// number of bins whose summed FileSize does not exceed capacity.
func packBins(files []model.FileSchema, capacity int64) [][]model.FileSchema {
	var bins [][]model.FileSchema
	var used []int64
	for _, f := range files {
		placed := false
		for i := range bins {
			if used[i]+f.FileSize <= capacity {
				bins[i] = append(bins[i], f)
				used[i] += f.FileSize
				placed = true
				break
			}
		}
		if !placed {
			bins = append(bins, []model.FileSchema{f})
			used = append(used, f.FileSize)
		}
	}
	return bins
}

// newSegmentID mints a fresh grouping id for a newly written segment,
// using the same time-shard scheme as the catalog's file_id.
func newSegmentID() int64 {
	return time.Now().UnixNano()
}
