package lifecycle

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/vecshelf/lifecycle/model"
	"github.com/vecshelf/lifecycle/segment"
)

// buildIndexLoop promotes RAW files past the row-count threshold to
// TO_INDEX, then dispatches every TO_INDEX file to the bounded
// build-index worker pool (spec 4.2: "Triggered on a longer timer and
// on explicit CreateIndex calls").
func (s *Scheduler) buildIndexLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.BuildIndexInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runBuildIndexPass(ctx)
		case <-s.buildWake:
			s.runBuildIndexPass(ctx)
		}
	}
}

func (s *Scheduler) runBuildIndexPass(ctx context.Context) {
	s.promoteToIndex(ctx)

	files, err := s.catalog.FilesToIndex()
	if err != nil {
		s.logger.ErrorContext(ctx, "list files to index failed", "error", err)
		return
	}

	eligible := make([]model.FileSchema, 0, len(files))
	for _, f := range files {
		if s.retries.Blacklisted(f.ID) {
			continue
		}
		eligible = append(eligible, f)
	}
	if len(eligible) == 0 {
		return
	}

	// dispatched tracks, over the bounded slice of this pass's
	// candidates, which positions were actually handed to the worker
	// pool before a stop or context cancellation cut the pass short.
	dispatched := bitset.New(uint(len(eligible)))

dispatchLoop:
	for i, f := range eligible {
		select {
		case <-s.stopCh:
			break dispatchLoop
		default:
		}
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		if err := s.buildSem.Acquire(ctx, 1); err != nil {
			break
		}

		dispatched.Set(uint(i))
		s.buildWG.Add(1)
		go func(f model.FileSchema) {
			defer s.buildWG.Done()
			defer s.buildSem.Release(1)
			s.buildFile(ctx, f)
		}(f)
	}

	s.logger.DebugContext(ctx, "build-index pass dispatched", "candidates", len(eligible), "dispatched", dispatched.Count())
}

// promoteToIndex transitions RAW files with row_count at or above the
// configured threshold to TO_INDEX (spec: "RAW -> TO_INDEX, C2, when
// row_count >= BUILD_INDEX_THRESHOLD").
func (s *Scheduler) promoteToIndex(ctx context.Context) {
	tables, err := s.catalog.AllTables()
	if err != nil {
		s.logger.ErrorContext(ctx, "list tables for build-index promotion failed", "error", err)
		return
	}
	for _, t := range tables {
		raw, err := s.catalog.FilesByType(t.TableID, []model.FileState{model.FileRaw})
		if err != nil {
			s.logger.ErrorContext(ctx, "list raw files failed", "table_id", t.TableID, "error", err)
			continue
		}
		var promote []model.FileSchema
		for _, f := range raw {
			if f.RowCount >= s.cfg.BuildIndexThreshold {
				f.FileType = model.FileToIndex
				promote = append(promote, f)
			}
		}
		if len(promote) == 0 {
			continue
		}
		if err := s.catalog.UpdateFiles(promote); err != nil {
			s.logger.ErrorContext(ctx, "promote raw files to to_index failed", "table_id", t.TableID, "error", err)
		}
	}
}

// buildFile loads f's raw vectors, invokes the external ANN builder,
// writes the resulting index as a new segment, and promotes it
// atomically: new file -> INDEX, source file -> BACKUP (spec 4.2:
// "not TO_DELETE immediately — queries holding the old file finish
// against it; GC TTL will collect it"). Failures increment f's retry
// counter and blacklist it after MaxBuildFailures consecutive
// failures.
func (s *Scheduler) buildFile(ctx context.Context, f model.FileSchema) {
	start := time.Now()

	fail := func(err error) {
		failures, blacklisted := s.retries.RecordFailure(f.ID)
		s.metrics.RecordBuildIndex(time.Since(start), err)
		s.logger.LogBuildIndex(ctx, f.FileID, failures, err)
		if blacklisted {
			s.logger.LogBlacklist(ctx, f.FileID, failures)
		}
	}

	raw, err := segment.Read(s.catalog.VectorPath(f))
	if err != nil {
		fail(fmt.Errorf("build-index: read %s: %w", f.FileID, err))
		return
	}

	table, err := s.catalog.DescribeTable(f.TableID)
	if err != nil {
		fail(fmt.Errorf("build-index: describe table %s: %w", f.TableID, err))
		return
	}

	blob, err := s.builder.Build(ctx, raw.IDs, raw.Vectors, raw.Dim, raw.Metric, []byte(table.EngineParams))
	if err != nil {
		fail(fmt.Errorf("build-index: build %s: %w", f.FileID, err))
		return
	}

	out, err := s.catalog.CreateFile(model.FileSchema{
		TableID:   f.TableID,
		SegmentID: f.SegmentID,
		FileType:  model.FileNewIndex,
		RowCount:  f.RowCount,
		FlushLSN:  f.FlushLSN,
	})
	if err != nil {
		fail(fmt.Errorf("build-index: allocate output file: %w", err))
		return
	}

	vecPath := s.catalog.VectorPath(out)
	if err := segment.Write(vecPath, segment.Data{
		Metric:    table.Metric,
		Dim:       table.Dimension,
		LSN:       f.FlushLSN,
		IDs:       raw.IDs,
		Vectors:   raw.Vectors,
		IndexBlob: blob,
	}); err != nil {
		fail(fmt.Errorf("build-index: write vector file: %w", err))
		return
	}
	idxPath := s.catalog.IndexPath(out)
	if err := segment.WriteIndex(idxPath, blob); err != nil {
		fail(fmt.Errorf("build-index: write index file: %w", err))
		return
	}

	var size int64
	if fi, err := os.Stat(vecPath); err == nil {
		size = fi.Size()
	}
	if fi, err := os.Stat(idxPath); err == nil {
		size += fi.Size()
	}
	out.FileSize = size
	out.FileType = model.FileIndex

	source := f
	source.FileType = model.FileBackup

	if err := s.catalog.UpdateFiles([]model.FileSchema{out, source}); err != nil {
		fail(fmt.Errorf("build-index: promote %s: %w", f.FileID, err))
		return
	}

	s.retries.RecordSuccess(f.ID)
	s.metrics.RecordBuildIndex(time.Since(start), nil)
	s.logger.LogBuildIndex(ctx, f.FileID, 0, nil)
}
