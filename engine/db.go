// Package engine wires the catalog, WAL, in-memory buffers, query
// executor and lifecycle scheduler into the control surface described
// in spec section 6: table/partition management, vector ingest,
// flush/compact, index management and top-K query. DB is the single
// entry point; every exported method corresponds to one operation of
// that surface.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vecshelf/lifecycle"
	"github.com/vecshelf/lifecycle/ann"
	"github.com/vecshelf/lifecycle/catalog"
	"github.com/vecshelf/lifecycle/memtable"
	"github.com/vecshelf/lifecycle/model"
	"github.com/vecshelf/lifecycle/query"
	"github.com/vecshelf/lifecycle/segment"
	"github.com/vecshelf/lifecycle/wal"
)

// DB is the process-local handle over one data root. Grounded on the
// teacher's own top-level Vecgo struct: a thin composition root over
// the packages that do the actual work, holding no algorithmic logic
// of its own beyond wiring and locking discipline.
type DB struct {
	catalog   *catalog.Catalog
	wal       *wal.WAL // nil when cfg.WALEnable is false
	mem       *memtable.Manager
	executor  *query.Executor
	scheduler *lifecycle.Scheduler
	cfg       lifecycle.Config
	logger    *lifecycle.Logger
	metrics   lifecycle.MetricsCollector

	schedCtx    context.Context
	schedCancel context.CancelFunc

	flushStopCh chan struct{}
	flushWG     sync.WaitGroup

	segMu    sync.Mutex
	segments map[string]int64 // table_id -> its currently active memtable segment_id

	lsnMu    sync.Mutex
	tableLSN map[string]uint64 // table_id -> highest WAL lsn appended for it so far

	delMu   sync.Mutex
	deletes map[string]query.IDSet // table_id -> blacklist of deleted vector ids

	idSeq atomic.Int64 // vector id generator, used only when the caller omits ids

	closeOnce sync.Once
}

// Open opens (creating if absent) the catalog and WAL under
// cfg.Path, replays any WAL records not yet durable in a RAW file,
// flushes the recovered state immediately, and starts the lifecycle
// scheduler's background loops. builder is the ANN index builder
// passed through to the scheduler; a nil builder defaults to
// ann.FlatBuilder{}.
func Open(cfg lifecycle.Config, builder ann.Builder) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("engine: open: Config.Path is required")
	}
	if builder == nil {
		builder = ann.FlatBuilder{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = lifecycle.NoopLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = lifecycle.NoopMetricsCollector{}
	}

	cat, err := catalog.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("engine: open catalog: %w", err)
	}

	if _, err := cat.CleanUpShadowFiles(); err != nil {
		cat.Close()
		return nil, fmt.Errorf("engine: clean up shadow files: %w", err)
	}

	mem := memtable.NewManager()

	db := &DB{
		catalog:  cat,
		mem:      mem,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		segments: make(map[string]int64),
		tableLSN: make(map[string]uint64),
		deletes:  make(map[string]query.IDSet),
	}
	db.idSeq.Store(time.Now().UnixNano())

	if cfg.WALEnable {
		w, err := wal.Open(cfg.Path, 0)
		if err != nil {
			cat.Close()
			return nil, fmt.Errorf("engine: open wal: %w", err)
		}
		db.wal = w

		if err := db.recover(context.Background()); err != nil {
			w.Close()
			cat.Close()
			return nil, fmt.Errorf("engine: recover: %w", err)
		}
	}

	db.executor = query.NewExecutor(cat, mem)
	db.scheduler = lifecycle.NewScheduler(cat, builder, cfg)
	db.schedCtx, db.schedCancel = context.WithCancel(context.Background())
	db.scheduler.Start(db.schedCtx)

	db.flushStopCh = make(chan struct{})
	db.flushWG.Add(1)
	go func() {
		defer db.flushWG.Done()
		db.flushLoop(db.flushStopCh)
	}()

	return db, nil
}

// Close stops the background scheduler, flushes every table's
// in-memory buffer so no acknowledged mutation is left durable only
// in the WAL's redundant copy, and releases the catalog and WAL
// handles.
func (db *DB) Close() error {
	var err error
	db.closeOnce.Do(func() {
		if db.flushStopCh != nil {
			close(db.flushStopCh)
			db.flushWG.Wait()
		}
		db.schedCancel()
		db.scheduler.Stop()

		if ferr := db.FlushAll(); ferr != nil && err == nil {
			err = ferr
		}
		if db.wal != nil {
			if werr := db.wal.Close(); werr != nil && err == nil {
				err = werr
			}
		}
		if cerr := db.catalog.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

// Size returns the aggregate on-disk byte size of tableID's serving
// files (RAW, TO_INDEX, INDEX), grounded on the FileSize bookkeeping
// the catalog already tracks per segment.
func (db *DB) Size(tableID string) (int64, error) {
	files, err := db.catalog.FilesToSearch(tableID, nil)
	if err != nil {
		return 0, lifecycle.TranslateError(err)
	}
	var total int64
	for _, f := range files {
		total += f.FileSize
	}
	return total, nil
}

// PreloadTable warms the OS page cache for tableID's serving files by
// reading each one in full and discarding the result, grounded on the
// teacher's blobstore.CachingStore block-cache warm path.
func (db *DB) PreloadTable(tableID string) error {
	files, err := db.catalog.FilesToSearch(tableID, nil)
	if err != nil {
		return lifecycle.TranslateError(err)
	}
	fileIDs := make([]int64, len(files))
	for i, f := range files {
		fileIDs[i] = f.ID
	}
	db.catalog.Ongoing().RefAll(fileIDs)
	defer db.catalog.Ongoing().UnrefAll(fileIDs)

	for _, f := range files {
		if _, err := segment.Read(db.catalog.VectorPath(f)); err != nil {
			return fmt.Errorf("engine: preload %s: %w", f.FileID, err)
		}
	}
	return nil
}

// activeSegment returns tableID's currently open memtable segment id,
// minting a fresh one on first use. Grounded on the lifecycle
// package's own newSegmentID time-shard scheme.
func (db *DB) activeSegment(tableID string) int64 {
	db.segMu.Lock()
	defer db.segMu.Unlock()
	seg, ok := db.segments[tableID]
	if !ok {
		seg = time.Now().UnixNano()
		db.segments[tableID] = seg
	}
	return seg
}

// rotateSegment discards tableID's active segment id so the next
// insert opens a fresh one, called after a flush drains the buffer
// out from under it.
func (db *DB) rotateSegment(tableID string) {
	db.segMu.Lock()
	defer db.segMu.Unlock()
	delete(db.segments, tableID)
}

// recordLSN tracks the highest WAL lsn seen for tableID, consulted by
// Flush when it advances the table's durable flush_lsn.
func (db *DB) recordLSN(tableID string, lsn uint64) {
	db.lsnMu.Lock()
	defer db.lsnMu.Unlock()
	if lsn > db.tableLSN[tableID] {
		db.tableLSN[tableID] = lsn
	}
}

func (db *DB) currentLSN(tableID string) uint64 {
	db.lsnMu.Lock()
	defer db.lsnMu.Unlock()
	return db.tableLSN[tableID]
}

// blacklist returns tableID's delete blacklist, creating an empty one
// on first use.
func (db *DB) blacklist(tableID string) query.IDSet {
	db.delMu.Lock()
	defer db.delMu.Unlock()
	s, ok := db.deletes[tableID]
	if !ok {
		s = query.IDSet{}
		db.deletes[tableID] = s
	}
	return s
}

func (db *DB) markDeleted(tableID string, ids []int64) {
	db.delMu.Lock()
	defer db.delMu.Unlock()
	s, ok := db.deletes[tableID]
	if !ok {
		s = query.IDSet{}
		db.deletes[tableID] = s
	}
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// unmarkDeleted clears ids from tableID's delete blacklist, called on
// re-insert so a reused id isn't shadowed by a stale delete record.
func (db *DB) unmarkDeleted(tableID string, ids []int64) {
	db.delMu.Lock()
	defer db.delMu.Unlock()
	s, ok := db.deletes[tableID]
	if !ok {
		return
	}
	for _, id := range ids {
		delete(s, id)
	}
}

func (db *DB) isDeleted(tableID string, id int64) bool {
	db.delMu.Lock()
	defer db.delMu.Unlock()
	return db.deletes[tableID].Contains(id)
}

// resolveTarget maps (tableID, tag) onto the concrete table_id to
// operate on: tableID itself when tag is empty, or the partition
// table_id whose trimmed tag matches otherwise. Spec 4.3: "the client
// must pre-create" the partition; a missing tag is NOT_FOUND, not an
// implicit create.
func (db *DB) resolveTarget(tableID, tag string) (model.TableSchema, error) {
	if tag == "" {
		t, err := db.catalog.DescribeTable(tableID)
		return t, lifecycle.TranslateError(err)
	}
	partitions, err := db.catalog.Partitions(tableID)
	if err != nil {
		return model.TableSchema{}, lifecycle.TranslateError(err)
	}
	trimmed := trimTag(tag)
	for _, p := range partitions {
		if trimTag(p.PartitionTag) == trimmed {
			return p, nil
		}
	}
	return model.TableSchema{}, fmt.Errorf("engine: partition %q of table %q not found", tag, tableID)
}

// nextID mints a vector id when the caller doesn't supply one. Spec
// 4.3 leaves id assignment unspecified beyond "client-supplied or
// generated"; this engine uses a process-local monotonic counter
// seeded from wall-clock time at Open, the same time-shard idea the
// catalog uses for file_id.
func (db *DB) nextID() int64 {
	return db.idSeq.Add(1)
}
