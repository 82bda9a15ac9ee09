// Package query implements top-K nearest-neighbor search (spec
// section 4.4): resolving a table's target set, fanning out a
// per-file kernel scan, and merging the per-file top-K heaps into a
// single ranked result.
package query

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/vecshelf/lifecycle/catalog"
	"github.com/vecshelf/lifecycle/kernel"
	"github.com/vecshelf/lifecycle/memtable"
	"github.com/vecshelf/lifecycle/model"
	"github.com/vecshelf/lifecycle/segment"
)

// Request describes one top-K query (spec 4.4 "Inputs").
type Request struct {
	TableID       string
	PartitionTags []string // empty means "every partition"
	K             int
	NProbe        int // opaque, forwarded only; this executor brute-force scans every serving file
	Query         []float32
	Blacklist     IDSet // vector ids to exclude, nil means none
}

// Executor evaluates queries against the catalog's serving files plus
// the in-memory buffer.
type Executor struct {
	catalog  *catalog.Catalog
	memtable *memtable.Manager
}

// NewExecutor builds a query executor over the given catalog and
// in-memory buffer manager.
func NewExecutor(cat *catalog.Catalog, mem *memtable.Manager) *Executor {
	return &Executor{catalog: cat, memtable: mem}
}

// Search runs one query end to end: resolve targets, load serving
// files, fan out a kernel scan per file plus a scan of the in-memory
// buffer, and merge into a single top-K (spec 4.4 steps 1-6).
func (e *Executor) Search(ctx context.Context, req Request) ([]Result, error) {
	if req.K <= 0 {
		return nil, fmt.Errorf("query: k must be positive, got %d", req.K)
	}

	table, err := e.catalog.DescribeTable(req.TableID)
	if err != nil {
		return nil, err
	}
	if len(req.Query) != table.Dimension {
		return nil, fmt.Errorf("query: dimension mismatch: table %q wants %d, got %d",
			req.TableID, table.Dimension, len(req.Query))
	}

	targets, err := e.resolveTargets(req.TableID, req.PartitionTags)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	var files []model.FileSchema
	for _, t := range targets {
		fs, err := e.catalog.FilesToSearch(t, nil)
		if err != nil {
			return nil, err
		}
		files = append(files, fs...)
	}

	fileIDs := make([]int64, len(files))
	for i, f := range files {
		fileIDs[i] = f.ID
	}
	e.catalog.Ongoing().RefAll(fileIDs)
	defer e.catalog.Ongoing().UnrefAll(fileIDs)

	lists, err := e.searchFiles(ctx, files, table.Metric, req)
	if err != nil {
		return nil, err
	}

	for _, t := range targets {
		ids, vecs := e.memtable.Snapshot(t)
		lists = append(lists, e.scan(ids, vecs, table.Metric, req))
	}

	return mergeTopK(lists, req.K, table.Metric), nil
}

// SearchByFileIDs runs the same per-file scan and merge as Search but
// restricts the candidate set to exactly fileIDs, bypassing partition
// resolution and the in-memory buffer scan. Used by the control
// surface's QueryByFileID operation.
func (e *Executor) SearchByFileIDs(ctx context.Context, req Request, fileIDs []int64) ([]Result, error) {
	if req.K <= 0 {
		return nil, fmt.Errorf("query: k must be positive, got %d", req.K)
	}
	if len(fileIDs) == 0 {
		return nil, nil
	}

	table, err := e.catalog.DescribeTable(req.TableID)
	if err != nil {
		return nil, err
	}
	if len(req.Query) != table.Dimension {
		return nil, fmt.Errorf("query: dimension mismatch: table %q wants %d, got %d",
			req.TableID, table.Dimension, len(req.Query))
	}

	files, err := e.catalog.FilesToSearch(req.TableID, fileIDs)
	if err != nil {
		return nil, err
	}

	e.catalog.Ongoing().RefAll(fileIDs)
	defer e.catalog.Ongoing().UnrefAll(fileIDs)

	lists, err := e.searchFiles(ctx, files, table.Metric, req)
	if err != nil {
		return nil, err
	}
	return mergeTopK(lists, req.K, table.Metric), nil
}

// resolveTargets implements spec 4.4 step 1: the table itself plus
// every partition whose tag matches partitionTags (all partitions, if
// the list is empty). Rejects unknown partition tags.
func (e *Executor) resolveTargets(tableID string, partitionTags []string) ([]string, error) {
	partitions, err := e.catalog.Partitions(tableID)
	if err != nil {
		return nil, err
	}

	targets := []string{tableID}
	if len(partitionTags) == 0 {
		for _, p := range partitions {
			targets = append(targets, p.TableID)
		}
		return targets, nil
	}

	byTag := make(map[string]string, len(partitions))
	for _, p := range partitions {
		byTag[p.PartitionTag] = p.TableID
	}
	for _, tag := range partitionTags {
		tid, ok := byTag[tag]
		if !ok {
			return nil, fmt.Errorf("query: unknown partition tag %q for table %q", tag, tableID)
		}
		targets = append(targets, tid)
	}
	return targets, nil
}

// searchFiles fans out one goroutine per file, bounded to
// min(files, GOMAXPROCS) as spec section 5 specifies for the ephemeral
// per-query pool, and returns each file's best-first result list.
func (e *Executor) searchFiles(ctx context.Context, files []model.FileSchema, metric kernel.Metric, req Request) ([][]Result, error) {
	if len(files) == 0 {
		return nil, nil
	}

	limit := runtime.GOMAXPROCS(0)
	if len(files) < limit {
		limit = len(files)
	}

	lists := make([][]Result, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			d, err := segment.Read(e.catalog.VectorPath(f))
			if err != nil {
				return fmt.Errorf("query: read file %d: %w", f.ID, err)
			}
			lists[i] = e.scan(d.IDs, d.Vectors, metric, req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

// scan brute-force scores every row in (ids, vectors) against the
// query vector using the kernel selected for (metric, dim), honoring
// the blacklist, and returns the best-first top-K (spec 4.4 step 3-4).
func (e *Executor) scan(ids []int64, vectors []float32, metric kernel.Metric, req Request) []Result {
	dim := len(req.Query)
	n := len(ids)
	if n == 0 || dim == 0 {
		return nil
	}

	k := kernel.Select(metric, dim, nil)
	out := make([]float32, n)
	k(req.Query, vectors, n, out)

	h := newTopKHeap(req.K, metric)
	for i, id := range ids {
		if req.Blacklist.Contains(id) {
			continue
		}
		h.Add(Result{ID: id, Distance: out[i]})
	}
	return h.Sorted()
}
