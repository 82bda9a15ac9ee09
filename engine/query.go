package engine

import (
	"context"
	"time"

	"github.com/vecshelf/lifecycle/query"
)

// Query runs a top-K search against tableID, unioning the caller's
// req.Blacklist (if any) with this engine's own delete-tracking
// blacklist so a deleted id can never surface in results, whether or
// not the file holding it has since been merged.
func (db *DB) Query(ctx context.Context, req query.Request) ([]query.Result, error) {
	start := time.Now()
	req.Blacklist = db.blacklist(req.TableID).Union(req.Blacklist)

	results, err := db.executor.Search(ctx, req)
	db.metrics.RecordQuery(req.K, len(results), time.Since(start), err)
	db.logger.LogQuery(ctx, req.TableID, req.K, 0, len(results), err)
	return results, err
}

// QueryByID looks up id's own vector and queries with it, excluding
// id itself from the result set. Grounded on the common ANN-service
// idiom of "find neighbors of an existing point": the point is never
// its own neighbor, so this engine drops it rather than surfacing a
// zero-distance self-match the caller would just filter out anyway.
func (db *DB) QueryByID(ctx context.Context, tableID, tag string, id int64, k, nprobe int, partitionTags []string) ([]query.Result, error) {
	vec, err := db.GetVectorByID(ctx, tableID, tag, id)
	if err != nil {
		return nil, err
	}
	target, err := db.resolveTarget(tableID, tag)
	if err != nil {
		return nil, err
	}
	self := query.NewIDSet(id)

	results, err := db.Query(ctx, query.Request{
		TableID:       target.TableID,
		PartitionTags: partitionTags,
		K:             k,
		NProbe:        nprobe,
		Query:         vec,
		Blacklist:     self,
	})
	return results, err
}

// QueryByFileID restricts a top-K search to a single, caller-named
// file, bypassing partition resolution and the in-memory buffer scan.
func (db *DB) QueryByFileID(ctx context.Context, tableID string, fileID int64, req query.Request) ([]query.Result, error) {
	start := time.Now()
	req.TableID = tableID
	req.Blacklist = db.blacklist(tableID).Union(req.Blacklist)

	results, err := db.executor.SearchByFileIDs(ctx, req, []int64{fileID})
	db.metrics.RecordQuery(req.K, len(results), time.Since(start), err)
	db.logger.LogQuery(ctx, tableID, req.K, 1, len(results), err)
	return results, err
}
