package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/vecshelf/lifecycle/segment"
)

// errNotFound is wrapped into every GetVectorByID miss so callers can
// branch with errors.Is regardless of which layer produced it.
var errNotFound = errors.New("engine: vector not found")

// lookupRow scans a flat (ids, vectors) pair for id and returns a copy
// of its row, so the caller never aliases memtable-owned storage.
func lookupRow(ids []int64, vectors []float32, dim int, id int64) ([]float32, bool) {
	for i, candidate := range ids {
		if candidate != id {
			continue
		}
		row := make([]float32, dim)
		copy(row, vectors[i*dim:(i+1)*dim])
		return row, true
	}
	return nil, false
}

// scanFilesForID walks tableID's serving files looking for id,
// stopping at the first match. Grounded on the query executor's own
// per-file fan-out, but linear rather than concurrent since a point
// lookup by id has no top-K merge to parallelize.
func (db *DB) scanFilesForID(ctx context.Context, tableID string, id int64) ([]float32, error) {
	files, err := db.catalog.FilesToSearch(tableID, nil)
	if err != nil {
		return nil, err
	}
	fileIDs := make([]int64, len(files))
	for i, f := range files {
		fileIDs[i] = f.ID
	}
	db.catalog.Ongoing().RefAll(fileIDs)
	defer db.catalog.Ongoing().UnrefAll(fileIDs)

	for _, f := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		data, err := segment.Read(db.catalog.VectorPath(f))
		if err != nil {
			return nil, fmt.Errorf("engine: read %s: %w", f.FileID, err)
		}
		if v, ok := lookupRow(data.IDs, data.Vectors, data.Dim, id); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("engine: vector %d in table %q: %w", id, tableID, errNotFound)
}
