package engine

import (
	"github.com/vecshelf/lifecycle"
	"github.com/vecshelf/lifecycle/model"
)

// IndexInfo summarizes tableID's current build-index state, used by
// DescribeIndex.
type IndexInfo struct {
	TableID      string
	IndexFiles   int
	ToIndexFiles int
	Building     bool
}

// CreateIndex promotes every RAW file of tableID to TO_INDEX
// regardless of BuildIndexThreshold, then wakes the build-index loop.
// The threshold governs the loop's own automatic promotion pass
// (spec 4.2); this method is the surface's explicit override of it.
func (db *DB) CreateIndex(tableID string) error {
	raw, err := db.catalog.FilesByType(tableID, []model.FileState{model.FileRaw})
	if err != nil {
		return lifecycle.TranslateError(err)
	}
	if len(raw) == 0 {
		return nil
	}
	for i := range raw {
		raw[i].FileType = model.FileToIndex
	}
	if err := db.catalog.UpdateFiles(raw); err != nil {
		return lifecycle.TranslateError(err)
	}
	db.scheduler.TriggerBuildIndex()
	return nil
}

// DescribeIndex reports how many of tableID's files are indexed or
// pending index build.
func (db *DB) DescribeIndex(tableID string) (IndexInfo, error) {
	indexed, err := db.catalog.FilesByType(tableID, []model.FileState{model.FileIndex})
	if err != nil {
		return IndexInfo{}, lifecycle.TranslateError(err)
	}
	pending, err := db.catalog.FilesByType(tableID, []model.FileState{model.FileToIndex})
	if err != nil {
		return IndexInfo{}, lifecycle.TranslateError(err)
	}
	return IndexInfo{
		TableID:      tableID,
		IndexFiles:   len(indexed),
		ToIndexFiles: len(pending),
		Building:     len(pending) > 0,
	}, nil
}

// DropIndex demotes every INDEX file of tableID back to RAW in a
// single catalog transaction. Spec 3's file lifecycle names an
// INDEX -> BACKUP -> RAW path for the case a build is superseded
// mid-flight; a caller-driven drop has no superseding build to hand
// off to, so this collapses the two hops into one atomic update
// rather than parking the files in BACKUP only to immediately GC-scan
// them out again.
func (db *DB) DropIndex(tableID string) error {
	indexed, err := db.catalog.FilesByType(tableID, []model.FileState{model.FileIndex})
	if err != nil {
		return lifecycle.TranslateError(err)
	}
	if len(indexed) == 0 {
		return nil
	}
	for i := range indexed {
		indexed[i].FileType = model.FileRaw
	}
	return lifecycle.TranslateError(db.catalog.UpdateFiles(indexed))
}
