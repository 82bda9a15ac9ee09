package lifecycle

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecshelf/lifecycle/ann"
	"github.com/vecshelf/lifecycle/catalog"
	"github.com/vecshelf/lifecycle/kernel"
	"github.com/vecshelf/lifecycle/model"
	"github.com/vecshelf/lifecycle/segment"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newTestScheduler(t *testing.T, cat *catalog.Catalog, cfgFns ...Option) *Scheduler {
	t.Helper()
	cfg := DefaultConfig()
	for _, fn := range cfgFns {
		fn(&cfg)
	}
	return NewScheduler(cat, ann.FlatBuilder{}, cfg)
}

func writeRawFile(t *testing.T, c *catalog.Catalog, tableID string, ids []int64, vecs []float32, dim int) model.FileSchema {
	t.Helper()
	f, err := c.CreateFile(model.FileSchema{TableID: tableID, FileType: model.FileRaw, RowCount: int64(len(ids))})
	require.NoError(t, err)
	path := c.VectorPath(f)
	require.NoError(t, segment.Write(path, segment.Data{
		Metric:  f.Metric,
		Dim:     dim,
		IDs:     ids,
		Vectors: vecs,
	}))
	fi, err := os.Stat(path)
	require.NoError(t, err)
	f.FileSize = fi.Size()
	require.NoError(t, c.UpdateFile(f))
	return f
}

func TestMergeTablePacksSmallFilesIntoOne(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t", Dimension: 2, IndexFileSize: 1 << 20, EngineType: "flat", Metric: kernel.L2})
	require.NoError(t, err)

	writeRawFile(t, c, "t", []int64{1, 2}, []float32{0, 0, 1, 1}, 2)
	writeRawFile(t, c, "t", []int64{3, 4}, []float32{2, 2, 3, 3}, 2)

	s := newTestScheduler(t, c)
	s.mergeTable(context.Background(), "t")

	raw, err := c.FilesByType("t", []model.FileState{model.FileRaw})
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.EqualValues(t, 4, raw[0].RowCount)

	deleted, err := c.FilesByType("t", []model.FileState{model.FileToDelete})
	require.NoError(t, err)
	assert.Len(t, deleted, 2)

	d, err := segment.Read(c.VectorPath(raw[0]))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, d.IDs)
}

func TestMergeTableSkipsWhenFewerThanTwoFiles(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t", Dimension: 2, IndexFileSize: 1 << 20, EngineType: "flat", Metric: kernel.L2})
	require.NoError(t, err)
	writeRawFile(t, c, "t", []int64{1}, []float32{0, 0}, 2)

	s := newTestScheduler(t, c)
	s.mergeTable(context.Background(), "t")

	raw, err := c.FilesByType("t", []model.FileState{model.FileRaw})
	require.NoError(t, err)
	assert.Len(t, raw, 1)
}

func TestMergeTableRespectsIndexFileSizeWhenPacking(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t", Dimension: 2, IndexFileSize: 128, EngineType: "flat", Metric: kernel.L2})
	require.NoError(t, err)

	writeRawFile(t, c, "t", []int64{1, 2}, []float32{0, 0, 1, 1}, 2)
	writeRawFile(t, c, "t", []int64{3, 4}, []float32{2, 2, 3, 3}, 2)

	s := newTestScheduler(t, c)
	s.mergeTable(context.Background(), "t")

	raw, err := c.FilesByType("t", []model.FileState{model.FileRaw})
	require.NoError(t, err)
	assert.Len(t, raw, 2, "each output segment must stay within index_file_size, forcing two outputs")
}

func TestBuildFilePromotesRawToIndexAndBackup(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t", Dimension: 2, IndexFileSize: 1 << 20, EngineType: "flat", Metric: kernel.L2})
	require.NoError(t, err)
	f := writeRawFile(t, c, "t", []int64{1, 2}, []float32{0, 0, 1, 1}, 2)

	s := newTestScheduler(t, c)
	s.buildFile(context.Background(), f)

	backup, err := c.FilesByType("t", []model.FileState{model.FileBackup})
	require.NoError(t, err)
	require.Len(t, backup, 1)
	assert.Equal(t, f.ID, backup[0].ID)

	indexed, err := c.FilesByType("t", []model.FileState{model.FileIndex})
	require.NoError(t, err)
	require.Len(t, indexed, 1)
	assert.True(t, indexed[0].FileSize > 0)

	blob, err := segment.ReadIndex(c.IndexPath(indexed[0]))
	require.NoError(t, err)
	assert.NotEmpty(t, blob)
}

func TestBuildFileBlacklistsAfterMaxFailures(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t", Dimension: 2, IndexFileSize: 1 << 20, EngineType: "flat", Metric: kernel.L2})
	require.NoError(t, err)
	f, err := c.CreateFile(model.FileSchema{TableID: "t", FileType: model.FileToIndex, RowCount: 2})
	require.NoError(t, err)
	// Deliberately never write the .vec file, so segment.Read always fails.

	s := newTestScheduler(t, c, WithMaxBuildFailures(2))
	s.buildFile(context.Background(), f)
	assert.False(t, s.retries.Blacklisted(f.ID))
	s.buildFile(context.Background(), f)
	assert.True(t, s.retries.Blacklisted(f.ID))
}

func TestPromoteToIndexHonorsThreshold(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t", Dimension: 2, IndexFileSize: 1 << 20, EngineType: "flat", Metric: kernel.L2})
	require.NoError(t, err)
	writeRawFile(t, c, "t", []int64{1, 2, 3}, []float32{0, 0, 1, 1, 2, 2}, 2)

	s := newTestScheduler(t, c, WithBuildIndexThreshold(3))
	s.promoteToIndex(context.Background())

	toIndex, err := c.FilesByType("t", []model.FileState{model.FileToIndex})
	require.NoError(t, err)
	assert.Len(t, toIndex, 1)
}

func TestSchedulerNotifyMergeCoalescesPendingTables(t *testing.T) {
	c := newTestCatalog(t)
	s := newTestScheduler(t, c)

	s.NotifyMerge("a")
	s.NotifyMerge("a")
	s.NotifyMerge("b")

	pending := s.drainMergePending()
	assert.ElementsMatch(t, []string{"a", "b"}, pending)
	assert.Empty(t, s.drainMergePending())
}

func TestSchedulerStartStopJoinsCleanly(t *testing.T) {
	c := newTestCatalog(t)
	s := newTestScheduler(t, c, WithBackgroundIntervals(10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond))

	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	// Stop is idempotent.
	s.Stop()
}

func TestPackBinsFirstFitDecreasing(t *testing.T) {
	files := []model.FileSchema{
		{ID: 1, FileSize: 80},
		{ID: 2, FileSize: 60},
		{ID: 3, FileSize: 30},
	}
	bins := packBins(files, 100)
	require.Len(t, bins, 2)
	assert.Equal(t, int64(1), bins[0][0].ID)
	assert.Equal(t, int64(2), bins[1][0].ID)
	assert.Equal(t, int64(3), bins[1][1].ID)
}

func TestRetryTrackerBlacklistsAfterMaxTries(t *testing.T) {
	rt := newRetryTracker(3)
	assert.False(t, rt.Blacklisted(1))

	_, bl := rt.RecordFailure(1)
	assert.False(t, bl)
	_, bl = rt.RecordFailure(1)
	assert.False(t, bl)
	_, bl = rt.RecordFailure(1)
	assert.True(t, bl)
	assert.True(t, rt.Blacklisted(1))

	rt.RecordSuccess(1)
	assert.False(t, rt.Blacklisted(1))
}
