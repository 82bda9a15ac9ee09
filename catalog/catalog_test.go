package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vecshelf/lifecycle/kernel"
	"github.com/vecshelf/lifecycle/model"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCreateTableThenAlreadyExist(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 8, IndexFileSize: 1 << 20, EngineType: "flat", Metric: kernel.L2})
	require.NoError(t, err)

	_, err = c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 8, Metric: kernel.L2})
	s, ok := AsStatus(err)
	require.True(t, ok)
	assert.Equal(t, AlreadyExist, s.Code)
}

func TestCreateTableTrimsTableIDWhitespace(t *testing.T) {
	c := openTest(t)
	created, err := c.CreateTable(model.TableSchema{TableID: "  t1  ", Dimension: 8, Metric: kernel.L2})
	require.NoError(t, err)
	assert.Equal(t, "t1", created.TableID)

	_, err = c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 8, Metric: kernel.L2})
	s, ok := AsStatus(err)
	require.True(t, ok)
	assert.Equal(t, AlreadyExist, s.Code)

	_, err = c.CreateTable(model.TableSchema{TableID: " t1", Dimension: 8, Metric: kernel.L2})
	s, ok = AsStatus(err)
	require.True(t, ok)
	assert.Equal(t, AlreadyExist, s.Code)
}

func TestStatusSentinelsSatisfyErrorsIs(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 8, Metric: kernel.L2})
	require.NoError(t, err)

	_, err = c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 8, Metric: kernel.L2})
	assert.True(t, errors.Is(err, ErrTableAlreadyExists))
	assert.False(t, errors.Is(err, ErrTablePendingDelete))

	require.NoError(t, c.DropTable("t1", false))
	_, err = c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 8, Metric: kernel.L2})
	assert.True(t, errors.Is(err, ErrTablePendingDelete))

	_, err = c.DescribeTable("does-not-exist")
	assert.True(t, errors.Is(err, ErrTableNotFound))
}

func TestUpdateTableFlagOverwritesUnconditionally(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 8, Metric: kernel.L2})
	require.NoError(t, err)

	require.NoError(t, c.UpdateTableFlag("t1", 3))
	got, err := c.DescribeTable("t1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, got.Flag)

	// No existence check: a nonexistent table_id is a silent no-op.
	require.NoError(t, c.UpdateTableFlag("does-not-exist", 1))
}

func TestDropAllWipesTablesAndFiles(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 4, Metric: kernel.L2})
	require.NoError(t, err)
	_, err = c.CreateFile(model.FileSchema{TableID: "t1", SegmentID: 1, FileType: model.FileRaw})
	require.NoError(t, err)

	require.NoError(t, c.DropAll())

	all, err := c.AllTables()
	require.NoError(t, err)
	assert.Empty(t, all)

	files, err := c.FilesByType("t1", []model.FileState{model.FileRaw})
	require.NoError(t, err)
	assert.Empty(t, files)

	// The catalog itself still works afterward.
	_, err = c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 4, Metric: kernel.L2})
	require.NoError(t, err)
}

func TestDropTablePendingDelete(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 8, Metric: kernel.L2})
	require.NoError(t, err)
	require.NoError(t, c.DropTable("t1", false))

	_, err = c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 8, Metric: kernel.L2})
	s, ok := AsStatus(err)
	require.True(t, ok)
	assert.Equal(t, PendingDelete, s.Code)

	has, err := c.HasTable("t1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDropTableIsIdempotent(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 8, Metric: kernel.L2})
	require.NoError(t, err)
	require.NoError(t, c.DropTable("t1", false))
	require.NoError(t, c.DropTable("t1", false))
}

func TestAllTablesExcludesDeleted(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 8, Metric: kernel.L2})
	require.NoError(t, err)
	_, err = c.CreateTable(model.TableSchema{TableID: "t2", Dimension: 8, Metric: kernel.L2})
	require.NoError(t, err)
	require.NoError(t, c.DropTable("t2", false))

	all, err := c.AllTables()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "t1", all[0].TableID)
}

func TestCreateFileInheritsFromTable(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 16, EngineType: "flat", Metric: kernel.InnerProduct})
	require.NoError(t, err)

	f, err := c.CreateFile(model.FileSchema{TableID: "t1", SegmentID: 1, FileType: model.FileNew})
	require.NoError(t, err)
	assert.Equal(t, 16, f.Dimension)
	assert.Equal(t, "flat", f.EngineType)
	assert.Equal(t, kernel.InnerProduct, f.Metric)
	assert.NotEmpty(t, f.FileID)
	assert.NotZero(t, f.ID)
}

func TestCreateFileUniqueIDs(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 4, Metric: kernel.L2})
	require.NoError(t, err)

	seen := map[int64]bool{}
	seenFileID := map[string]bool{}
	for i := 0; i < 20; i++ {
		f, err := c.CreateFile(model.FileSchema{TableID: "t1", SegmentID: 1, FileType: model.FileNew})
		require.NoError(t, err)
		assert.False(t, seen[f.ID])
		assert.False(t, seenFileID[f.FileID])
		seen[f.ID] = true
		seenFileID[f.FileID] = true
	}
}

func TestUpdateFileForcesDeleteWhenTableGone(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 4, Metric: kernel.L2})
	require.NoError(t, err)
	f, err := c.CreateFile(model.FileSchema{TableID: "t1", SegmentID: 1, FileType: model.FileNew})
	require.NoError(t, err)
	require.NoError(t, c.DropTable("t1", false))

	f.FileType = model.FileRaw
	require.NoError(t, c.UpdateFile(f))

	files, err := c.FilesByType("t1", []model.FileState{model.FileToDelete})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, model.FileToDelete, files[0].FileType)
}

func TestUpdateFileAndFlushLSNCommitsBothTogether(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 4, Metric: kernel.L2})
	require.NoError(t, err)
	f, err := c.CreateFile(model.FileSchema{TableID: "t1", SegmentID: 1, FileType: model.FileNew})
	require.NoError(t, err)

	f.FileType = model.FileRaw
	require.NoError(t, c.UpdateFileAndFlushLSN(f, 42))

	files, err := c.FilesByType("t1", []model.FileState{model.FileRaw})
	require.NoError(t, err)
	require.Len(t, files, 1)

	table, err := c.DescribeTable("t1")
	require.NoError(t, err)
	assert.EqualValues(t, 42, table.FlushLSN)
}

func TestUpdateFileAndFlushLSNForcesDeleteWhenTableGone(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 4, Metric: kernel.L2})
	require.NoError(t, err)
	f, err := c.CreateFile(model.FileSchema{TableID: "t1", SegmentID: 1, FileType: model.FileNew})
	require.NoError(t, err)
	require.NoError(t, c.DropTable("t1", false))

	f.FileType = model.FileRaw
	require.NoError(t, c.UpdateFileAndFlushLSN(f, 1))

	files, err := c.FilesByType("t1", []model.FileState{model.FileToDelete})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, model.FileToDelete, files[0].FileType)
}

func TestFilesToSearchOnlyServingStates(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 4, Metric: kernel.L2})
	require.NoError(t, err)

	states := []model.FileState{model.FileNew, model.FileRaw, model.FileToIndex, model.FileIndex, model.FileToDelete}
	for i, st := range states {
		f, err := c.CreateFile(model.FileSchema{TableID: "t1", SegmentID: int64(i), FileType: st})
		require.NoError(t, err)
		f.FileType = st
		require.NoError(t, c.UpdateFile(f))
	}

	files, err := c.FilesToSearch("t1", nil)
	require.NoError(t, err)
	assert.Len(t, files, 3)
	for _, f := range files {
		assert.True(t, f.FileType.IsServing())
	}
}

func TestFilesToMergeOrderedBySizeDescending(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 4, IndexFileSize: 1000, Metric: kernel.L2})
	require.NoError(t, err)

	sizes := []int64{100, 900, 500}
	for i, sz := range sizes {
		f, err := c.CreateFile(model.FileSchema{TableID: "t1", SegmentID: int64(i), FileType: model.FileRaw})
		require.NoError(t, err)
		f.FileType = model.FileRaw
		f.FileSize = sz
		require.NoError(t, c.UpdateFile(f))
	}

	files, err := c.FilesToMerge("t1")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, []int64{900, 500, 100}, []int64{files[0].FileSize, files[1].FileSize, files[2].FileSize})
}

func TestGlobalLSNMonotonic(t *testing.T) {
	c := openTest(t)
	lsn, err := c.GetGlobalLastLSN()
	require.NoError(t, err)
	assert.Zero(t, lsn)

	require.NoError(t, c.SetGlobalLastLSN(5))
	lsn, err = c.GetGlobalLastLSN()
	require.NoError(t, err)
	assert.EqualValues(t, 5, lsn)

	require.NoError(t, c.SetGlobalLastLSN(9))
	lsn, err = c.GetGlobalLastLSN()
	require.NoError(t, err)
	assert.EqualValues(t, 9, lsn)
}

func TestCleanUpShadowFiles(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 4, Metric: kernel.L2})
	require.NoError(t, err)

	for _, st := range []model.FileState{model.FileNew, model.FileNewMerge, model.FileNewIndex, model.FileRaw} {
		_, err := c.CreateFile(model.FileSchema{TableID: "t1", SegmentID: 1, FileType: st})
		require.NoError(t, err)
	}

	removed, err := c.CleanUpShadowFiles()
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	files, err := c.FilesByType("t1", []model.FileState{model.FileRaw})
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestCleanUpFilesWithTTLSkipsReferenced(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 4, Metric: kernel.L2})
	require.NoError(t, err)
	f, err := c.CreateFile(model.FileSchema{TableID: "t1", SegmentID: 1, FileType: model.FileToDelete})
	require.NoError(t, err)
	_, err = c.db.Exec(`UPDATE files SET updated_time = ? WHERE id = ?`,
		time.Now().Add(-time.Hour).UnixMicro(), f.ID)
	require.NoError(t, err)

	c.Ongoing().Ref(f.ID)
	removed, _, err := c.CleanUpFilesWithTTL(time.Minute)
	require.NoError(t, err)
	assert.Zero(t, removed)

	c.Ongoing().Unref(f.ID)
	removed, _, err = c.CleanUpFilesWithTTL(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestArchiveByDays(t *testing.T) {
	c := openTest(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t1", Dimension: 4, Metric: kernel.L2})
	require.NoError(t, err)
	f, err := c.CreateFile(model.FileSchema{TableID: "t1", SegmentID: 1, FileType: model.FileRaw})
	require.NoError(t, err)
	f.FileType = model.FileRaw
	require.NoError(t, c.UpdateFile(f))

	// Backdate created_on directly; UpdateFile does not touch it.
	_, err = c.db.Exec(`UPDATE files SET created_on = ? WHERE id = ?`,
		time.Now().Add(-48*time.Hour).UnixMicro(), f.ID)
	require.NoError(t, err)

	require.NoError(t, c.Archive(ArchivePolicy{DisableDisk: true, Days: 1}))

	files, err := c.FilesByType("t1", []model.FileState{model.FileToDelete})
	require.NoError(t, err)
	require.Len(t, files, 1)
}
