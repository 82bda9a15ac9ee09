package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vecshelf/lifecycle/catalog"
	"github.com/vecshelf/lifecycle/kernel"
	"github.com/vecshelf/lifecycle/memtable"
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

func createFileWithVectors(t *testing.T, c *catalog.Catalog, tableID string, ids []int64, vecs []float32, dim int) model.FileSchema {
	t.Helper()
	f, err := c.CreateFile(model.FileSchema{TableID: tableID, FileType: model.FileRaw, RowCount: int64(len(ids))})
	require.NoError(t, err)
	require.NoError(t, segment.Write(c.VectorPath(f), segment.Data{
		Metric:  f.Metric,
		Dim:     dim,
		IDs:     ids,
		Vectors: vecs,
	}))
	return f
}

func TestSearchReturnsNearestByL2(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t", Dimension: 2, IndexFileSize: 1 << 20, EngineType: "flat", Metric: kernel.L2})
	require.NoError(t, err)

	createFileWithVectors(t, c, "t",
		[]int64{1, 2, 3},
		[]float32{0, 0, 5, 5, 1, 1},
		2)

	e := NewExecutor(c, memtable.NewManager())
	results, err := e.Search(context.Background(), Request{TableID: "t", K: 2, Query: []float32{0, 0}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, int64(1), results[0].ID)
	require.Equal(t, int64(3), results[1].ID)
}

func TestSearchIncludesMemtableRows(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t", Dimension: 2, IndexFileSize: 1 << 20, EngineType: "flat", Metric: kernel.L2})
	require.NoError(t, err)

	mem := memtable.NewManager()
	mem.Append("t", 1, 2, 42, []float32{0.1, 0.1})

	e := NewExecutor(c, mem)
	results, err := e.Search(context.Background(), Request{TableID: "t", K: 1, Query: []float32{0, 0}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(42), results[0].ID)
}

func TestSearchHonorsBlacklist(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t", Dimension: 2, IndexFileSize: 1 << 20, EngineType: "flat", Metric: kernel.L2})
	require.NoError(t, err)

	createFileWithVectors(t, c, "t", []int64{1, 2}, []float32{0, 0, 1, 1}, 2)

	blacklist := NewIDSet(1)

	e := NewExecutor(c, memtable.NewManager())
	results, err := e.Search(context.Background(), Request{TableID: "t", K: 2, Query: []float32{0, 0}, Blacklist: blacklist})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(2), results[0].ID)
}

func TestSearchResolvesPartitionTargets(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t", Dimension: 2, IndexFileSize: 1 << 20, EngineType: "flat", Metric: kernel.L2})
	require.NoError(t, err)
	_, err = c.CreateTable(model.TableSchema{TableID: "t_p1", Dimension: 2, IndexFileSize: 1 << 20, EngineType: "flat", Metric: kernel.L2, OwnerTable: "t", PartitionTag: "p1"})
	require.NoError(t, err)

	createFileWithVectors(t, c, "t_p1", []int64{7}, []float32{0, 0}, 2)

	e := NewExecutor(c, memtable.NewManager())
	results, err := e.Search(context.Background(), Request{TableID: "t", PartitionTags: []string{"p1"}, K: 1, Query: []float32{0, 0}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(7), results[0].ID)
}

func TestSearchRejectsUnknownPartitionTag(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t", Dimension: 2, IndexFileSize: 1 << 20, EngineType: "flat", Metric: kernel.L2})
	require.NoError(t, err)

	e := NewExecutor(c, memtable.NewManager())
	_, err = e.Search(context.Background(), Request{TableID: "t", PartitionTags: []string{"missing"}, K: 1, Query: []float32{0, 0}})
	require.Error(t, err)
}

func TestSearchEmptyTargetSetReturnsEmptyNotError(t *testing.T) {
	// A table with a partition_tags filter matching zero partitions is
	// unreachable via resolveTargets (unknown tags error out instead),
	// but an owner table with no files and no partitions must still
	// return an empty, non-error result.
	c := newTestCatalog(t)
	_, err := c.CreateTable(model.TableSchema{TableID: "t", Dimension: 2, IndexFileSize: 1 << 20, EngineType: "flat", Metric: kernel.L2})
	require.NoError(t, err)

	e := NewExecutor(c, memtable.NewManager())
	results, err := e.Search(context.Background(), Request{TableID: "t", K: 1, Query: []float32{0, 0}})
	require.NoError(t, err)
	require.Empty(t, results)
}
