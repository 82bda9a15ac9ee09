package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecshelf/lifecycle/kernel"
)

func TestTopKHeapKeepsSmallestForL2(t *testing.T) {
	h := newTopKHeap(2, kernel.L2)
	h.Add(Result{ID: 1, Distance: 5})
	h.Add(Result{ID: 2, Distance: 1})
	h.Add(Result{ID: 3, Distance: 3})

	sorted := h.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, int64(2), sorted[0].ID)
	assert.Equal(t, int64(3), sorted[1].ID)
}

func TestTopKHeapKeepsLargestForInnerProduct(t *testing.T) {
	h := newTopKHeap(2, kernel.InnerProduct)
	h.Add(Result{ID: 1, Distance: 5})
	h.Add(Result{ID: 2, Distance: 1})
	h.Add(Result{ID: 3, Distance: 9})

	sorted := h.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, int64(3), sorted[0].ID)
	assert.Equal(t, int64(1), sorted[1].ID)
}

func TestTopKHeapTieBreaksOnLowerID(t *testing.T) {
	h := newTopKHeap(1, kernel.L2)
	h.Add(Result{ID: 9, Distance: 1})
	h.Add(Result{ID: 2, Distance: 1})

	sorted := h.Sorted()
	require.Len(t, sorted, 1)
	assert.Equal(t, int64(2), sorted[0].ID)
}

func TestMergeTopKOrdersAcrossLists(t *testing.T) {
	lists := [][]Result{
		{{ID: 1, Distance: 0.5}, {ID: 2, Distance: 2.0}},
		{{ID: 3, Distance: 0.1}, {ID: 4, Distance: 1.5}},
	}
	merged := mergeTopK(lists, 3, kernel.L2)
	require.Len(t, merged, 3)
	assert.Equal(t, []int64{3, 1, 4}, []int64{merged[0].ID, merged[1].ID, merged[2].ID})
}

func TestMergeTopKHandlesEmptyLists(t *testing.T) {
	merged := mergeTopK(nil, 5, kernel.L2)
	assert.Empty(t, merged)
}
