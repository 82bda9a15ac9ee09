package query

import (
	"container/heap"

	"github.com/vecshelf/lifecycle/kernel"
)

// Result is one scored hit: a vector id and its distance under the
// table's configured metric.
type Result struct {
	ID       int64
	Distance float32
}

// topKHeap is a bounded max-heap over the *worst* of the current
// best-K results, so a full heap can be tested against a new
// candidate in O(log K) (spec 4.4 step 3: "produce a per-file top-K
// heap"). Grounded on the teacher's queue.PriorityQueue bounded-heap
// shape (internal/pool/search_pool.go), generalized to either
// distance ordering via kernel.Metric.Less.
type topKHeap struct {
	items  []Result
	k      int
	metric kernel.Metric
}

func newTopKHeap(k int, metric kernel.Metric) *topKHeap {
	return &topKHeap{k: k, metric: metric}
}

// worse reports whether a ranks behind b (b is at least as good, and
// ties are broken by preferring the lower id — so the higher-id twin
// is the one considered "worse" and evicted first).
func (h *topKHeap) worse(a, b Result) bool {
	if a.Distance == b.Distance {
		return a.ID > b.ID
	}
	return h.metric.Less(b.Distance, a.Distance)
}

func (h *topKHeap) Len() int { return len(h.items) }

// Less orders the heap so the single worst-ranked item sits at the
// root, ready to be evicted when a better candidate arrives.
func (h *topKHeap) Less(i, j int) bool { return h.worse(h.items[i], h.items[j]) }
func (h *topKHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *topKHeap) Push(x any) { h.items = append(h.items, x.(Result)) }

func (h *topKHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// Add offers a candidate result. If the heap has fewer than k items,
// it is kept unconditionally; otherwise it replaces the current worst
// item only if it ranks ahead of it.
func (h *topKHeap) Add(r Result) {
	if h.k <= 0 {
		return
	}
	if h.Len() < h.k {
		heap.Push(h, r)
		return
	}
	if h.worse(h.items[0], r) {
		h.items[0] = r
		heap.Fix(h, 0)
	}
}

// Sorted drains the heap into a best-first slice.
func (h *topKHeap) Sorted() []Result {
	out := make([]Result, len(h.items))
	copy(out, h.items)
	// Selection via repeated worst-eviction gives worst-first; reverse.
	tmp := &topKHeap{items: append([]Result(nil), out...), k: h.k, metric: h.metric}
	heap.Init(tmp)
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(tmp).(Result)
	}
	return out
}

// mergeItem is one cursor into a per-source sorted (best-first) result
// list, used by the k-way merge below.
type mergeItem struct {
	srcIdx int
	pos    int
}

// mergeHeap is a min-heap over merge cursors, ordered by the result
// each currently points at. Grounded on spec 4.4 step 5's "NKK-way
// merge (priority queue of heap heads)".
type mergeHeap struct {
	items  []mergeItem
	lists  [][]Result
	metric kernel.Metric
}

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) Less(i, j int) bool {
	a := h.lists[h.items[i].srcIdx][h.items[i].pos]
	b := h.lists[h.items[j].srcIdx][h.items[j].pos]
	if a.Distance == b.Distance {
		return a.ID < b.ID
	}
	return h.metric.Less(a.Distance, b.Distance)
}

func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x any)    { h.items = append(h.items, x.(mergeItem)) }
func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// mergeTopK merges lists — each already sorted best-first under
// metric — into a single best-first slice of at most k results, via a
// priority queue of per-list heads (spec 4.4 step 5). Ties are broken
// on lower id, matching each list's own tie-break so the merge is
// stable with respect to it.
func mergeTopK(lists [][]Result, k int, metric kernel.Metric) []Result {
	h := &mergeHeap{lists: lists, metric: metric}
	for i, list := range lists {
		if len(list) > 0 {
			h.items = append(h.items, mergeItem{srcIdx: i, pos: 0})
		}
	}
	heap.Init(h)

	out := make([]Result, 0, k)
	for len(out) < k && h.Len() > 0 {
		top := heap.Pop(h).(mergeItem)
		out = append(out, lists[top.srcIdx][top.pos])
		next := top.pos + 1
		if next < len(lists[top.srcIdx]) {
			heap.Push(h, mergeItem{srcIdx: top.srcIdx, pos: next})
		}
	}
	return out
}
