package topk

import "container/heap"

// thresholdSet keeps the k best leaf bounds admitted so far. Once full, its
// minimum is the bar a candidate has to clear.
type thresholdSet struct {
	k    int
	heap minHeap
}

func newThresholdSet(k int) *thresholdSet {
	return &thresholdSet{k: k, heap: make(minHeap, 0, k)}
}

func (t *thresholdSet) full() bool { return len(t.heap) >= t.k }

func (t *thresholdSet) min() float64 { return t.heap[0] }

// admits reports whether a candidate with bound b may enter the frontier.
// A bound equal to the minimum is admitted: the subtree may hold a document
// tied with the k-th result and a smaller id.
func (t *thresholdSet) admits(b float64) bool {
	return !t.full() || b >= t.min()
}

// add records an admitted leaf bound, evicting the minimum when full.
func (t *thresholdSet) add(b float64) {
	if !t.full() {
		heap.Push(&t.heap, b)
		return
	}
	t.heap[0] = b
	heap.Fix(&t.heap, 0)
}

type minHeap []float64

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) { *h = append(*h, x.(float64)) }

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
