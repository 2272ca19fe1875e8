package topk

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/wavelet"
)

// state is a frontier entry: a subtree, the occurrence ranges of the
// surviving terms narrowed to it, and an upper bound on its scores. terms
// holds handles into the per-search term table, parallel to ranges.
type state struct {
	bound  float64
	node   wavelet.Node
	ranges []wavelet.Range
	terms  []int
}

// before orders states by bound descending, then node identity ascending.
func (s *state) before(o *state) bool {
	if s.bound != o.bound {
		return s.bound > o.bound
	}
	return s.node.Less(o.node)
}

// frontier is a max-heap of states under before.
type frontier []*state

func (f frontier) Len() int           { return len(f) }
func (f frontier) Less(i, j int) bool { return f[i].before(f[j]) }
func (f frontier) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(*state)) }

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	*f = old[:n-1]
	return s
}

func (f *frontier) push(s *state) { heap.Push(f, s) }

func (f *frontier) pop() *state { return heap.Pop(f).(*state) }

func (f frontier) top() *state { return f[0] }
