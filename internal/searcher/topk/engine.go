// Package topk implements ranked top-k retrieval by best-first branch and
// bound over the document-array wavelet tree.
//
// The frontier holds subtrees ordered by an upper bound on the score of any
// document below them. Expanding a subtree splits every term's occurrence
// range between the two children with rank queries, so no postings list is
// ever materialised. A subtree in which some term has no occurrence cannot
// hold a match and is discarded. Once a leaf reaches the top of the frontier
// its bound is its exact score and it is emitted.
//
// The bound of a subtree is computed from the length of its shortest
// document, which the tree layout makes the document with the smallest
// symbol. For the ranking functions in package ranker this bound never
// grows along a root-to-leaf path; the multi-occurrence penalty can break
// that, so a search run with it is approximate.
package topk

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/wavelet"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
)

// boundSlack absorbs rounding when comparing a child bound to its parent.
const boundSlack = 1e-9

// Searcher is the ranker-independent face of an Engine.
type Searcher interface {
	Intersect(k int, terms []Term, opts Options) (*Iterator, Stats, error)
	Ranker() string
}

// ExpandHook observes every candidate built while expanding a subtree.
type ExpandHook func(parentBound, childBound float64, childLeaf bool)

type Option func(*engineConfig)

type engineConfig struct {
	hook    ExpandHook
	logger  *slog.Logger
	toDocID []uint64
}

// WithExpandHook installs h on the engine.
func WithExpandHook(h ExpandHook) Option {
	return func(c *engineConfig) { c.hook = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) { c.logger = l }
}

// WithDocIDs translates tree symbols to document ids through ids before
// results are returned.
func WithDocIDs(ids []uint64) Option {
	return func(c *engineConfig) { c.toDocID = ids }
}

// lengthChecker is implemented by ranking functions whose document lengths
// have to line up with the tree's alphabet.
type lengthChecker interface {
	Check(sigma uint64) error
}

// Engine is safe for concurrent searches: every call owns its frontier and
// threshold set, and the tree and ranking function are read-only.
type Engine[R ranker.Func] struct {
	tree    *wavelet.Tree
	rank    R
	cfg     engineConfig
	err     error
	scratch sync.Pool
}

// New builds an engine over tree scoring with rank. rank.DocLength is
// queried with tree symbols; if rank cannot answer for every symbol the
// engine fails each search with ErrCorruptIndex.
func New[R ranker.Func](tree *wavelet.Tree, rank R, opts ...Option) *Engine[R] {
	cfg := engineConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default().With("component", "topk", "ranker", rank.Name())
	}
	e := &Engine[R]{tree: tree, rank: rank, cfg: cfg}
	if lc, ok := any(rank).(lengthChecker); ok {
		e.err = lc.Check(tree.Sigma())
	}
	e.scratch.New = func() any {
		buf := make([]Result, 0, 16)
		return &buf
	}
	return e
}

func (e *Engine[R]) Ranker() string { return e.rank.Name() }

// Intersect returns up to k documents holding every term, ordered by score
// descending and document id ascending. Fewer than k are returned when
// fewer documents match. Among documents tied at the k-th score the ones
// with the smallest ids are kept.
func (e *Engine[R]) Intersect(k int, terms []Term, opts Options) (*Iterator, Stats, error) {
	if e.err != nil {
		return nil, Stats{}, e.err
	}
	if k < 0 {
		return nil, Stats{}, fmt.Errorf("%w: k must be non-negative, got %d", apperrors.ErrInvalidInput, k)
	}
	if k == 0 || len(terms) == 0 {
		return newIterator(nil), Stats{}, nil
	}
	root := e.tree.Root()
	ranges := make([]wavelet.Range, len(terms))
	handles := make([]int, len(terms))
	for i, t := range terms {
		if t.Empty() {
			return newIterator(nil), Stats{}, nil
		}
		if t.Ep >= root.Size() {
			return nil, Stats{}, apperrors.Corruptf("term range [%d, %d] outside document array of length %d", t.Sp, t.Ep, root.Size())
		}
		ranges[i] = wavelet.Range{Lo: t.Sp, Hi: t.Ep + 1}
		handles[i] = i
	}

	bufp := e.scratch.Get().(*[]Result)
	defer e.scratch.Put(bufp)
	*bufp = (*bufp)[:0]

	s := &search[R]{
		e:         e,
		k:         k,
		terms:     terms,
		opts:      opts,
		threshold: newThresholdSet(k),
		results:   *bufp,
	}
	if e.tree.IsLeaf(root) {
		s.consider(math.Inf(1), root, handles, ranges)
	} else {
		s.frontier.push(&state{bound: math.Inf(1), node: root, ranges: ranges, terms: handles})
		s.stats.Pushes++
	}
	if err := s.run(); err != nil {
		return nil, s.stats, err
	}
	*bufp = s.results

	out := slices.Clone(s.results)
	slices.SortFunc(out, compareResults)
	if len(out) > k {
		out = out[:k]
	}
	return newIterator(out), s.stats, nil
}

func compareResults(a, b Result) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	case a.DocID < b.DocID:
		return -1
	case a.DocID > b.DocID:
		return 1
	}
	return 0
}

// search is the state of one Intersect call.
type search[R ranker.Func] struct {
	e         *Engine[R]
	k         int
	terms     []Term
	opts      Options
	frontier  frontier
	threshold *thresholdSet
	results   []Result
	stats     Stats
}

// more reports whether the frontier may still hold a document belonging in
// the top k. Once k documents are out, subtrees bounded by the k-th score
// are still drained: a document tied with it but holding a smaller id wins
// the place.
func (s *search[R]) more() bool {
	if s.frontier.Len() == 0 {
		return false
	}
	if len(s.results) < s.k {
		return true
	}
	return s.frontier.top().bound >= s.results[s.k-1].Score
}

func (s *search[R]) run() error {
	tree := s.e.tree
	for s.more() {
		st := s.frontier.pop()
		s.stats.Pops++
		if tree.IsLeaf(st.node) {
			s.emit(st)
			continue
		}
		s.stats.Expanded++
		leftNode, rightNode := tree.Expand(st.node)
		left, right, err := tree.ExpandRanges(st.node, st.ranges)
		if err != nil {
			return fmt.Errorf("expanding level %d node %d: %w", st.node.Level(), st.node.Sym(), err)
		}
		if !tree.Empty(leftNode) {
			s.consider(st.bound, leftNode, st.terms, left)
		}
		if !tree.Empty(rightNode) {
			s.consider(st.bound, rightNode, st.terms, right)
		}
	}
	return nil
}

func (s *search[R]) emit(st *state) {
	doc := st.node.Sym()
	if ids := s.e.cfg.toDocID; ids != nil {
		doc = ids[doc]
	}
	s.results = append(s.results, Result{DocID: doc, Score: st.bound})
	s.stats.Emitted++
}

// consider scores the subtree v with the ranges of termHandles narrowed to
// it and admits it to the frontier if it can still reach the top k.
func (s *search[R]) consider(parentBound float64, v wavelet.Node, termHandles []int, ranges []wavelet.Range) {
	rank := s.e.rank
	leaf := s.e.tree.IsLeaf(v)
	repLen := rank.DocLength(v.MinSymbol())

	var bound float64
	if !s.opts.MatchOnly {
		bound = float64(len(s.terms)) * rank.SubtreeWeight(repLen)
	}
	survivors := 0
	for i, r := range ranges {
		if r.Empty() {
			s.stats.Discarded++
			return
		}
		survivors++
		if s.opts.MatchOnly {
			bound++
			continue
		}
		t := &s.terms[termHandles[i]]
		c := rank.Score(
			float64(t.QueryFreq),
			float64(r.Size()),
			float64(t.DocFreq),
			float64(t.Occurrences()),
			repLen,
			leaf,
		)
		if s.opts.MultiOccurrence && c > 0.9 && c < 1.1 {
			c = MultiOccurrencePenalty
		}
		bound += c
	}
	if survivors == 0 {
		s.stats.Discarded++
		return
	}

	if s.e.cfg.hook != nil {
		s.e.cfg.hook(parentBound, bound, leaf)
	}
	if !s.opts.MultiOccurrence && bound > parentBound+boundSlack*math.Max(1, math.Abs(parentBound)) {
		s.boundViolation(parentBound, bound, v)
	}

	if !s.threshold.admits(bound) {
		s.stats.Pruned++
		return
	}
	s.frontier.push(&state{bound: bound, node: v, ranges: ranges, terms: termHandles})
	s.stats.Pushes++
	if leaf {
		s.threshold.add(bound)
	}
}

func (s *search[R]) boundViolation(parent, child float64, v wavelet.Node) {
	if checkBounds {
		panic(fmt.Sprintf("topk: child bound %g exceeds parent bound %g at level %d node %d", child, parent, v.Level(), v.Sym()))
	}
	s.e.cfg.logger.Error("child bound exceeds parent bound",
		"parent", parent,
		"child", child,
		"level", v.Level(),
		"node", v.Sym(),
	)
}
