package topk

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
)

func collect(t *testing.T, s Searcher, k int, terms []Term, opts Options) ([]Result, Stats) {
	t.Helper()
	it, stats, err := s.Intersect(k, terms, opts)
	require.NoError(t, err)
	return it.Remaining(), stats
}

func TestIntersectMatchesBruteForce(t *testing.T) {
	f := newFixture(t, eightDocs...)
	queries := [][]string{{"a"}, {"c", "a"}, {"a", "b", "c"}, {"x", "b"}, {"b", "c", "x"}}
	for _, name := range ranker.Names {
		fn, err := ranker.New(name, f.stats, ranker.Params{})
		require.NoError(t, err)
		s := New(f.idx.Tree(), fn, WithDocIDs(f.c.LenToID))
		for _, q := range queries {
			terms := f.terms(t, q...)
			want := f.bruteForce(fn, terms, Options{})
			for k := 0; k <= 9; k++ {
				got, _ := collect(t, s, k, terms, Options{})
				n := min(k, len(want))
				require.Len(t, got, n, "%s %v k=%d", name, q, k)

				exact := make(map[uint64]float64, len(want))
				for _, r := range want {
					exact[r.DocID] = r.Score
				}
				seen := make(map[uint64]bool)
				for i, r := range got {
					assert.InDelta(t, want[i].Score, r.Score, 1e-9, "%s %v k=%d rank %d", name, q, k, i)
					assert.Equal(t, want[i].DocID, r.DocID, "%s %v k=%d rank %d", name, q, k, i)
					score, ok := exact[r.DocID]
					require.True(t, ok, "%s %v returned non-matching doc %d", name, q, r.DocID)
					assert.InDelta(t, score, r.Score, 1e-9)
					assert.False(t, seen[r.DocID], "duplicate doc %d", r.DocID)
					seen[r.DocID] = true
					if i > 0 {
						assert.LessOrEqual(t, compareResults(got[i-1], r), 0)
					}
				}
			}
		}
	}
}

func TestTiesAtKthScoreKeepSmallestIDs(t *testing.T) {
	// Under raw frequency "a" scores 3, 2, then 1 for documents 0, 3, 4
	// and 7. Document 4 is the shortest of those, so the tree reaches it
	// first.
	f := newFixture(t, eightDocs...)
	s := f.engine(t, "freq")
	terms := f.terms(t, "a")

	got, _ := collect(t, s, 3, terms, Options{})
	assert.Equal(t, []Result{{DocID: 5, Score: 3}, {DocID: 1, Score: 2}, {DocID: 0, Score: 1}}, got)

	got, _ = collect(t, s, 4, terms, Options{})
	assert.Equal(t, []Result{{DocID: 5, Score: 3}, {DocID: 1, Score: 2}, {DocID: 0, Score: 1}, {DocID: 3, Score: 1}}, got)

	got, _ = collect(t, s, 2, f.terms(t, "a", "c"), Options{MatchOnly: true})
	assert.Equal(t, []Result{{DocID: 0, Score: 2}, {DocID: 1, Score: 2}}, got)
}

func TestChildBoundsNeverExceedParent(t *testing.T) {
	f := newFixture(t, eightDocs...)
	for _, name := range ranker.Names {
		var expansions, violations int
		hook := func(parent, child float64, _ bool) {
			expansions++
			if child > parent+1e-9*math.Max(1, math.Abs(parent)) {
				violations++
			}
		}
		s := f.engine(t, name, WithExpandHook(hook))
		for _, q := range [][]string{{"a"}, {"a", "b", "c"}, {"x", "c"}} {
			collect(t, s, 8, f.terms(t, q...), Options{})
		}
		assert.Positive(t, expansions, name)
		assert.Zero(t, violations, name)
	}
}

func TestAbsentTermEmptiesResult(t *testing.T) {
	f := newFixture(t, eightDocs...)
	s := f.engine(t, "bm25")
	got, stats := collect(t, s, 8, f.terms(t, "a", "nowhere", "c"), Options{})
	assert.Empty(t, got)
	assert.Zero(t, stats.Pops)

	// Present terms that never meet in one document.
	got, _ = collect(t, s, 8, f.terms(t, "z", "a"), Options{})
	assert.Empty(t, got)
}

func TestIdempotent(t *testing.T) {
	f := newFixture(t, eightDocs...)
	s := f.engine(t, "lmds")
	terms := f.terms(t, "a", "c")
	first, firstStats := collect(t, s, 4, terms, Options{})
	second, secondStats := collect(t, s, 4, terms, Options{})
	assert.Equal(t, first, second)
	assert.Equal(t, firstStats, secondStats)
}

func TestZeroK(t *testing.T) {
	f := newFixture(t, eightDocs...)
	var calls int
	s := f.engine(t, "bm25", WithExpandHook(func(float64, float64, bool) { calls++ }))
	got, stats := collect(t, s, 0, f.terms(t, "a"), Options{})
	assert.Empty(t, got)
	assert.Equal(t, Stats{}, stats)
	assert.Zero(t, calls)

	got, _ = collect(t, s, 3, nil, Options{})
	assert.Empty(t, got)
}

func TestSingleTermSingleDocument(t *testing.T) {
	f := newFixture(t, eightDocs...)
	fn := &ranker.BM25{Stats: f.stats, K1: ranker.DefaultK1, B: ranker.DefaultB}
	s := New(f.idx.Tree(), fn, WithDocIDs(f.c.LenToID))
	term := f.term(t, "z")
	require.Equal(t, uint64(1), term.DocFreq)

	got, _ := collect(t, s, 5, []Term{term}, Options{})
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].DocID)

	n, avg, docLen := 8.0, f.stats.AvgDocLen, 4.0
	idf := math.Log((n - 1 + 0.5) / (1 + 0.5))
	norm := 1.2 * (0.25 + 0.75*docLen/avg)
	assert.InDelta(t, idf*2.2/(norm+1), got[0].Score, 1e-12)
}

func TestMultiOccurrenceSuppression(t *testing.T) {
	// Under raw frequency a single occurrence contributes exactly 1.
	f := newFixture(t, "a b", "a a b b", "a a a b b")
	s := f.engine(t, "freq")
	terms := f.terms(t, "a", "b")

	plain, _ := collect(t, s, 3, terms, Options{})
	assert.Equal(t, []Result{{DocID: 2, Score: 5}, {DocID: 1, Score: 4}, {DocID: 0, Score: 2}}, plain)

	penalised, _ := collect(t, s, 3, terms, Options{MultiOccurrence: true})
	require.Len(t, penalised, 3)
	assert.Equal(t, uint64(0), penalised[2].DocID)
	assert.Equal(t, 2*MultiOccurrencePenalty, penalised[2].Score)

	top2, _ := collect(t, s, 2, terms, Options{MultiOccurrence: true})
	assert.Equal(t, []Result{{DocID: 2, Score: 5}, {DocID: 1, Score: 4}}, top2)
}

func TestMultiOccurrenceSuppressionBM25(t *testing.T) {
	// Document 0 holds each term once at a length near the average, where
	// BM25 lands just off 1. Document 1 holds each term twice.
	bodies := []string{"a b f f", "a a b b"}
	for i := 0; i < 7; i++ {
		bodies = append(bodies, "h h h")
	}
	f := newFixture(t, bodies...)
	fn := &ranker.BM25{Stats: f.stats, K1: ranker.DefaultK1, B: ranker.DefaultB}
	s := New(f.idx.Tree(), fn, WithDocIDs(f.c.LenToID))
	terms := f.terms(t, "a", "b")

	for _, term := range terms {
		require.Equal(t, uint64(2), term.DocFreq)
		c := fn.Score(1, 1, float64(term.DocFreq), float64(term.Occurrences()), 4, true)
		require.InDelta(t, 1.0, c, 0.05)
		require.NotEqual(t, 1.0, c)
	}
	want := f.bruteForce(fn, terms, Options{})
	require.Len(t, want, 2)
	require.Equal(t, uint64(1), want[0].DocID)

	plain, _ := collect(t, s, 2, terms, Options{})
	require.Len(t, plain, 2)
	assert.Equal(t, uint64(0), plain[1].DocID)
	assert.InDelta(t, 2.0, plain[1].Score, 0.1)

	penalised, _ := collect(t, s, 2, terms, Options{MultiOccurrence: true})
	require.Len(t, penalised, 2)
	assert.Equal(t, want[0], penalised[0])
	assert.Equal(t, Result{DocID: 0, Score: 2 * MultiOccurrencePenalty}, penalised[1])
	assert.Equal(t, f.bruteForce(fn, terms, Options{MultiOccurrence: true}), penalised)
}

func TestMatchOnly(t *testing.T) {
	f := newFixture(t, eightDocs...)
	s := f.engine(t, "bm25")
	got, _ := collect(t, s, 8, f.terms(t, "a", "c"), Options{MatchOnly: true})
	require.Len(t, got, 6)
	for i, r := range got {
		assert.Equal(t, 2.0, r.Score)
		if i > 0 {
			assert.Less(t, got[i-1].DocID, r.DocID)
		}
	}
}

func TestSingleDocumentIndex(t *testing.T) {
	f := newFixture(t, "only one document here")
	require.True(t, f.idx.Tree().IsLeaf(f.idx.Tree().Root()))
	s := f.engine(t, "tfidf")
	got, _ := collect(t, s, 3, f.terms(t, "document"), Options{})
	require.Len(t, got, 1)
	assert.Equal(t, uint64(0), got[0].DocID)
	assert.False(t, math.IsInf(got[0].Score, 0))
}

func TestInvalidArguments(t *testing.T) {
	f := newFixture(t, eightDocs...)
	s := f.engine(t, "bm25")
	_, _, err := s.Intersect(-1, f.terms(t, "a"), Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, _, err = s.Intersect(3, []Term{{QueryFreq: 1, Sp: 0, Ep: 1 << 40, DocFreq: 1}}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
}

func TestDocLengthsMustCoverTree(t *testing.T) {
	f := newFixture(t, eightDocs...)
	short := ranker.NewStats(f.stats.DocLengths[:7], f.c.TotalPostings())
	for _, name := range []string{"bm25", "bm25_simple_est", "lmds", "tfidf"} {
		fn, err := ranker.New(name, short, ranker.Params{})
		require.NoError(t, err)
		s := New(f.idx.Tree(), fn, WithDocIDs(f.c.LenToID))
		_, _, err = s.Intersect(3, f.terms(t, "a"), Options{})
		assert.ErrorIs(t, err, apperrors.ErrCorruptIndex, name)
	}

	// Raw frequency never looks at lengths.
	fn, err := ranker.New("freq", short, ranker.Params{})
	require.NoError(t, err)
	got, _ := collect(t, New(f.idx.Tree(), fn, WithDocIDs(f.c.LenToID)), 3, f.terms(t, "a"), Options{})
	assert.Len(t, got, 3)
}

func TestConcurrentSearches(t *testing.T) {
	f := newFixture(t, eightDocs...)
	s := f.engine(t, "bm25_simple_est")
	terms := f.terms(t, "a", "b", "c")
	want, _ := collect(t, s, 5, terms, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			it, _, err := s.Intersect(5, terms, Options{})
			if err != nil {
				errs <- err
				return
			}
			if got := it.Remaining(); !assert.ObjectsAreEqual(want, got) {
				errs <- assert.AnError
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestIterator(t *testing.T) {
	it := newIterator([]Result{{DocID: 1, Score: 2}, {DocID: 0, Score: 1}})
	assert.Equal(t, 2, it.Len())
	require.True(t, it.Next())
	assert.Equal(t, uint64(1), it.Result().DocID)
	assert.Nil(t, it.Snippet(10))
	require.True(t, it.Next())
	assert.False(t, it.Next())
	assert.False(t, it.Next())
	assert.Empty(t, it.Remaining())
}

func BenchmarkIntersect(b *testing.B) {
	bodies := make([]string, 0, 512)
	words := []string{"wavelet", "tree", "suffix", "array", "rank", "select", "query", "document"}
	for i := 0; i < 512; i++ {
		body := ""
		for j := 0; j <= i%23; j++ {
			body += words[(i*7+j*3)%len(words)] + " "
		}
		bodies = append(bodies, body)
	}
	f := newFixture(b, bodies...)
	fn, err := ranker.New("bm25", f.stats, ranker.Params{})
	require.NoError(b, err)
	s := New(f.idx.Tree(), fn, WithDocIDs(f.c.LenToID))
	terms := f.terms(b, "wavelet", "rank")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := s.Intersect(10, terms, Options{}); err != nil {
			b.Fatal(err)
		}
	}
}
