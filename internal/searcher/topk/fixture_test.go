package topk

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/collection"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/ranker"
)

type fixture struct {
	idx   *indexer.Index
	c     *collection.Collection
	stats ranker.Stats
}

func newFixture(t testing.TB, bodies ...string) *fixture {
	t.Helper()
	b := collection.NewBuilder(tokenizer.Options{})
	for i, body := range bodies {
		ok, err := b.Add(collection.Document{ID: string(rune('A' + i)), Body: body})
		require.NoError(t, err)
		require.True(t, ok)
	}
	c, err := b.Build()
	require.NoError(t, err)
	idx, err := indexer.Build(c)
	require.NoError(t, err)
	return &fixture{
		idx:   idx,
		c:     c,
		stats: ranker.NewStats(idx.DocLengthsByRank(), c.TotalPostings()),
	}
}

// eightDocs is small enough to score every document by hand.
var eightDocs = []string{
	"a b c",
	"a a b c c x x",
	"b c z x",
	"a b b b c x x x x",
	"a c",
	"a a a b c c c x",
	"x x x",
	"a b c c x x x x x x",
}

func (f *fixture) engine(t testing.TB, name string, opts ...Option) Searcher {
	t.Helper()
	fn, err := ranker.New(name, f.stats, ranker.Params{})
	require.NoError(t, err)
	opts = append([]Option{WithDocIDs(f.c.LenToID)}, opts...)
	return New(f.idx.Tree(), fn, opts...)
}

// term resolves a single-token term; absent words resolve to an empty range.
func (f *fixture) term(t testing.TB, word string) Term {
	t.Helper()
	id, ok := f.c.Lookup(word)
	if !ok {
		return Term{Sp: 1, Ep: 0}
	}
	sp, ep, ok := f.idx.Text().BackwardSearch([]uint64{id})
	require.True(t, ok)
	df, err := f.idx.DocFreq().Count(sp, ep)
	require.NoError(t, err)
	return Term{Tokens: []uint64{id}, QueryFreq: 1, Sp: sp, Ep: ep, DocFreq: df}
}

func (f *fixture) terms(t testing.TB, words ...string) []Term {
	out := make([]Term, len(words))
	for i, w := range words {
		out[i] = f.term(t, w)
	}
	return out
}

// bruteForce scores every document holding all terms directly from the
// text, in the order the engine sums contributions.
func (f *fixture) bruteForce(fn ranker.Func, terms []Term, opts Options) []Result {
	var results []Result
	start := 0
	for doc := range f.c.DocIDs {
		end := start + int(f.c.DocLengths[doc])
		tokens := f.c.Text[start:end]
		start = end + 1

		rank := f.c.IDToLen[doc]
		docLen := fn.DocLength(rank)
		var score float64
		if !opts.MatchOnly {
			score = float64(len(terms)) * fn.SubtreeWeight(docLen)
		}
		matched := true
		for _, term := range terms {
			tf := 0
			for _, tok := range tokens {
				if len(term.Tokens) > 0 && tok == term.Tokens[0] {
					tf++
				}
			}
			if tf == 0 {
				matched = false
				break
			}
			if opts.MatchOnly {
				score++
				continue
			}
			c := fn.Score(float64(term.QueryFreq), float64(tf), float64(term.DocFreq), float64(term.Occurrences()), docLen, true)
			if opts.MultiOccurrence && c > 0.9 && c < 1.1 {
				c = MultiOccurrencePenalty
			}
			score += c
		}
		if matched {
			results = append(results, Result{DocID: uint64(doc), Score: score})
		}
	}
	slices.SortFunc(results, compareResults)
	return results
}
