package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/docfreq"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/textindex"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
)

// doc0: 2 3 2 | doc1: 3 | doc2: 4 3
var text = []uint64{2, 3, 2, 1, 3, 1, 4, 3, 1}

func newResolver() *Resolver {
	idx := textindex.New(text)
	docOf := []uint32{0, 0, 0, 0, 1, 1, 2, 2, 2}
	return New(idx, docfreq.New(idx.DocumentArray(docOf, nil)))
}

func TestResolve(t *testing.T) {
	r := newResolver()
	terms, report, err := r.Resolve(context.Background(), []parser.QueryTerm{
		{Text: "two", Tokens: []uint64{2}, Freq: 1},
		{Text: "three", Tokens: []uint64{3}, Freq: 2},
	})
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, 2, report.Resolved)

	assert.Equal(t, uint64(2), terms[0].Occurrences())
	assert.Equal(t, uint64(1), terms[0].DocFreq)
	assert.Equal(t, uint64(3), terms[1].Occurrences())
	assert.Equal(t, uint64(3), terms[1].DocFreq)
	assert.Equal(t, uint64(2), terms[1].QueryFreq)
}

func TestResolveMergesDuplicates(t *testing.T) {
	terms, _, err := newResolver().Resolve(context.Background(), []parser.QueryTerm{
		{Text: "three", Tokens: []uint64{3}, Freq: 1},
		{Text: "Three", Tokens: []uint64{3}},
	})
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, uint64(2), terms[0].QueryFreq)
}

func TestResolvePhrase(t *testing.T) {
	terms, _, err := newResolver().Resolve(context.Background(), []parser.QueryTerm{
		{Text: "four three", Tokens: []uint64{4, 3}, Freq: 1},
	})
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, uint64(1), terms[0].Occurrences())
}

func TestResolveAbsentTermEmptiesQuery(t *testing.T) {
	terms, report, err := newResolver().Resolve(context.Background(), []parser.QueryTerm{
		{Text: "three", Tokens: []uint64{3}, Freq: 1},
		{Text: "nine", Tokens: []uint64{9}, Freq: 1},
		{Text: "unknown", Freq: 1},
	})
	require.NoError(t, err)
	assert.Empty(t, terms)
	assert.Equal(t, []string{"nine", "unknown"}, report.Missing)
	assert.Zero(t, report.Resolved)
}

type failingDF struct{}

func (failingDF) Count(uint64, uint64) (uint64, error) {
	return 0, apperrors.Corruptf("bad rank directory")
}

func TestResolvePropagatesOracleErrors(t *testing.T) {
	r := New(textindex.New(text), failingDF{})
	_, _, err := r.Resolve(context.Background(), []parser.QueryTerm{{Text: "two", Tokens: []uint64{2}, Freq: 1}})
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
}

func TestResolveHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := newResolver().Resolve(ctx, []parser.QueryTerm{{Text: "two", Tokens: []uint64{2}, Freq: 1}})
	assert.True(t, errors.Is(err, context.Canceled))
}
