package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/collection"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/topk"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/metrics"
)

func testIndex(t *testing.T) *indexer.Index {
	t.Helper()
	b := collection.NewBuilder(tokenizer.Options{})
	docs := []collection.Document{
		{ID: "d1", Body: "wavelet tree wavelet"},
		{ID: "d2", Body: "suffix array tree"},
		{ID: "d3", Body: "wavelet tree tree tree"},
		{ID: "d4", Body: "array"},
	}
	for _, d := range docs {
		_, err := b.Add(d)
		require.NoError(t, err)
	}
	c, err := b.Build()
	require.NoError(t, err)
	idx, err := indexer.Build(c)
	require.NoError(t, err)
	return idx
}

func newExecutor(t *testing.T, rankerName string, opts ...Option) *Executor {
	t.Helper()
	cfg := config.IndexConfig{Ranker: rankerName}
	e, err := New(testIndex(t), cfg, opts...)
	require.NoError(t, err)
	return e
}

func plan(e *Executor, q string) *parser.QueryPlan {
	return parser.ParseText(q, e.Index().Collection(), tokenizer.Options{})
}

func TestExecuteFrequency(t *testing.T) {
	e := newExecutor(t, "freq")
	res, err := e.Execute(context.Background(), plan(e, "wavelet tree"), 10, topk.Options{})
	require.NoError(t, err)

	require.Len(t, res.Results, 2)
	assert.Equal(t, "d3", res.Results[0].DocID)
	assert.Equal(t, 4.0, res.Results[0].Score)
	assert.Equal(t, "d1", res.Results[1].DocID)
	assert.Equal(t, 3.0, res.Results[1].Score)
	assert.Equal(t, "freq", res.Ranker)
	assert.Len(t, res.Terms, 2)
	assert.Empty(t, res.Missing)
}

func TestExecuteLimit(t *testing.T) {
	e := newExecutor(t, "freq")
	res, err := e.Execute(context.Background(), plan(e, "tree"), 1, topk.Options{})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "d3", res.Results[0].DocID)

	res, err = e.Execute(context.Background(), plan(e, "tree"), 0, topk.Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}

func TestExecuteMissingTerm(t *testing.T) {
	e := newExecutor(t, "bm25")
	res, err := e.Execute(context.Background(), plan(e, "wavelet zebra"), 10, topk.Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Contains(t, res.Missing, "zebra")
}

func TestExecuteRejects(t *testing.T) {
	e := newExecutor(t, "bm25")
	_, err := e.Execute(context.Background(), plan(e, "wavelet OR tree"), 10, topk.Options{})
	assert.ErrorIs(t, err, apperrors.ErrUnsupported)

	_, err = e.Execute(context.Background(), plan(e, "wavelet"), -1, topk.Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestNewUnknownRanker(t *testing.T) {
	_, err := New(testIndex(t), config.IndexConfig{Ranker: "pagerank"})
	assert.ErrorIs(t, err, apperrors.ErrUnknownRanker)
}

func TestEveryRankerAgreesOnMatches(t *testing.T) {
	for _, name := range []string{"bm25", "bm25_simple_est", "lmds", "tfidf", "freq"} {
		t.Run(name, func(t *testing.T) {
			e := newExecutor(t, name)
			res, err := e.Execute(context.Background(), plan(e, "tree"), 10, topk.Options{})
			require.NoError(t, err)
			ids := make([]string, 0, len(res.Results))
			for _, h := range res.Results {
				ids = append(ids, h.DocID)
			}
			assert.ElementsMatch(t, []string{"d1", "d2", "d3"}, ids)
			for i := 1; i < len(res.Results); i++ {
				assert.GreaterOrEqual(t, res.Results[i-1].Score, res.Results[i].Score)
			}
		})
	}
}

func TestExecuteTracingAndMetrics(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	e := newExecutor(t, "bm25", WithMetrics(m), WithTracing(true))
	res, err := e.Execute(context.Background(), plan(e, "array"), 5, topk.Options{})
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	assert.Contains(t, res.TimingsMs, "resolve")
	assert.Contains(t, res.TimingsMs, "intersect")
	assert.Positive(t, res.Stats.Pops)
}

func TestExecuteBatch(t *testing.T) {
	e := newExecutor(t, "freq")
	input := "1;wavelet tree\n2;array\n3;suffix wavelet\n"
	plans, skipped, err := parser.ParseQueries(strings.NewReader(input), e.Index().Collection(), parser.LineOptions{})
	require.NoError(t, err)
	require.Zero(t, skipped)

	items := e.ExecuteBatch(context.Background(), plans, BatchOptions{Limit: 10, Workers: 2, Timeout: time.Second})
	require.Len(t, items, 3)
	for i, item := range items {
		require.NoError(t, item.Err)
		assert.Equal(t, plans[i].ID, item.Result.QueryID)
	}
	assert.Len(t, items[0].Result.Results, 2)
	assert.Len(t, items[1].Result.Results, 2)
	assert.Empty(t, items[2].Result.Results)
}

func TestExecuteBatchCancelled(t *testing.T) {
	e := newExecutor(t, "freq")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := e.ExecuteBatch(ctx, []*parser.QueryPlan{plan(e, "tree")}, BatchOptions{Limit: 10})
	require.Len(t, items, 1)
	assert.ErrorIs(t, items[0].Err, context.Canceled)
}
