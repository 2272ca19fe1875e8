// Package executor runs parsed queries against a loaded index: it resolves
// the terms, runs the top-k search with the configured ranking function, and
// maps the winning documents back to their external ids.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/wavelet"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/resolver"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/topk"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/tracing"
)

// Hit is one ranked document.
type Hit struct {
	DocID string  `json:"doc_id"`
	Doc   uint64  `json:"doc"`
	Score float64 `json:"score"`
}

// TermStat describes a resolved query term.
type TermStat struct {
	Tokens      []uint64 `json:"tokens"`
	QueryFreq   uint64   `json:"query_freq"`
	DocFreq     uint64   `json:"doc_freq"`
	Occurrences uint64   `json:"occurrences"`
}

type SearchResult struct {
	Query     string             `json:"query"`
	QueryID   uint64             `json:"query_id,omitempty"`
	Ranker    string             `json:"ranker"`
	Results   []Hit              `json:"results"`
	Terms     []TermStat         `json:"terms"`
	Missing   []string           `json:"missing,omitempty"`
	Stats     topk.Stats         `json:"stats"`
	TimingsMs map[string]float64 `json:"timings_ms,omitempty"`
}

type Executor struct {
	index    *indexer.Index
	resolver *resolver.Resolver
	searcher topk.Searcher
	metrics  *metrics.Metrics
	tracing  bool
	logger   *slog.Logger
}

type Option func(*Executor)

// WithMetrics records query metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithTracing logs a span tree per query and reports stage timings.
func WithTracing(enabled bool) Option {
	return func(e *Executor) { e.tracing = enabled }
}

// New prepares an executor over idx ranking with the function named in cfg.
func New(idx *indexer.Index, cfg config.IndexConfig, opts ...Option) (*Executor, error) {
	c := idx.Collection()
	stats := ranker.NewStats(idx.DocLengthsByRank(), c.TotalPostings())
	if err := stats.Check(idx.Tree().Sigma()); err != nil {
		return nil, fmt.Errorf("loading collection statistics: %w", err)
	}
	fn, err := ranker.New(cfg.Ranker, stats, ranker.Params{K1: cfg.K1, B: cfg.B, Mu: cfg.Mu})
	if err != nil {
		return nil, fmt.Errorf("selecting ranking function: %w", err)
	}
	e := &Executor{
		index:    idx,
		resolver: resolver.New(idx.Text(), idx.DocFreq()),
		searcher: newSearcher(idx.Tree(), fn, topk.WithDocIDs(c.LenToID)),
		logger:   slog.Default().With("component", "query-executor", "ranker", fn.Name()),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics != nil {
		s := idx.Summary()
		e.metrics.IndexDocuments.Set(float64(s.Documents))
		e.metrics.IndexTerms.Set(float64(s.Terms))
		e.metrics.IndexTextLength.Set(float64(s.TextLength))
	}
	return e, nil
}

// newSearcher instantiates the engine for the concrete ranking function so
// scoring calls are not dispatched through the interface.
func newSearcher(tree *wavelet.Tree, fn ranker.Func, opts ...topk.Option) topk.Searcher {
	switch f := fn.(type) {
	case *ranker.BM25:
		return topk.New(tree, f, opts...)
	case *ranker.BM25Estimate:
		return topk.New(tree, f, opts...)
	case *ranker.LMDirichlet:
		return topk.New(tree, f, opts...)
	case *ranker.TFIDF:
		return topk.New(tree, f, opts...)
	case ranker.Frequency:
		return topk.New(tree, f, opts...)
	}
	return topk.New(tree, fn, opts...)
}

func (e *Executor) Ranker() string { return e.searcher.Ranker() }

func (e *Executor) Index() *indexer.Index { return e.index }

// Execute runs plan and returns up to limit documents.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int, opts topk.Options) (*SearchResult, error) {
	start := time.Now()
	log := logger.FromContext(ctx).With("component", "query-executor")

	if plan.Type == parser.QueryOR {
		e.observe("error", start, nil)
		return nil, fmt.Errorf("%w: OR queries are not supported, only AND", apperrors.ErrUnsupported)
	}
	if limit < 0 {
		e.observe("error", start, nil)
		return nil, fmt.Errorf("%w: limit must be non-negative, got %d", apperrors.ErrInvalidInput, limit)
	}

	result := &SearchResult{
		Query:   plan.RawQuery,
		QueryID: plan.ID,
		Ranker:  e.searcher.Ranker(),
		Results: []Hit{},
		Terms:   []TermStat{},
		Missing: plan.Missing,
	}

	var root *tracing.Span
	if e.tracing {
		ctx, root = tracing.StartSpan(ctx, "query", logger.RequestID(ctx))
		root.SetAttr("raw_query", plan.RawQuery)
	}

	rctx, resolveSpan := tracing.StartChildSpan(ctx, "resolve")
	terms, report, err := e.resolver.Resolve(rctx, plan.Terms)
	resolveSpan.SetAttr("terms", len(terms))
	resolveSpan.End()
	if err != nil {
		e.observe("error", start, nil)
		return nil, fmt.Errorf("resolving query terms: %w", err)
	}
	if len(report.Missing) > 0 {
		result.Missing = report.Missing
	}
	for _, t := range terms {
		result.Terms = append(result.Terms, TermStat{
			Tokens:      t.Tokens,
			QueryFreq:   t.QueryFreq,
			DocFreq:     t.DocFreq,
			Occurrences: t.Occurrences(),
		})
	}

	_, searchSpan := tracing.StartChildSpan(ctx, "intersect")
	it, stats, err := e.searcher.Intersect(limit, terms, opts)
	searchSpan.SetAttr("pops", stats.Pops)
	searchSpan.SetAttr("pruned", stats.Pruned)
	searchSpan.End()
	if err != nil {
		e.observe("error", start, &stats)
		return nil, fmt.Errorf("top-k search: %w", err)
	}
	result.Stats = stats

	docIDs := e.index.Collection().DocIDs
	for it.Next() {
		r := it.Result()
		result.Results = append(result.Results, Hit{DocID: docIDs[r.DocID], Doc: r.DocID, Score: r.Score})
	}

	if root != nil {
		root.End()
		result.TimingsMs = root.Timings()
		root.Log(log)
	}

	outcome := "ok"
	switch {
	case len(report.Missing) > 0:
		outcome = "missing_terms"
	case len(result.Results) == 0:
		outcome = "zero_result"
	}
	e.observe(outcome, start, &stats)
	if m := e.metrics; m != nil {
		m.SearchResultsCount.Observe(float64(len(result.Results)))
	}

	log.Debug("query executed",
		"query", plan.RawQuery,
		"terms", len(terms),
		"missing", len(report.Missing),
		"results", len(result.Results),
		"pops", stats.Pops,
		"pruned", stats.Pruned,
		"latency_us", time.Since(start).Microseconds(),
	)
	return result, nil
}

func (e *Executor) observe(outcome string, start time.Time, stats *topk.Stats) {
	m := e.metrics
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	m.SearchLatency.WithLabelValues(e.searcher.Ranker()).Observe(time.Since(start).Seconds())
	if stats == nil {
		return
	}
	m.FrontierPops.Observe(float64(stats.Pops))
	m.SearchNodesTotal.WithLabelValues("popped").Add(float64(stats.Pops))
	m.SearchNodesTotal.WithLabelValues("pushed").Add(float64(stats.Pushes))
	m.SearchNodesTotal.WithLabelValues("expanded").Add(float64(stats.Expanded))
	m.SearchNodesTotal.WithLabelValues("pruned").Add(float64(stats.Pruned))
	m.SearchNodesTotal.WithLabelValues("discarded").Add(float64(stats.Discarded))
}
