package executor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/topk"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/resilience"
)

// BatchItem is the outcome of one query of a batch.
type BatchItem struct {
	Plan    *parser.QueryPlan
	Result  *SearchResult
	Err     error
	Latency time.Duration
}

// BatchOptions configure ExecuteBatch.
type BatchOptions struct {
	Limit   int
	Search  topk.Options
	Workers int
	// Timeout bounds each query; zero disables it.
	Timeout time.Duration
}

// ExecuteBatch runs plans on up to opts.Workers goroutines. Items are
// returned in input order; a failing query does not stop the others.
func (e *Executor) ExecuteBatch(ctx context.Context, plans []*parser.QueryPlan, opts BatchOptions) []BatchItem {
	items := make([]BatchItem, len(plans))
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, plan := range plans {
		items[i].Plan = plan
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				items[i].Err = err
				e.countBatch("cancelled")
				return nil
			}
			qctx := logger.WithQueryID(ctx, plan.ID)
			start := time.Now()
			var result *SearchResult
			err := resilience.WithTimeout(qctx, opts.Timeout, "query", func(tctx context.Context) error {
				var err error
				result, err = e.Execute(tctx, plan, opts.Limit, opts.Search)
				return err
			})
			items[i].Latency = time.Since(start)
			if err != nil {
				items[i].Err = err
				e.countBatch("error")
				return nil
			}
			items[i].Result = result
			e.countBatch("ok")
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (e *Executor) countBatch(status string) {
	if e.metrics != nil {
		e.metrics.BatchQueriesTotal.WithLabelValues(status).Inc()
	}
}
