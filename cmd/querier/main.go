// Command querier runs a file of "qid;term term ..." queries against an
// index snapshot and prints one "qid;rank;doc_id;score" line per result.
// Logs go to stderr.
//
// Usage:
//
//	go run ./cmd/querier -queries queries.txt [-k 10] [-ranker lmds] [-workers 8]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/topk"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/logger"
)

type flags struct {
	configPath   string
	snapshot     string
	queries      string
	dict         string
	rankerName   string
	k            int
	workers      int
	timeout      time.Duration
	onlyComplete bool
	integers     bool
	multiOcc     bool
	matchOnly    bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to config file")
	flag.StringVar(&f.snapshot, "index", "", "snapshot path (default: index.snapshotPath)")
	flag.StringVar(&f.queries, "queries", "", "query file, one \"qid;terms\" per line")
	flag.StringVar(&f.dict, "dict", "", "map query words through this dictionary instead of the index vocabulary")
	flag.StringVar(&f.rankerName, "ranker", "", "ranking function (default: index.ranker)")
	flag.IntVar(&f.k, "k", 10, "results per query")
	flag.IntVar(&f.workers, "workers", 0, "concurrent queries (default: search.batchWorkers)")
	flag.DurationVar(&f.timeout, "timeout", 0, "per-query timeout (default: search.queryTimeout)")
	flag.BoolVar(&f.onlyComplete, "only-complete", false, "skip queries with a word missing from the vocabulary")
	flag.BoolVar(&f.integers, "integers", false, "queries hold term ids instead of words")
	flag.BoolVar(&f.multiOcc, "multi-occ", false, "suppress documents holding a term exactly once")
	flag.BoolVar(&f.matchOnly, "match-only", false, "score by matched terms only")
	flag.Parse()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg, f); err != nil {
		slog.Error("query run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, f flags) error {
	if f.queries == "" {
		return fmt.Errorf("-queries is required")
	}
	if f.snapshot != "" {
		cfg.Index.SnapshotPath = f.snapshot
	}
	if f.rankerName != "" {
		cfg.Index.Ranker = f.rankerName
	}
	if f.workers <= 0 {
		f.workers = cfg.Search.BatchWorkers
	}
	if f.timeout <= 0 {
		f.timeout = cfg.Search.QueryTimeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx, err := indexer.Open(cfg.Index.SnapshotPath)
	if err != nil {
		return err
	}
	exec, err := executor.New(idx, cfg.Index, executor.WithTracing(cfg.Tracing.Enabled))
	if err != nil {
		return err
	}

	var vocab parser.Vocabulary = idx.Collection()
	if f.dict != "" {
		d, err := loadDictionary(f.dict)
		if err != nil {
			return err
		}
		vocab = d
	}
	qf, err := os.Open(f.queries)
	if err != nil {
		return fmt.Errorf("opening queries: %w", err)
	}
	plans, skipped, err := parser.ParseQueries(qf, vocab, parser.LineOptions{OnlyComplete: f.onlyComplete, Integers: f.integers})
	qf.Close()
	if err != nil {
		return err
	}

	var events *collector.BatchCollector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, false)
		defer producer.Close()
		events = collector.NewBatchCollector(producer, 500, time.Second)
		ectx, cancel := context.WithCancel(context.Background())
		events.Start(ectx)
		defer events.Close()
		// Runs before Close: the flush loop exits on cancel.
		defer cancel()
	}

	start := time.Now()
	items := exec.ExecuteBatch(ctx, plans, executor.BatchOptions{
		Limit:   f.k,
		Search:  topk.Options{MultiOccurrence: f.multiOcc, MatchOnly: f.matchOnly},
		Workers: f.workers,
		Timeout: f.timeout,
	})
	elapsed := time.Since(start)

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	failed := 0
	var pops int
	for _, item := range items {
		if item.Err != nil {
			failed++
			slog.Warn("query failed", "query_id", item.Plan.ID, "error", item.Err)
			continue
		}
		res := item.Result
		pops += res.Stats.Pops
		for rank, hit := range res.Results {
			fmt.Fprintf(out, "%d;%d;%s;%.6f\n", item.Plan.ID, rank+1, hit.DocID, hit.Score)
		}
		if events != nil {
			events.Track("search:"+res.Ranker, analytics.SearchEvent{
				Type:      analytics.ClassifySearch(len(res.Results), res.Missing, false),
				Query:     res.Query,
				QueryID:   res.QueryID,
				Ranker:    res.Ranker,
				Missing:   res.Missing,
				K:         f.k,
				Returned:  len(res.Results),
				LatencyMs: item.Latency.Milliseconds(),
				Pops:      res.Stats.Pops,
				Pruned:    res.Stats.Pruned,
				Timestamp: time.Now().UTC(),
			})
		}
	}

	perQuery := time.Duration(0)
	if len(items) > 0 {
		perQuery = elapsed / time.Duration(len(items))
	}
	slog.Info("query run finished",
		"ranker", exec.Ranker(),
		"queries", len(items),
		"skipped", skipped,
		"failed", failed,
		"elapsed", elapsed.Round(time.Millisecond),
		"per_query", perQuery,
		"frontier_pops", pops,
	)
	return nil
}

func loadDictionary(path string) (*parser.Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dictionary: %w", err)
	}
	defer f.Close()
	return parser.LoadDictionary(f)
}
