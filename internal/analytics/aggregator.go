package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/kafka"
)

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	CacheHits         int64            `json:"cache_hits"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	MissingTermCount  int64            `json:"missing_term_count"`
	ErrorCount        int64            `json:"error_count"`
	Snapshots         int64            `json:"snapshots"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	AvgPops           float64          `json:"avg_pops"`
	PruneRatio        float64          `json:"prune_ratio"`
	ByRanker          map[string]int64 `json:"by_ranker"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	TopMissingTerms   []QueryCount     `json:"top_missing_terms"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search events into running statistics. Latencies are
// kept in a bounded ring so percentiles reflect recent traffic.
type Aggregator struct {
	mu          sync.RWMutex
	stats       AggregatedStats
	latencies   []int64
	next        int
	totalPops   int64
	totalPruned int64
	queries     map[string]int64
	zeroResults map[string]int64
	missing     map[string]int64
	startTime   time.Time
	logger      *slog.Logger
}

const latencyWindow = 10000

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:   make([]int64, 0, latencyWindow),
		queries:     make(map[string]int64),
		zeroResults: make(map[string]int64),
		missing:     make(map[string]int64),
		stats:       AggregatedStats{ByRanker: make(map[string]int64)},
		startTime:   time.Now(),
		logger:      slog.Default().With("component", "analytics-aggregator"),
	}
}

// Handler decodes a Kafka message and records it. Undecodable messages are
// logged and acknowledged so they do not block the partition. observe, if
// not nil, is told whether each message was accepted.
func (a *Aggregator) Handler(observe func(accepted bool)) kafka.MessageHandler {
	return func(_ context.Context, _ []byte, value []byte) error {
		err := a.Ingest(value)
		if err != nil {
			a.logger.Error("failed to decode analytics event", "error", err)
		}
		if observe != nil {
			observe(err == nil)
		}
		return nil
	}
}

// Ingest records one JSON-encoded event.
func (a *Aggregator) Ingest(value []byte) error {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return fmt.Errorf("decoding event type: %w", err)
	}
	switch head.Type {
	case EventSnapshot:
		a.mu.Lock()
		a.stats.Snapshots++
		a.mu.Unlock()
		return nil
	case EventSearch, EventCacheHit, EventZeroResult, EventMissingTerms, EventSearchError:
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return err
		}
		a.Record(event)
		return nil
	}
	return fmt.Errorf("unknown event type %q", head.Type)
}

func (a *Aggregator) Record(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalSearches++
	a.stats.ByRanker[event.Ranker]++
	switch event.Type {
	case EventSearchError:
		a.stats.ErrorCount++
		return
	case EventMissingTerms:
		a.stats.MissingTermCount++
		for _, m := range event.Missing {
			a.missing[m]++
		}
	case EventZeroResult:
		a.stats.ZeroResultCount++
		a.zeroResults[event.Query]++
	}
	if event.CacheHit {
		a.stats.CacheHits++
	}
	a.queries[event.Query]++
	a.totalPops += int64(event.Pops)
	a.totalPruned += int64(event.Pruned)

	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % latencyWindow
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	stats.ByRanker = make(map[string]int64, len(a.stats.ByRanker))
	for k, v := range a.stats.ByRanker {
		stats.ByRanker[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if executed := stats.TotalSearches - stats.ErrorCount; executed > 0 {
		stats.AvgPops = float64(a.totalPops) / float64(executed)
	}
	if seen := a.totalPops + a.totalPruned; seen > 0 {
		stats.PruneRatio = float64(a.totalPruned) / float64(seen)
	}
	stats.TopQueries = topN(a.queries, 10)
	stats.ZeroResultQueries = topN(a.zeroResults, 10)
	stats.TopMissingTerms = topN(a.missing, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n largest counts, ties broken by key.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(a, b QueryCount) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		if a.Query < b.Query {
			return -1
		}
		if a.Query > b.Query {
			return 1
		}
		return 0
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
