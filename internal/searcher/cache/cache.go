// Package cache memoises search results in Redis. Keys are derived from the
// resolved query, so different spellings of the same term multiset share an
// entry. Concurrent misses for one key are collapsed with singleflight, and
// a circuit breaker stops talking to a Redis that keeps failing.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/topk"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/resilience"
)

const keyPrefix = "topk:"

// Store is the key-value backend; *redis.Client implements it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies a cached result.
type Key struct {
	Ranker string
	Limit  int
	Opts   topk.Options
	Terms  []parser.QueryTerm
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache over store. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
	}
	if m != nil {
		cbCfg.OnStateChange = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("redis-cache", cbCfg),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, key Key) (*executor.SearchResult, bool) {
	k := BuildKey(key)
	var data []byte
	var found bool
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.store.Get(ctx, k)
		return err
	})
	if err != nil {
		c.logger.Error("cache get failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	if !found {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", k)
	return &result, true
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) Set(ctx context.Context, key Key, result *executor.SearchResult) {
	k := BuildKey(key)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, k, data, c.ttl)
	})
	if err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached result for key or computes, stores and
// returns it. cached reports whether the result came from the cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	compute func() (*executor.SearchResult, error),
) (result *executor.SearchResult, cached bool, err error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(BuildKey(key), func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BuildKey hashes the ranking function, limit, search options and the
// sorted term multiset.
func BuildKey(key Key) string {
	terms := make([]string, 0, len(key.Terms))
	for _, t := range key.Terms {
		freq := t.Freq
		if freq == 0 {
			freq = 1
		}
		if t.Tokens == nil {
			terms = append(terms, "?"+t.Text+"*"+strconv.FormatUint(freq, 10))
			continue
		}
		toks := make([]string, len(t.Tokens))
		for i, tok := range t.Tokens {
			toks[i] = strconv.FormatUint(tok, 10)
		}
		terms = append(terms, strings.Join(toks, ".")+"*"+strconv.FormatUint(freq, 10))
	}
	slices.Sort(terms)
	raw := fmt.Sprintf("%s|k=%d|multi=%t|match=%t|%s",
		key.Ranker, key.Limit, key.Opts.MultiOccurrence, key.Opts.MatchOnly, strings.Join(terms, ","))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
