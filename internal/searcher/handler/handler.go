// Package handler exposes the search executor over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/topk"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/logger"
)

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int, opts topk.Options) (*executor.SearchResult, error)
	Ranker() string
}

// EventTracker receives one analytics event per query.
type EventTracker interface {
	Track(event any)
}

type IndexInfo interface {
	Summary() indexer.Summary
}

type Config struct {
	DefaultLimit int
	MaxResults   int
	Tokenizer    tokenizer.Options
}

type Handler struct {
	executor SearchExecutor
	vocab    parser.Vocabulary
	index    IndexInfo
	cache    *cache.QueryCache
	tracker  EventTracker
	cfg      Config
	logger   *slog.Logger
}

// New builds a handler. queryCache and tracker may be nil.
func New(exec SearchExecutor, vocab parser.Vocabulary, index IndexInfo, queryCache *cache.QueryCache, tracker EventTracker, cfg Config) *Handler {
	return &Handler{
		executor: exec,
		vocab:    vocab,
		index:    index,
		cache:    queryCache,
		tracker:  tracker,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search answers GET /api/v1/search?q=...&k=...&multi_occ=...&match_only=...
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	q := r.URL.Query()

	query := q.Get("q")
	if query == "" {
		h.writeError(w, fmt.Errorf("%w: query parameter 'q' is required", apperrors.ErrInvalidInput))
		return
	}
	limit, err := h.parseLimit(q.Get("k"), q.Get("limit"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	var opts topk.Options
	if opts.MultiOccurrence, err = parseBool(q.Get("multi_occ"), "multi_occ"); err != nil {
		h.writeError(w, err)
		return
	}
	if opts.MatchOnly, err = parseBool(q.Get("match_only"), "match_only"); err != nil {
		h.writeError(w, err)
		return
	}

	plan := parser.ParseText(query, h.vocab, h.cfg.Tokenizer)
	if len(plan.Terms) == 0 {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{
			Query:   query,
			Ranker:  h.executor.Ranker(),
			Results: []executor.Hit{},
			Terms:   []executor.TermStat{},
		})
		return
	}

	compute := func() (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, plan, limit, opts)
	}
	var result *executor.SearchResult
	cacheHit := false
	if h.cache != nil && plan.Type == parser.QueryAND {
		key := cache.Key{Ranker: h.executor.Ranker(), Limit: limit, Opts: opts, Terms: plan.Terms}
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, compute)
	} else {
		result, err = compute()
	}
	latency := time.Since(start)
	if err != nil {
		log.Warn("search failed", "query", query, "error", err)
		h.track(ctx, analytics.SearchEvent{Type: analytics.EventSearchError, Query: query, K: limit, LatencyMs: latency.Milliseconds()})
		h.writeError(w, err)
		return
	}

	log.Info("search completed",
		"query", query,
		"k", limit,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	terms := make([]string, len(plan.Terms))
	for i, t := range plan.Terms {
		terms[i] = t.Text
	}
	h.track(ctx, analytics.SearchEvent{
		Type:      analytics.ClassifySearch(len(result.Results), result.Missing, cacheHit),
		Query:     query,
		Terms:     terms,
		Missing:   result.Missing,
		K:         limit,
		Returned:  len(result.Results),
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Pops:      result.Stats.Pops,
		Pruned:    result.Stats.Pruned,
	})
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) track(ctx context.Context, event analytics.SearchEvent) {
	if h.tracker == nil {
		return
	}
	event.Ranker = h.executor.Ranker()
	event.Timestamp = time.Now().UTC()
	event.RequestID = logger.RequestID(ctx)
	h.tracker.Track(event)
}

// parseLimit reads k, falling back to limit and then the default. Values
// above MaxResults are clamped.
func (h *Handler) parseLimit(k, limit string) (int, error) {
	s := k
	if s == "" {
		s = limit
	}
	if s == "" {
		return h.cfg.DefaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: k must be a non-negative integer, got %q", apperrors.ErrInvalidInput, s)
	}
	if h.cfg.MaxResults > 0 && n > h.cfg.MaxResults {
		n = h.cfg.MaxResults
	}
	return n, nil
}

func parseBool(s, name string) (bool, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", apperrors.ErrInvalidInput, name, s)
	}
	return b, nil
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"ranker": h.executor.Ranker(),
		"index":  h.index.Summary(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Internal errors are not echoed to
// the client.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "search failed"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		status, msg = http.StatusGatewayTimeout, "search timed out"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
