// Command searcher serves ranked top-k search over an index snapshot.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "snapshot", cfg.Index.SnapshotPath, "ranker", cfg.Index.Ranker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	idx, err := indexer.Open(cfg.Index.SnapshotPath)
	if err != nil {
		slog.Error("failed to load index", "path", cfg.Index.SnapshotPath, "error", err)
		os.Exit(1)
	}
	exec, err := executor.New(idx, cfg.Index, executor.WithMetrics(m), executor.WithTracing(cfg.Tracing.Enabled))
	if err != nil {
		slog.Error("failed to create executor", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("index", health.IndexCheck(idx.Collection().NumDocs))

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.OptionalCheck(health.PingCheck(redisClient.Ping)))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var tracker handler.EventTracker
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, false)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 10000)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.SearchEvents)
	}

	h := handler.New(exec, idx.Collection(), idx, queryCache, tracker, handler.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
		Tokenizer:    idx.Collection().Options,
	})
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health", checker.LiveHandler())
	mux.HandleFunc("GET /ready", checker.ReadyHandler())

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.Timeout(cfg.Search.QueryTimeout),
	)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "documents", idx.Summary().Documents)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}
