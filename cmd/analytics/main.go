// Command analytics consumes search events from Kafka, aggregates them in
// memory (latency percentiles, zero-result and missing-term queries, frontier
// work per query, traffic per ranking function) and serves the aggregate at
// GET /api/v1/analytics/stats. With PostgreSQL reachable, snapshots of the
// aggregate are persisted every minute.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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
	"time"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	snapshotEvery := flag.Duration("snapshot-interval", time.Minute, "how often to persist the aggregate")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, true,
		agg.Handler(func(accepted bool) {
			status := "accepted"
			if !accepted {
				status = "rejected"
			}
			m.AnalyticsEventsTotal.WithLabelValues(status).Inc()
		}))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("consumer error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.SearchEvents)

	checker := health.NewChecker()
	checker.Register("consumer", func(context.Context) health.ComponentHealth {
		processed, failed := consumer.Counts()
		status := health.StatusUp
		if failed > 0 && processed == 0 {
			status = health.StatusDegraded
		}
		return health.ComponentHealth{Status: status, Message: fmt.Sprintf("%d processed, %d failed", processed, failed)}
	})

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
	} else {
		defer db.Close()
		store := aggregator.NewStore(db.DB)
		if err := store.Migrate(ctx); err != nil {
			slog.Error("snapshot table migration failed", "error", err)
			os.Exit(1)
		}
		store.StartPeriodicSave(ctx, agg, *snapshotEvery)
		checker.Register("postgres", health.OptionalCheck(health.PingCheck(db.Ping)))
	}

	mux := http.NewServeMux()
	analytics.NewHandler(agg).Register(mux)
	mux.HandleFunc("GET /health", checker.LiveHandler())
	mux.HandleFunc("GET /ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.Metrics(m)),
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
