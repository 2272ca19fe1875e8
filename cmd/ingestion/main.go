// Command ingestion starts the document intake service.
//
// The service accepts documents via POST /api/v1/documents, validates them,
// upserts them into the PostgreSQL documents table and, with Kafka enabled,
// publishes them to the documents topic. The builder indexes either sink
// (-pg-table documents or -kafka-topic).
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/ingestion/publisher"
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
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping))

	var producer publisher.Producer
	if cfg.Kafka.Enabled {
		p := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Documents, false)
		defer p.Close()
		producer = p
		slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.Documents)
	}

	pub, err := publisher.New(db.DB, producer)
	if err != nil {
		slog.Error("failed to create publisher", "error", err)
		os.Exit(1)
	}
	if err := pub.Migrate(ctx); err != nil {
		slog.Error("documents table migration failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	mux := http.NewServeMux()
	handler.New(pub, m).Register(mux)
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
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
