// Command builder indexes a document collection and writes the snapshot
// the searcher and querier load.
//
// Usage:
//
//	go run ./cmd/builder -input docs.jsonl [-out data/index.spdx] [-dict data/dict.txt]
//	go run ./cmd/builder -pg-table documents
//	go run ./cmd/builder -kafka-topic topk.documents
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/collection"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	input := flag.String("input", "", "JSON-lines or .txt document file")
	pgTable := flag.String("pg-table", "", "read documents from this PostgreSQL table instead of -input")
	kafkaTopic := flag.String("kafka-topic", "", "read documents retained in this Kafka topic instead of -input")
	out := flag.String("out", "", "snapshot path (default: index.snapshotPath)")
	dictPath := flag.String("dict", "", "also write the term dictionary here")
	stem := flag.Bool("stem", false, "stem terms")
	dropStop := flag.Bool("drop-stop-words", false, "drop English stop words")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if *out == "" {
		*out = cfg.Index.SnapshotPath
	}
	if err := run(cfg, sourceFlags{input: *input, pgTable: *pgTable, kafkaTopic: *kafkaTopic}, *out, *dictPath, tokenizer.Options{Stem: *stem || cfg.Index.Stem, DropStopWords: *dropStop}); err != nil {
		slog.Error("build failed", "error", err)
		os.Exit(1)
	}
}

type sourceFlags struct {
	input      string
	pgTable    string
	kafkaTopic string
}

func run(cfg *config.Config, flags sourceFlags, out, dictPath string, opts tokenizer.Options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	start := time.Now()

	var src source.Source
	switch {
	case flags.pgTable != "":
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		src = source.Postgres{DB: db.DB, Table: flags.pgTable}
	case flags.kafkaTopic != "":
		src = source.Kafka{Brokers: cfg.Kafka.Brokers, Topic: flags.kafkaTopic}
	case flags.input != "":
		src = source.File{Path: flags.input}
	default:
		return fmt.Errorf("one of -input, -pg-table or -kafka-topic is required")
	}

	b := collection.NewBuilder(opts)
	if _, _, err := source.Load(ctx, src, b); err != nil {
		return err
	}
	c, err := b.Build()
	if err != nil {
		return err
	}
	idx, err := indexer.Build(c)
	if err != nil {
		return err
	}
	header, err := idx.Save(out)
	if err != nil {
		return err
	}
	summary := idx.Summary()
	slog.Info("snapshot written",
		"path", out,
		"documents", summary.Documents,
		"terms", summary.Terms,
		"text_length", summary.TextLength,
		"text_bytes", header.TextSize,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if dictPath != "" {
		if err := writeDictionary(dictPath, c); err != nil {
			return err
		}
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, false)
		defer producer.Close()
		event := analytics.SnapshotEvent{
			Type:       analytics.EventSnapshot,
			Path:       out,
			Documents:  summary.Documents,
			Terms:      summary.Terms,
			TextLength: summary.TextLength,
			LatencyMs:  time.Since(start).Milliseconds(),
			Timestamp:  time.Now().UTC(),
		}
		if err := producer.Publish(ctx, kafka.Event{Key: "snapshot", Value: event}); err != nil {
			slog.Warn("snapshot event not published", "error", err)
		}
	}
	return nil
}

func writeDictionary(path string, c *collection.Collection) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating dictionary: %w", err)
	}
	if _, err := parser.NewDictionary(c.Terms, collection.FirstTermID).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("writing dictionary: %w", err)
	}
	return f.Close()
}
