// Package publisher stores accepted documents in PostgreSQL and publishes
// them to the documents topic. Either sink may be absent; the builder can
// read from whichever is configured.
package publisher

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/kafka"
)

// Schema creates the documents table read by the PostgreSQL document
// source.
const Schema = `CREATE TABLE IF NOT EXISTS documents (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    body        TEXT NOT NULL,
    ingested_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// DB is the subset of *sql.DB the publisher uses.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Producer is satisfied by *kafka.Producer.
type Producer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Publisher struct {
	db       DB
	producer Producer
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Publisher. db or producer may be nil, not both.
func New(db DB, producer Producer) (*Publisher, error) {
	if db == nil && producer == nil {
		return nil, fmt.Errorf("publisher needs a database or a kafka producer")
	}
	return &Publisher{
		db:       db,
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Migrate creates the documents table when a database is configured.
func (p *Publisher) Migrate(ctx context.Context) error {
	if p.db == nil {
		return nil
	}
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}

// Ingest upserts the document and publishes an IngestEvent keyed by its id.
// A failed publish after a successful store is logged and the document is
// reported as stored only.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	docID := req.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}
	now := p.now()

	if p.db != nil {
		_, err := p.db.ExecContext(ctx,
			`INSERT INTO documents (id, title, body, ingested_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, body = EXCLUDED.body, ingested_at = EXCLUDED.ingested_at`,
			docID, req.Title, req.Body, now)
		if err != nil {
			return nil, fmt.Errorf("storing document %s: %w", docID, err)
		}
	}
	resp := &ingestion.IngestResponse{DocumentID: docID, Status: ingestion.StatusStored}
	if p.producer == nil {
		return resp, nil
	}

	event := kafka.Event{
		Key: docID,
		Value: ingestion.IngestEvent{
			DocumentID: docID,
			Title:      req.Title,
			Body:       req.Body,
			IngestedAt: now,
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		if p.db == nil {
			return nil, fmt.Errorf("publishing document %s: %w", docID, err)
		}
		p.logger.Error("failed to publish document, stored only",
			"doc_id", docID,
			"error", err,
		)
		return resp, nil
	}
	resp.Status = ingestion.StatusPublished
	return resp, nil
}
