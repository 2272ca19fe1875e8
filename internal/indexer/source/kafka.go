package source

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/collection"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/kafka"
)

// Kafka reads the ingest events currently retained in a topic. When a
// document id was published more than once only its latest event is
// indexed, so re-ingesting a document replaces it.
type Kafka struct {
	Brokers []string
	Topic   string
}

func (k Kafka) Name() string { return "kafka:" + k.Topic }

func (k Kafka) Each(ctx context.Context, fn func(collection.Document) error) error {
	var latest latestByID
	_, err := kafka.Drain(ctx, k.Brokers, k.Topic, func(_, value []byte) error {
		doc, err := decodeIngestEvent(value)
		if err != nil {
			return err
		}
		latest.add(doc)
		return nil
	})
	if err != nil {
		return err
	}
	return latest.each(fn)
}

// latestByID keeps the last document seen per id, in first-seen order.
type latestByID struct {
	order []string
	docs  map[string]collection.Document
}

func (l *latestByID) add(doc collection.Document) {
	if l.docs == nil {
		l.docs = make(map[string]collection.Document)
	}
	if _, seen := l.docs[doc.ID]; !seen {
		l.order = append(l.order, doc.ID)
	}
	l.docs[doc.ID] = doc
}

func (l *latestByID) each(fn func(collection.Document) error) error {
	for _, id := range l.order {
		if err := fn(l.docs[id]); err != nil {
			return err
		}
	}
	return nil
}

func decodeIngestEvent(value []byte) (collection.Document, error) {
	event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
	if err != nil {
		return collection.Document{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if event.DocumentID == "" {
		return collection.Document{}, fmt.Errorf("%w: ingest event without document_id", apperrors.ErrInvalidInput)
	}
	return collection.Document{ID: event.DocumentID, Title: event.Title, Body: event.Body}, nil
}
