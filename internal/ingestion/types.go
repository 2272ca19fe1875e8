// Package ingestion defines the request/response types and Kafka event schema
// of the document intake service that feeds the index builder.
package ingestion

import "time"

// IngestRequest is the JSON body accepted by POST /api/v1/documents. An
// empty DocumentID is assigned by the service.
type IngestRequest struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// IngestEvent is the message published to the documents topic. The builder
// reads it back through the Kafka document source.
type IngestEvent struct {
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	IngestedAt time.Time `json:"ingested_at"`
}

const (
	StatusStored    = "STORED"
	StatusPublished = "PUBLISHED"
)
