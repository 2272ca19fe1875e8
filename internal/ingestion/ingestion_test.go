package ingestion_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/metrics"
)

type fakeDB struct {
	queries []string
	args    [][]any
	err     error
}

func (f *fakeDB) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return nil, f.err
}

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (f *fakeProducer) Publish(_ context.Context, e kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func TestValidateIngestRequest(t *testing.T) {
	assert.NoError(t, validator.ValidateIngestRequest(&ingestion.IngestRequest{Body: "wavelet tree"}))

	err := validator.ValidateIngestRequest(&ingestion.IngestRequest{
		DocumentID: " d1",
		Title:      strings.Repeat("t", 2000),
		Body:       "   ",
	})
	var verr *validator.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
	assert.Contains(t, verr.Fields, "document_id")
	assert.Contains(t, verr.Fields, "title")
	assert.Contains(t, verr.Fields, "body")
	assert.True(t, strings.HasPrefix(err.Error(), "body: "))
}

func TestPublisherStoresAndPublishes(t *testing.T) {
	db := &fakeDB{}
	prod := &fakeProducer{}
	pub, err := publisher.New(db, prod)
	require.NoError(t, err)
	require.NoError(t, pub.Migrate(context.Background()))

	resp, err := pub.Ingest(context.Background(), &ingestion.IngestRequest{DocumentID: "d1", Title: "T", Body: "wavelet"})
	require.NoError(t, err)
	assert.Equal(t, "d1", resp.DocumentID)
	assert.Equal(t, ingestion.StatusPublished, resp.Status)
	require.Len(t, db.queries, 2)
	assert.Contains(t, db.queries[0], "CREATE TABLE IF NOT EXISTS documents")
	assert.Equal(t, "d1", db.args[1][0])
	require.Len(t, prod.events, 1)
	assert.Equal(t, "d1", prod.events[0].Key)
	event := prod.events[0].Value.(ingestion.IngestEvent)
	assert.Equal(t, "wavelet", event.Body)
}

func TestPublisherAssignsID(t *testing.T) {
	prod := &fakeProducer{}
	pub, err := publisher.New(nil, prod)
	require.NoError(t, err)
	resp, err := pub.Ingest(context.Background(), &ingestion.IngestRequest{Body: "tree"})
	require.NoError(t, err)
	assert.Len(t, resp.DocumentID, 36)
	assert.Equal(t, resp.DocumentID, prod.events[0].Key)
}

func TestPublisherPublishFailure(t *testing.T) {
	boom := errors.New("broker down")

	pub, err := publisher.New(&fakeDB{}, &fakeProducer{err: boom})
	require.NoError(t, err)
	resp, err := pub.Ingest(context.Background(), &ingestion.IngestRequest{DocumentID: "d1", Body: "x"})
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusStored, resp.Status)

	pub, err = publisher.New(nil, &fakeProducer{err: boom})
	require.NoError(t, err)
	_, err = pub.Ingest(context.Background(), &ingestion.IngestRequest{DocumentID: "d1", Body: "x"})
	assert.ErrorIs(t, err, boom)

	_, err = publisher.New(nil, nil)
	assert.Error(t, err)
}

func TestHandlerIngest(t *testing.T) {
	pub, err := publisher.New(&fakeDB{}, nil)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	mux := http.NewServeMux()
	handler.New(pub, m).Register(mux)

	body, _ := json.Marshal(ingestion.IngestRequest{DocumentID: "d7", Body: "suffix array"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp ingestion.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ingestion.IngestResponse{DocumentID: "d7", Status: ingestion.StatusStored}, resp)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(`{"body":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation failed")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `topk_documents_ingested_total{status="stored"} 1`)
	assert.Contains(t, rec.Body.String(), `topk_documents_ingested_total{status="rejected"} 2`)
}

func TestHandlerStoreFailure(t *testing.T) {
	pub, err := publisher.New(&fakeDB{err: errors.New("db down")}, nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	handler.New(pub, nil).Ingest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(`{"body":"x"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "ingestion failed")
}
