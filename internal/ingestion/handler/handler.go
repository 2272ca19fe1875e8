package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/metrics"
)

// maxRequestBytes bounds the request body, a little above the body limit.
const maxRequestBytes = 2 << 20

// Ingester is satisfied by *publisher.Publisher.
type Ingester interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
}

type Handler struct {
	ingester Ingester
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Handler; m may be nil.
func New(ing Ingester, m *metrics.Metrics) *Handler {
	return &Handler{
		ingester: ing,
		metrics:  m,
		logger:   slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) count(status string) {
	if h.metrics != nil {
		h.metrics.DocumentsIngested.WithLabelValues(status).Inc()
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.count("rejected")
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req); err != nil {
		h.count("rejected")
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.ingester.Ingest(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"error", err,
			"status_code", statusCode,
		)
		h.count("failed")
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	h.count(strings.ToLower(resp.Status))
	log.Info("document ingested",
		"doc_id", resp.DocumentID,
		"status", resp.Status,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
