package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"energyiq/internal/observability/metrics"
	"energyiq/internal/telemetry/application"
)

const maxBodyBytes = 16 << 20

// IngestHandler accepts bulk device and reading loads.
type IngestHandler struct {
	service *application.IngestService
	logger  *zap.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(service *application.IngestService, logger *zap.Logger) (*IngestHandler, error) {
	if service == nil {
		return nil, errors.New("reading ingest: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{service: service, logger: logger}, nil
}

// ServeHTTP ingests one batch.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("reading ingest: read body error", zap.Error(err))
		metrics.IncIngestError("read_body")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start), 0)
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "read body error"})
		return
	}

	batch, err := application.DecodeBatch(body)
	if err != nil {
		h.logger.Warn("reading ingest: invalid payload", zap.Error(err))
		metrics.IncIngestError("invalid_payload")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start), 0)
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
		return
	}

	result, err := h.service.Ingest(r.Context(), batch)
	if err != nil {
		status := http.StatusInternalServerError
		reason := "store"
		message := "failed to store readings"
		if application.IsValidation(err) {
			status = http.StatusBadRequest
			reason = "invalid_payload"
			message = err.Error()
		}
		h.logger.Warn("reading ingest failed", zap.Error(err))
		metrics.IncIngestError(reason)
		metrics.ObserveIngest(metrics.ResultError, time.Since(start), 0)
		writeJSON(w, status, map[string]any{"success": false, "message": message})
		return
	}

	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start), result.Inserted)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]int{
			"devices":  result.Devices,
			"received": result.Received,
			"inserted": result.Inserted,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
