package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mdmemory "energyiq/internal/masterdata/infrastructure/memory"
	"energyiq/internal/telemetry/application"
	"energyiq/internal/telemetry/infrastructure/memory"
)

func newHandler(t *testing.T) (*IngestHandler, *memory.ReadingRepository) {
	t.Helper()
	readings := memory.NewReadingRepository()
	service, err := application.NewIngestService(mdmemory.NewDeviceRepository(), readings, nil)
	require.NoError(t, err)
	handler, err := NewIngestHandler(service, nil)
	require.NoError(t, err)
	return handler, readings
}

func TestIngestHandler_Accepts(t *testing.T) {
	handler, readings := newHandler(t)
	body := `{"devices":[{"id":"dev-1","name":"Fridge"}],"readings":[{"deviceId":"dev-1","timestamp":"2024-12-01T10:00:00Z","energyKwh":1.5}]}`

	req := httptest.NewRequest(http.MethodPost, "/ingest/readings", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var decoded struct {
		Success bool           `json:"success"`
		Data    map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &decoded))
	assert.True(t, decoded.Success)
	assert.Equal(t, 1, decoded.Data["inserted"])
	assert.Len(t, readings.Readings(), 1)
}

func TestIngestHandler_RejectsBadPayload(t *testing.T) {
	handler, _ := newHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/ingest/readings", strings.NewReader(`{"readings":[{"deviceId":"d","energyKwh":1}]}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	req = httptest.NewRequest(http.MethodGet, "/ingest/readings", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestIngestHandler_StoreFailureIs500(t *testing.T) {
	handler, readings := newHandler(t)
	readings.Err = errors.New("connection refused")

	body := `{"readings":[{"deviceId":"dev-1","timestamp":"2024-12-01T10:00:00Z","energyKwh":1.5}]}`
	req := httptest.NewRequest(http.MethodPost, "/ingest/readings", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}
