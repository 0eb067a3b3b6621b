package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"energyiq/internal/reports"
	"energyiq/internal/scheduler"
	stats "energyiq/internal/stats/domain"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// writeError maps service errors to status codes. Store failures never leak
// their text to clients.
func writeError(w http.ResponseWriter, logger *zap.Logger, route string, err error) {
	switch {
	case errors.Is(err, stats.ErrInvalidPeriod),
		errors.Is(err, stats.ErrInvalidDate),
		errors.Is(err, reports.ErrInvalidKind),
		errors.Is(err, reports.ErrInvalidFormat),
		errors.Is(err, errInvalidLimit):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrJobBusy):
		writeMessage(w, http.StatusConflict, err.Error())
	default:
		logger.Error("request failed", zap.String("route", route), zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

var errInvalidLimit = errors.New("limit must be a positive integer")

func parseLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errInvalidLimit
	}
	return limit, nil
}
