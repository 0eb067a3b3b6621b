package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"energyiq/internal/audit"
	"energyiq/internal/auth"
	insights "energyiq/internal/insights/domain"
	masterdata "energyiq/internal/masterdata/domain"
	"energyiq/internal/reports"
	"energyiq/internal/scheduler"
	statsapp "energyiq/internal/stats/application"
)

// StatsService answers the dashboard queries.
type StatsService interface {
	PeriodStats(ctx context.Context, q statsapp.Query) (statsapp.PeriodStats, error)
	PeakOffPeakRatio(ctx context.Context, q statsapp.Query) (statsapp.RatioResult, error)
	TotalEnergyUsage(ctx context.Context, q statsapp.Query) (statsapp.Comparison, error)
	TotalCost(ctx context.Context, q statsapp.Query) (statsapp.Comparison, error)
	PeakHour(ctx context.Context, q statsapp.Query) (statsapp.PeakResult, error)
	ConsumptionChart(ctx context.Context, q statsapp.Query) (statsapp.ChartComparison, error)
	CostBreakdownByDevice(ctx context.Context, q statsapp.Query) (statsapp.Chart, error)
	EnergyUsageByDevice(ctx context.Context, q statsapp.Query) (statsapp.DeviceBreakdown, error)
	ProjectedEnergy(ctx context.Context, date, deviceID string) (statsapp.ProjectionResult, error)
	ProjectedCost(ctx context.Context, date, deviceID string) (statsapp.ProjectionResult, error)
	Insights(ctx context.Context, limit int) ([]insights.Insight, error)
	Devices(ctx context.Context) ([]masterdata.Device, error)
}

// ReportExporter renders aggregate reports.
type ReportExporter interface {
	Export(ctx context.Context, req reports.Request) (*reports.File, error)
}

// JobRunner triggers jobs and lists the run ledger.
type JobRunner interface {
	TriggerNow(ctx context.Context, name string) (scheduler.Run, error)
	Runs(ctx context.Context, limit int) ([]scheduler.Run, error)
}

type routes struct {
	stats   StatsService
	reports ReportExporter
	jobs    JobRunner
	audit   audit.Logger
	logger  *zap.Logger
}

func periodQuery(r *http.Request) statsapp.Query {
	q := r.URL.Query()
	return statsapp.Query{Date: q.Get("date"), Period: q.Get("type")}
}

// energy adapts a period query to a handler.
func energy[T any](h *routes, route string, fn func(context.Context, statsapp.Query) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := fn(r.Context(), periodQuery(r))
		if err != nil {
			writeError(w, h.logger, route, err)
			return
		}
		writeData(w, out)
	}
}

func projection(h *routes, route string, fn func(context.Context, string, string) (statsapp.ProjectionResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		out, err := fn(r.Context(), q.Get("date"), q.Get("deviceId"))
		if err != nil {
			writeError(w, h.logger, route, err)
			return
		}
		writeData(w, out)
	}
}

type insightView struct {
	ID          string    `json:"id"`
	BatchID     string    `json:"batch_id"`
	DeviceID    string    `json:"device_id"`
	InsightDate string    `json:"insight_date"`
	InsightText string    `json:"insight_text"`
	Relevancy   float64   `json:"relevancy"`
	Rank        int       `json:"rank"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *routes) listInsights(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 0)
	if err != nil {
		writeError(w, h.logger, "insights", err)
		return
	}
	rows, err := h.stats.Insights(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, "insights", err)
		return
	}
	out := make([]insightView, 0, len(rows))
	for _, row := range rows {
		out = append(out, insightView{
			ID:          row.ID.String(),
			BatchID:     row.BatchID.String(),
			DeviceID:    row.DeviceID,
			InsightDate: row.Date.Format("2006-01-02"),
			InsightText: row.Text,
			Relevancy:   row.Relevancy,
			Rank:        row.Rank,
			CreatedAt:   row.CreatedAt,
		})
	}
	writeData(w, out)
}

type deviceView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

func (h *routes) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.stats.Devices(r.Context())
	if err != nil {
		writeError(w, h.logger, "devices", err)
		return
	}
	out := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceView{ID: d.ID, Name: d.Name, Unit: d.Unit})
	}
	writeData(w, out)
}

func (h *routes) exportReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := reports.Request{
		Format:   mux.Vars(r)["format"],
		Kind:     q.Get("type"),
		Date:     q.Get("date"),
		DeviceID: q.Get("deviceId"),
	}
	file, err := h.reports.Export(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "reports", err)
		return
	}
	h.logAudit(r, audit.ActionReportExport, "report", file.Name, map[string]any{
		"format":    req.Format,
		"type":      req.Kind,
		"date":      req.Date,
		"device_id": req.DeviceID,
	})
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+file.Name+"\"")
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Body)
}

func (h *routes) runJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	run, err := h.jobs.TriggerNow(r.Context(), name)
	if err != nil && run.ID == uuid.Nil {
		writeError(w, h.logger, "jobs", err)
		return
	}
	if err != nil {
		// the run happened and failed; the ledger row carries the reason
		h.logger.Warn("manual job run failed", zap.String("job", name), zap.Error(err))
	}
	h.logAudit(r, audit.ActionJobRun, "job", run.ID.String(), map[string]any{
		"job":    name,
		"status": run.Status,
	})
	writeData(w, run)
}

func (h *routes) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 20)
	if err != nil {
		writeError(w, h.logger, "jobs", err)
		return
	}
	runs, err := h.jobs.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, "jobs", err)
		return
	}
	writeData(w, runs)
}

func (h *routes) logAudit(r *http.Request, action, resourceType, resourceID string, metadata map[string]any) {
	if h.audit == nil {
		return
	}
	meta, _ := json.Marshal(metadata)
	err := h.audit.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
