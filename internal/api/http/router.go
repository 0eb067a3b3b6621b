package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"energyiq/internal/audit"
	"energyiq/internal/auth"
)

// Deps are the collaborators served by the router.
type Deps struct {
	Stats   StatsService
	Reports ReportExporter
	Jobs    JobRunner
	// Ingest serves POST /ingest/readings when set.
	Ingest http.Handler
	Auth   *auth.Middleware
	// Audit records manual job runs and report exports when set.
	Audit audit.Logger
	// Health reports store readiness for /healthz.
	Health         func(ctx context.Context) error
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(d Deps) (http.Handler, error) {
	if d.Stats == nil {
		return nil, errors.New("api router: nil stats service")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	h := &routes{stats: d.Stats, reports: d.Reports, jobs: d.Jobs, audit: d.Audit, logger: d.Logger}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthHandler(d.Health)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	e := api.PathPrefix("/energy").Subrouter()
	e.HandleFunc("/stats", energy(h, "energy.stats", d.Stats.PeriodStats)).Methods(http.MethodGet)
	e.HandleFunc("/peakOffPeakRatio", energy(h, "energy.peakOffPeakRatio", d.Stats.PeakOffPeakRatio)).Methods(http.MethodGet)
	e.HandleFunc("/totalUsage", energy(h, "energy.totalUsage", d.Stats.TotalEnergyUsage)).Methods(http.MethodGet)
	e.HandleFunc("/peakHour", energy(h, "energy.peakHour", d.Stats.PeakHour)).Methods(http.MethodGet)
	e.HandleFunc("/getConsumptionChartData", energy(h, "energy.chart", d.Stats.ConsumptionChart)).Methods(http.MethodGet)
	e.HandleFunc("/getTotalCost", energy(h, "energy.totalCost", d.Stats.TotalCost)).Methods(http.MethodGet)
	e.HandleFunc("/getCostBreakDownByDevices", energy(h, "energy.costByDevice", d.Stats.CostBreakdownByDevice)).Methods(http.MethodGet)
	e.HandleFunc("/getTotalEnergyUsageByDevice", energy(h, "energy.usageByDevice", d.Stats.EnergyUsageByDevice)).Methods(http.MethodGet)

	api.HandleFunc("/insights", h.listInsights).Methods(http.MethodGet)
	api.HandleFunc("/insights/getProjectedEnergyUsage", projection(h, "insights.projectedEnergy", d.Stats.ProjectedEnergy)).Methods(http.MethodGet)
	api.HandleFunc("/insights/getProjectedCost", projection(h, "insights.projectedCost", d.Stats.ProjectedCost)).Methods(http.MethodGet)
	api.HandleFunc("/insights/getDevices", h.listDevices).Methods(http.MethodGet)

	if d.Reports != nil {
		api.HandleFunc("/reports/aggregates.{format:xlsx|pdf}", h.exportReport).Methods(http.MethodGet)
	}
	if d.Jobs != nil {
		api.HandleFunc("/jobs/runs", h.listRuns).Methods(http.MethodGet)
		api.HandleFunc("/jobs/{name}/run", h.runJob).Methods(http.MethodPost)
	}
	if d.Ingest != nil {
		r.Handle("/ingest/readings", d.Ingest).Methods(http.MethodPost)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	var handler http.Handler = r
	if d.Auth != nil {
		handler = d.Auth.Wrap(handler)
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(handler), nil
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				writeMessage(w, http.StatusServiceUnavailable, "store unavailable")
				return
			}
		}
		writeData(w, map[string]string{"status": "ok"})
	}
}
