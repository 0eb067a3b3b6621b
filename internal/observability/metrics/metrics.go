package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "energyiq_"

	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
	resultTimeout = "timeout"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec
	ingestReadings prometheus.Counter

	consumerLag *prometheus.GaugeVec

	aggregatorRuns       *prometheus.CounterVec
	aggregatorLatency    *prometheus.HistogramVec
	aggregatorDeviceDays prometheus.Counter

	insightRuns      *prometheus.CounterVec
	insightLatency   *prometheus.HistogramVec
	insightGenerated prometheus.Counter

	jobRuns    *prometheus.CounterVec
	jobLatency *prometheus.HistogramVec

	reportExportTotal   *prometheus.CounterVec
	reportExportLatency *prometheus.HistogramVec

	authRejections *prometheus.CounterVec
)

// Init registers pipeline metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		ingestReadings = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_readings_total",
				Help: "Total readings stored",
			},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "consumer_lag_seconds",
				Help: "Reading consumer lag in seconds",
			},
			[]string{"consumer"},
		)

		aggregatorRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregator_runs_total",
				Help: "Total aggregator runs by result",
			},
			[]string{"result"},
		)
		aggregatorLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "aggregator_run_latency_seconds",
				Help:    "Aggregator run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		aggregatorDeviceDays = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregator_device_days_total",
				Help: "Total device-days committed by the aggregator",
			},
		)

		insightRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "insight_runs_total",
				Help: "Total insight generator runs by result",
			},
			[]string{"result"},
		)
		insightLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "insight_run_latency_seconds",
				Help:    "Insight generator run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		insightGenerated = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "insights_generated_total",
				Help: "Total insight rows persisted",
			},
		)

		jobRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "job_runs_total",
				Help: "Total scheduled job executions by job and result",
			},
			[]string{"job", "result"},
		)
		jobLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "job_latency_seconds",
				Help:    "Scheduled job latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 600},
			},
			[]string{"job"},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)
		authRejections = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "auth_rejections_total",
				Help: "API requests rejected by auth, by reason",
			},
			[]string{"reason"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			ingestReadings,
			consumerLag,
			aggregatorRuns,
			aggregatorLatency,
			aggregatorDeviceDays,
			insightRuns,
			insightLatency,
			insightGenerated,
			jobRuns,
			jobLatency,
			reportExportTotal,
			reportExportLatency,
			authRejections,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest request duration, result and stored reading count.
func ObserveIngest(result string, duration time.Duration, stored int) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if ingestReadings != nil && stored > 0 {
		ingestReadings.Add(float64(stored))
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// ObserveAggregatorRun records an aggregator run.
func ObserveAggregatorRun(result string, duration time.Duration, deviceDays int) {
	if result == "" {
		result = resultSuccess
	}
	if aggregatorRuns != nil {
		aggregatorRuns.WithLabelValues(result).Inc()
	}
	if aggregatorLatency != nil {
		aggregatorLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if aggregatorDeviceDays != nil && deviceDays > 0 {
		aggregatorDeviceDays.Add(float64(deviceDays))
	}
}

// ObserveInsightRun records an insight generator run.
func ObserveInsightRun(result string, duration time.Duration, generated int) {
	if result == "" {
		result = resultSuccess
	}
	if insightRuns != nil {
		insightRuns.WithLabelValues(result).Inc()
	}
	if insightLatency != nil {
		insightLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if insightGenerated != nil && generated > 0 {
		insightGenerated.Add(float64(generated))
	}
}

// ObserveJob records a scheduled job execution.
func ObserveJob(job, result string, duration time.Duration) {
	if job == "" {
		job = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if jobRuns != nil {
		jobRuns.WithLabelValues(job, result).Inc()
	}
	if jobLatency != nil && result != resultSkipped {
		jobLatency.WithLabelValues(job).Observe(duration.Seconds())
	}
}

// ObserveReportExport records export latency and result.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultSkipped = resultSkipped
	ResultTimeout = resultTimeout
)

// IncAuthRejection counts a request refused by the auth middleware.
func IncAuthRejection(reason string) {
	if authRejections != nil {
		authRejections.WithLabelValues(reason).Inc()
	}
}
