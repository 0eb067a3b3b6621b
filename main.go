package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alitto/pond/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	analyticsapp "energyiq/internal/analytics/application"
	aggregate "energyiq/internal/analytics/domain/aggregate"
	analyticsrepo "energyiq/internal/analytics/infrastructure/postgres"
	apihttp "energyiq/internal/api/http"
	"energyiq/internal/audit"
	"energyiq/internal/auth"
	"energyiq/internal/config"
	insightsapp "energyiq/internal/insights/application"
	insightsrepo "energyiq/internal/insights/infrastructure/postgres"
	masterdatarepo "energyiq/internal/masterdata/infrastructure/postgres"
	"energyiq/internal/observability/logging"
	"energyiq/internal/observability/metrics"
	"energyiq/internal/reports"
	"energyiq/internal/scheduler"
	schedulerrepo "energyiq/internal/scheduler/infrastructure/postgres"
	"energyiq/internal/scheduler/lock"
	"energyiq/internal/scheduler/notify"
	statsapp "energyiq/internal/stats/application"
	statsrepo "energyiq/internal/stats/infrastructure/postgres"
	telemetryapp "energyiq/internal/telemetry/application"
	telemetrypostgres "energyiq/internal/telemetry/infrastructure/postgres"
	telemetryhttp "energyiq/internal/telemetry/interfaces/http"
	telemetrykafka "energyiq/internal/telemetry/interfaces/kafka"
)

func main() {
	logger, err := logging.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}
	pipeline, err := config.LoadPipeline()
	if err != nil {
		logger.Fatal("pipeline config error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open error", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("db ping error", zap.Error(err))
	}

	metrics.Init(db, logger)

	// stores
	aggregateStore, err := analyticsrepo.NewAggregateStore(db)
	if err != nil {
		logger.Fatal("aggregate store error", zap.Error(err))
	}
	insightRepo, err := insightsrepo.NewInsightRepository(db)
	if err != nil {
		logger.Fatal("insight repository error", zap.Error(err))
	}
	deviceRepo := masterdatarepo.NewDeviceRepository(db)
	readingRepo := telemetrypostgres.NewReadingRepository(db)
	readingQuery, err := statsrepo.NewReadingQuery(db, statsrepo.WithLocation(pipeline.Location()))
	if err != nil {
		logger.Fatal("reading query error", zap.Error(err))
	}

	// batch pipeline
	clock := aggregate.SystemClock{}
	aggregator, err := analyticsapp.NewAggregator(aggregateStore, pipeline.AggregationPolicy(), clock, logger.Named("aggregator"))
	if err != nil {
		logger.Fatal("aggregator error", zap.Error(err))
	}
	generator, err := insightsapp.NewGenerator(insightRepo, insightRepo, pipeline.Rules(), clock, logger.Named("insights"))
	if err != nil {
		logger.Fatal("insight generator error", zap.Error(err))
	}

	locker, closeLocker, err := buildLocker(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("job lock error", zap.Error(err))
	}
	defer closeLocker()

	runStore, err := schedulerrepo.NewRunStore(db)
	if err != nil {
		logger.Fatal("job run store error", zap.Error(err))
	}
	schedOpts := []scheduler.Option{scheduler.WithLocation(pipeline.Location())}
	if cfg.JobAlertWebhook != "" {
		notifier, err := notify.NewWebhookNotifier(cfg.JobAlertWebhook, cfg.InstanceName)
		if err != nil {
			logger.Fatal("job alert webhook error", zap.Error(err))
		}
		schedOpts = append(schedOpts, scheduler.WithNotifier(notifier))
	}
	sched, err := scheduler.New(locker, runStore, logger.Named("scheduler"), schedOpts...)
	if err != nil {
		logger.Fatal("scheduler error", zap.Error(err))
	}
	jobs := []scheduler.Job{
		{
			Name:    "aggregator",
			Spec:    pipeline.Schedule.Aggregator,
			Timeout: pipeline.Schedule.AggregatorTimeout,
			Run:     aggregator.Run,
			Skipped: func(err error) bool { return errors.Is(err, aggregate.ErrAggregationInProgress) },
		},
		{
			Name:    "insights",
			Spec:    pipeline.Schedule.Insights,
			Timeout: pipeline.Schedule.InsightsTimeout,
			Run: func(ctx context.Context) (int, error) {
				result, err := generator.Run(ctx)
				return result.Generated, err
			},
		},
	}
	for _, job := range jobs {
		if err := sched.Register(job); err != nil {
			logger.Fatal("job register error", zap.String("job", job.Name), zap.Error(err))
		}
	}
	sched.Start(ctx)

	// ingestion
	ingestService, err := telemetryapp.NewIngestService(deviceRepo, readingRepo, logger.Named("ingest"))
	if err != nil {
		logger.Fatal("ingest service error", zap.Error(err))
	}
	ingestHandler, err := telemetryhttp.NewIngestHandler(ingestService, logger.Named("ingest"))
	if err != nil {
		logger.Fatal("ingest handler error", zap.Error(err))
	}
	if len(cfg.KafkaBrokers) > 0 {
		consumer, err := telemetrykafka.NewConsumer(telemetrykafka.Config{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaTopic,
			GroupID:       cfg.KafkaGroupID,
			BatchSize:     cfg.KafkaBatchSize,
			FlushInterval: cfg.KafkaFlushInterval,
		}, ingestService, logger.Named("kafka"))
		if err != nil {
			logger.Fatal("kafka consumer error", zap.Error(err))
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	// queries
	pool := pond.NewPool(cfg.QueryWorkers, pond.WithQueueSize(cfg.QueryWorkers*16))
	defer pool.StopAndWait()
	statsService, err := statsapp.NewService(readingQuery, aggregateStore, insightRepo, deviceRepo, statsapp.Settings{
		UnitPrice:    pipeline.UnitPrice(),
		PeakWindow:   pipeline.StatsPeakWindow(),
		Location:     pipeline.Location(),
		InsightLimit: pipeline.InsightLimit,
	}, statsapp.WithPool(pool), statsapp.WithClock(clock), statsapp.WithLogger(logger.Named("stats")))
	if err != nil {
		logger.Fatal("stats service error", zap.Error(err))
	}
	reportService, err := reports.NewService(aggregateStore, pipeline.Location(), pipeline.Tariff.Currency, clock, logger.Named("reports"))
	if err != nil {
		logger.Fatal("report service error", zap.Error(err))
	}

	var authMiddleware *auth.Middleware
	if cfg.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		authMiddleware = auth.NewMiddleware([]byte(cfg.JWTSecret), policy, auth.WithLogger(logger.Named("auth")))
	} else {
		logger.Warn("JWT_SECRET not set, API auth disabled")
	}

	auditRepo, err := audit.NewRepository(db)
	if err != nil {
		logger.Fatal("audit repo error", zap.Error(err))
	}

	router, err := apihttp.NewRouter(apihttp.Deps{
		Stats:          statsService,
		Reports:        reportService,
		Jobs:           sched,
		Ingest:         ingestHandler,
		Auth:           authMiddleware,
		Audit:          auditRepo,
		Health:         db.PingContext,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger.Named("api"),
	})
	if err != nil {
		logger.Fatal("router error", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(router, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not drain before shutdown deadline")
	}
}

type appConfig struct {
	DatabaseURL        string
	DBMaxOpenConns     int
	HTTPAddr           string
	JWTSecret          string
	AllowedOrigins     []string
	QueryWorkers       int
	JobLockBackend     string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	KafkaBrokers       []string
	KafkaTopic         string
	KafkaGroupID       string
	KafkaBatchSize     int
	KafkaFlushInterval time.Duration
	JobAlertWebhook    string
	InstanceName       string
}

func loadConfig() (appConfig, error) {
	cfg := appConfig{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		DBMaxOpenConns:     getenvIntDefault("DB_MAX_OPEN_CONNS", 20),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		AllowedOrigins:     splitList(getenvDefault("CORS_ALLOWED_ORIGINS", "*")),
		QueryWorkers:       getenvIntDefault("QUERY_WORKERS", 8),
		JobLockBackend:     strings.ToLower(getenvDefault("JOB_LOCK_BACKEND", "postgres")),
		RedisAddr:          getenvDefault("REDIS_ADDR", ""),
		RedisPassword:      getenvDefault("REDIS_PASSWORD", ""),
		RedisDB:            getenvIntDefault("REDIS_DB", 0),
		KafkaBrokers:       splitList(getenvDefault("KAFKA_BROKERS", "")),
		KafkaTopic:         getenvDefault("KAFKA_TOPIC", "energy-readings"),
		KafkaGroupID:       getenvDefault("KAFKA_GROUP_ID", "energyiq-ingest"),
		KafkaBatchSize:     getenvIntDefault("KAFKA_BATCH_SIZE", 500),
		KafkaFlushInterval: getenvDuration("KAFKA_FLUSH_INTERVAL", 2*time.Second),
		JobAlertWebhook:    getenvDefault("JOB_ALERT_WEBHOOK", ""),
		InstanceName:       getenvDefault("INSTANCE_NAME", hostname()),
	}
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL or PG_DSN is required")
	}
	if cfg.QueryWorkers <= 0 {
		cfg.QueryWorkers = 8
	}
	switch cfg.JobLockBackend {
	case "local", "postgres":
	case "redis":
		if cfg.RedisAddr == "" {
			return cfg, errors.New("REDIS_ADDR is required for JOB_LOCK_BACKEND=redis")
		}
	default:
		return cfg, fmt.Errorf("unknown JOB_LOCK_BACKEND %q", cfg.JobLockBackend)
	}
	return cfg, nil
}

func buildLocker(ctx context.Context, cfg appConfig, db *sql.DB, logger *zap.Logger) (scheduler.Locker, func(), error) {
	noop := func() {}
	switch cfg.JobLockBackend {
	case "local":
		return lock.NewLocal(), noop, nil
	case "redis":
		client, err := lock.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, noop, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		locker, err := lock.NewRedis(client, "energyiq:job:", logger.Named("joblock"))
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		logger.Info("job locks on redis", zap.String("addr", cfg.RedisAddr))
		return locker, func() { _ = client.Close() }, nil
	default:
		locker, err := lock.NewPostgres(db, "energyiq:job:", logger.Named("joblock"))
		return locker, noop, err
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "energyiq"
	}
	return name
}
