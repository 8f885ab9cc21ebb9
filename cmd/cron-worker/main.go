package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tenderflow-backend/internal/audit"
	"github.com/angelmondragon/tenderflow-backend/internal/cron"
	"github.com/angelmondragon/tenderflow-backend/internal/reports"
	"github.com/angelmondragon/tenderflow-backend/internal/submissions"
	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/config"
	"github.com/angelmondragon/tenderflow-backend/pkg/db"
	"github.com/angelmondragon/tenderflow-backend/pkg/instance"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/metrics"
	"github.com/angelmondragon/tenderflow-backend/pkg/migrate"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox"
	"github.com/angelmondragon/tenderflow-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	systemActor, err := cfg.Scheduler.SystemActorID()
	if err != nil {
		logg.Error(context.Background(), "invalid scheduler system actor", err)
		os.Exit(1)
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	// Without redis only a single worker may run; the local lock cannot
	// coordinate across processes.
	var lock cron.Lock = &cron.LocalLock{}
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		lock, err = cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind+":"+envOrLocal(cfg.App.Env)), cfg.Scheduler.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create cron lock", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "redis disabled, cron lock is process local")
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())

	conn := dbClient.DB()
	auditMetrics := metrics.NewAuditMetrics(promRegistry)
	recorder, err := audit.NewRecorder(conn, logg, audit.Options{
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
		MaxAttempts:   cfg.Audit.MaxAttempts,
		Metrics:       auditMetrics,
		Alert: func(ctx context.Context, pending int, err error) {
			logg.Error(logg.WithField(ctx, "pending", pending), "audit flush keeps failing", err)
		},
	})
	mustBuild(logg, "audit recorder", err)

	generator, err := reports.NewGenerator(reports.NewRepository(conn), nil)
	mustBuild(logg, "report generator", err)

	outboxRepo := outbox.NewRepository(conn)
	autoClose, err := cron.NewAutoCloseJob(cron.AutoCloseJobParams{
		Logger:      logg,
		DB:          dbClient,
		Tenders:     tenders.NewRepository(conn),
		Submissions: submissions.NewRepository(conn),
		Reports:     generator,
		Outbox:      outbox.NewService(outboxRepo, logg),
		Audit:       recorder,
		Metrics:     metrics.NewSweepMetrics(promRegistry),
		BatchSize:   cfg.Scheduler.BatchSize,
		OpTimeout:   cfg.Scheduler.OpTimeout,
		SystemActor: systemActor,
	})
	mustBuild(logg, "auto-close job", err)

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       outboxRepo,
		RetentionDays:    cfg.Outbox.RetentionDays,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	mustBuild(logg, "outbox retention job", err)

	backfiller, err := audit.NewBackfiller(conn, logg, audit.BackfillOptions{
		Grace:    cfg.Audit.BackfillGrace,
		Lookback: cfg.Audit.BackfillLookback,
		Batch:    cfg.Audit.BackfillBatch,
		Metrics:  auditMetrics,
	})
	mustBuild(logg, "audit backfiller", err)
	backfill, err := cron.NewAuditBackfillJob(logg, backfiller)
	mustBuild(logg, "audit backfill job", err)

	jobs := cron.NewRegistry(autoClose, retention, backfill)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:       logg,
		Registry:     jobs,
		Lock:         lock,
		Metrics:      metrics.NewCronJobMetrics(promRegistry),
		Interval:     cfg.Scheduler.Interval,
		CycleTimeout: cfg.Scheduler.LockTTL,
	})
	mustBuild(logg, "cron service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})

	router := chi.NewRouter()
	router.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: ":" + cfg.App.Port, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = recorder.Run(ctx)
	}()

	logg.Info(logg.WithField(ctx, "jobs", jobs.Names()), "starting cron worker")
	runErr := service.Run(ctx)
	stop()
	wg.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", runErr)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

func mustBuild(logg *logger.Logger, name string, err error) {
	if err != nil {
		logg.Error(context.Background(), "failed to create "+name, err)
		os.Exit(1)
	}
}
