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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/tenderflow-backend/api/middleware"
	"github.com/angelmondragon/tenderflow-backend/api/routes"
	"github.com/angelmondragon/tenderflow-backend/internal/analysis"
	"github.com/angelmondragon/tenderflow-backend/internal/audit"
	"github.com/angelmondragon/tenderflow-backend/internal/awards"
	"github.com/angelmondragon/tenderflow-backend/internal/numbering"
	"github.com/angelmondragon/tenderflow-backend/internal/reports"
	"github.com/angelmondragon/tenderflow-backend/internal/submissions"
	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/config"
	"github.com/angelmondragon/tenderflow-backend/pkg/db"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/metrics"
	"github.com/angelmondragon/tenderflow-backend/pkg/migrate"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox"
	"github.com/angelmondragon/tenderflow-backend/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

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

	deps := map[string]db.Pinger{"db": dbClient}
	var sequencer redis.Sequencer
	var replay middleware.ReplayStore
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
		deps["redis"] = redisClient
		sequencer = redisClient
		replay = redisClient
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	conn := dbClient.DB()
	recorder, err := audit.NewRecorder(conn, logg, audit.Options{
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
		MaxAttempts:   cfg.Audit.MaxAttempts,
		Metrics:       metrics.NewAuditMetrics(registry),
		Alert: func(ctx context.Context, pending int, err error) {
			logg.Error(logg.WithField(ctx, "pending", pending), "audit flush keeps failing", err)
		},
	})
	mustBuild(logg, "audit recorder", err)

	sequence, err := numbering.SequenceFor(cfg.FeatureFlags.UseRedisSequence, sequencer)
	mustBuild(logg, "number sequence", err)
	tenderNumbers, err := numbering.NewAllocator(numbering.PrefixTender, sequence)
	mustBuild(logg, "tender numbers", err)
	orderNumbers, err := numbering.NewAllocator(numbering.PrefixPurchaseOrder, sequence)
	mustBuild(logg, "purchase order numbers", err)

	tenderRepo := tenders.NewRepository(conn)
	submissionRepo := submissions.NewRepository(conn)
	reportRepo := reports.NewRepository(conn)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)

	tenderService, err := tenders.NewService(tenderRepo, dbClient, outboxService, recorder, tenderNumbers, nil)
	mustBuild(logg, "tenders service", err)
	submissionService, err := submissions.NewService(submissionRepo, tenderRepo, dbClient, nil)
	mustBuild(logg, "submissions service", err)
	generator, err := reports.NewGenerator(reportRepo, nil)
	mustBuild(logg, "report generator", err)
	reportService, err := reports.NewService(tenderRepo, generator, nil)
	mustBuild(logg, "reports service", err)
	analysisService, err := analysis.NewService(tenderRepo, generator, nil)
	mustBuild(logg, "analysis service", err)
	auditService, err := audit.NewService(audit.NewRepository(conn), tenderRepo)
	mustBuild(logg, "audit service", err)
	coordinator, err := awards.NewCoordinator(awards.Params{
		TxRunner:    dbClient,
		Tenders:     tenderRepo,
		Submissions: submissionRepo,
		Reports:     reportRepo,
		Orders:      awards.NewRepository(conn),
		Outbox:      outboxService,
		Audit:       recorder,
		Numbers:     orderNumbers,
		Logger:      logg,
		MaxAttempts: cfg.Award.MaxAttempts,
	})
	mustBuild(logg, "award coordinator", err)

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, deps, registry, metrics.NewHTTPMetrics(registry), routes.Services{
			Tenders:     tenderService,
			Submissions: submissionService,
			Reports:     reportService,
			Analysis:    analysisService,
			Awards:      coordinator,
			Audit:       auditService,
			Replay:      replay,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = recorder.Run(ctx)
	}()

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(logCtx, "api server forced to shutdown", err)
	}
	// The recorder flushes what is still buffered once ctx is done.
	wg.Wait()
	logg.Info(logCtx, "api server stopped")
}

func mustBuild(logg *logger.Logger, name string, err error) {
	if err != nil {
		logg.Error(context.Background(), "failed to create "+name, err)
		os.Exit(1)
	}
}
