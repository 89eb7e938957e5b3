package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/balanza-erp/balanza-erp/internal/app"
	"github.com/balanza-erp/balanza-erp/internal/coa"
	"github.com/balanza-erp/balanza-erp/internal/inventory"
	"github.com/balanza-erp/balanza-erp/internal/invoicing"
	jobmetrics "github.com/balanza-erp/balanza-erp/internal/jobs"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
	"github.com/balanza-erp/balanza-erp/internal/ledger/reports"
	"github.com/balanza-erp/balanza-erp/internal/shared"
	"github.com/balanza-erp/balanza-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	chart, err := coa.LoadChart(ctx, coa.NewRepository(pool))
	if err != nil {
		logger.Error("load chart of accounts", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	reportCache := reports.NewCache(redisClient, 10*time.Minute)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), chart, auditLogger, reportCache)
	reportsService := reports.NewService(ledgerService, chart, reportCache)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), ledgerService, auditLogger, inventory.DefaultRouting())

	dispatcher, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	authority := invoicing.NewSimulatedAuthority(cfg.ValidationSeed)
	authority.Latency = cfg.ValidationLatency
	authority.AcceptRate = cfg.ValidationAcceptRate

	invoicingService := invoicing.NewService(
		invoicing.NewRepository(pool),
		inventoryService,
		ledgerService,
		authority,
		dispatcher,
		idempotency,
		auditLogger,
		invoicing.DefaultSaleRouting(),
		invoicing.Config{RestockOnVoid: cfg.RestockOnVoid},
	)

	metrics := jobmetrics.NewMetrics(nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.AsynqConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeInvoiceValidation, Handler: jobs.NewInvoiceValidationHandler(invoicingService, cfg.ValidationTimeout, metrics, logger)},
			{Type: jobs.TaskTypeLedgerIntegrity, Handler: jobs.NewLedgerIntegrityHandler(reportsService, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: jobs.NewLedgerIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.Int("concurrency", cfg.AsynqConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
