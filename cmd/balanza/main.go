package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/balanza-erp/balanza-erp/internal/app"
	"github.com/balanza-erp/balanza-erp/internal/coa"
	"github.com/balanza-erp/balanza-erp/internal/inventory"
	"github.com/balanza-erp/balanza-erp/internal/invoicing"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
	"github.com/balanza-erp/balanza-erp/internal/ledger/reports"
	"github.com/balanza-erp/balanza-erp/internal/observability"
	"github.com/balanza-erp/balanza-erp/internal/recon"
	"github.com/balanza-erp/balanza-erp/internal/shared"
	"github.com/balanza-erp/balanza-erp/jobs"

	"github.com/hibiken/asynq"
)

func main() {
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

	reconService := recon.NewService(ledgerService, recon.DefaultAdjustmentRouting(), auditLogger, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AccountsHandler:  coa.NewHandler(logger, chart),
		LedgerHandler:    ledger.NewHandler(logger, ledgerService),
		ReportsHandler:   reports.NewHandler(logger, reportsService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		InvoicingHandler: invoicing.NewHandler(logger, invoicingService),
		ReconHandler:     recon.NewHandler(logger, reconService),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
