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

	"github.com/hibiken/asynq"

	"github.com/smartinventory/smartinventory/internal/alerts"
	"github.com/smartinventory/smartinventory/internal/app"
	"github.com/smartinventory/smartinventory/internal/audit"
	"github.com/smartinventory/smartinventory/internal/catalog"
	"github.com/smartinventory/smartinventory/internal/observability"
	"github.com/smartinventory/smartinventory/internal/platform/cache"
	"github.com/smartinventory/smartinventory/internal/platform/db"
	"github.com/smartinventory/smartinventory/internal/procurement"
	"github.com/smartinventory/smartinventory/internal/shared"
	"github.com/smartinventory/smartinventory/internal/stock"
	"github.com/smartinventory/smartinventory/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	domainMetrics := observability.NewDomain(metrics.Registerer())

	auditLogger := shared.NewAuditLogger(pool)
	numbers := shared.NewNumberGenerator()
	locks := shared.NewKeyedLock(cfg.LockTimeout)
	idempotency := shared.NewIdempotencyStore(pool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	publisher := jobs.NewPublisher(redisOpts)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("publisher close", slog.Any("error", err))
		}
	}()

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, auditLogger)

	alertsRepo := alerts.NewRepository(pool)
	alertsService := alerts.NewService(alertsRepo, auditLogger, publisher, domainMetrics, logger)

	levelCache := stock.NewLevelCache(redisClient, cfg.LevelCacheTTL)
	if err := levelCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}
	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stock.ServiceDeps{
		Repo:      stockRepo,
		Catalog:   catalogService,
		Locks:     locks,
		Numbers:   numbers,
		Audit:     auditLogger,
		Monitor:   alertsService,
		Publisher: publisher,
		Cache:     levelCache,
		Metrics:   domainMetrics,
		Logger:    logger,
	})

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurement.ServiceDeps{
		Repo:        procurementRepo,
		Catalog:     catalogService,
		Stock:       stockService,
		Locks:       locks,
		Numbers:     numbers,
		Idempotency: idempotency,
		Audit:       auditLogger,
		Publisher:   publisher,
		Logger:      logger,
	})

	auditService := audit.NewService(audit.NewRepository(pool))

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		CatalogHandler:     catalog.NewHandler(logger, catalogService),
		StockHandler:       stock.NewHandler(logger, stockService),
		AlertsHandler:      alerts.NewHandler(logger, alertsService),
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		AuditHandler:       audit.NewHandler(auditService),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Pool:               pool,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
}
