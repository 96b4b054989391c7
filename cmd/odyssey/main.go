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
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fulfillment/cmd/odyssey/cli"
	"github.com/odyssey-erp/fulfillment/internal/app"
	"github.com/odyssey-erp/fulfillment/internal/catalog"
	"github.com/odyssey-erp/fulfillment/internal/invoicing"
	"github.com/odyssey-erp/fulfillment/internal/notifications"
	"github.com/odyssey-erp/fulfillment/internal/observability"
	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/platform/lock"
	"github.com/odyssey-erp/fulfillment/internal/production"
	"github.com/odyssey-erp/fulfillment/internal/quotations"
	"github.com/odyssey-erp/fulfillment/internal/users"
	"github.com/odyssey-erp/fulfillment/jobs"
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		ops := cli.NewJobsCLI(cfg.RedisAddr)
		err := ops.Run(ctx, os.Args[2:], os.Stdout)
		if closeErr := ops.Close(); closeErr != nil {
			logger.Warn("jobs cli close", slog.Any("error", closeErr))
		}
		if err != nil {
			logger.Error("jobs cli", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	queue := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	relay := jobs.NewRelayer(queue, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	directory := users.NewDirectory(users.NewRepository(pool), cfg.AdminRole)

	quotationService := quotations.NewService(quotations.NewRepository(pool), directory, logger, metrics)

	productionService := production.NewService(production.NewRepository(pool), directory, production.Config{
		ProductionRole:      cfg.ProductionRole,
		DefaultLeadTimeDays: cfg.DefaultLeadTimeDays,
	}, logger)
	productionService.SetCatalog(catalog.NewRepository(pool))
	productionService.SetLocker(lock.NewRedisLocker(redisClient, cfg.CreateLockTTL))
	productionService.SetRelayer(relay)
	productionService.SetMetrics(metrics)

	invoiceService := invoicing.NewService(invoicing.NewRepository(pool), logger)
	invoiceService.SetRelayer(relay)
	invoiceService.SetMetrics(metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		QuotationHandler:    quotations.NewHandler(logger, quotationService),
		ProductionHandler:   production.NewHandler(logger, productionService),
		InvoiceHandler:      invoicing.NewHandler(logger, invoiceService),
		NotificationHandler: notifications.NewHandler(logger, notifications.NewStore(pool)),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
