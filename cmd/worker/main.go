package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	_ = godotenv.Load()

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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	ledgerApp, err := app.NewLedger(cfg, pool, redisClient, nil, logger)
	if err != nil {
		logger.Error("init ledger", slog.Any("error", err))
		os.Exit(1)
	}
	metrics := jobmetrics.NewMetrics(nil)
	services := ledgerApp.Services

	recurringJob := jobs.NewRecurringGenerateJob(services.Recurring, logger, metrics)
	dueScanJob := jobs.NewDueScanJob(services.Alerts, cfg.Ledger.DueSoonDays, logger, metrics)
	integrityJob := jobs.NewIntegrityJob(services.Movements, ledgerApp.Store, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), cfg.Ledger.KeyRetention, logger, metrics)

	cron := make([]jobs.CronRegistration, 0, 4)
	for _, schedule := range []struct {
		spec string
		typ  string
	}{
		{cfg.Ledger.RecurringCron, jobs.TaskRecurringGenerate},
		{cfg.Ledger.DueScanCron, jobs.TaskDueScan},
		{cfg.Ledger.IntegrityCron, jobs.TaskIntegrity},
		{cfg.Ledger.CleanupCron, jobs.TaskIdempotencyCleanup},
	} {
		if schedule.spec == "" {
			continue
		}
		task, err := jobs.NewTask(schedule.typ, jobs.LedgerPayload{})
		if err != nil {
			logger.Error("build cron task", slog.String("task", schedule.typ), slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    schedule.spec,
			Task:    task,
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecurringGenerate, Handler: recurringJob.Handle},
			{Type: jobs.TaskDueScan, Handler: dueScanJob.Handle},
			{Type: jobs.TaskIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
