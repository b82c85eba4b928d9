package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/cartera-ar/cartera/internal/app"
	"github.com/cartera-ar/cartera/internal/cartera"
	"github.com/cartera-ar/cartera/internal/ingest"
	"github.com/cartera-ar/cartera/internal/platform/cache"
	"github.com/cartera-ar/cartera/internal/platform/db"
	"github.com/cartera-ar/cartera/internal/runs"
	"github.com/cartera-ar/cartera/internal/trm"
	"github.com/cartera-ar/cartera/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	rateStore := trm.NewFileStore(cfg.TRMFile, logger)
	rateProvider := trm.NewCachedProvider(rateStore, redisClient, cfg.CacheTTL)

	classifier := cartera.NewClassifier(cartera.ClassifierConfig{GraceDays: cfg.GraceDays}, logger)
	engine := cartera.NewEngine(classifier, cartera.DefaultTaxonomy(), rateProvider, logger)

	runRepo := runs.NewRepository(pool)
	runService := runs.NewService(runRepo, engine, cfg.ExportDir, logger)
	normalizer := ingest.NewNormalizer(logger)
	processor := jobs.NewDebtModelProcessor(runService, normalizer, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Processor:   processor,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
