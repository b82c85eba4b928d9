package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cartera-ar/cartera/internal/app"
	"github.com/cartera-ar/cartera/internal/cartera"
	carterahttp "github.com/cartera-ar/cartera/internal/cartera/http"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// A missing cache only disables snapshot caching; rate reads fall
	// through to the file store.
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

	runRepo := runs.NewRepository(dbpool)
	runService := runs.NewService(runRepo, engine, cfg.ExportDir, logger)

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()

	normalizer := ingest.NewNormalizer(logger)
	carteraHandler := carterahttp.NewHandler(logger, runService, rateStore, normalizer, queue, carterahttp.Config{
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		CarteraHandler: carteraHandler,
		JobsHandler:    jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
