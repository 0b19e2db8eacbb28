package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxline-ai/voxline-backend/internal/cron"
	"github.com/voxline-ai/voxline-backend/internal/media"
	"github.com/voxline-ai/voxline-backend/internal/recovery"
	"github.com/voxline-ai/voxline-backend/pkg/config"
	"github.com/voxline-ai/voxline-backend/pkg/db"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"github.com/voxline-ai/voxline-backend/pkg/metrics"
	"github.com/voxline-ai/voxline-backend/pkg/migrate"
	"github.com/voxline-ai/voxline-backend/pkg/outbox"
	"github.com/voxline-ai/voxline-backend/pkg/redis"
)

const lockKeyFormat = "vx:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
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

	itemRepo := media.NewItemRepository(dbClient.DB())
	chunkRepo := media.NewChunkRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	emitter := outbox.NewService(outboxRepo, logg)

	engine, err := recovery.NewEngine(recovery.EngineParams{
		DB:      dbClient,
		Items:   itemRepo,
		Chunks:  chunkRepo,
		Emitter: emitter,
		Metrics: metrics.NewPipelineMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
		Config:  cfg.Recovery,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create recovery engine", err)
		os.Exit(1)
	}

	recoveryService, err := recovery.NewService(engine, itemRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create recovery service", err)
		os.Exit(1)
	}

	recoveryScan, err := cron.NewRecoveryScanJob(cron.RecoveryScanJobParams{
		Logger:   logg,
		Recovery: recoveryService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create recovery scan job", err)
		os.Exit(1)
	}

	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	deletedMediaPurge, err := cron.NewDeletedMediaPurgeJob(cron.DeletedMediaPurgeJobParams{
		Logger:    logg,
		DB:        dbClient,
		MediaRepo: itemRepo,
		ChunkRepo: chunkRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create deleted media purge job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(recoveryScan, outboxRetention, deletedMediaPurge)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Recovery.ScanInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
