package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxline-ai/voxline-backend/internal/media"
	"github.com/voxline-ai/voxline-backend/internal/pipeline"
	"github.com/voxline-ai/voxline-backend/internal/providers/embedding"
	"github.com/voxline-ai/voxline-backend/internal/providers/transcription"
	"github.com/voxline-ai/voxline-backend/internal/quota"
	"github.com/voxline-ai/voxline-backend/pkg/config"
	"github.com/voxline-ai/voxline-backend/pkg/db"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"github.com/voxline-ai/voxline-backend/pkg/metrics"
	"github.com/voxline-ai/voxline-backend/pkg/outbox"
	"github.com/voxline-ai/voxline-backend/pkg/outbox/idempotency"
	"github.com/voxline-ai/voxline-backend/pkg/pubsub"
	"github.com/voxline-ai/voxline-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub", err)
		}
	}()

	itemRepo := media.NewItemRepository(dbClient.DB())
	chunkRepo := media.NewChunkRepository(dbClient.DB())
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	quotaService, err := quota.NewService(
		quota.NewUsageRepository(dbClient.DB()),
		quota.NewTenantRepository(dbClient.DB()),
	)
	if err != nil {
		logg.Error(ctx, "failed to create quota service", err)
		os.Exit(1)
	}

	transcriber, err := transcription.NewClient(cfg.Providers, logg)
	if err != nil {
		logg.Error(ctx, "failed to create transcription client", err)
		os.Exit(1)
	}
	embedder, err := embedding.NewClient(cfg.Providers, logg)
	if err != nil {
		logg.Error(ctx, "failed to create embedding client", err)
		os.Exit(1)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	idempotencyManager, err := idempotency.NewManager(redisClient, cfg.Outbox.IdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency manager", err)
		os.Exit(1)
	}

	transcribeConsumer, err := pipeline.NewTranscribeConsumer(pipeline.TranscribeConsumerParams{
		Items:        itemRepo,
		Provider:     transcriber,
		Emitter:      emitter,
		DB:           dbClient,
		Slots:        redisClient,
		Usage:        quotaService,
		Idempotency:  idempotencyManager,
		Metrics:      pipelineMetrics,
		Subscription: pubsubClient.TranscribeSubscription(),
		Logger:       logg,
		TenantCap:    cfg.Pipeline.TenantTranscribeCap,
	})
	if err != nil {
		logg.Error(ctx, "failed to create transcribe consumer", err)
		os.Exit(1)
	}

	processConsumer, err := pipeline.NewProcessConsumer(pipeline.ProcessConsumerParams{
		Items:        itemRepo,
		Chunks:       chunkRepo,
		Emitter:      emitter,
		DB:           dbClient,
		Idempotency:  idempotencyManager,
		Metrics:      pipelineMetrics,
		Subscription: pubsubClient.ProcessSubscription(),
		Logger:       logg,
		TokenTarget:  cfg.Pipeline.ChunkTokenTarget,
	})
	if err != nil {
		logg.Error(ctx, "failed to create process consumer", err)
		os.Exit(1)
	}

	embedConsumer, err := pipeline.NewEmbedConsumer(pipeline.EmbedConsumerParams{
		Items:        itemRepo,
		Chunks:       chunkRepo,
		Provider:     embedder,
		Emitter:      emitter,
		DB:           dbClient,
		Usage:        quotaService,
		Idempotency:  idempotencyManager,
		Metrics:      pipelineMetrics,
		Subscription: pubsubClient.EmbedSubscription(),
		Logger:       logg,
		BatchSize:    cfg.Pipeline.EmbedBatchSize,
	})
	if err != nil {
		logg.Error(ctx, "failed to create embed consumer", err)
		os.Exit(1)
	}

	failureConsumer, err := pipeline.NewFailureConsumer(pipeline.FailureConsumerParams{
		Items:        itemRepo,
		Emitter:      emitter,
		DB:           dbClient,
		Metrics:      pipelineMetrics,
		Subscription: pubsubClient.FailureSubscription(),
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create failure consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:             cfg,
		Logger:             logg,
		DB:                 dbClient,
		Redis:              redisClient,
		PubSub:             pubsubClient,
		TranscribeConsumer: transcribeConsumer,
		ProcessConsumer:    processConsumer,
		EmbedConsumer:      embedConsumer,
		FailureConsumer:    failureConsumer,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting pipeline worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "worker shut down gracefully")
}
