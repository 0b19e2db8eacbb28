package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxline-ai/voxline-backend/api/routes"
	"github.com/voxline-ai/voxline-backend/internal/ingest"
	"github.com/voxline-ai/voxline-backend/internal/media"
	"github.com/voxline-ai/voxline-backend/internal/providers/embedding"
	"github.com/voxline-ai/voxline-backend/internal/quota"
	"github.com/voxline-ai/voxline-backend/internal/recovery"
	"github.com/voxline-ai/voxline-backend/pkg/config"
	"github.com/voxline-ai/voxline-backend/pkg/db"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"github.com/voxline-ai/voxline-backend/pkg/metrics"
	"github.com/voxline-ai/voxline-backend/pkg/migrate"
	"github.com/voxline-ai/voxline-backend/pkg/outbox"
	"github.com/voxline-ai/voxline-backend/pkg/redis"
)

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
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	quotaService, err := quota.NewService(
		quota.NewUsageRepository(dbClient.DB()),
		quota.NewTenantRepository(dbClient.DB()),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create quota service", err)
		os.Exit(1)
	}

	ingestService, err := ingest.NewService(ingest.ServiceParams{
		DB:      dbClient,
		Items:   itemRepo,
		Quotas:  quotaService,
		Emitter: emitter,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ingest service", err)
		os.Exit(1)
	}

	embedClient, err := embedding.NewClient(cfg.Providers, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create embedding client", err)
		os.Exit(1)
	}

	mediaService, err := media.NewService(itemRepo, chunkRepo, embedClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create media service", err)
		os.Exit(1)
	}

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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:          cfg,
			Logger:          logg,
			DB:              dbClient,
			Redis:           redisClient,
			IngestService:   ingestService,
			MediaService:    mediaService,
			RecoveryService: recoveryService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
