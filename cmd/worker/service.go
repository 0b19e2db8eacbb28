package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voxline-ai/voxline-backend/internal/pipeline"
	"github.com/voxline-ai/voxline-backend/pkg/config"
	"github.com/voxline-ai/voxline-backend/pkg/db"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"github.com/voxline-ai/voxline-backend/pkg/pubsub"
	"github.com/voxline-ai/voxline-backend/pkg/redis"
)

type ServiceParams struct {
	Config             *config.Config
	Logger             *logger.Logger
	DB                 *db.Client
	Redis              *redis.Client
	PubSub             *pubsub.Client
	TranscribeConsumer *pipeline.TranscribeConsumer
	ProcessConsumer    *pipeline.ProcessConsumer
	EmbedConsumer      *pipeline.EmbedConsumer
	FailureConsumer    *pipeline.FailureConsumer
}

type Service struct {
	cfg        *config.Config
	logg       *logger.Logger
	db         *db.Client
	redis      *redis.Client
	pubsub     *pubsub.Client
	transcribe *pipeline.TranscribeConsumer
	process    *pipeline.ProcessConsumer
	embed      *pipeline.EmbedConsumer
	failure    *pipeline.FailureConsumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.TranscribeConsumer == nil {
		return nil, errors.New("transcribe consumer is required")
	}
	if params.ProcessConsumer == nil {
		return nil, errors.New("process consumer is required")
	}
	if params.EmbedConsumer == nil {
		return nil, errors.New("embed consumer is required")
	}
	if params.FailureConsumer == nil {
		return nil, errors.New("failure consumer is required")
	}

	return &Service{
		cfg:        params.Config,
		logg:       params.Logger,
		db:         params.DB,
		redis:      params.Redis,
		pubsub:     params.PubSub,
		transcribe: params.TranscribeConsumer,
		process:    params.ProcessConsumer,
		embed:      params.EmbedConsumer,
		failure:    params.FailureConsumer,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	errCh := make(chan error, 4)
	go func() {
		errCh <- s.transcribe.Run(ctx)
	}()
	go func() {
		errCh <- s.process.Run(ctx)
	}()
	go func() {
		errCh <- s.embed.Run(ctx)
	}()
	go func() {
		errCh <- s.failure.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "consumer stopped unexpectedly", err)
				return err
			}
			return err
		case <-ticker.C:
			// s.logg.Info(ctx, "worker.heartbeat")
		}
	}
}
