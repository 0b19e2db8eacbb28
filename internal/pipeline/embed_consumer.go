package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/voxline-ai/voxline-backend/internal/media"
	"github.com/voxline-ai/voxline-backend/internal/providers/embedding"
	"github.com/voxline-ai/voxline-backend/internal/quota"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"github.com/voxline-ai/voxline-backend/pkg/outbox"
	"github.com/voxline-ai/voxline-backend/pkg/outbox/payloads"
)

const (
	stageEmbed = "embedding"
	// embedConsumerName scopes processed-event marks in redis.
	embedConsumerName = "embed-stage"
)

// EmbedConsumer handles embedding_requested events: it vectorizes chunks in
// batches and finalizes the item once every chunk carries an embedding.
type EmbedConsumer struct {
	items        media.ItemRepository
	chunks       media.ChunkRepository
	provider     embedding.Provider
	emitter      eventEmitter
	db           txRunner
	usage        usageRecorder
	idempotency  idempotencyGuard
	metrics      stageMetrics
	subscription *pubsub.Subscriber
	logg         *logger.Logger
	batchSize    int
	now          func() time.Time
}

// EmbedConsumerParams bundles the consumer dependencies.
type EmbedConsumerParams struct {
	Items        media.ItemRepository
	Chunks       media.ChunkRepository
	Provider     embedding.Provider
	Emitter      eventEmitter
	DB           txRunner
	Usage        usageRecorder
	Idempotency  idempotencyGuard
	Metrics      stageMetrics
	Subscription *pubsub.Subscriber
	Logger       *logger.Logger
	BatchSize    int
}

// NewEmbedConsumer validates dependencies and builds the consumer.
func NewEmbedConsumer(params EmbedConsumerParams) (*EmbedConsumer, error) {
	if params.Items == nil {
		return nil, errors.New("item repository is required")
	}
	if params.Chunks == nil {
		return nil, errors.New("chunk repository is required")
	}
	if params.Provider == nil {
		return nil, errors.New("embedding provider is required")
	}
	if params.Emitter == nil {
		return nil, errors.New("event emitter is required")
	}
	if params.DB == nil {
		return nil, errors.New("db client is required")
	}
	if params.Usage == nil {
		return nil, errors.New("usage recorder is required")
	}
	if params.Idempotency == nil {
		return nil, errors.New("idempotency guard is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	return &EmbedConsumer{
		items:        params.Items,
		chunks:       params.Chunks,
		provider:     params.Provider,
		emitter:      params.Emitter,
		db:           params.DB,
		usage:        params.Usage,
		idempotency:  params.Idempotency,
		metrics:      params.Metrics,
		subscription: params.Subscription,
		logg:         params.Logger,
		batchSize:    batchSize,
		now:          time.Now,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *EmbedConsumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("embed subscription is required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.handle(ctx, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *EmbedConsumer) handle(ctx context.Context, data []byte) processResult {
	var payload payloads.EmbeddingRequestedEvent
	envelope, err := decodeEnvelope(data, &payload)
	if err != nil {
		c.logg.Error(ctx, "embed: undecodable message", err)
		return processResult{ack: true}
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id": envelope.EventID,
		"item_id":  payload.MediaItemID.String(),
		"tenant":   payload.TenantID.String(),
		"stage":    stageEmbed,
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "embed: invalid event id", err)
		return processResult{ack: true}
	}
	already, err := c.idempotency.CheckAndMarkProcessed(logCtx, embedConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "embed: idempotency check", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "embed: event already processed")
		return processResult{ack: true}
	}

	result := c.vectorize(logCtx, payload)
	if result.nack {
		// Unmark so the redelivery is not swallowed by the guard.
		if err := c.idempotency.Delete(logCtx, embedConsumerName, eventID); err != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "embed: unmark event failed")
		}
	}
	return result
}

func (c *EmbedConsumer) vectorize(logCtx context.Context, payload payloads.EmbeddingRequestedEvent) processResult {
	item, err := c.items.FindByIDInternal(logCtx, payload.MediaItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.logg.Warn(logCtx, "embed: item not found")
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "embed: load item", err)
		return processResult{nack: true}
	}
	if item.Status != enums.MediaItemStatusEmbedding {
		c.logg.Info(logCtx, "embed: item not in embedding status")
		return processResult{ack: true}
	}

	started := c.now()
	var embeddedTokens int64
	for {
		batch, err := c.chunks.ListUnembedded(logCtx, item.ID, c.batchSize)
		if err != nil {
			c.logg.Error(logCtx, "embed: list chunks", err)
			return processResult{nack: true}
		}
		if len(batch) == 0 {
			break
		}

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}
		vectors, err := c.provider.Embed(logCtx, texts)
		if err != nil {
			return c.failItem(logCtx, item.ID, err)
		}

		for i, chunk := range batch {
			if err := c.chunks.SetEmbedding(logCtx, chunk.ID, pgvector.NewVector(vectors[i])); err != nil {
				c.logg.Error(logCtx, "embed: store vector", err)
				return processResult{nack: true}
			}
			embeddedTokens += int64(chunk.TokenCount)
		}
	}

	remaining, err := c.chunks.CountUnembedded(logCtx, item.ID)
	if err != nil {
		c.logg.Error(logCtx, "embed: count remaining", err)
		return processResult{nack: true}
	}
	if remaining > 0 {
		// Another delivery may still be filling vectors in; redeliver to re-check.
		return processResult{nack: true}
	}

	total, err := c.chunks.CountByItem(logCtx, item.ID)
	if err != nil {
		c.logg.Error(logCtx, "embed: count chunks", err)
		return processResult{nack: true}
	}

	completedAt := c.now()
	err = c.db.WithTx(logCtx, func(tx *gorm.DB) error {
		completed, err := c.items.WithTx(tx).MarkCompleted(logCtx, item.ID, completedAt)
		if err != nil {
			return err
		}
		if !completed {
			return nil
		}
		return c.emitter.EmitIfNotExists(logCtx, tx, outbox.DomainEvent{
			EventType:     enums.EventMediaCompleted,
			AggregateType: enums.AggregateMediaItem,
			AggregateID:   item.ID,
			Version:       1,
			Data: payloads.MediaCompletedEvent{
				MediaItemID:     item.ID,
				TenantID:        item.TenantID,
				ChunkCount:      int(total),
				DurationSeconds: item.DurationSeconds,
				CompletedAt:     completedAt,
			},
		})
	})
	if err != nil {
		c.logg.Error(logCtx, "embed: finalize item", err)
		return processResult{nack: true}
	}

	if embeddedTokens > 0 {
		estimate := c.usage.EstimateCost(0, embeddedTokens, 0)
		if err := c.usage.RecordUsage(logCtx, item.TenantID, quota.Deltas{
			EmbeddingCostCents: estimate.EmbeddingCents,
		}); err != nil {
			c.logg.Error(logCtx, "embed: record usage", err)
		}
	}

	if c.metrics != nil {
		c.metrics.ObserveStageDuration(stageEmbed, c.now().Sub(started))
		c.metrics.IncStageSuccess(stageEmbed)
	}
	c.logg.Info(logCtx, "embed: stage completed")
	return processResult{ack: true}
}

func (c *EmbedConsumer) failItem(ctx context.Context, itemID uuid.UUID, err error) processResult {
	if embedding.IsRetryable(err) {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "embed: transient provider failure")
		if c.metrics != nil {
			c.metrics.IncStageFailure(stageEmbed, string(enums.ErrorCategoryTransient))
		}
		return processResult{nack: true}
	}
	message := fmt.Sprintf("embedding failed: %v", err)
	if markErr := c.items.MarkFailed(ctx, itemID, message, enums.ErrorCategoryUnsupportedInput); markErr != nil {
		c.logg.Error(ctx, "embed: mark failed", markErr)
		return processResult{nack: true}
	}
	if c.metrics != nil {
		c.metrics.IncStageFailure(stageEmbed, string(enums.ErrorCategoryUnsupportedInput))
	}
	c.logg.Error(ctx, "embed: terminal provider failure", err)
	return processResult{ack: true}
}
