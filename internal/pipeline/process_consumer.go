package pipeline

import (
	"context"
	"errors"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voxline-ai/voxline-backend/internal/media"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"github.com/voxline-ai/voxline-backend/pkg/outbox"
	"github.com/voxline-ai/voxline-backend/pkg/outbox/payloads"
)

const (
	stageProcess = "processing"
	// processConsumerName scopes processed-event marks in redis.
	processConsumerName = "process-stage"
)

// ProcessConsumer handles chunking_requested events: it splits the stored
// transcript into chunks and queues the embedding stage.
type ProcessConsumer struct {
	items        media.ItemRepository
	chunks       media.ChunkRepository
	emitter      eventEmitter
	db           txRunner
	idempotency  idempotencyGuard
	metrics      stageMetrics
	subscription *pubsub.Subscriber
	logg         *logger.Logger
	tokenTarget  int
	now          func() time.Time
}

// ProcessConsumerParams bundles the consumer dependencies.
type ProcessConsumerParams struct {
	Items        media.ItemRepository
	Chunks       media.ChunkRepository
	Emitter      eventEmitter
	DB           txRunner
	Idempotency  idempotencyGuard
	Metrics      stageMetrics
	Subscription *pubsub.Subscriber
	Logger       *logger.Logger
	TokenTarget  int
}

// NewProcessConsumer validates dependencies and builds the consumer.
func NewProcessConsumer(params ProcessConsumerParams) (*ProcessConsumer, error) {
	if params.Items == nil {
		return nil, errors.New("item repository is required")
	}
	if params.Chunks == nil {
		return nil, errors.New("chunk repository is required")
	}
	if params.Emitter == nil {
		return nil, errors.New("event emitter is required")
	}
	if params.DB == nil {
		return nil, errors.New("db client is required")
	}
	if params.Idempotency == nil {
		return nil, errors.New("idempotency guard is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	tokenTarget := params.TokenTarget
	if tokenTarget <= 0 {
		tokenTarget = 300
	}
	return &ProcessConsumer{
		items:        params.Items,
		chunks:       params.Chunks,
		emitter:      params.Emitter,
		db:           params.DB,
		idempotency:  params.Idempotency,
		metrics:      params.Metrics,
		subscription: params.Subscription,
		logg:         params.Logger,
		tokenTarget:  tokenTarget,
		now:          time.Now,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *ProcessConsumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("process subscription is required")
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

func (c *ProcessConsumer) handle(ctx context.Context, data []byte) processResult {
	var payload payloads.ChunkingRequestedEvent
	envelope, err := decodeEnvelope(data, &payload)
	if err != nil {
		c.logg.Error(ctx, "process: undecodable message", err)
		return processResult{ack: true}
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id": envelope.EventID,
		"item_id":  payload.MediaItemID.String(),
		"tenant":   payload.TenantID.String(),
		"stage":    stageProcess,
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "process: invalid event id", err)
		return processResult{ack: true}
	}
	already, err := c.idempotency.CheckAndMarkProcessed(logCtx, processConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "process: idempotency check", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "process: event already processed")
		return processResult{ack: true}
	}

	result := c.chunk(logCtx, payload)
	if result.nack {
		// Unmark so the redelivery is not swallowed by the guard.
		if err := c.idempotency.Delete(logCtx, processConsumerName, eventID); err != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "process: unmark event failed")
		}
	}
	return result
}

func (c *ProcessConsumer) chunk(logCtx context.Context, payload payloads.ChunkingRequestedEvent) processResult {
	item, err := c.items.FindByIDInternal(logCtx, payload.MediaItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.logg.Warn(logCtx, "process: item not found")
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "process: load item", err)
		return processResult{nack: true}
	}

	switch item.Status {
	case enums.MediaItemStatusPending:
		// Pending items carry pre-existing captions and skip transcription.
		if _, err := c.items.TransitionStatus(logCtx, item.ID,
			[]enums.MediaItemStatus{enums.MediaItemStatusPending},
			enums.MediaItemStatusProcessing); err != nil {
			c.logg.Error(logCtx, "process: claim item", err)
			return processResult{nack: true}
		}
	case enums.MediaItemStatusProcessing:
	case enums.MediaItemStatusTranscribing:
		// Transcript write may still be in flight; redeliver.
		return processResult{nack: true}
	default:
		c.logg.Info(logCtx, "process: item not in a chunkable status")
		return processResult{ack: true}
	}

	if !item.HasTranscript() {
		// Without a transcript chunking can never succeed.
		message := "chunking failed: item has no transcript"
		if err := c.items.MarkFailed(logCtx, item.ID, message, enums.ErrorCategoryUnsupportedInput); err != nil {
			c.logg.Error(logCtx, "process: mark failed", err)
			return processResult{nack: true}
		}
		if c.metrics != nil {
			c.metrics.IncStageFailure(stageProcess, string(enums.ErrorCategoryUnsupportedInput))
		}
		return processResult{ack: true}
	}

	started := c.now()
	existing, err := c.chunks.CountByItem(logCtx, item.ID)
	if err != nil {
		c.logg.Error(logCtx, "process: count chunks", err)
		return processResult{nack: true}
	}

	err = c.db.WithTx(logCtx, func(tx *gorm.DB) error {
		if existing == 0 {
			chunks := SplitTranscript(item.ID, *item.Transcript, nil, c.tokenTarget)
			if err := c.chunks.WithTx(tx).BulkInsert(logCtx, chunks); err != nil {
				return err
			}
		}
		moved, err := c.items.WithTx(tx).TransitionStatus(logCtx, item.ID,
			[]enums.MediaItemStatus{enums.MediaItemStatusProcessing},
			enums.MediaItemStatusEmbedding)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		return c.emitter.EmitIfNotExists(logCtx, tx, outbox.DomainEvent{
			EventType:     enums.EventEmbeddingRequested,
			AggregateType: enums.AggregateMediaItem,
			AggregateID:   item.ID,
			Version:       1,
			Data: payloads.EmbeddingRequestedEvent{
				MediaItemID: item.ID,
				TenantID:    item.TenantID,
			},
		})
	})
	if err != nil {
		c.logg.Error(logCtx, "process: chunk and advance", err)
		return processResult{nack: true}
	}

	if c.metrics != nil {
		c.metrics.ObserveStageDuration(stageProcess, c.now().Sub(started))
		c.metrics.IncStageSuccess(stageProcess)
	}
	c.logg.Info(logCtx, "process: stage completed")
	return processResult{ack: true}
}
