package pipeline

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voxline-ai/voxline-backend/internal/media"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"github.com/voxline-ai/voxline-backend/pkg/outbox"
	"github.com/voxline-ai/voxline-backend/pkg/outbox/payloads"
)

// failedStageRef is the subset of every stage payload needed to locate the item.
type failedStageRef struct {
	MediaItemID uuid.UUID `json:"media_item_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
}

// FailureConsumer drains the dead-letter subscription fed by the stage topics.
// A message lands here after exhausting its delivery attempts, so the item is
// marked failed with the retries_exhausted category.
type FailureConsumer struct {
	items        media.ItemRepository
	emitter      eventEmitter
	db           txRunner
	metrics      stageMetrics
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// FailureConsumerParams bundles the consumer dependencies.
type FailureConsumerParams struct {
	Items        media.ItemRepository
	Emitter      eventEmitter
	DB           txRunner
	Metrics      stageMetrics
	Subscription *pubsub.Subscriber
	Logger       *logger.Logger
}

// NewFailureConsumer validates dependencies and builds the consumer.
func NewFailureConsumer(params FailureConsumerParams) (*FailureConsumer, error) {
	if params.Items == nil {
		return nil, errors.New("item repository is required")
	}
	if params.Emitter == nil {
		return nil, errors.New("event emitter is required")
	}
	if params.DB == nil {
		return nil, errors.New("db client is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &FailureConsumer{
		items:        params.Items,
		emitter:      params.Emitter,
		db:           params.DB,
		metrics:      params.Metrics,
		subscription: params.Subscription,
		logg:         params.Logger,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *FailureConsumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("failure subscription is required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.handle(ctx, msg.Data, msg.Attributes)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *FailureConsumer) handle(ctx context.Context, data []byte, attrs map[string]string) processResult {
	var ref failedStageRef
	envelope, err := decodeEnvelope(data, &ref)
	if err != nil {
		c.logg.Error(ctx, "failure: undecodable dead-letter message", err)
		return processResult{ack: true}
	}
	if ref.MediaItemID == uuid.Nil {
		c.logg.Warn(ctx, "failure: dead-letter message without an item reference")
		return processResult{ack: true}
	}

	eventType := attrs["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
		"item_id":    ref.MediaItemID.String(),
		"tenant":     ref.TenantID.String(),
	})

	item, err := c.items.FindByIDInternal(logCtx, ref.MediaItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.logg.Warn(logCtx, "failure: item not found")
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "failure: load item", err)
		return processResult{nack: true}
	}
	if item.Status.IsTerminal() {
		c.logg.Info(logCtx, "failure: item already terminal")
		return processResult{ack: true}
	}

	message := fmt.Sprintf("stage delivery attempts exhausted (event %s)", eventType)
	err = c.db.WithTx(logCtx, func(tx *gorm.DB) error {
		if err := c.items.WithTx(tx).MarkFailed(logCtx, item.ID, message, enums.ErrorCategoryRetriesExhausted); err != nil {
			return err
		}
		return c.emitter.EmitIfNotExists(logCtx, tx, outbox.DomainEvent{
			EventType:     enums.EventMediaFailed,
			AggregateType: enums.AggregateMediaItem,
			AggregateID:   item.ID,
			Version:       1,
			Data: payloads.MediaFailedEvent{
				MediaItemID:   item.ID,
				TenantID:      item.TenantID,
				ErrorMessage:  message,
				ErrorCategory: enums.ErrorCategoryRetriesExhausted,
			},
		})
	})
	if err != nil {
		c.logg.Error(logCtx, "failure: mark item failed", err)
		return processResult{nack: true}
	}

	if c.metrics != nil {
		c.metrics.IncStageFailure(stageFor(eventType), string(enums.ErrorCategoryRetriesExhausted))
	}
	c.logg.Warn(logCtx, "failure: item marked failed after exhausted deliveries")
	return processResult{ack: true}
}

func stageFor(eventType string) string {
	switch enums.OutboxEventType(eventType) {
	case enums.EventTranscriptionRequested:
		return stageTranscribe
	case enums.EventChunkingRequested:
		return stageProcess
	case enums.EventEmbeddingRequested:
		return stageEmbed
	default:
		return "unknown"
	}
}
