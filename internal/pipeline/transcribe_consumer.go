package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voxline-ai/voxline-backend/internal/media"
	"github.com/voxline-ai/voxline-backend/internal/providers/transcription"
	"github.com/voxline-ai/voxline-backend/internal/quota"
	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"github.com/voxline-ai/voxline-backend/pkg/outbox"
	"github.com/voxline-ai/voxline-backend/pkg/outbox/payloads"
)

const (
	stageTranscribe = "transcribing"
	// transcribeConsumerName scopes processed-event marks in redis.
	transcribeConsumerName = "transcribe-stage"
	// transcribeSlotTTL bounds how long a crashed worker can pin a slot.
	transcribeSlotTTL = 30 * time.Minute
)

// TranscribeConsumer handles transcription_requested events: it claims the
// item, calls the transcription provider, persists the transcript, and queues
// the chunking stage.
type TranscribeConsumer struct {
	items        media.ItemRepository
	provider     transcription.Provider
	emitter      eventEmitter
	db           txRunner
	slots        slotManager
	usage        usageRecorder
	idempotency  idempotencyGuard
	metrics      stageMetrics
	subscription *pubsub.Subscriber
	logg         *logger.Logger
	tenantCap    int64
	now          func() time.Time
}

// TranscribeConsumerParams bundles the consumer dependencies.
type TranscribeConsumerParams struct {
	Items        media.ItemRepository
	Provider     transcription.Provider
	Emitter      eventEmitter
	DB           txRunner
	Slots        slotManager
	Usage        usageRecorder
	Idempotency  idempotencyGuard
	Metrics      stageMetrics
	Subscription *pubsub.Subscriber
	Logger       *logger.Logger
	TenantCap    int
}

// NewTranscribeConsumer validates dependencies and builds the consumer.
func NewTranscribeConsumer(params TranscribeConsumerParams) (*TranscribeConsumer, error) {
	if params.Items == nil {
		return nil, errors.New("item repository is required")
	}
	if params.Provider == nil {
		return nil, errors.New("transcription provider is required")
	}
	if params.Emitter == nil {
		return nil, errors.New("event emitter is required")
	}
	if params.DB == nil {
		return nil, errors.New("db client is required")
	}
	if params.Slots == nil {
		return nil, errors.New("slot manager is required")
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
	tenantCap := params.TenantCap
	if tenantCap <= 0 {
		tenantCap = 10
	}
	return &TranscribeConsumer{
		items:        params.Items,
		provider:     params.Provider,
		emitter:      params.Emitter,
		db:           params.DB,
		slots:        params.Slots,
		usage:        params.Usage,
		idempotency:  params.Idempotency,
		metrics:      params.Metrics,
		subscription: params.Subscription,
		logg:         params.Logger,
		tenantCap:    int64(tenantCap),
		now:          time.Now,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *TranscribeConsumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("transcribe subscription is required")
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

func (c *TranscribeConsumer) handle(ctx context.Context, data []byte) processResult {
	var payload payloads.TranscriptionRequestedEvent
	envelope, err := decodeEnvelope(data, &payload)
	if err != nil {
		c.logg.Error(ctx, "transcribe: undecodable message", err)
		return processResult{ack: true}
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id": envelope.EventID,
		"item_id":  payload.MediaItemID.String(),
		"tenant":   payload.TenantID.String(),
		"stage":    stageTranscribe,
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "transcribe: invalid event id", err)
		return processResult{ack: true}
	}
	already, err := c.idempotency.CheckAndMarkProcessed(logCtx, transcribeConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "transcribe: idempotency check", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "transcribe: event already processed")
		return processResult{ack: true}
	}

	result := c.process(logCtx, payload)
	if result.nack {
		// Unmark so the redelivery is not swallowed by the guard.
		if err := c.idempotency.Delete(logCtx, transcribeConsumerName, eventID); err != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "transcribe: unmark event failed")
		}
	}
	return result
}

func (c *TranscribeConsumer) process(logCtx context.Context, payload payloads.TranscriptionRequestedEvent) processResult {
	item, err := c.items.FindByIDInternal(logCtx, payload.MediaItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.logg.Warn(logCtx, "transcribe: item not found")
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "transcribe: load item", err)
		return processResult{nack: true}
	}

	// Guard: only claim items still waiting for transcription.
	claimed, err := c.items.TransitionStatus(logCtx, item.ID,
		[]enums.MediaItemStatus{enums.MediaItemStatusPending, enums.MediaItemStatusUploading},
		enums.MediaItemStatusTranscribing)
	if err != nil {
		c.logg.Error(logCtx, "transcribe: claim item", err)
		return processResult{nack: true}
	}
	if !claimed {
		if item.Status != enums.MediaItemStatusTranscribing {
			c.logg.Info(logCtx, "transcribe: item already past this stage")
			return processResult{ack: true}
		}
		// A redelivery while we hold the transcribing status; fall through
		// and redo the work, persistence below is idempotent.
	}

	slotScope := "transcribe:" + payload.TenantID.String()
	acquired, err := c.slots.AcquireSlot(logCtx, slotScope, c.tenantCap, transcribeSlotTTL)
	if err != nil {
		c.logg.Error(logCtx, "transcribe: slot acquire", err)
		return processResult{nack: true}
	}
	if !acquired {
		// Tenant is at its concurrency cap; redeliver later.
		c.logg.Info(logCtx, "transcribe: tenant concurrency cap reached")
		return processResult{nack: true}
	}
	defer func() {
		if err := c.slots.ReleaseSlot(context.WithoutCancel(logCtx), slotScope); err != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "transcribe: slot release failed")
		}
	}()

	started := c.now()
	result, err := c.provider.Transcribe(logCtx, providerSource(item), payload.LanguageHint)
	if err != nil {
		return c.failItem(logCtx, item, err)
	}

	if err := c.items.SaveTranscript(logCtx, item.ID, result.Text, result.DetectedLanguage, result.DurationSeconds); err != nil {
		c.logg.Error(logCtx, "transcribe: persist transcript", err)
		return processResult{nack: true}
	}

	err = c.db.WithTx(logCtx, func(tx *gorm.DB) error {
		moved, err := c.items.WithTx(tx).TransitionStatus(logCtx, item.ID,
			[]enums.MediaItemStatus{enums.MediaItemStatusTranscribing},
			enums.MediaItemStatusProcessing)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		return c.emitter.EmitIfNotExists(logCtx, tx, outbox.DomainEvent{
			EventType:     enums.EventChunkingRequested,
			AggregateType: enums.AggregateMediaItem,
			AggregateID:   item.ID,
			Version:       1,
			Data: payloads.ChunkingRequestedEvent{
				MediaItemID: item.ID,
				TenantID:    item.TenantID,
			},
		})
	})
	if err != nil {
		c.logg.Error(logCtx, "transcribe: advance stage", err)
		return processResult{nack: true}
	}

	minutes := result.DurationSeconds / 60
	estimate := c.usage.EstimateCost(minutes, 0, 0)
	if err := c.usage.RecordUsage(logCtx, item.TenantID, quota.Deltas{
		ProcessingMinutes:      minutes,
		TranscriptionCostCents: estimate.TranscriptionCents,
	}); err != nil {
		// The stage already succeeded; usage write failures must not unwind it.
		c.logg.Error(logCtx, "transcribe: record usage", err)
	}

	if c.metrics != nil {
		c.metrics.ObserveStageDuration(stageTranscribe, c.now().Sub(started))
		c.metrics.IncStageSuccess(stageTranscribe)
	}
	c.logg.Info(logCtx, "transcribe: stage completed")
	return processResult{ack: true}
}

// failItem converts a provider error into either a redelivery (transient) or
// a terminal failed status.
func (c *TranscribeConsumer) failItem(ctx context.Context, item *models.MediaItem, err error) processResult {
	if transcription.IsRetryable(err) {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "transcribe: transient provider failure")
		if c.metrics != nil {
			c.metrics.IncStageFailure(stageTranscribe, string(enums.ErrorCategoryTransient))
		}
		return processResult{nack: true}
	}

	message := fmt.Sprintf("transcription failed: %v", err)
	if markErr := c.items.MarkFailed(ctx, item.ID, message, enums.ErrorCategoryUnsupportedInput); markErr != nil {
		c.logg.Error(ctx, "transcribe: mark failed", markErr)
		return processResult{nack: true}
	}
	if c.metrics != nil {
		c.metrics.IncStageFailure(stageTranscribe, string(enums.ErrorCategoryUnsupportedInput))
	}
	c.logg.Error(ctx, "transcribe: terminal provider failure", err)
	return processResult{ack: true}
}

func providerSource(item *models.MediaItem) transcription.Source {
	source := transcription.Source{Kind: item.SourceKind}
	if item.StorageKey != nil {
		source.StorageKey = *item.StorageKey
	}
	if item.YouTubeID != nil {
		source.YouTubeID = *item.YouTubeID
	}
	if item.EmbedPlatform != nil {
		source.EmbedPlatform = *item.EmbedPlatform
	}
	if item.EmbedID != nil {
		source.EmbedID = *item.EmbedID
	}
	return source
}
