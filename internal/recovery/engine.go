package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voxline-ai/voxline-backend/internal/media"
	"github.com/voxline-ai/voxline-backend/pkg/config"
	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"github.com/voxline-ai/voxline-backend/pkg/outbox"
	"github.com/voxline-ai/voxline-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type actionMetrics interface {
	IncRecoveryAction(action string)
}

// Outcome classifies what happened to one item during a recovery pass.
type Outcome string

const (
	OutcomeRecovered Outcome = "recovered"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// ItemResult is the per-item report of a recovery pass.
type ItemResult struct {
	ItemID  uuid.UUID            `json:"itemId"`
	Action  enums.RecoveryAction `json:"action"`
	Outcome Outcome              `json:"outcome"`
	Reason  string               `json:"reason,omitempty"`
}

// Options tune a recovery pass. DryRun reports the chosen action without
// mutating anything; Force bypasses the attempt budget and cool-down.
type Options struct {
	DryRun bool
	Force  bool
}

// itemState captures the artifacts a stuck item actually has.
type itemState struct {
	hasTranscript bool
	hasChunks     bool
	hasEmbeddings bool
}

// Engine inspects stuck items and applies the decision matrix.
type Engine struct {
	db      txRunner
	items   media.ItemRepository
	chunks  media.ChunkRepository
	emitter eventEmitter
	metrics actionMetrics
	logg    *logger.Logger
	cfg     config.RecoveryConfig
	now     func() time.Time
}

// EngineParams bundles the engine dependencies.
type EngineParams struct {
	DB      txRunner
	Items   media.ItemRepository
	Chunks  media.ChunkRepository
	Emitter eventEmitter
	Metrics actionMetrics
	Logger  *logger.Logger
	Config  config.RecoveryConfig
}

// NewEngine validates dependencies and builds the engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.DB == nil {
		return nil, errors.New("db client is required")
	}
	if params.Items == nil {
		return nil, errors.New("item repository is required")
	}
	if params.Chunks == nil {
		return nil, errors.New("chunk repository is required")
	}
	if params.Emitter == nil {
		return nil, errors.New("event emitter is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	cfg := params.Config
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MinRetryInterval <= 0 {
		cfg.MinRetryInterval = time.Hour
	}
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = 10 * time.Minute
	}
	return &Engine{
		db:      params.DB,
		items:   params.Items,
		chunks:  params.Chunks,
		emitter: params.Emitter,
		metrics: params.Metrics,
		logg:    params.Logger,
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

func (e *Engine) inspect(ctx context.Context, item *models.MediaItem) (itemState, error) {
	state := itemState{hasTranscript: item.HasTranscript()}
	total, err := e.chunks.CountByItem(ctx, item.ID)
	if err != nil {
		return state, err
	}
	state.hasChunks = total > 0
	if state.hasChunks {
		remaining, err := e.chunks.CountUnembedded(ctx, item.ID)
		if err != nil {
			return state, err
		}
		state.hasEmbeddings = remaining == 0
	}
	return state, nil
}

// RecoverItem applies the decision matrix to one item. The attempt counter is
// claimed with a conditional update first; losing that race means another
// scanner owns the item and it is skipped.
func (e *Engine) RecoverItem(ctx context.Context, item *models.MediaItem, opts Options) ItemResult {
	result := ItemResult{ItemID: item.ID}

	if item.Status == enums.MediaItemStatusCompleted {
		result.Outcome = OutcomeSkipped
		result.Reason = "item already completed"
		return result
	}

	state, err := e.inspect(ctx, item)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		return result
	}
	action := Decide(state.hasTranscript, state.hasChunks, state.hasEmbeddings)
	result.Action = action

	now := e.now()
	if !isEligible(now, item.LastRecoveryAt, item.RecoveryAttempts, e.cfg.MaxAttempts, e.cfg.MinRetryInterval, opts.Force) {
		result.Outcome = OutcomeSkipped
		result.Reason = "attempt budget or cool-down not satisfied"
		return result
	}

	if opts.DryRun {
		result.Outcome = OutcomeSkipped
		result.Reason = "dry run"
		return result
	}

	claimed, err := e.items.ApplyRecovery(ctx, item.ID, item.RecoveryAttempts, action, now)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		return result
	}
	if !claimed {
		result.Outcome = OutcomeSkipped
		result.Reason = "another scanner claimed the item"
		return result
	}

	if err := e.execute(ctx, item, action, now); err != nil {
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		return result
	}

	if e.metrics != nil {
		e.metrics.IncRecoveryAction(string(action))
	}
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"item_id": item.ID.String(),
		"action":  string(action),
		"attempt": item.RecoveryAttempts + 1,
	}), "recovery action applied")

	result.Outcome = OutcomeRecovered
	return result
}

// recoverableStatuses is every status a stuck item may hold when recovery
// re-enters a stage. Completed items never reach execute.
var recoverableStatuses = append(enums.NonTerminalMediaItemStatuses(), enums.MediaItemStatusFailed)

func (e *Engine) execute(ctx context.Context, item *models.MediaItem, action enums.RecoveryAction, now time.Time) error {
	performed := payloads.RecoveryPerformedEvent{
		MediaItemID: item.ID,
		TenantID:    item.TenantID,
		Action:      action,
		Attempt:     item.RecoveryAttempts + 1,
		PerformedAt: now,
	}

	return e.db.WithTx(ctx, func(tx *gorm.DB) error {
		items := e.items.WithTx(tx)
		chunks := e.chunks.WithTx(tx)

		switch action {
		case enums.RecoveryActionMarkFailed:
			if err := items.MarkFailed(ctx, item.ID, MissingTranscriptMessage, enums.ErrorCategoryRecovery); err != nil {
				return err
			}
			if err := e.emitter.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventMediaFailed,
				AggregateType: enums.AggregateMediaItem,
				AggregateID:   item.ID,
				Version:       1,
				Data: payloads.MediaFailedEvent{
					MediaItemID:   item.ID,
					TenantID:      item.TenantID,
					ErrorMessage:  MissingTranscriptMessage,
					ErrorCategory: enums.ErrorCategoryRecovery,
				},
			}); err != nil {
				return err
			}

		case enums.RecoveryActionRetryProcessing:
			// Stale partial chunks would collide with the re-chunk ordinals.
			if err := chunks.DeleteByItem(ctx, item.ID); err != nil {
				return err
			}
			if _, err := items.TransitionStatus(ctx, item.ID, recoverableStatuses, enums.MediaItemStatusProcessing); err != nil {
				return err
			}
			if err := e.emitter.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventChunkingRequested,
				AggregateType: enums.AggregateMediaItem,
				AggregateID:   item.ID,
				Version:       1,
				Data: payloads.ChunkingRequestedEvent{
					MediaItemID: item.ID,
					TenantID:    item.TenantID,
				},
			}); err != nil {
				return err
			}

		case enums.RecoveryActionRetryEmbeddings:
			if _, err := items.TransitionStatus(ctx, item.ID, recoverableStatuses, enums.MediaItemStatusEmbedding); err != nil {
				return err
			}
			if err := e.emitter.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventEmbeddingRequested,
				AggregateType: enums.AggregateMediaItem,
				AggregateID:   item.ID,
				Version:       1,
				Data: payloads.EmbeddingRequestedEvent{
					MediaItemID: item.ID,
					TenantID:    item.TenantID,
				},
			}); err != nil {
				return err
			}

		case enums.RecoveryActionFixStatus:
			if _, err := items.MarkCompleted(ctx, item.ID, now); err != nil {
				return err
			}

		default:
			return errors.New("unknown recovery action")
		}

		return e.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRecoveryPerformed,
			AggregateType: enums.AggregateMediaItem,
			AggregateID:   item.ID,
			Version:       1,
			Data:          performed,
		})
	})
}
