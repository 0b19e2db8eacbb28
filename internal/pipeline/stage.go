package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voxline-ai/voxline-backend/internal/quota"
	"github.com/voxline-ai/voxline-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type usageRecorder interface {
	RecordUsage(ctx context.Context, tenantID uuid.UUID, deltas quota.Deltas) error
	EstimateCost(durationMinutes float64, tokens int64, storageBytes int64) quota.CostEstimate
}

type slotManager interface {
	AcquireSlot(ctx context.Context, scope string, cap int64, ttl time.Duration) (bool, error)
	ReleaseSlot(ctx context.Context, scope string) error
}

type idempotencyGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type stageMetrics interface {
	ObserveStageDuration(stage string, duration time.Duration)
	IncStageSuccess(stage string)
	IncStageFailure(stage, category string)
}

type processResult struct {
	ack  bool
	nack bool
}

// decodeEnvelope peels the outbox envelope from a message body and unmarshals
// the typed payload into dst.
func decodeEnvelope(data []byte, dst any) (outbox.PayloadEnvelope, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return envelope, fmt.Errorf("decode envelope: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		return envelope, fmt.Errorf("decode payload: %w", err)
	}
	return envelope, nil
}
