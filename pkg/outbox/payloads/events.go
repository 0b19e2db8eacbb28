package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/voxline-ai/voxline-backend/pkg/enums"
)

// TranscriptionRequestedEvent asks the transcribe worker to produce a transcript.
type TranscriptionRequestedEvent struct {
	MediaItemID  uuid.UUID        `json:"media_item_id"`
	TenantID     uuid.UUID        `json:"tenant_id"`
	SourceKind   enums.SourceKind `json:"source_kind"`
	LanguageHint string           `json:"language_hint,omitempty"`
}

// ChunkingRequestedEvent asks the process worker to split a transcript into chunks.
type ChunkingRequestedEvent struct {
	MediaItemID uuid.UUID `json:"media_item_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
}

// EmbeddingRequestedEvent asks the embed worker to vectorize pending chunks.
type EmbeddingRequestedEvent struct {
	MediaItemID uuid.UUID `json:"media_item_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
}

// MediaCompletedEvent is emitted once an item reaches the completed status.
type MediaCompletedEvent struct {
	MediaItemID     uuid.UUID `json:"media_item_id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	ChunkCount      int       `json:"chunk_count"`
	DurationSeconds float64   `json:"duration_seconds"`
	CompletedAt     time.Time `json:"completed_at"`
}

// MediaFailedEvent is emitted when an item transitions to failed.
type MediaFailedEvent struct {
	MediaItemID   uuid.UUID           `json:"media_item_id"`
	TenantID      uuid.UUID           `json:"tenant_id"`
	ErrorMessage  string              `json:"error_message"`
	ErrorCategory enums.ErrorCategory `json:"error_category"`
}

// RecoveryPerformedEvent reports a recovery action applied to a stuck item.
type RecoveryPerformedEvent struct {
	MediaItemID uuid.UUID            `json:"media_item_id"`
	TenantID    uuid.UUID            `json:"tenant_id"`
	Action      enums.RecoveryAction `json:"action"`
	Attempt     int                  `json:"attempt"`
	PerformedAt time.Time            `json:"performed_at"`
}
