package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voxline-ai/voxline-backend/pkg/enums"
)

// MediaItem is the unit of work moving through the processing pipeline.
// Exactly one source identifier set is populated, matching SourceKind.
// Rows are soft-deleted only; status and cost history must stay auditable.
type MediaItem struct {
	ID       uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID uuid.UUID  `gorm:"column:tenant_id;type:uuid;not null;index"`
	Title    string     `gorm:"column:title;not null"`

	SourceKind    enums.SourceKind `gorm:"column:source_kind;type:source_kind;not null"`
	StorageKey    *string          `gorm:"column:storage_key;uniqueIndex"`
	YouTubeID     *string          `gorm:"column:youtube_id"`
	EmbedPlatform *string          `gorm:"column:embed_platform"`
	EmbedID       *string          `gorm:"column:embed_id"`

	Status           enums.MediaItemStatus `gorm:"column:status;type:media_item_status;not null;default:'pending';index"`
	ErrorMessage     *string               `gorm:"column:error_message"`
	ErrorCategory    *enums.ErrorCategory  `gorm:"column:error_category;type:error_category"`
	Transcript       *string               `gorm:"column:transcript;type:text"`
	DetectedLanguage *string               `gorm:"column:detected_language"`

	SizeBytes       int64   `gorm:"column:size_bytes;not null;default:0"`
	DurationSeconds float64 `gorm:"column:duration_seconds;not null;default:0"`

	RecoveryAttempts   int                   `gorm:"column:recovery_attempts;not null;default:0"`
	LastRecoveryAt     *time.Time            `gorm:"column:last_recovery_at"`
	LastRecoveryAction *enums.RecoveryAction `gorm:"column:last_recovery_action;type:recovery_action"`

	ProcessingStartedAt   *time.Time     `gorm:"column:processing_started_at"`
	ProcessingCompletedAt *time.Time     `gorm:"column:processing_completed_at"`
	CreatedAt             time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt             gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// RecoveryState groups the recovery bookkeeping embedded on the item.
type RecoveryState struct {
	Attempts   int
	LastAt     *time.Time
	LastAction *enums.RecoveryAction
}

// Recovery returns the embedded recovery bookkeeping.
func (m *MediaItem) Recovery() RecoveryState {
	return RecoveryState{
		Attempts:   m.RecoveryAttempts,
		LastAt:     m.LastRecoveryAt,
		LastAction: m.LastRecoveryAction,
	}
}

// HasTranscript reports whether a non-empty transcript has been stored.
func (m *MediaItem) HasTranscript() bool {
	return m.Transcript != nil && *m.Transcript != ""
}
