package media

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	"github.com/voxline-ai/voxline-backend/pkg/pagination"
)

// ItemRepository manages persistence for media items.
type ItemRepository interface {
	WithTx(tx *gorm.DB) ItemRepository
	Create(ctx context.Context, item *models.MediaItem) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.MediaItem, error)
	FindByIDInternal(ctx context.Context, id uuid.UUID) (*models.MediaItem, error)
	FindByStorageKey(ctx context.Context, storageKey string) (*models.MediaItem, error)
	List(ctx context.Context, tenantID uuid.UUID, status *enums.MediaItemStatus, params pagination.Params) ([]models.MediaItem, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.MediaItemStatus, to enums.MediaItemStatus) (bool, error)
	SaveTranscript(ctx context.Context, id uuid.UUID, transcript, language string, durationSeconds float64) error
	MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, message string, category enums.ErrorCategory) error
	FindStale(ctx context.Context, tenantID *uuid.UUID, olderThan time.Time, limit int) ([]models.MediaItem, error)
	ApplyRecovery(ctx context.Context, id uuid.UUID, expectedAttempts int, action enums.RecoveryAction, at time.Time) (bool, error)
	ListDeletedBefore(ctx context.Context, cutoff time.Time) ([]models.MediaItem, error)
	PurgeWithTx(tx *gorm.DB, id uuid.UUID) error
}

type itemRepository struct {
	db *gorm.DB
}

// NewItemRepository returns an item repository bound to the provided database.
func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) WithTx(tx *gorm.DB) ItemRepository {
	if tx == nil {
		return r
	}
	return &itemRepository{db: tx}
}

func (r *itemRepository) Create(ctx context.Context, item *models.MediaItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *itemRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.MediaItem, error) {
	var item models.MediaItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByIDInternal skips the tenant scope; workers resolve items by id alone.
func (r *itemRepository) FindByIDInternal(ctx context.Context, id uuid.UUID) (*models.MediaItem, error) {
	var item models.MediaItem
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) FindByStorageKey(ctx context.Context, storageKey string) (*models.MediaItem, error) {
	var item models.MediaItem
	err := r.db.WithContext(ctx).
		Where("storage_key = ?", storageKey).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) List(ctx context.Context, tenantID uuid.UUID, status *enums.MediaItemStatus, params pagination.Params) ([]models.MediaItem, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.MediaItem
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}

// TransitionStatus performs a conditional status update. The boolean result
// reports whether this caller won the transition; losing means another worker
// already moved the item.
func (r *itemRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.MediaItemStatus, to enums.MediaItemStatus) (bool, error) {
	updates := map[string]any{"status": to}
	switch to {
	case enums.MediaItemStatusTranscribing, enums.MediaItemStatusProcessing:
		// Caption-bearing items enter the pipeline at processing, so stamp
		// the start on either entry point without overwriting an earlier one.
		updates["processing_started_at"] = gorm.Expr("COALESCE(processing_started_at, ?)", time.Now())
	}
	result := r.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *itemRepository) SaveTranscript(ctx context.Context, id uuid.UUID, transcript, language string, durationSeconds float64) error {
	return r.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"transcript":        transcript,
			"detected_language": language,
			"duration_seconds":  durationSeconds,
		}).Error
}

func (r *itemRepository) MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Where("id = ? AND status <> ?", id, enums.MediaItemStatusCompleted).
		Updates(map[string]any{
			"status":                  enums.MediaItemStatusCompleted,
			"processing_completed_at": completedAt,
			"error_message":           nil,
			"error_category":          nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *itemRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string, category enums.ErrorCategory) error {
	return r.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Where("id = ? AND status <> ?", id, enums.MediaItemStatusCompleted).
		Updates(map[string]any{
			"status":         enums.MediaItemStatusFailed,
			"error_message":  message,
			"error_category": category,
		}).Error
}

// FindStale returns non-terminal items created before the cutoff, oldest
// first, optionally scoped to one tenant. Soft-deleted rows are excluded by
// the gorm scope.
func (r *itemRepository) FindStale(ctx context.Context, tenantID *uuid.UUID, olderThan time.Time, limit int) ([]models.MediaItem, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ?", enums.NonTerminalMediaItemStatuses()).
		Where("created_at < ?", olderThan)
	if tenantID != nil {
		query = query.Where("tenant_id = ?", *tenantID)
	}
	var rows []models.MediaItem
	err := query.
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ApplyRecovery bumps the attempt counter only when it still matches the
// value the scanner read. A lost update means a concurrent scanner already
// claimed the item.
func (r *itemRepository) ApplyRecovery(ctx context.Context, id uuid.UUID, expectedAttempts int, action enums.RecoveryAction, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Where("id = ? AND recovery_attempts = ?", id, expectedAttempts).
		Updates(map[string]any{
			"recovery_attempts":    expectedAttempts + 1,
			"last_recovery_at":     at,
			"last_recovery_action": action,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListDeletedBefore returns soft-deleted items whose deletion predates the
// cutoff, for hard removal by the retention job.
func (r *itemRepository) ListDeletedBefore(ctx context.Context, cutoff time.Time) ([]models.MediaItem, error) {
	var rows []models.MediaItem
	err := r.db.WithContext(ctx).
		Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Find(&rows).Error
	return rows, err
}

// PurgeWithTx hard-deletes one item. Chunks must be removed first in the
// same transaction.
func (r *itemRepository) PurgeWithTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Unscoped().
		Where("id = ?", id).
		Delete(&models.MediaItem{}).Error
}
