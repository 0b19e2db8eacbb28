package media

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voxline-ai/voxline-backend/pkg/db/models"
)

// SearchHit is one chunk returned from a vector similarity search.
type SearchHit struct {
	Chunk    models.Chunk
	ItemID   uuid.UUID
	Title    string
	Distance float64
}

// ChunkRepository manages persistence for transcript chunks.
type ChunkRepository interface {
	WithTx(tx *gorm.DB) ChunkRepository
	BulkInsert(ctx context.Context, chunks []models.Chunk) error
	CountByItem(ctx context.Context, itemID uuid.UUID) (int64, error)
	CountUnembedded(ctx context.Context, itemID uuid.UUID) (int64, error)
	ListByItem(ctx context.Context, itemID uuid.UUID) ([]models.Chunk, error)
	ListUnembedded(ctx context.Context, itemID uuid.UUID, limit int) ([]models.Chunk, error)
	SetEmbedding(ctx context.Context, chunkID uuid.UUID, embedding pgvector.Vector) error
	DeleteByItem(ctx context.Context, itemID uuid.UUID) error
	DeleteByItemTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error)
	Search(ctx context.Context, tenantID uuid.UUID, query pgvector.Vector, limit int) ([]SearchHit, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository returns a chunk repository bound to the provided database.
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

func (r *chunkRepository) WithTx(tx *gorm.DB) ChunkRepository {
	if tx == nil {
		return r
	}
	return &chunkRepository{db: tx}
}

// BulkInsert is idempotent on (media_item_id, position); redelivered chunking
// work lands on the unique index and is dropped.
func (r *chunkRepository) BulkInsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "media_item_id"}, {Name: "position"}},
			DoNothing: true,
		}).
		Create(&chunks).Error
}

func (r *chunkRepository) CountByItem(ctx context.Context, itemID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Chunk{}).
		Where("media_item_id = ?", itemID).
		Count(&count).Error
	return count, err
}

func (r *chunkRepository) CountUnembedded(ctx context.Context, itemID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Chunk{}).
		Where("media_item_id = ? AND embedding IS NULL", itemID).
		Count(&count).Error
	return count, err
}

func (r *chunkRepository) ListByItem(ctx context.Context, itemID uuid.UUID) ([]models.Chunk, error) {
	var rows []models.Chunk
	err := r.db.WithContext(ctx).
		Where("media_item_id = ?", itemID).
		Order("position ASC").
		Find(&rows).Error
	return rows, err
}

func (r *chunkRepository) ListUnembedded(ctx context.Context, itemID uuid.UUID, limit int) ([]models.Chunk, error) {
	query := r.db.WithContext(ctx).
		Where("media_item_id = ? AND embedding IS NULL", itemID).
		Order("position ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.Chunk
	err := query.Find(&rows).Error
	return rows, err
}

func (r *chunkRepository) SetEmbedding(ctx context.Context, chunkID uuid.UUID, embedding pgvector.Vector) error {
	return r.db.WithContext(ctx).
		Model(&models.Chunk{}).
		Where("id = ?", chunkID).
		Update("embedding", embedding).Error
}

func (r *chunkRepository) DeleteByItem(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("media_item_id = ?", itemID).
		Delete(&models.Chunk{}).Error
}

// DeleteByItemTx removes an item's chunks inside the caller's transaction and
// reports how many rows went away.
func (r *chunkRepository) DeleteByItemTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error) {
	if tx == nil {
		return 0, gorm.ErrInvalidTransaction
	}
	result := tx.WithContext(ctx).
		Where("media_item_id = ?", itemID).
		Delete(&models.Chunk{})
	return result.RowsAffected, result.Error
}

// Search runs a cosine-distance scan over the tenant's embedded chunks.
func (r *chunkRepository) Search(ctx context.Context, tenantID uuid.UUID, query pgvector.Vector, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	type row struct {
		models.Chunk
		Title    string  `gorm:"column:title"`
		Distance float64 `gorm:"column:distance"`
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Table("chunks").
		Select("chunks.*, media_items.title AS title, chunks.embedding <=> ? AS distance", query).
		Joins("JOIN media_items ON media_items.id = chunks.media_item_id").
		Where("media_items.tenant_id = ? AND media_items.deleted_at IS NULL", tenantID).
		Where("chunks.embedding IS NOT NULL").
		Order("distance ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, SearchHit{
			Chunk:    r.Chunk,
			ItemID:   r.Chunk.MediaItemID,
			Title:    r.Title,
			Distance: r.Distance,
		})
	}
	return hits, nil
}
