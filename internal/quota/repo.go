package quota

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voxline-ai/voxline-backend/pkg/db/models"
)

// Totals aggregates ledger rows over a window.
type Totals struct {
	StorageBytes      int64
	ItemCount         int64
	ProcessingMinutes float64
	CostCents         int64
}

// UsageRepository persists the per-tenant, per-day ledger.
type UsageRepository interface {
	WithTx(tx *gorm.DB) UsageRepository
	AddUsage(ctx context.Context, tenantID uuid.UUID, period time.Time, deltas Deltas) error
	TotalsAllTime(ctx context.Context, tenantID uuid.UUID) (Totals, error)
	TotalsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (Totals, error)
}

// TenantRepository resolves tier information for quota decisions.
type TenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository returns a ledger repository bound to the database.
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) WithTx(tx *gorm.DB) UsageRepository {
	if tx == nil {
		return r
	}
	return &usageRepository{db: tx}
}

// AddUsage upserts additively on (tenant_id, period). Columns only ever grow.
func (r *usageRepository) AddUsage(ctx context.Context, tenantID uuid.UUID, period time.Time, deltas Deltas) error {
	row := models.UsageRecord{
		TenantID:               tenantID,
		Period:                 period.UTC().Truncate(24 * time.Hour),
		StorageBytes:           deltas.StorageBytes,
		ItemCount:              deltas.ItemCount,
		ProcessingMinutes:      deltas.ProcessingMinutes,
		TranscriptionCostCents: deltas.TranscriptionCostCents,
		EmbeddingCostCents:     deltas.EmbeddingCostCents,
		StorageCostCents:       deltas.StorageCostCents,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "period"}},
			DoUpdates: clause.Assignments(map[string]any{
				"storage_bytes":            gorm.Expr("usage_records.storage_bytes + ?", deltas.StorageBytes),
				"item_count":               gorm.Expr("usage_records.item_count + ?", deltas.ItemCount),
				"processing_minutes":       gorm.Expr("usage_records.processing_minutes + ?", deltas.ProcessingMinutes),
				"transcription_cost_cents": gorm.Expr("usage_records.transcription_cost_cents + ?", deltas.TranscriptionCostCents),
				"embedding_cost_cents":     gorm.Expr("usage_records.embedding_cost_cents + ?", deltas.EmbeddingCostCents),
				"storage_cost_cents":       gorm.Expr("usage_records.storage_cost_cents + ?", deltas.StorageCostCents),
				"updated_at":               time.Now(),
			}),
		}).
		Create(&row).Error
}

func (r *usageRepository) TotalsAllTime(ctx context.Context, tenantID uuid.UUID) (Totals, error) {
	return r.totals(ctx, tenantID, nil)
}

func (r *usageRepository) TotalsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (Totals, error) {
	return r.totals(ctx, tenantID, &since)
}

func (r *usageRepository) totals(ctx context.Context, tenantID uuid.UUID, since *time.Time) (Totals, error) {
	query := r.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("tenant_id = ?", tenantID)
	if since != nil {
		query = query.Where("period >= ?", since.UTC().Truncate(24*time.Hour))
	}
	var result struct {
		StorageBytes      int64
		ItemCount         int64
		ProcessingMinutes float64
		CostCents         int64
	}
	err := query.
		Select("COALESCE(SUM(storage_bytes),0) AS storage_bytes, COALESCE(SUM(item_count),0) AS item_count, COALESCE(SUM(processing_minutes),0) AS processing_minutes, COALESCE(SUM(transcription_cost_cents + embedding_cost_cents + storage_cost_cents),0) AS cost_cents").
		Scan(&result).Error
	if err != nil {
		return Totals{}, err
	}
	return Totals{
		StorageBytes:      result.StorageBytes,
		ItemCount:         result.ItemCount,
		ProcessingMinutes: result.ProcessingMinutes,
		CostCents:         result.CostCents,
	}, nil
}

type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository returns a tenant repository bound to the database.
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}
