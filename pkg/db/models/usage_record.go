package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is a per-tenant, per-day ledger row. Columns are additive
// deltas; rows are upserted, never overwritten, and never deleted.
type UsageRecord struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_usage_tenant_period"`
	Period   time.Time `gorm:"column:period;type:date;not null;uniqueIndex:ux_usage_tenant_period"`

	StorageBytes      int64   `gorm:"column:storage_bytes;not null;default:0"`
	ItemCount         int64   `gorm:"column:item_count;not null;default:0"`
	ProcessingMinutes float64 `gorm:"column:processing_minutes;not null;default:0"`

	TranscriptionCostCents int64 `gorm:"column:transcription_cost_cents;not null;default:0"`
	EmbeddingCostCents     int64 `gorm:"column:embedding_cost_cents;not null;default:0"`
	StorageCostCents       int64 `gorm:"column:storage_cost_cents;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
