package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/voxline-ai/voxline-backend/pkg/enums"
)

// Tenant owns media items and carries the subscription tier that quota
// ceilings are derived from.
type Tenant struct {
	ID       uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name     string         `gorm:"column:name;not null"`
	Tier     enums.Tier     `gorm:"column:tier;type:tenant_tier;not null;default:'starter'"`
	Features pq.StringArray `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
