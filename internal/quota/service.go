package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/voxline-ai/voxline-backend/pkg/errors"
)

// Deltas carries the additive usage recorded after a cost-incurring stage.
// All fields must be non-negative.
type Deltas struct {
	StorageBytes           int64
	ItemCount              int64
	ProcessingMinutes      float64
	TranscriptionCostCents int64
	EmbeddingCostCents     int64
	StorageCostCents       int64
}

func (d Deltas) validate() error {
	if d.StorageBytes < 0 || d.ItemCount < 0 || d.ProcessingMinutes < 0 ||
		d.TranscriptionCostCents < 0 || d.EmbeddingCostCents < 0 || d.StorageCostCents < 0 {
		return apperrors.New(apperrors.CodeValidation, "usage deltas must be non-negative")
	}
	return nil
}

// Decision is the result of a quota check. Reasons are populated only when
// the check denies admission; warnings surface soft limit pressure.
type Decision struct {
	Allowed  bool     `json:"allowed"`
	Reasons  []string `json:"reasons,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Service answers admission questions and records usage.
type Service interface {
	CheckQuota(ctx context.Context, tenantID uuid.UUID, proposedBytes int64) (Decision, error)
	RecordUsage(ctx context.Context, tenantID uuid.UUID, deltas Deltas) error
	EstimateCost(durationMinutes float64, tokens int64, storageBytes int64) CostEstimate
}

type service struct {
	usage   UsageRepository
	tenants TenantRepository
	now     func() time.Time
}

// NewService wires the quota service.
func NewService(usage UsageRepository, tenants TenantRepository) (Service, error) {
	if usage == nil {
		return nil, fmt.Errorf("usage repository required")
	}
	if tenants == nil {
		return nil, fmt.Errorf("tenant repository required")
	}
	return &service{usage: usage, tenants: tenants, now: time.Now}, nil
}

// CheckQuota is a pure read: it never mutates ledger state, so callers may
// re-run it freely.
func (s *service) CheckQuota(ctx context.Context, tenantID uuid.UUID, proposedBytes int64) (Decision, error) {
	if tenantID == uuid.Nil {
		return Decision{}, apperrors.New(apperrors.CodeValidation, "tenant id required")
	}
	if proposedBytes < 0 {
		return Decision{}, apperrors.New(apperrors.CodeValidation, "proposed bytes must be non-negative")
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return Decision{}, err
	}
	limits := LimitsForTier(tenant.Tier)

	lifetime, err := s.usage.TotalsAllTime(ctx, tenantID)
	if err != nil {
		return Decision{}, err
	}
	monthly, err := s.usage.TotalsSince(ctx, tenantID, monthStart(s.now()))
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{Allowed: true}

	checkLimit(&decision, "storage", lifetime.StorageBytes+proposedBytes, limits.MaxStorageBytes)
	checkLimit(&decision, "items", lifetime.ItemCount+1, limits.MaxItems)
	checkLimit(&decision, "monthly ingestion", monthly.ItemCount+1, limits.MaxMonthlyIngestion)

	return decision, nil
}

func (s *service) RecordUsage(ctx context.Context, tenantID uuid.UUID, deltas Deltas) error {
	if tenantID == uuid.Nil {
		return apperrors.New(apperrors.CodeValidation, "tenant id required")
	}
	if err := deltas.validate(); err != nil {
		return err
	}
	return s.usage.AddUsage(ctx, tenantID, s.now(), deltas)
}

func (s *service) EstimateCost(durationMinutes float64, tokens int64, storageBytes int64) CostEstimate {
	return EstimateCost(durationMinutes, tokens, storageBytes)
}

// checkLimit records a denial when the projection exceeds the limit and
// warnings at 80%/90% pressure. Sentinel limits never deny.
func checkLimit(decision *Decision, name string, projected, limit int64) {
	if unlimited(limit) {
		return
	}
	if projected > limit {
		decision.Allowed = false
		decision.Reasons = append(decision.Reasons, fmt.Sprintf("%s limit exceeded (%d of %d)", name, projected, limit))
		return
	}
	usage := float64(projected) / float64(limit)
	switch {
	case usage >= 0.9:
		decision.Warnings = append(decision.Warnings, fmt.Sprintf("%s usage above 90%%", name))
	case usage >= 0.8:
		decision.Warnings = append(decision.Warnings, fmt.Sprintf("%s usage above 80%%", name))
	}
}

func monthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
