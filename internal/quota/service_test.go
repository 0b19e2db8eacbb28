package quota

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
)

type fakeUsageRepo struct {
	lifetime Totals
	monthly  Totals
	added    []Deltas
	addedAt  []time.Time
}

func (f *fakeUsageRepo) WithTx(*gorm.DB) UsageRepository { return f }

func (f *fakeUsageRepo) AddUsage(_ context.Context, _ uuid.UUID, period time.Time, deltas Deltas) error {
	f.added = append(f.added, deltas)
	f.addedAt = append(f.addedAt, period)
	return nil
}

func (f *fakeUsageRepo) TotalsAllTime(context.Context, uuid.UUID) (Totals, error) {
	return f.lifetime, nil
}

func (f *fakeUsageRepo) TotalsSince(context.Context, uuid.UUID, time.Time) (Totals, error) {
	return f.monthly, nil
}

type fakeTenantRepo struct {
	tenant *models.Tenant
}

func (f *fakeTenantRepo) FindByID(context.Context, uuid.UUID) (*models.Tenant, error) {
	return f.tenant, nil
}

func newQuotaService(t *testing.T, usage *fakeUsageRepo, tier enums.Tier) Service {
	t.Helper()
	svc, err := NewService(usage, &fakeTenantRepo{
		tenant: &models.Tenant{ID: uuid.New(), Tier: tier},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestCheckQuotaAllowsUnderLimit(t *testing.T) {
	usage := &fakeUsageRepo{lifetime: Totals{StorageBytes: 1 << 30, ItemCount: 10}}
	svc := newQuotaService(t, usage, enums.TierStarter)

	decision, err := svc.CheckQuota(context.Background(), uuid.New(), 1<<20)
	if err != nil {
		t.Fatalf("CheckQuota: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allowed, got reasons %v", decision.Reasons)
	}
	if len(decision.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", decision.Warnings)
	}
	if len(usage.added) != 0 {
		t.Fatal("check must not record usage")
	}
}

func TestCheckQuotaDeniesOverStorage(t *testing.T) {
	usage := &fakeUsageRepo{lifetime: Totals{StorageBytes: 5 << 30}}
	svc := newQuotaService(t, usage, enums.TierStarter)

	decision, err := svc.CheckQuota(context.Background(), uuid.New(), 1)
	if err != nil {
		t.Fatalf("CheckQuota: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected denial")
	}
	if len(decision.Reasons) == 0 {
		t.Fatal("expected a denial reason")
	}
}

func TestCheckQuotaWarnsAtEightyPercent(t *testing.T) {
	// 85 of 100 items for starter.
	usage := &fakeUsageRepo{lifetime: Totals{ItemCount: 84}}
	svc := newQuotaService(t, usage, enums.TierStarter)

	decision, err := svc.CheckQuota(context.Background(), uuid.New(), 0)
	if err != nil {
		t.Fatalf("CheckQuota: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allowed, got %v", decision.Reasons)
	}
	if len(decision.Warnings) == 0 {
		t.Fatal("expected a warning")
	}
}

func TestCheckQuotaScaleTierUnlimited(t *testing.T) {
	usage := &fakeUsageRepo{lifetime: Totals{StorageBytes: 1 << 60, ItemCount: 1 << 40}}
	svc := newQuotaService(t, usage, enums.TierScale)

	decision, err := svc.CheckQuota(context.Background(), uuid.New(), 1<<40)
	if err != nil {
		t.Fatalf("CheckQuota: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("scale tier must never deny, got %v", decision.Reasons)
	}
}

func TestRecordUsageRejectsNegativeDeltas(t *testing.T) {
	usage := &fakeUsageRepo{}
	svc := newQuotaService(t, usage, enums.TierStarter)

	err := svc.RecordUsage(context.Background(), uuid.New(), Deltas{StorageBytes: -1})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(usage.added) != 0 {
		t.Fatal("invalid deltas must not be recorded")
	}
}

func TestRecordUsagePassesDeltasThrough(t *testing.T) {
	usage := &fakeUsageRepo{}
	svc := newQuotaService(t, usage, enums.TierGrowth)

	deltas := Deltas{StorageBytes: 2048, ItemCount: 1, ProcessingMinutes: 4.5, TranscriptionCostCents: 3}
	if err := svc.RecordUsage(context.Background(), uuid.New(), deltas); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if len(usage.added) != 1 || usage.added[0] != deltas {
		t.Fatalf("unexpected recorded deltas %+v", usage.added)
	}
}

func TestEstimateCostRoundsUp(t *testing.T) {
	estimate := EstimateCost(10, 150000, 2<<30)
	// 10 min * $0.006 = $0.06 -> 6 cents
	if estimate.TranscriptionCents != 6 {
		t.Fatalf("transcription: expected 6 cents, got %d", estimate.TranscriptionCents)
	}
	// 150 * $0.0001 = $0.015 -> ceil to 2 cents
	if estimate.EmbeddingCents != 2 {
		t.Fatalf("embedding: expected 2 cents, got %d", estimate.EmbeddingCents)
	}
	// 2 GB * $0.023 = $0.046 -> ceil to 5 cents
	if estimate.StorageCents != 5 {
		t.Fatalf("storage: expected 5 cents, got %d", estimate.StorageCents)
	}
	if estimate.Total() != 13 {
		t.Fatalf("expected total 13 cents, got %d", estimate.Total())
	}
}
