package ingest

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/voxline-ai/voxline-backend/internal/media"
	"github.com/voxline-ai/voxline-backend/internal/quota"
	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	apperrors "github.com/voxline-ai/voxline-backend/pkg/errors"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"github.com/voxline-ai/voxline-backend/pkg/outbox"
	"github.com/voxline-ai/voxline-backend/pkg/outbox/payloads"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeEmitter struct {
	events []outbox.DomainEvent
}

func (f *fakeEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeItems struct {
	media.ItemRepository
	created []*models.MediaItem
	byKey   map[string]*models.MediaItem
}

func (f *fakeItems) WithTx(*gorm.DB) media.ItemRepository { return f }

func (f *fakeItems) Create(_ context.Context, item *models.MediaItem) error {
	f.created = append(f.created, item)
	return nil
}

func (f *fakeItems) FindByStorageKey(_ context.Context, key string) (*models.MediaItem, error) {
	if item, ok := f.byKey[key]; ok {
		return item, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeQuotas struct {
	decision quota.Decision
	recorded []quota.Deltas
	checks   int
}

func (f *fakeQuotas) CheckQuota(context.Context, uuid.UUID, int64) (quota.Decision, error) {
	f.checks++
	return f.decision, nil
}

func (f *fakeQuotas) RecordUsage(_ context.Context, _ uuid.UUID, deltas quota.Deltas) error {
	f.recorded = append(f.recorded, deltas)
	return nil
}

func (f *fakeQuotas) EstimateCost(float64, int64, int64) quota.CostEstimate {
	return quota.CostEstimate{StorageCents: 3}
}

func newTestService(t *testing.T, items *fakeItems, quotas *fakeQuotas) (*Service, *fakeEmitter) {
	t.Helper()
	emitter := &fakeEmitter{}
	svc, err := NewService(ServiceParams{
		DB:      fakeTxRunner{},
		Items:   items,
		Quotas:  quotas,
		Emitter: emitter,
		Logger:  logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, emitter
}

func uploadSubmission(tenantID uuid.UUID) Submission {
	return Submission{
		TenantID:   tenantID,
		Title:      "all hands recording",
		SourceKind: enums.SourceKindUpload,
		StorageKey: "media/all-hands.mp4",
		SizeBytes:  1 << 20,
	}
}

func TestSubmitUploadHappyPath(t *testing.T) {
	tenantID := uuid.New()
	items := &fakeItems{}
	quotas := &fakeQuotas{decision: quota.Decision{Allowed: true, Warnings: []string{"storage usage above 80%"}}}
	svc, emitter := newTestService(t, items, quotas)

	result, err := svc.Submit(context.Background(), uploadSubmission(tenantID))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(items.created) != 1 {
		t.Fatalf("created %d items", len(items.created))
	}
	item := items.created[0]
	if item.Status != enums.MediaItemStatusPending {
		t.Errorf("item status %s, want pending", item.Status)
	}
	if item.StorageKey == nil || *item.StorageKey != "media/all-hands.mp4" {
		t.Errorf("storage key not set")
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventTranscriptionRequested {
		t.Fatalf("emitted %d events, want one transcription_requested", len(emitter.events))
	}
	payload := emitter.events[0].Data.(payloads.TranscriptionRequestedEvent)
	if payload.MediaItemID != item.ID || payload.SourceKind != enums.SourceKindUpload {
		t.Errorf("event payload %+v", payload)
	}
	if len(quotas.recorded) != 1 {
		t.Fatalf("usage recorded %d times", len(quotas.recorded))
	}
	if quotas.recorded[0].ItemCount != 1 || quotas.recorded[0].StorageBytes != 1<<20 {
		t.Errorf("usage deltas %+v", quotas.recorded[0])
	}
	if quotas.recorded[0].StorageCostCents != 3 {
		t.Errorf("storage cost cents %d, want 3", quotas.recorded[0].StorageCostCents)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("warnings %v not surfaced", result.Warnings)
	}
}

func TestSubmitCaptionsFastForward(t *testing.T) {
	tenantID := uuid.New()
	items := &fakeItems{}
	quotas := &fakeQuotas{decision: quota.Decision{Allowed: true}}
	svc, emitter := newTestService(t, items, quotas)

	sub := Submission{
		TenantID:   tenantID,
		Title:      "talk with captions",
		SourceKind: enums.SourceKindYouTube,
		YouTubeID:  "dQw4w9WgXcQ",
		Captions:   "hello and welcome to the talk",
	}
	if _, err := svc.Submit(context.Background(), sub); err != nil {
		t.Fatalf("submit: %v", err)
	}

	item := items.created[0]
	if !item.HasTranscript() {
		t.Error("captions were not stored as the transcript")
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventChunkingRequested {
		t.Fatalf("caption submissions must skip straight to chunking, emitted %+v", emitter.events)
	}
}

func TestSubmitQuotaDenied(t *testing.T) {
	tenantID := uuid.New()
	items := &fakeItems{}
	quotas := &fakeQuotas{decision: quota.Decision{Allowed: false, Reasons: []string{"storage limit exceeded (6 of 5)"}}}
	svc, emitter := newTestService(t, items, quotas)

	_, err := svc.Submit(context.Background(), uploadSubmission(tenantID))
	typed := apperrors.As(err)
	if typed == nil || typed.Code() != apperrors.CodeQuota {
		t.Fatalf("expected quota error, got %v", err)
	}
	if len(items.created) != 0 || len(emitter.events) != 0 {
		t.Error("denied submission must not persist anything")
	}
}

func TestSubmitUploadIdempotentByStorageKey(t *testing.T) {
	tenantID := uuid.New()
	key := "media/all-hands.mp4"
	existing := &models.MediaItem{ID: uuid.New(), TenantID: tenantID, StorageKey: &key, Status: enums.MediaItemStatusProcessing}
	items := &fakeItems{byKey: map[string]*models.MediaItem{key: existing}}
	quotas := &fakeQuotas{decision: quota.Decision{Allowed: true}}
	svc, emitter := newTestService(t, items, quotas)

	result, err := svc.Submit(context.Background(), uploadSubmission(tenantID))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Existing || result.Item.ID != existing.ID {
		t.Errorf("expected the existing item back, got %+v", result)
	}
	if quotas.checks != 0 {
		t.Error("idempotent resubmission must not consume quota checks")
	}
	if len(items.created) != 0 || len(emitter.events) != 0 {
		t.Error("idempotent resubmission must not persist anything")
	}
}

func TestSubmitForeignStorageKeyConflicts(t *testing.T) {
	key := "media/all-hands.mp4"
	existing := &models.MediaItem{ID: uuid.New(), TenantID: uuid.New(), StorageKey: &key}
	items := &fakeItems{byKey: map[string]*models.MediaItem{key: existing}}
	svc, _ := newTestService(t, items, &fakeQuotas{decision: quota.Decision{Allowed: true}})

	_, err := svc.Submit(context.Background(), uploadSubmission(uuid.New()))
	typed := apperrors.As(err)
	if typed == nil || typed.Code() != apperrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _ := newTestService(t, &fakeItems{}, &fakeQuotas{decision: quota.Decision{Allowed: true}})
	tenantID := uuid.New()

	cases := []struct {
		name string
		sub  Submission
	}{
		{"missing tenant", Submission{Title: "x", SourceKind: enums.SourceKindUpload, StorageKey: "k"}},
		{"missing title", Submission{TenantID: tenantID, SourceKind: enums.SourceKindUpload, StorageKey: "k"}},
		{"unknown kind", Submission{TenantID: tenantID, Title: "x", SourceKind: "podcast", StorageKey: "k"}},
		{"no identifier", Submission{TenantID: tenantID, Title: "x", SourceKind: enums.SourceKindUpload}},
		{"two identifiers", Submission{TenantID: tenantID, Title: "x", SourceKind: enums.SourceKindUpload, StorageKey: "k", YouTubeID: "v"}},
		{"kind mismatch", Submission{TenantID: tenantID, Title: "x", SourceKind: enums.SourceKindYouTube, StorageKey: "k"}},
		{"embed missing id", Submission{TenantID: tenantID, Title: "x", SourceKind: enums.SourceKindEmbed, EmbedPlatform: "vimeo"}},
		{"negative size", Submission{TenantID: tenantID, Title: "x", SourceKind: enums.SourceKindUpload, StorageKey: "k", SizeBytes: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tc.sub)
			typed := apperrors.As(err)
			if typed == nil || typed.Code() != apperrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
