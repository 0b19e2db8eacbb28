package media

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	apperrors "github.com/voxline-ai/voxline-backend/pkg/errors"
	"github.com/voxline-ai/voxline-backend/pkg/pagination"
)

type fakeItemRepo struct {
	ItemRepository
	items    map[uuid.UUID]*models.MediaItem
	listRows []models.MediaItem
}

func (f *fakeItemRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*models.MediaItem, error) {
	item, ok := f.items[id]
	if !ok || item.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return item, nil
}

func (f *fakeItemRepo) List(_ context.Context, _ uuid.UUID, _ *enums.MediaItemStatus, _ pagination.Params) ([]models.MediaItem, error) {
	return f.listRows, nil
}

type fakeChunkRepo struct {
	ChunkRepository
	hits      []SearchHit
	lastQuery pgvector.Vector
}

func (f *fakeChunkRepo) Search(_ context.Context, _ uuid.UUID, query pgvector.Vector, _ int) ([]SearchHit, error) {
	f.lastQuery = query
	return f.hits, nil
}

type fakeEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func TestGetStatusMapsProgress(t *testing.T) {
	tenantID := uuid.New()
	itemID := uuid.New()
	repo := &fakeItemRepo{items: map[uuid.UUID]*models.MediaItem{
		itemID: {
			ID:        itemID,
			TenantID:  tenantID,
			Status:    enums.MediaItemStatusEmbedding,
			UpdatedAt: time.Now(),
		},
	}}
	svc, err := NewService(repo, &fakeChunkRepo{}, &fakeEmbedder{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	view, err := svc.GetStatus(context.Background(), tenantID, itemID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if view.ProgressPercent != 80 {
		t.Fatalf("expected progress 80, got %d", view.ProgressPercent)
	}
	if view.Status != enums.MediaItemStatusEmbedding {
		t.Fatalf("unexpected status %s", view.Status)
	}
	if view.StageDescription == "" {
		t.Fatalf("expected stage description")
	}
}

func TestGetStatusWrongTenant(t *testing.T) {
	itemID := uuid.New()
	repo := &fakeItemRepo{items: map[uuid.UUID]*models.MediaItem{
		itemID: {ID: itemID, TenantID: uuid.New(), Status: enums.MediaItemStatusPending},
	}}
	svc, err := NewService(repo, &fakeChunkRepo{}, &fakeEmbedder{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.GetStatus(context.Background(), uuid.New(), itemID)
	if err == nil {
		t.Fatal("expected error")
	}
	appErr := apperrors.As(err)
	if appErr == nil || appErr.Code() != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListPaginatesWithCursor(t *testing.T) {
	tenantID := uuid.New()
	rows := make([]models.MediaItem, 0, 4)
	base := time.Now()
	for i := 0; i < 4; i++ {
		rows = append(rows, models.MediaItem{
			ID:        uuid.New(),
			TenantID:  tenantID,
			Status:    enums.MediaItemStatusCompleted,
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		})
	}
	repo := &fakeItemRepo{listRows: rows}
	svc, err := NewService(repo, &fakeChunkRepo{}, &fakeEmbedder{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	page, err := svc.List(context.Background(), tenantID, nil, pagination.Params{Limit: 3})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(page.Items))
	}
	if page.NextCursor == "" {
		t.Fatal("expected next cursor")
	}
	cursor, err := pagination.ParseCursor(page.NextCursor)
	if err != nil {
		t.Fatalf("ParseCursor: %v", err)
	}
	if cursor.ID != rows[2].ID {
		t.Fatalf("cursor points at wrong row")
	}
}

func TestListRejectsInvalidStatusFilter(t *testing.T) {
	svc, err := NewService(&fakeItemRepo{}, &fakeChunkRepo{}, &fakeEmbedder{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	bogus := enums.MediaItemStatus("archived")
	_, err = svc.List(context.Background(), uuid.New(), &bogus, pagination.Params{})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSearchEmbedsQuery(t *testing.T) {
	chunks := &fakeChunkRepo{hits: []SearchHit{{Title: "intro", Distance: 0.1}}}
	embedder := &fakeEmbedder{vectors: [][]float32{make([]float32, models.EmbeddingDimensions)}}
	svc, err := NewService(&fakeItemRepo{}, chunks, embedder)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	hits, err := svc.Search(context.Background(), uuid.New(), "growth levers", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if embedder.calls != 1 {
		t.Fatalf("expected 1 embed call, got %d", embedder.calls)
	}
	if len(hits) != 1 || hits[0].Title != "intro" {
		t.Fatalf("unexpected hits %+v", hits)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc, err := NewService(&fakeItemRepo{}, &fakeChunkRepo{}, &fakeEmbedder{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.Search(context.Background(), uuid.New(), "", 5)
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestEstimateRemaining(t *testing.T) {
	if got := estimateRemaining(enums.MediaItemStatusCompleted, 600); got != nil {
		t.Fatalf("expected nil for terminal status, got %v", *got)
	}
	if got := estimateRemaining(enums.MediaItemStatusTranscribing, 0); got != nil {
		t.Fatalf("expected nil when duration unknown, got %v", *got)
	}
	got := estimateRemaining(enums.MediaItemStatusTranscribing, 600)
	if got == nil || *got != 210 {
		t.Fatalf("expected 210 for a 10-minute item mid-transcription, got %v", got)
	}
	got = estimateRemaining(enums.MediaItemStatusEmbedding, 600)
	if got == nil || *got != 30 {
		t.Fatalf("expected 30 while embedding, got %v", got)
	}
}
