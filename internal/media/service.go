package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	apperrors "github.com/voxline-ai/voxline-backend/pkg/errors"
	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	"github.com/voxline-ai/voxline-backend/pkg/pagination"
)

// embedder turns a search query into the fixed-dimensionality vector space.
type embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// StatusView is the polling surface exposed to clients.
type StatusView struct {
	ID               uuid.UUID             `json:"id"`
	Status           enums.MediaItemStatus `json:"status"`
	ProgressPercent  int                   `json:"progressPercent"`
	StageDescription string                `json:"stageDescription"`
	ErrorMessage     *string               `json:"errorMessage,omitempty"`
	ErrorCategory    *enums.ErrorCategory  `json:"errorCategory,omitempty"`
	// EstimatedRemainingSeconds is a coarse duration-based guess, absent for
	// terminal items and for items whose media duration is not yet known.
	EstimatedRemainingSeconds *int      `json:"estimatedRemainingSeconds,omitempty"`
	UpdatedAt                 time.Time `json:"updatedAt"`
}

// ListPage is one page of media items plus the cursor for the next page.
type ListPage struct {
	Items      []models.MediaItem
	NextCursor string
}

// Service exposes tenant-facing reads over media items and chunks.
type Service interface {
	GetItem(ctx context.Context, tenantID, id uuid.UUID) (*models.MediaItem, error)
	GetStatus(ctx context.Context, tenantID, id uuid.UUID) (*StatusView, error)
	List(ctx context.Context, tenantID uuid.UUID, status *enums.MediaItemStatus, params pagination.Params) (*ListPage, error)
	Search(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]SearchHit, error)
}

type service struct {
	items    ItemRepository
	chunks   ChunkRepository
	embedder embedder
}

// NewService wires the media read service.
func NewService(items ItemRepository, chunks ChunkRepository, embedder embedder) (Service, error) {
	if items == nil {
		return nil, fmt.Errorf("item repository required")
	}
	if chunks == nil {
		return nil, fmt.Errorf("chunk repository required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	return &service{items: items, chunks: chunks, embedder: embedder}, nil
}

func (s *service) GetItem(ctx context.Context, tenantID, id uuid.UUID) (*models.MediaItem, error) {
	item, err := s.items.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "media item not found")
		}
		return nil, err
	}
	return item, nil
}

func (s *service) GetStatus(ctx context.Context, tenantID, id uuid.UUID) (*StatusView, error) {
	item, err := s.GetItem(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		ID:               item.ID,
		Status:           item.Status,
		ProgressPercent:  item.Status.Progress(),
		StageDescription: item.Status.StageDescription(),
		ErrorMessage:              item.ErrorMessage,
		ErrorCategory:             item.ErrorCategory,
		EstimatedRemainingSeconds: estimateRemaining(item.Status, item.DurationSeconds),
		UpdatedAt:                 item.UpdatedAt,
	}, nil
}

// estimateRemaining guesses wall-clock seconds left from the media duration.
// Transcription dominates at roughly a quarter of real time; chunking and
// embedding are near-constant per item.
func estimateRemaining(status enums.MediaItemStatus, durationSeconds float64) *int {
	if status.IsTerminal() || durationSeconds <= 0 {
		return nil
	}
	var estimate float64
	switch status {
	case enums.MediaItemStatusPending, enums.MediaItemStatusUploading, enums.MediaItemStatusTranscribing:
		estimate = durationSeconds/4 + 60
	case enums.MediaItemStatusProcessing:
		estimate = 60
	case enums.MediaItemStatusEmbedding:
		estimate = 30
	default:
		return nil
	}
	seconds := int(estimate)
	return &seconds
}

func (s *service) List(ctx context.Context, tenantID uuid.UUID, status *enums.MediaItemStatus, params pagination.Params) (*ListPage, error) {
	if status != nil && !status.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid status filter %q", *status))
	}
	rows, err := s.items.List(ctx, tenantID, status, params)
	if err != nil {
		return nil, err
	}
	limit := pagination.NormalizeLimit(params.Limit)
	page := &ListPage{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		last := page.Items[len(page.Items)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

func (s *service) Search(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]SearchHit, error) {
	if query == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "search query required")
	}
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}
	return s.chunks.Search(ctx, tenantID, pgvector.NewVector(vectors[0]), limit)
}
