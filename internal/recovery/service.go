package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/voxline-ai/voxline-backend/internal/media"
	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	apperrors "github.com/voxline-ai/voxline-backend/pkg/errors"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
)

// scanBatchSize bounds how many stale items one pass inspects.
const scanBatchSize = 100

// StuckItem is the read-only diagnostic row returned by ListStuck.
type StuckItem struct {
	ItemID         uuid.UUID             `json:"itemId"`
	TenantID       uuid.UUID             `json:"tenantId"`
	Title          string                `json:"title"`
	Status         enums.MediaItemStatus `json:"status"`
	StalledMinutes int                   `json:"stalledMinutes"`
	Attempts       int                   `json:"attempts"`
	ProposedAction enums.RecoveryAction  `json:"proposedAction"`
}

// RecoverRequest selects the items to repair. All and ItemIDs are mutually
// exclusive.
type RecoverRequest struct {
	ItemIDs []uuid.UUID
	All     bool
	DryRun  bool
	Force   bool
}

// Report summarizes one recovery pass.
type Report struct {
	Results   []ItemResult `json:"results"`
	Recovered int          `json:"recovered"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	DryRun    bool         `json:"dryRun"`
}

// Service is the admin-facing surface over the recovery engine.
type Service struct {
	engine *Engine
	items  media.ItemRepository
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the admin recovery service.
func NewService(engine *Engine, items media.ItemRepository, logg *logger.Logger) (*Service, error) {
	if engine == nil {
		return nil, errors.New("recovery engine is required")
	}
	if items == nil {
		return nil, errors.New("item repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{engine: engine, items: items, logg: logg, now: time.Now}, nil
}

// ListStuck reports non-terminal items older than the staleness window with
// the action the engine would take. It performs zero mutations.
func (s *Service) ListStuck(ctx context.Context, tenantID *uuid.UUID) ([]StuckItem, error) {
	now := s.now()
	stale, err := s.items.FindStale(ctx, tenantID, now.Add(-s.engine.cfg.StalenessWindow), scanBatchSize)
	if err != nil {
		return nil, err
	}

	stuck := make([]StuckItem, 0, len(stale))
	for i := range stale {
		item := &stale[i]
		state, err := s.engine.inspect(ctx, item)
		if err != nil {
			return nil, err
		}
		stuck = append(stuck, StuckItem{
			ItemID:         item.ID,
			TenantID:       item.TenantID,
			Title:          item.Title,
			Status:         item.Status,
			StalledMinutes: int(now.Sub(item.CreatedAt).Minutes()),
			Attempts:       item.RecoveryAttempts,
			ProposedAction: Decide(state.hasTranscript, state.hasChunks, state.hasEmbeddings),
		})
	}
	return stuck, nil
}

// Recover runs the engine over the selected items. Per-item failures are
// aggregated; a partially failed pass still returns the full report.
func (s *Service) Recover(ctx context.Context, req RecoverRequest) (*Report, error) {
	if req.All == (len(req.ItemIDs) > 0) {
		return nil, apperrors.New(apperrors.CodeValidation, "select either specific item ids or all stale items")
	}

	items, err := s.selectItems(ctx, req)
	if err != nil {
		return nil, err
	}

	report := &Report{DryRun: req.DryRun, Results: make([]ItemResult, 0, len(items))}
	var errs error
	for i := range items {
		result := s.engine.RecoverItem(ctx, &items[i], Options{DryRun: req.DryRun, Force: req.Force})
		report.Results = append(report.Results, result)
		switch result.Outcome {
		case OutcomeRecovered:
			report.Recovered++
		case OutcomeSkipped:
			report.Skipped++
		case OutcomeFailed:
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("item %s: %s", result.ItemID, result.Reason))
		}
	}

	if errs != nil {
		s.logg.Error(ctx, "recovery pass finished with failures", errs)
	}
	return report, errs
}

func (s *Service) selectItems(ctx context.Context, req RecoverRequest) ([]models.MediaItem, error) {
	if req.All {
		return s.items.FindStale(ctx, nil, s.now().Add(-s.engine.cfg.StalenessWindow), scanBatchSize)
	}
	items := make([]models.MediaItem, 0, len(req.ItemIDs))
	for _, id := range req.ItemIDs {
		item, err := s.items.FindByIDInternal(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("media item %s not found", id))
			}
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}
