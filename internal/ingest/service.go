package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
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

// Submission is a normalized ingestion request. Exactly one source identifier
// set must be populated, matching SourceKind.
type Submission struct {
	TenantID      uuid.UUID
	Title         string
	SourceKind    enums.SourceKind
	StorageKey    string
	YouTubeID     string
	EmbedPlatform string
	EmbedID       string
	LanguageHint  string
	Captions      string
	SizeBytes     int64
}

// Submitted is the outcome of an accepted submission. Existing is set when an
// upload re-used an already-registered storage key.
type Submitted struct {
	Item     *models.MediaItem
	Warnings []string
	Existing bool
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type quotaChecker interface {
	CheckQuota(ctx context.Context, tenantID uuid.UUID, proposedBytes int64) (quota.Decision, error)
	RecordUsage(ctx context.Context, tenantID uuid.UUID, deltas quota.Deltas) error
	EstimateCost(durationMinutes float64, tokens int64, storageBytes int64) quota.CostEstimate
}

// Service normalizes and admits new media into the pipeline.
type Service struct {
	db      txRunner
	items   media.ItemRepository
	quotas  quotaChecker
	emitter eventEmitter
	logg    *logger.Logger
	now     func() time.Time
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	DB      txRunner
	Items   media.ItemRepository
	Quotas  quotaChecker
	Emitter eventEmitter
	Logger  *logger.Logger
}

// NewService validates dependencies and builds the ingestion service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("db client is required")
	}
	if params.Items == nil {
		return nil, errors.New("item repository is required")
	}
	if params.Quotas == nil {
		return nil, errors.New("quota service is required")
	}
	if params.Emitter == nil {
		return nil, errors.New("event emitter is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		db:      params.DB,
		items:   params.Items,
		quotas:  params.Quotas,
		emitter: params.Emitter,
		logg:    params.Logger,
		now:     time.Now,
	}, nil
}

// Submit validates the submission, checks tenant quota, and registers a
// pending media item together with its first stage event in one transaction.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Submitted, error) {
	if err := s.validate(&sub); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithTenantID(ctx, sub.TenantID.String())

	// Re-submitting the same upload is idempotent.
	if sub.SourceKind == enums.SourceKindUpload {
		existing, err := s.items.FindByStorageKey(logCtx, sub.StorageKey)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if existing != nil {
			if existing.TenantID != sub.TenantID {
				return nil, apperrors.New(apperrors.CodeConflict, "storage key already registered")
			}
			return &Submitted{Item: existing, Existing: true}, nil
		}
	}

	decision, err := s.quotas.CheckQuota(logCtx, sub.TenantID, sub.SizeBytes)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.CodeQuota, "tenant quota exceeded").
			WithDetails(decision.Reasons)
	}

	item := s.buildItem(sub)
	err = s.db.WithTx(logCtx, func(tx *gorm.DB) error {
		if err := s.items.WithTx(tx).Create(logCtx, item); err != nil {
			return err
		}
		return s.emitter.Emit(logCtx, tx, s.firstStageEvent(item, sub))
	})
	if err != nil {
		return nil, err
	}

	estimate := s.quotas.EstimateCost(0, 0, sub.SizeBytes)
	if err := s.quotas.RecordUsage(logCtx, sub.TenantID, quota.Deltas{
		StorageBytes:     sub.SizeBytes,
		ItemCount:        1,
		StorageCostCents: estimate.StorageCents,
	}); err != nil {
		// Admission already happened; the ledger write is repaired by the
		// next successful RecordUsage, not by failing the request.
		s.logg.Error(logCtx, "ingest: record usage", err)
	}

	s.logg.Info(s.logg.WithItemID(logCtx, item.ID.String()), "media item admitted")
	return &Submitted{Item: item, Warnings: decision.Warnings}, nil
}

func (s *Service) buildItem(sub Submission) *models.MediaItem {
	item := &models.MediaItem{
		ID:         uuid.New(),
		TenantID:   sub.TenantID,
		Title:      sub.Title,
		SourceKind: sub.SourceKind,
		Status:     enums.MediaItemStatusPending,
		SizeBytes:  sub.SizeBytes,
	}
	switch sub.SourceKind {
	case enums.SourceKindUpload:
		item.StorageKey = &sub.StorageKey
	case enums.SourceKindYouTube:
		item.YouTubeID = &sub.YouTubeID
	case enums.SourceKindEmbed:
		item.EmbedPlatform = &sub.EmbedPlatform
		item.EmbedID = &sub.EmbedID
	}
	if sub.Captions != "" {
		captions := sub.Captions
		item.Transcript = &captions
	}
	return item
}

// firstStageEvent picks the pipeline entry point: sources that already carry
// captions skip transcription and go straight to chunking.
func (s *Service) firstStageEvent(item *models.MediaItem, sub Submission) outbox.DomainEvent {
	actor := &outbox.ActorRef{TenantID: sub.TenantID, Subject: "ingest", Role: "service"}
	if sub.Captions != "" {
		return outbox.DomainEvent{
			EventType:     enums.EventChunkingRequested,
			AggregateType: enums.AggregateMediaItem,
			AggregateID:   item.ID,
			Actor:         actor,
			Version:       1,
			Data: payloads.ChunkingRequestedEvent{
				MediaItemID: item.ID,
				TenantID:    item.TenantID,
			},
		}
	}
	return outbox.DomainEvent{
		EventType:     enums.EventTranscriptionRequested,
		AggregateType: enums.AggregateMediaItem,
		AggregateID:   item.ID,
		Actor:         actor,
		Version:       1,
		Data: payloads.TranscriptionRequestedEvent{
			MediaItemID:  item.ID,
			TenantID:     item.TenantID,
			SourceKind:   item.SourceKind,
			LanguageHint: sub.LanguageHint,
		},
	}
}

func (s *Service) validate(sub *Submission) error {
	if sub.TenantID == uuid.Nil {
		return apperrors.New(apperrors.CodeValidation, "tenant id required")
	}
	sub.Title = strings.TrimSpace(sub.Title)
	if sub.Title == "" {
		return apperrors.New(apperrors.CodeValidation, "title required")
	}
	if sub.SizeBytes < 0 {
		return apperrors.New(apperrors.CodeValidation, "size must be non-negative")
	}
	if !sub.SourceKind.IsValid() {
		return apperrors.New(apperrors.CodeValidation, "unknown source kind")
	}

	sub.StorageKey = strings.TrimSpace(sub.StorageKey)
	sub.YouTubeID = strings.TrimSpace(sub.YouTubeID)
	sub.EmbedPlatform = strings.TrimSpace(sub.EmbedPlatform)
	sub.EmbedID = strings.TrimSpace(sub.EmbedID)

	identifiers := 0
	if sub.StorageKey != "" {
		identifiers++
	}
	if sub.YouTubeID != "" {
		identifiers++
	}
	if sub.EmbedPlatform != "" || sub.EmbedID != "" {
		identifiers++
	}
	if identifiers != 1 {
		return apperrors.New(apperrors.CodeValidation, "exactly one source identifier set required")
	}

	switch sub.SourceKind {
	case enums.SourceKindUpload:
		if sub.StorageKey == "" {
			return apperrors.New(apperrors.CodeValidation, "upload sources require a storage key")
		}
	case enums.SourceKindYouTube:
		if sub.YouTubeID == "" {
			return apperrors.New(apperrors.CodeValidation, "youtube sources require a video id")
		}
	case enums.SourceKindEmbed:
		if sub.EmbedPlatform == "" || sub.EmbedID == "" {
			return apperrors.New(apperrors.CodeValidation, "embed sources require a platform and an id")
		}
	}
	return nil
}
