package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voxline-ai/voxline-backend/api/middleware"
	"github.com/voxline-ai/voxline-backend/api/responses"
	"github.com/voxline-ai/voxline-backend/api/validators"
	"github.com/voxline-ai/voxline-backend/internal/ingest"
	"github.com/voxline-ai/voxline-backend/internal/media"
	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	pkgerrors "github.com/voxline-ai/voxline-backend/pkg/errors"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"github.com/voxline-ai/voxline-backend/pkg/pagination"
)

const maxSearchLimit = 50

type submitService interface {
	Submit(ctx context.Context, sub ingest.Submission) (*ingest.Submitted, error)
}

type mediaSubmitRequest struct {
	Title         string `json:"title" validate:"required,max=512"`
	SourceKind    string `json:"source_kind" validate:"required"`
	StorageKey    string `json:"storage_key,omitempty"`
	YouTubeID     string `json:"youtube_id,omitempty"`
	EmbedPlatform string `json:"embed_platform,omitempty"`
	EmbedID       string `json:"embed_id,omitempty"`
	LanguageHint  string `json:"language_hint,omitempty"`
	Captions      string `json:"captions,omitempty"`
	SizeBytes     int64  `json:"size_bytes,omitempty" validate:"omitempty,min=0"`
}

func (r mediaSubmitRequest) toSubmission(tenantID uuid.UUID) (ingest.Submission, error) {
	kind := enums.SourceKind(strings.TrimSpace(r.SourceKind))
	if !kind.IsValid() {
		return ingest.Submission{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid source_kind")
	}
	return ingest.Submission{
		TenantID:      tenantID,
		Title:         r.Title,
		SourceKind:    kind,
		StorageKey:    r.StorageKey,
		YouTubeID:     r.YouTubeID,
		EmbedPlatform: r.EmbedPlatform,
		EmbedID:       r.EmbedID,
		LanguageHint:  r.LanguageHint,
		Captions:      r.Captions,
		SizeBytes:     r.SizeBytes,
	}, nil
}

type mediaItemView struct {
	ID               uuid.UUID             `json:"id"`
	Title            string                `json:"title"`
	SourceKind       enums.SourceKind      `json:"source_kind"`
	Status           enums.MediaItemStatus `json:"status"`
	ErrorMessage     *string               `json:"error_message,omitempty"`
	ErrorCategory    *enums.ErrorCategory  `json:"error_category,omitempty"`
	DetectedLanguage *string               `json:"detected_language,omitempty"`
	SizeBytes        int64                 `json:"size_bytes"`
	DurationSeconds  float64               `json:"duration_seconds"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
	CompletedAt      *time.Time            `json:"completed_at,omitempty"`
}

func toMediaItemView(item *models.MediaItem) mediaItemView {
	return mediaItemView{
		ID:               item.ID,
		Title:            item.Title,
		SourceKind:       item.SourceKind,
		Status:           item.Status,
		ErrorMessage:     item.ErrorMessage,
		ErrorCategory:    item.ErrorCategory,
		DetectedLanguage: item.DetectedLanguage,
		SizeBytes:        item.SizeBytes,
		DurationSeconds:  item.DurationSeconds,
		CreatedAt:        item.CreatedAt,
		UpdatedAt:        item.UpdatedAt,
		CompletedAt:      item.ProcessingCompletedAt,
	}
}

type mediaSubmitResponse struct {
	Item     mediaItemView `json:"item"`
	Warnings []string      `json:"warnings,omitempty"`
	Existing bool          `json:"existing"`
}

// MediaSubmit admits a new media item into the processing pipeline.
func MediaSubmit(svc submitService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingest service unavailable"))
			return
		}

		tenantID, err := tenantFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload mediaSubmitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := payload.toSubmission(tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Submit(r.Context(), sub)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := mediaSubmitResponse{
			Item:     toMediaItemView(result.Item),
			Warnings: result.Warnings,
			Existing: result.Existing,
		}
		status := http.StatusAccepted
		if result.Existing {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, resp)
	}
}

// MediaStatus returns the polling view for one item.
func MediaStatus(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID, err := pathUUID(r, "mediaId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.GetStatus(r.Context(), tenantID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// MediaGet returns the full item view.
func MediaGet(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID, err := pathUUID(r, "mediaId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.GetItem(r.Context(), tenantID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toMediaItemView(item))
	}
}

type mediaListResponse struct {
	Items      []mediaItemView `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// MediaList returns one page of the tenant's items, newest first.
func MediaList(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.MediaItemStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed := enums.MediaItemStatus(raw)
			status = &parsed
		}

		page, err := svc.List(r.Context(), tenantID, status, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := mediaListResponse{
			Items:      make([]mediaItemView, 0, len(page.Items)),
			NextCursor: page.NextCursor,
		}
		for i := range page.Items {
			resp.Items = append(resp.Items, toMediaItemView(&page.Items[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

type searchHitView struct {
	ItemID   uuid.UUID `json:"item_id"`
	Title    string    `json:"title"`
	Position int       `json:"position"`
	Text     string    `json:"text"`
	StartSec float64   `json:"start_sec"`
	EndSec   float64   `json:"end_sec"`
	Distance float64   `json:"distance"`
}

// MediaSearch runs a semantic query over the tenant's embedded chunks.
func MediaSearch(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "query parameter q required"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 10, 1, maxSearchLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		hits, err := svc.Search(r.Context(), tenantID, query, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views := make([]searchHitView, 0, len(hits))
		for _, hit := range hits {
			views = append(views, searchHitView{
				ItemID:   hit.ItemID,
				Title:    hit.Title,
				Position: hit.Chunk.Position,
				Text:     hit.Chunk.Text,
				StartSec: hit.Chunk.StartSec,
				EndSec:   hit.Chunk.EndSec,
				Distance: hit.Distance,
			})
		}
		responses.WriteSuccess(w, views)
	}
}

func tenantFromContext(r *http.Request) (uuid.UUID, error) {
	raw := middleware.TenantIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing")
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid tenant id")
	}
	return tenantID, nil
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param)
	}
	return id, nil
}
