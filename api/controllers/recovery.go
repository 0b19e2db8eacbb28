package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/voxline-ai/voxline-backend/api/responses"
	"github.com/voxline-ai/voxline-backend/api/validators"
	"github.com/voxline-ai/voxline-backend/internal/recovery"
	pkgerrors "github.com/voxline-ai/voxline-backend/pkg/errors"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
)

type recoveryService interface {
	ListStuck(ctx context.Context, tenantID *uuid.UUID) ([]recovery.StuckItem, error)
	Recover(ctx context.Context, req recovery.RecoverRequest) (*recovery.Report, error)
}

type recoveryRunRequest struct {
	ItemIDs []uuid.UUID `json:"item_ids,omitempty"`
	All     bool        `json:"all,omitempty"`
	DryRun  bool        `json:"dry_run,omitempty"`
	Force   bool        `json:"force,omitempty"`
}

// RecoveryStuck lists stalled items and the action the engine would take.
func RecoveryStuck(svc recoveryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recovery service unavailable"))
			return
		}

		var tenantFilter *uuid.UUID
		if raw := strings.TrimSpace(r.URL.Query().Get("tenant_id")); raw != "" {
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tenant_id"))
				return
			}
			tenantFilter = &tenantID
		}

		stuck, err := svc.ListStuck(r.Context(), tenantFilter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stuck)
	}
}

// RecoveryRun executes a recovery pass over the selected items. A pass with
// per-item failures still returns the full report.
func RecoveryRun(svc recoveryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recovery service unavailable"))
			return
		}

		var payload recoveryRunRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Recover(r.Context(), recovery.RecoverRequest{
			ItemIDs: payload.ItemIDs,
			All:     payload.All,
			DryRun:  payload.DryRun,
			Force:   payload.Force,
		})
		if report == nil && err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
