package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/voxline-ai/voxline-backend/api/responses"
	"github.com/voxline-ai/voxline-backend/pkg/config"
	pkgerrors "github.com/voxline-ai/voxline-backend/pkg/errors"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
)

const readinessTimeout = 5 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthLive reports process liveness only.
func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Voxline-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady verifies the API's backing dependencies answer pings.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Voxline-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				failCtx := logg.WithField(ctx, "dependency", name)
				logg.Error(failCtx, "readiness check failed", err)
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
