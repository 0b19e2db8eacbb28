package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voxline-ai/voxline-backend/api/controllers"
	"github.com/voxline-ai/voxline-backend/api/middleware"
	"github.com/voxline-ai/voxline-backend/internal/ingest"
	"github.com/voxline-ai/voxline-backend/internal/media"
	"github.com/voxline-ai/voxline-backend/internal/recovery"
	"github.com/voxline-ai/voxline-backend/pkg/auth"
	"github.com/voxline-ai/voxline-backend/pkg/config"
	"github.com/voxline-ai/voxline-backend/pkg/db"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"github.com/voxline-ai/voxline-backend/pkg/redis"
)

// RouterParams bundles everything the HTTP surface needs.
type RouterParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              db.Pinger
	Redis           *redis.Client
	IngestService   *ingest.Service
	MediaService    media.Service
	RecoveryService *recovery.Service
}

// NewRouter builds the API's chi handler tree.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(params)))
	})

	submitPolicy := middleware.NewRateLimitPolicy(
		"submit",
		cfg.RateLimit.SubmitWindow,
		cfg.RateLimit.SubmitIPLimit,
		cfg.RateLimit.SubmitTenantLimit,
	)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(params.Redis, logg))

		r.Route("/media", func(r chi.Router) {
			r.With(middleware.RateLimit(submitPolicy, params.Redis, logg)).
				Post("/", controllers.MediaSubmit(params.IngestService, logg))
			r.Get("/", controllers.MediaList(params.MediaService, logg))
			r.Get("/search", controllers.MediaSearch(params.MediaService, logg))
			r.Get("/{mediaId}", controllers.MediaGet(params.MediaService, logg))
			r.Get("/{mediaId}/status", controllers.MediaStatus(params.MediaService, logg))
		})

		r.Route("/admin/recovery", func(r chi.Router) {
			r.Use(middleware.RequireRole(auth.RoleAdmin, logg))
			r.Get("/stuck", controllers.RecoveryStuck(params.RecoveryService, logg))
			r.Post("/run", controllers.RecoveryRun(params.RecoveryService, logg))
		})
	})

	return r
}

func readinessDeps(params RouterParams) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if params.DB != nil {
		deps["database"] = params.DB
	}
	if params.Redis != nil {
		deps["redis"] = params.Redis
	}
	return deps
}
