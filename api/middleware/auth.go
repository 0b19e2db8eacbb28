package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/voxline-ai/voxline-backend/api/responses"
	"github.com/voxline-ai/voxline-backend/pkg/auth"
	"github.com/voxline-ai/voxline-backend/pkg/config"
	pkgerrors "github.com/voxline-ai/voxline-backend/pkg/errors"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
)

// Auth validates the bearer token and seeds tenant identity into the request context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := auth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid bearer token"))
				return
			}
			if !auth.ValidRole(claims.Role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid role claim"))
				return
			}

			ctx := WithTenantID(r.Context(), claims.TenantID.String())
			ctx = WithSubject(ctx, claims.Subject)
			ctx = withRole(ctx, claims.Role)
			if logg != nil {
				ctx = logg.WithTenantID(ctx, claims.TenantID.String())
				if claims.Subject != "" {
					ctx = logg.WithField(ctx, "subject", claims.Subject)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxRole, role)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
