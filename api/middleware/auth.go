package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/tablepos-backend/api/responses"
	pkgAuth "github.com/angelmondragon/tablepos-backend/pkg/auth"
	"github.com/angelmondragon/tablepos-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
)

// Browsers cannot set headers on a websocket upgrade, so the token may also
// arrive as a query parameter on GET requests.
const tokenQueryParam = "access_token"

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithStaff(r.Context(), claims.UserID, claims.Role)
			if claims.Name != "" {
				ctx = context.WithValue(ctx, ctxName, claims.Name)
			}
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    claims.UserID.String(),
					"actor_role": string(claims.Role),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw != "" {
		if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			raw = strings.TrimSpace(raw[7:])
		}
		return raw
	}
	if r.Method == http.MethodGet {
		return strings.TrimSpace(r.URL.Query().Get(tokenQueryParam))
	}
	return ""
}
