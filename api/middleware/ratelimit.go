package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/tablepos-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/tablepos-backend/pkg/redis"
)

type RateLimiter interface {
	Allow(ctx context.Context, scope string, limit int64, window time.Duration) (pkgredis.RateDecision, error)
}

// RateLimit caps mutating requests per staff member. Reads are never
// counted. When the limiter itself fails the request is let through.
func RateLimit(limiter RateLimiter, limit int64, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserIDFromContext(r.Context())
			if !isMutation(r.Method) || userID == "" {
				next.ServeHTTP(w, r)
				return
			}
			decision, err := limiter.Allow(r.Context(), "staff:"+userID, limit, window)
			if err != nil {
				logg.Warn(logg.WithField(r.Context(), "rate_limit_error", err.Error()), "rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				if decision.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many changes, slow down"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
