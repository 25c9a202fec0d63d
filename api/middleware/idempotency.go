package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/tablepos-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/tablepos-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	claimTTL               = 2 * time.Minute
	maxIdempotencyKeyLen   = 128
)

// idempotentRoute is a POST path pattern where "*" stands for exactly one
// segment. Patterns are matched against the raw request path because chi
// has not resolved the route yet when this middleware runs.
type idempotentRoute struct {
	segments []string
	ttl      time.Duration
}

func route(pattern string, ttl time.Duration) idempotentRoute {
	return idempotentRoute{segments: splitPath(pattern), ttl: ttl}
}

var idempotentRoutes = []idempotentRoute{
	route("/api/v1/tables", defaultIdempotencyTTL),
	route("/api/v1/tables/*/cart", defaultIdempotencyTTL),
	route("/api/v1/menu/import", defaultIdempotencyTTL),
	route("/api/v1/kitchen/orders/*/complete", defaultIdempotencyTTL),
	route("/api/v1/kitchen/items/*/start", defaultIdempotencyTTL),
	route("/api/v1/notifications/*/read", defaultIdempotencyTTL),
	route("/api/v1/notifications/read-all", defaultIdempotencyTTL),
	route("/api/v1/expenses", defaultIdempotencyTTL),

	// Anything that moves money or reshapes an order is kept for a week.
	route("/api/v1/tables/*/cart/submit", criticalIdempotencyTTL),
	route("/api/v1/orders/merge", criticalIdempotencyTTL),
	route("/api/v1/orders/*/status", criticalIdempotencyTTL),
	route("/api/v1/orders/*/split", criticalIdempotencyTTL),
	route("/api/v1/orders/*/transfer", criticalIdempotencyTTL),
	route("/api/v1/orders/*/returns", criticalIdempotencyTTL),
	route("/api/v1/orders/*/cancellation", criticalIdempotencyTTL),
	route("/api/v1/returns/*/approve", criticalIdempotencyTTL),
	route("/api/v1/returns/*/reject", criticalIdempotencyTTL),
	route("/api/v1/cancellations/*/resolve", criticalIdempotencyTTL),
}

func (r idempotentRoute) matches(segments []string) bool {
	if len(segments) != len(r.segments) {
		return false
	}
	for i, want := range r.segments {
		if want != "*" && want != segments[i] {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// routeTTL reports how long a response for method+path is remembered, and
// whether the route takes part in idempotency at all.
func routeTTL(method, path string) (time.Duration, bool) {
	if method != http.MethodPost || path == "" {
		return 0, false
	}
	segments := splitPath(path)
	for _, r := range idempotentRoutes {
		if r.matches(segments) {
			return r.ttl, true
		}
	}
	return 0, false
}

const (
	stateClaimed = "claimed"
	stateDone    = "done"
)

// storedResponse is what lives under an idempotency key. A claimed entry
// marks a request that is still running; done entries are replayed.
type storedResponse struct {
	State       string `json:"state"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency makes the routes in idempotentRoutes safe to retry. The first
// request claims the key, runs, and stores its response; repeats with the
// same body get that response back. Server errors release the claim so the
// client can try again.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			switch {
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be at most %d characters", IdempotencyHeader, maxIdempotencyKeyLen))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintRequest(r.Method, r.URL.Path, body)
			key := store.IdempotencyKey(UserIDFromContext(ctx), clientKey)

			claim, _ := json.Marshal(storedResponse{State: stateClaimed, Fingerprint: fingerprint})
			claimed, err := store.SetNX(ctx, key, string(claim), claimTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayStored(w, r, store, key, fingerprint, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				if delErr := store.Del(ctx, key); delErr != nil {
					logg.Error(ctx, "release idempotency claim", delErr)
				}
				return
			}
			done, _ := json.Marshal(storedResponse{
				State:       stateDone,
				Fingerprint: fingerprint,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if setErr := store.Set(ctx, key, string(done), ttl); setErr != nil {
				logg.Error(ctx, "store idempotent response", setErr)
			}
		})
	}
}

func replayStored(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, key, fingerprint string, logg *logger.Logger) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// The claim expired or was released between SetNX and Get.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInFlight, "request with this idempotency key is still being processed"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	if stored.Fingerprint != fingerprint {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request"))
		return
	}
	if stored.State != stateDone {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInFlight, "request with this idempotency key is still being processed"))
		return
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func fingerprintRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
