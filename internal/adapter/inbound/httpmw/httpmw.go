// Package httpmw provides the chi middleware chain shared by the three
// HTTP surfaces (admin, detection, proxy): request-id/logger enrichment,
// panic recovery, CORS, auth resolution, rate limiting, concurrency
// limiting and quota enforcement. Grounded on the teacher's own
// middleware ordering for an HTTP gateway (request id -> real ip ->
// logging -> recovery -> CORS -> business middleware).
package httpmw

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sentinelops/gatekeep/internal/apperr"
	"github.com/sentinelops/gatekeep/internal/ctxkey"
	"github.com/sentinelops/gatekeep/internal/domain/auth"
	"github.com/sentinelops/gatekeep/internal/domain/ratelimit"
	"github.com/sentinelops/gatekeep/internal/service"
)

// WriteError serializes an apperr.Error (or wraps a generic error as
// internal) as the gateway's uniform {error:{message,type,code}} body
// (code is the HTTP status), the single place errors become HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal("%s", err.Error())
	}
	if appErr.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfterSeconds))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status())
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": appErr.Message,
			"type":    string(appErr.Kind),
			"code":    appErr.Status(),
		},
	})
}

// RequestLogger enriches the request context with a logger carrying the
// chi-generated request id, matching the teacher's ctxkey.LoggerKey
// convention so downstream service code's loggerFromContext idiom keeps
// working unchanged.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			logger := base.With("request_id", reqID)
			ctx := context.WithValue(r.Context(), ctxkey.RequestIDKey{}, reqID)
			ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, logger)
			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
		})
	}
}

// Recover converts a panic into a 500 apperr response instead of
// crashing the worker, matching the teacher's panicRecoveryMiddleware.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", "error", rec, "stack", string(debug.Stack()))
					WriteError(w, apperr.Internal("internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Auth resolves the bearer token (Authorization: Bearer ...) and
// X-OG-Application-ID header via AuthService, attaching the resulting
// auth.Context to the request context. Unauthenticated requests (no
// token) receive a 401 apperr response before the handler runs.
func Auth(svc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				WriteError(w, apperr.Auth("missing bearer token"))
				return
			}
			externalAppID := r.Header.Get("X-OG-Application-ID")
			authCtx, err := svc.Authenticate(r.Context(), token, externalAppID, "")
			if err != nil {
				WriteError(w, apperr.Auth("invalid credentials"))
				return
			}
			ctx := context.WithValue(r.Context(), ctxkey.AuthContextKey{}, authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext retrieves the auth.Context attached by Auth.
func FromContext(ctx context.Context) (auth.Context, bool) {
	v := ctx.Value(ctxkey.AuthContextKey{})
	authCtx, ok := v.(auth.Context)
	return authCtx, ok
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, prefix))
	}
	return ""
}

// RateLimit enforces a per-tenant token bucket (§4.6) keyed on the
// resolved auth context's tenant id, falling back to remote IP when the
// request has not yet been authenticated.
func RateLimit(limiter ratelimit.RateLimiter, cfg ratelimit.RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ratelimit.FormatKey(ratelimit.KeyTypeIP, r.RemoteAddr)
			if authCtx, ok := FromContext(r.Context()); ok && authCtx.TenantID != "" {
				key = ratelimit.FormatKey(ratelimit.KeyTypeTenant, authCtx.TenantID)
			}
			result, err := limiter.Allow(r.Context(), key, cfg)
			if err != nil {
				WriteError(w, apperr.Internal("rate limit check failed"))
				return
			}
			if !result.Allowed {
				WriteError(w, apperr.RateLimited(int(result.RetryAfter.Seconds()), "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Concurrency bounds in-flight requests for one HTTP surface (§4.6:
// admin 50 / detection 400 / proxy 300), returning 429 immediately
// rather than queuing when the semaphore is full.
func Concurrency(limiter ratelimit.ConcurrencyLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.TryAcquire() {
				WriteError(w, apperr.RateLimited(1, "server at capacity"))
				return
			}
			defer limiter.Release()
			next.ServeHTTP(w, r)
		})
	}
}

// SuperAdminOnly rejects any request whose resolved auth context is not
// flagged IsSuperAdmin, for the handful of admin routes (tenant creation,
// builtin scanner listing, force_sync) reserved for the operator account.
func SuperAdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, ok := FromContext(r.Context())
		if !ok || !authCtx.IsSuperAdmin {
			WriteError(w, apperr.Authz("super admin required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Quota enforces the SaaS-mode monthly usage counter (§4.6) on the
// routes it wraps, keyed on the resolved tenant id. In enterprise mode
// QuotaService.Check is already a no-op, so this middleware is always
// safe to mount.
func Quota(svc *service.QuotaService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, ok := FromContext(r.Context())
			if !ok {
				WriteError(w, apperr.Auth("missing auth context"))
				return
			}
			retryAfter, err := svc.Check(r.Context(), authCtx.TenantID)
			if err != nil {
				WriteError(w, apperr.QuotaExceeded(retryAfter, "monthly quota exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
