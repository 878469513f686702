package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/upb/freelance-marketplace/backend/services/ratelimit"
	"github.com/upb/freelance-marketplace/backend/utils"
	"go.uber.org/zap"
)

// RateLimiter defines the interface for per-actor rate limit checks
type RateLimiter interface {
	AllowN(ctx context.Context, scope, actor string, n int) (*ratelimit.RateLimitResult, error)
}

// RateLimitMiddleware limits requests per authenticated actor
type RateLimitMiddleware struct {
	limiter RateLimiter
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates a new RateLimitMiddleware
func NewRateLimitMiddleware(limiter RateLimiter, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger,
	}
}

// Limit returns a middleware counting one action in scope per request
// against the token subject. It must run after RequireAuth.
func (m *RateLimitMiddleware) Limit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.Charge(w, r, scope, 1) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Charge counts n actions in scope against the token subject, for handlers
// that only learn the cost after reading the body. When the actions do not
// fit it writes the 429 response and returns false. Limiter failures let the
// request through.
func (m *RateLimitMiddleware) Charge(w http.ResponseWriter, r *http.Request, scope string, n int) bool {
	ctx := r.Context()
	requestID := GetRequestIDFromContext(ctx)

	claims := GetClaimsFromContext(ctx)
	if claims == nil || claims.Sub == "" {
		m.logger.Error("claims not found in context",
			zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return false
	}

	result, err := m.limiter.AllowN(ctx, scope, claims.Sub, n)
	if err != nil {
		m.logger.Warn("rate limit check failed, allowing request",
			zap.String("request_id", requestID),
			zap.String("scope", scope),
			zap.Error(err))
		return true
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

	if !result.Allowed {
		retryAfter := result.RetryAfterSeconds()
		m.logger.Warn("request blocked by rate limit",
			zap.String("request_id", requestID),
			zap.String("scope", scope),
			zap.String("sub", claims.Sub),
			zap.Int("cost", n),
			zap.Int("retry_after_seconds", retryAfter))

		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		_ = utils.WriteTooManyRequests(w, "Rate limit exceeded", map[string]interface{}{
			"limit":               result.Limit,
			"remaining":           result.Remaining,
			"retry_after_seconds": retryAfter,
		})
		return false
	}

	return true
}
