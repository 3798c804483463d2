package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/grocery-storefront/api/internal/platform/httpx"
	"github.com/grocery-storefront/api/internal/platform/ratelimit"
	"github.com/grocery-storefront/api/internal/platform/requestctx"
)

const codeRateLimited = httpx.CodeRateLimited

var rateLimitedMessage = httpx.DefaultMessage(http.StatusTooManyRequests)

// rateLimitByClientIP rejects callers over the limiter budget with 429 and Retry-After.
// Limiter failures let the request through.
func rateLimitByClientIP(limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := requestctx.ClientIP(ctx)
			if key == "" {
				key = clientIP(r)
			}
			decision, err := limiter.Allow(ctx, key)
			if err != nil {
				requestctx.Logger(ctx).Named("ratelimit").Warn("limiter unavailable, allowing request",
					zap.String("client_ip", key),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}
			if decision.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			}
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds()))
				httpx.WriteError(ctx, w, httpx.NewError(codeRateLimited, rateLimitedMessage, http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP reads RemoteAddr for routers mounted without the request logger.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
