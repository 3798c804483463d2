package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/grocery-storefront/api/internal/platform/textutil"
)

const (
	routeLimit  = 180
	methodLimit = 10
	ipLimit     = 64
)

// routeLabel prefers the chi pattern so order ids and coupon codes never reach log fields or span
// names. Requests that matched no route fall back to the raw path.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return textutil.SingleLine(pattern, routeLimit)
		}
	}
	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return textutil.SingleLine(r.URL.Path, routeLimit)
}

func methodLabel(method string) string {
	return textutil.SingleLine(strings.ToUpper(method), methodLimit)
}

// clientAddress reads RemoteAddr, which middleware.RealIP has already rewritten from proxy headers.
func clientAddress(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return textutil.SingleLine(addr, ipLimit)
}
