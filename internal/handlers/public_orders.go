package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grocery-storefront/api/internal/platform/httpx"
	"github.com/grocery-storefront/api/internal/platform/ratelimit"
	"github.com/grocery-storefront/api/internal/services"
)

// PublicOrderHandlers serves guest checkout.
type PublicOrderHandlers struct {
	orders  services.OrderService
	limiter ratelimit.Limiter
	guard   func(http.Handler) http.Handler
}

// NewPublicOrderHandlers constructs guest checkout handlers. A nil limiter disables limiting;
// guard optionally wraps creation (idempotency).
func NewPublicOrderHandlers(orders services.OrderService, limiter ratelimit.Limiter, guard func(http.Handler) http.Handler) *PublicOrderHandlers {
	return &PublicOrderHandlers{orders: orders, limiter: limiter, guard: guard}
}

// Routes registers /public/orders.
func (h *PublicOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	create := http.Handler(http.HandlerFunc(h.createGuestOrder))
	if h.guard != nil {
		create = h.guard(create)
	}
	r.With(rateLimitByClientIP(h.limiter)).Method(http.MethodPost, "/orders", create)
}

func (h *PublicOrderHandlers) createGuestOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError(codeUnavailable, "", http.StatusServiceUnavailable))
		return
	}

	var payload orderRequestPayload
	if !decodeJSONBody(w, r, &payload) {
		return
	}

	receipt, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Request: payload.toServiceRequest(),
		Actor:   services.OrderActor{IsGuest: true},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildReceiptPayload(receipt))
}
