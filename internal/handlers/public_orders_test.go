package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/platform/ratelimit"
	"github.com/grocery-storefront/api/internal/repositories/memory"
	"github.com/grocery-storefront/api/internal/services"
)

const guestOrderBody = `{
	"customer": {"fullName": "Ayşe Yılmaz", "phone": "0555 123 45 67"},
	"delivery": {"title": "Ev", "detail": "Bağdat Cd. 10"},
	"items": [{"productId": "prod-milk", "quantity": 2}],
	"paymentMethod": "cash"
}`

func newPublicRouter(h *PublicOrderHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/public", h.Routes)
	return router
}

func postGuestOrder(router http.Handler, body, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/public/orders", bytes.NewBufferString(body))
	req.RemoteAddr = ip + ":41000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGuestCheckoutEndToEnd(t *testing.T) {
	store := memory.New()
	store.PutProduct(domain.Product{ID: "prod-milk", ClientID: 7, Name: "Süt", Price: 55, Stock: 4, IsActive: true})
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Products:   store.Products(),
		Coupons:    store.Coupons(),
		Orders:     store.Orders(),
		UnitOfWork: store,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	router := newPublicRouter(NewPublicOrderHandlers(orders, nil, nil))

	rr := postGuestOrder(router, guestOrderBody, "198.51.100.1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var receipt orderReceiptPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.Summary.Total != 110 || !receipt.Summary.IsGuest || receipt.ID == "" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	product, err := store.Products().FindActive(context.Background(), domain.ParseProductRef("prod-milk"))
	if err != nil || product.Stock != 2 {
		t.Fatalf("expected stock 2, got %d (%v)", product.Stock, err)
	}

	rr = postGuestOrder(router, `{"customer": {"fullName": "A", "phone": "05551234567", "detail": "x"}, "items": [{"productId": "nope", "quantity": 1}], "paymentMethod": "cash"}`, "198.51.100.1")
	if rr.Code != http.StatusNotFound || decodeBody(t, rr)["error"] != "PRODUCT_NOT_FOUND" {
		t.Fatalf("expected PRODUCT_NOT_FOUND, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestGuestCheckoutRateLimited(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Policy{Max: 2, Window: 10 * time.Minute}, func() time.Time { return now })
	var calls int
	svc := &stubOrderService{createFn: func(context.Context, services.CreateOrderCommand) (services.OrderReceipt, error) {
		calls++
		return services.OrderReceipt{ID: "ord_x"}, nil
	}}
	router := newPublicRouter(NewPublicOrderHandlers(svc, limiter, nil))

	for i := 0; i < 2; i++ {
		if rr := postGuestOrder(router, guestOrderBody, "203.0.113.9"); rr.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i, rr.Code)
		}
	}
	rr := postGuestOrder(router, guestOrderBody, "203.0.113.9")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "600" {
		t.Fatalf("expected Retry-After 600, got %q", rr.Header().Get("Retry-After"))
	}
	body := decodeBody(t, rr)
	if body["error"] != codeRateLimited || body["message"] != rateLimitedMessage {
		t.Fatalf("unexpected body %v", body)
	}

	if rr := postGuestOrder(router, guestOrderBody, "203.0.113.10"); rr.Code != http.StatusCreated {
		t.Fatalf("other clients must not be limited, got %d", rr.Code)
	}
	if calls != 3 {
		t.Fatalf("expected 3 orders to reach the service, got %d", calls)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("firestore unavailable")
}

func TestGuestCheckoutLimiterFailsOpen(t *testing.T) {
	svc := &stubOrderService{createFn: func(context.Context, services.CreateOrderCommand) (services.OrderReceipt, error) {
		return services.OrderReceipt{ID: "ord_x"}, nil
	}}
	router := newPublicRouter(NewPublicOrderHandlers(svc, failingLimiter{}, nil))
	if rr := postGuestOrder(router, guestOrderBody, "203.0.113.9"); rr.Code != http.StatusCreated {
		t.Fatalf("expected request through on limiter failure, got %d", rr.Code)
	}
}

func TestGuestCheckoutMarksActorAsGuest(t *testing.T) {
	var actor services.OrderActor
	svc := &stubOrderService{createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.OrderReceipt, error) {
		actor = cmd.Actor
		return services.OrderReceipt{ID: "ord_x"}, nil
	}}
	router := newPublicRouter(NewPublicOrderHandlers(svc, nil, nil))
	postGuestOrder(router, guestOrderBody, "203.0.113.9")
	if !actor.IsGuest || actor.UserID != "" {
		t.Fatalf("expected guest actor, got %+v", actor)
	}
}
