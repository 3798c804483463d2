package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/platform/auth"
	"github.com/grocery-storefront/api/internal/services"
)

type stubOrderService struct {
	createFn func(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderReceipt, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderReceipt, error) {
	return s.createFn(ctx, cmd)
}

type stubOrderQueryService struct {
	listUserFn func(ctx context.Context, userID string, page services.PageRequest) (domain.Page[services.Order], error)
	getFn      func(ctx context.Context, userID, orderID string) (services.Order, error)
	listFn     func(ctx context.Context, query services.OrderListQuery) (domain.Page[services.Order], error)
}

func (s *stubOrderQueryService) ListUserOrders(ctx context.Context, userID string, page services.PageRequest) (domain.Page[services.Order], error) {
	return s.listUserFn(ctx, userID, page)
}

func (s *stubOrderQueryService) GetUserOrder(ctx context.Context, userID, orderID string) (services.Order, error) {
	return s.getFn(ctx, userID, orderID)
}

func (s *stubOrderQueryService) ListOrders(ctx context.Context, query services.OrderListQuery) (domain.Page[services.Order], error) {
	return s.listFn(ctx, query)
}

func newOrdersRouter(h *OrderHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/orders", h.Routes)
	return router
}

func withIdentity(req *http.Request, identity *auth.Identity) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestCreateOrderDecodesFlexiblePayload(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.OrderReceipt, error) {
		captured = cmd
		return services.OrderReceipt{ID: "ord_1", Summary: domain.OrderSummary{Subtotal: 200, Discount: 20, Total: 180, ItemCount: 3}}, nil
	}}
	router := newOrdersRouter(NewOrderHandlers(nil, svc, nil))

	body := `{
		"customer": {"detail": "Moda Cd. 1"},
		"items": [{"productId": 7, "quantity": "2"}, {"productId": "prod-bread", "quantity": 1}],
		"paymentMethod": {"id": "pm_1", "label": "Kapıda Nakit"},
		"couponCode": "save10"
	}`
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body)), &auth.Identity{UID: "user-1", Email: "ayse@example.com"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	summary, _ := resp["summary"].(map[string]any)
	if resp["id"] != "ord_1" || summary["total"] != float64(180) || summary["itemCount"] != float64(3) || summary["isGuest"] != false {
		t.Fatalf("unexpected response %v", resp)
	}

	req2 := captured.Request
	if captured.Actor.UserID != "user-1" || captured.Actor.IsGuest {
		t.Fatalf("unexpected actor %+v", captured.Actor)
	}
	if req2.Items[0].ProductID != "7" || req2.Items[0].Quantity.String() != "2" || req2.Items[1].ProductID != "prod-bread" {
		t.Fatalf("unexpected items %+v", req2.Items)
	}
	if req2.PaymentMethod.ID != "pm_1" || req2.PaymentMethod.Label != "Kapıda Nakit" {
		t.Fatalf("unexpected payment method %+v", req2.PaymentMethod)
	}
	if req2.Customer.FullName != "ayse" || req2.Customer.Phone != defaultCustomerPhone || req2.Customer.Email != "ayse@example.com" {
		t.Fatalf("expected authenticated defaults, got %+v", req2.Customer)
	}
}

func TestApplyAuthenticatedDefaultsKeepsProvidedValues(t *testing.T) {
	req := services.OrderRequest{Customer: services.OrderCustomerInput{Name: "Ali Veli", Phone: "0532 111 22 33"}}
	applyAuthenticatedDefaults(&req, &auth.Identity{UID: "u"})
	if req.Customer.FullName != "" || req.Customer.Phone != "0532 111 22 33" {
		t.Fatalf("provided contact fields must survive, got %+v", req.Customer)
	}

	anonymous := services.OrderRequest{}
	applyAuthenticatedDefaults(&anonymous, &auth.Identity{UID: "u"})
	if anonymous.Customer.FullName != defaultCustomerName {
		t.Fatalf("expected %q, got %q", defaultCustomerName, anonymous.Customer.FullName)
	}
}

func TestCreateOrderMapsOrderErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "validation", err: &services.OrderError{Kind: services.OrderErrorValidation, Status: 400, Message: "Sepet boş olamaz."}, wantStatus: 400, wantCode: "VALIDATION_ERROR"},
		{name: "product", err: &services.OrderError{Kind: services.OrderErrorProductNotFound, Status: 404, Message: "Ürün bulunamadı: 9"}, wantStatus: 404, wantCode: "PRODUCT_NOT_FOUND"},
		{name: "stock", err: &services.OrderError{Kind: services.OrderErrorOutOfStock, Status: 409, Message: "Süt için stok yetersiz."}, wantStatus: 409, wantCode: "OUT_OF_STOCK"},
		{name: "conflict", err: &services.OrderError{Kind: services.OrderErrorConflict, Status: 503, Message: "Lütfen tekrar deneyin."}, wantStatus: 503, wantCode: "TRANSACTION_CONFLICT"},
		{name: "unknown", err: context.Canceled, wantStatus: 500, wantCode: "INTERNAL_SERVER_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{createFn: func(context.Context, services.CreateOrderCommand) (services.OrderReceipt, error) {
				return services.OrderReceipt{}, tc.err
			}}
			router := newOrdersRouter(NewOrderHandlers(nil, svc, nil))
			req := withIdentity(httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{"items":[]}`)), &auth.Identity{UID: "u"})
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			body := decodeBody(t, rr)
			if body["error"] != tc.wantCode {
				t.Fatalf("expected %s, got %v", tc.wantCode, body["error"])
			}
			if tc.wantCode == "INTERNAL_SERVER_ERROR" && body["message"] != internalErrorMessage {
				t.Fatalf("internal errors must not leak details, got %v", body["message"])
			}
		})
	}
}

func TestCreateOrderRejectsMalformedBody(t *testing.T) {
	router := newOrdersRouter(NewOrderHandlers(nil, &stubOrderService{}, nil))
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{"items":`)), &auth.Identity{UID: "u"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateOrderRequiresIdentity(t *testing.T) {
	router := newOrdersRouter(NewOrderHandlers(nil, &stubOrderService{}, nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestListAndGetOrders(t *testing.T) {
	order := services.Order{
		ID:     "ord_1",
		UserID: "user-1",
		Status: domain.OrderStatusPending,
		Items:  []services.OrderItem{{ProductID: "p1", Name: "Süt", UnitPrice: 55, Quantity: 2, LineTotal: 110}},
		Total:  110,
	}
	queries := &stubOrderQueryService{
		listUserFn: func(_ context.Context, userID string, page services.PageRequest) (domain.Page[services.Order], error) {
			if userID != "user-1" || page.Page != 2 || page.Limit != 5 {
				t.Fatalf("unexpected list args %s %+v", userID, page)
			}
			return domain.Page[services.Order]{Items: []services.Order{order}, Page: 2, Limit: 5, Total: 6}, nil
		},
		getFn: func(_ context.Context, userID, orderID string) (services.Order, error) {
			if orderID == "ord_1" && userID == "user-1" {
				return order, nil
			}
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	router := newOrdersRouter(NewOrderHandlers(nil, nil, queries))
	identity := &auth.Identity{UID: "user-1"}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/orders?page=2&limit=5", nil), identity))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list struct {
		Items []orderPayload  `json:"items"`
		Meta  listMetaPayload `json:"meta"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Meta != (listMetaPayload{Page: 2, Limit: 5, Total: 6}) || len(list.Items) != 1 || list.Items[0].Items[0].TotalLinePrice != 110 {
		t.Fatalf("unexpected list %+v", list)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/orders/ord_other", nil), identity))
	if rr.Code != http.StatusNotFound || decodeBody(t, rr)["error"] != "ORDER_NOT_FOUND" {
		t.Fatalf("expected ORDER_NOT_FOUND, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/orders?limit=abc", nil), identity))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}
}

func TestScalarText(t *testing.T) {
	cases := map[string]string{
		`"abc "`: "abc",
		`42`:     "42",
		`2.5`:    "2.5",
		`true`:   "",
		`null`:   "",
		``:       "",
	}
	for raw, want := range cases {
		if got := scalarText(json.RawMessage(raw)); got != want {
			t.Fatalf("scalarText(%s) = %q, want %q", raw, got, want)
		}
	}
	if got := decodePaymentMethod(json.RawMessage(`"card"`)); got.Value != "card" {
		t.Fatalf("expected string payment method, got %+v", got)
	}
}
