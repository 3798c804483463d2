package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/platform/auth"
	"github.com/grocery-storefront/api/internal/platform/httpx"
	"github.com/grocery-storefront/api/internal/services"
)

const (
	defaultCustomerName  = "Müşteri"
	defaultCustomerPhone = "05550000000"
)

// OrderHandlers serves checkout and order history for authenticated users.
type OrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	queries services.OrderQueryService
	guard   func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderCreateGuard wraps order creation, typically with the idempotency middleware.
func WithOrderCreateGuard(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.guard = mw
	}
}

// NewOrderHandlers constructs OrderHandlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, queries services.OrderQueryService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders, queries: queries}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.guard != nil {
		create = h.guard(create)
	}
	r.Method(http.MethodPost, "/", create)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError(codeUnavailable, "", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var payload orderRequestPayload
	if !decodeJSONBody(w, r, &payload) {
		return
	}
	req := payload.toServiceRequest()
	applyAuthenticatedDefaults(&req, identity)

	receipt, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Request: req,
		Actor: services.OrderActor{
			UserID: strings.TrimSpace(identity.UID),
			Email:  strings.TrimSpace(identity.Email),
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildReceiptPayload(receipt))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		httpx.WriteError(ctx, w, httpx.NewError(codeUnavailable, "", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	page, ok := parsePageParams(w, r)
	if !ok {
		return
	}

	result, err := h.queries.ListUserOrders(ctx, identity.UID, page)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(result, buildOrderPayload))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		httpx.WriteError(ctx, w, httpx.NewError(codeUnavailable, "", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.queries.GetUserOrder(ctx, identity.UID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

// applyAuthenticatedDefaults fills the contact fields the mobile client never collected for
// signed-in users.
func applyAuthenticatedDefaults(req *services.OrderRequest, identity *auth.Identity) {
	email := strings.TrimSpace(identity.Email)
	if strings.TrimSpace(req.Customer.Email) == "" {
		req.Customer.Email = email
	}
	if strings.TrimSpace(req.Customer.FullName) == "" && strings.TrimSpace(req.Customer.Name) == "" {
		req.Customer.FullName = defaultCustomerName
		if local, _, found := strings.Cut(email, "@"); found && strings.TrimSpace(local) != "" {
			req.Customer.FullName = local
		}
	}
	if strings.TrimSpace(req.Customer.Phone) == "" {
		req.Customer.Phone = defaultCustomerPhone
	}
}

type orderRequestPayload struct {
	Customer      orderCustomerPayload  `json:"customer"`
	Delivery      *orderDeliveryPayload `json:"delivery"`
	Items         []orderItemPayload    `json:"items"`
	PaymentMethod json.RawMessage       `json:"paymentMethod"`
	CouponCode    string                `json:"couponCode"`
}

type orderCustomerPayload struct {
	FullName string `json:"fullName"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Note     string `json:"note"`
}

type orderDeliveryPayload struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Note   string `json:"note"`
}

// orderItemPayload keeps both fields raw: productId may be a string or a number and quantity
// may arrive quoted.
type orderItemPayload struct {
	ProductID json.RawMessage `json:"productId"`
	Quantity  json.RawMessage `json:"quantity"`
}

type paymentMethodObject struct {
	Value string `json:"value"`
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

func (p orderRequestPayload) toServiceRequest() services.OrderRequest {
	req := services.OrderRequest{
		Customer: services.OrderCustomerInput{
			FullName: p.Customer.FullName,
			Name:     p.Customer.Name,
			Phone:    p.Customer.Phone,
			Email:    p.Customer.Email,
			Title:    p.Customer.Title,
			Detail:   p.Customer.Detail,
			Note:     p.Customer.Note,
		},
		PaymentMethod: decodePaymentMethod(p.PaymentMethod),
		CouponCode:    p.CouponCode,
	}
	if p.Delivery != nil {
		req.Delivery = &services.OrderDeliveryInput{
			Title:  p.Delivery.Title,
			Detail: p.Delivery.Detail,
			Note:   p.Delivery.Note,
		}
	}
	req.Items = make([]services.OrderLineInput, 0, len(p.Items))
	for _, item := range p.Items {
		req.Items = append(req.Items, services.OrderLineInput{
			ProductID: scalarText(item.ProductID),
			Quantity:  json.Number(scalarText(item.Quantity)),
		})
	}
	return req
}

// scalarText renders a JSON string or number as text. Other kinds yield "".
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return ""
		}
		return n.String()
	}
	return ""
}

func decodePaymentMethod(raw json.RawMessage) services.PaymentMethodInput {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return services.PaymentMethodInput{}
	}
	if raw[0] == '{' {
		var obj paymentMethodObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return services.PaymentMethodInput{}
		}
		return services.PaymentMethodInput{Value: obj.Value, ID: obj.ID, Label: obj.Label, Type: obj.Type}
	}
	return services.PaymentMethodInput{Value: scalarText(raw)}
}

type orderSummaryPayload struct {
	Subtotal  int64 `json:"subtotal"`
	Discount  int64 `json:"discount"`
	Total     int64 `json:"total"`
	ItemCount int   `json:"itemCount"`
	IsGuest   bool  `json:"isGuest"`
}

type orderReceiptPayload struct {
	ID      string              `json:"id"`
	Summary orderSummaryPayload `json:"summary"`
}

type orderCustomerResponse struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
}

type orderDeliveryResponse struct {
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail"`
	Note   string `json:"note,omitempty"`
}

type orderItemResponse struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	UnitPrice      int64  `json:"unitPrice"`
	Quantity       int    `json:"quantity"`
	TotalLinePrice int64  `json:"totalLinePrice"`
}

type orderPayload struct {
	ID            string                `json:"id"`
	UserID        string                `json:"userId,omitempty"`
	IsGuest       bool                  `json:"isGuest"`
	Status        string                `json:"status"`
	Customer      orderCustomerResponse `json:"customer"`
	Delivery      orderDeliveryResponse `json:"delivery"`
	Items         []orderItemResponse   `json:"items"`
	Subtotal      int64                 `json:"subtotal"`
	Discount      int64                 `json:"discount"`
	Total         int64                 `json:"total"`
	PaymentMethod string                `json:"paymentMethod"`
	CouponCode    string                `json:"couponCode,omitempty"`
	CreatedAt     string                `json:"createdAt"`
	UpdatedAt     string                `json:"updatedAt,omitempty"`
}

func buildSummaryPayload(summary domain.OrderSummary) orderSummaryPayload {
	return orderSummaryPayload{
		Subtotal:  summary.Subtotal,
		Discount:  summary.Discount,
		Total:     summary.Total,
		ItemCount: summary.ItemCount,
		IsGuest:   summary.IsGuest,
	}
}

func buildReceiptPayload(receipt services.OrderReceipt) orderReceiptPayload {
	return orderReceiptPayload{ID: receipt.ID, Summary: buildSummaryPayload(receipt.Summary)}
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:      item.ProductID,
			Name:           item.Name,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			TotalLinePrice: item.LineTotal,
		})
	}
	return orderPayload{
		ID:      order.ID,
		UserID:  order.UserID,
		IsGuest: order.IsGuest,
		Status:  string(order.Status),
		Customer: orderCustomerResponse{
			FullName: order.Customer.FullName,
			Phone:    order.Customer.Phone,
			Email:    order.Customer.Email,
		},
		Delivery: orderDeliveryResponse{
			Title:  order.Delivery.Title,
			Detail: order.Delivery.Detail,
			Note:   order.Delivery.Note,
		},
		Items:         items,
		Subtotal:      order.Subtotal,
		Discount:      order.Discount,
		Total:         order.Total,
		PaymentMethod: string(order.PaymentMethod),
		CouponCode:    order.CouponCode,
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
}
