package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/platform/auth"
	"github.com/grocery-storefront/api/internal/platform/httpx"
	"github.com/grocery-storefront/api/internal/platform/pagination"
	"github.com/grocery-storefront/api/internal/services"
)

// AdminServices bundles the services behind the /admin routes. Nil members answer 503.
type AdminServices struct {
	Status    services.OrderStatusService
	Queries   services.OrderQueryService
	Coupons   services.CouponService
	Inventory services.InventoryService
	Analytics services.AnalyticsService
}

// AdminHandlers exposes back office endpoints restricted to the admin role.
type AdminHandlers struct {
	authn *auth.Authenticator
	svc   AdminServices
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(authn *auth.Authenticator, svc AdminServices) *AdminHandlers {
	return &AdminHandlers{authn: authn, svc: svc}
}

// Routes registers admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Route("/orders", func(rt chi.Router) {
		rt.Get("/", h.listOrders)
		rt.Put("/{orderID}/status", h.updateOrderStatus)
	})
	r.Route("/coupons", func(rt chi.Router) {
		rt.Get("/", h.listCoupons)
		rt.Post("/", h.createCoupon)
		rt.Put("/{code}", h.updateCoupon)
		rt.Delete("/{code}", h.deleteCoupon)
	})
	r.Get("/products/low-stock", h.lowStock)
	r.Get("/analytics/summary", h.salesSummary)
}

func serviceUnavailable(w http.ResponseWriter, r *http.Request, name string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(codeUnavailable, "", http.StatusServiceUnavailable).WithDetails(map[string]any{"service": name}))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Status == nil {
		serviceUnavailable(w, r, "order status")
		return
	}
	var req updateStatusRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	var actorID string
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		actorID = identity.UID
	}

	order, err := h.svc.Status.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  req.Status,
		ActorID: actorID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Queries == nil {
		serviceUnavailable(w, r, "order")
		return
	}
	page, ok := parsePageParams(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Queries.ListOrders(ctx, services.OrderListQuery{
		Status: r.URL.Query().Get("status"),
		Page:   page,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(result, buildOrderPayload))
}

type couponRequest struct {
	Code           string     `json:"code"`
	Type           string     `json:"type"`
	Value          int64      `json:"value"`
	MinCartTotal   int64      `json:"minCartTotal"`
	MaxUses        int        `json:"maxUses"`
	MaxUsesPerUser int        `json:"maxUsesPerUser"`
	StartsAt       *time.Time `json:"startsAt"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	IsActive       *bool      `json:"isActive"`
}

func (c couponRequest) toInput() services.CouponInput {
	return services.CouponInput{
		Code:           c.Code,
		Type:           c.Type,
		Value:          c.Value,
		MinCartTotal:   c.MinCartTotal,
		MaxUses:        c.MaxUses,
		MaxUsesPerUser: c.MaxUsesPerUser,
		StartsAt:       c.StartsAt,
		ExpiresAt:      c.ExpiresAt,
		IsActive:       c.IsActive,
	}
}

type couponPayload struct {
	Code           string  `json:"code"`
	Type           string  `json:"type"`
	Value          int64   `json:"value"`
	MinCartTotal   int64   `json:"minCartTotal"`
	MaxUses        int     `json:"maxUses"`
	MaxUsesPerUser int     `json:"maxUsesPerUser"`
	UsedCount      int     `json:"usedCount"`
	StartsAt       *string `json:"startsAt,omitempty"`
	ExpiresAt      *string `json:"expiresAt,omitempty"`
	IsActive       bool    `json:"isActive"`
	CreatedAt      string  `json:"createdAt,omitempty"`
	UpdatedAt      string  `json:"updatedAt,omitempty"`
}

func buildCouponPayload(c services.Coupon) couponPayload {
	return couponPayload{
		Code:           c.Code,
		Type:           string(c.Type),
		Value:          c.Value,
		MinCartTotal:   c.MinCartTotal,
		MaxUses:        c.MaxUses,
		MaxUsesPerUser: c.MaxUsesPerUser,
		UsedCount:      c.UsedCount,
		StartsAt:       formatTimePtr(c.StartsAt),
		ExpiresAt:      formatTimePtr(c.ExpiresAt),
		IsActive:       c.IsActive,
		CreatedAt:      formatTime(c.CreatedAt),
		UpdatedAt:      formatTime(c.UpdatedAt),
	}
}

func (h *AdminHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Coupons == nil {
		serviceUnavailable(w, r, "coupon")
		return
	}
	page, ok := parsePageParams(w, r)
	if !ok {
		return
	}
	includeInactive, _ := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get("includeInactive")))
	result, err := h.svc.Coupons.ListCoupons(ctx, services.CouponListQuery{IncludeInactive: includeInactive, Page: page})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(result, buildCouponPayload))
}

func (h *AdminHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Coupons == nil {
		serviceUnavailable(w, r, "coupon")
		return
	}
	var req couponRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	coupon, err := h.svc.Coupons.CreateCoupon(ctx, req.toInput())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCouponPayload(coupon))
}

func (h *AdminHandlers) updateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Coupons == nil {
		serviceUnavailable(w, r, "coupon")
		return
	}
	var req couponRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	coupon, err := h.svc.Coupons.UpdateCoupon(ctx, chi.URLParam(r, "code"), req.toInput())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCouponPayload(coupon))
}

func (h *AdminHandlers) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Coupons == nil {
		serviceUnavailable(w, r, "coupon")
		return
	}
	coupon, err := h.svc.Coupons.DeactivateCoupon(ctx, chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCouponPayload(coupon))
}

type lowStockProductPayload struct {
	ID       string `json:"id"`
	ClientID int64  `json:"clientId,omitempty"`
	Name     string `json:"name"`
	Stock    int    `json:"stock"`
	Price    int64  `json:"price"`
}

type lowStockResponse struct {
	Threshold int                      `json:"threshold"`
	Items     []lowStockProductPayload `json:"items"`
}

func (h *AdminHandlers) lowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Inventory == nil {
		serviceUnavailable(w, r, "inventory")
		return
	}
	query := services.LowStockQuery{}
	values := r.URL.Query()
	if strings.TrimSpace(values.Get("threshold")) != "" {
		threshold, err := pagination.Int(values, "threshold")
		if err != nil {
			writeQueryParamError(ctx, w, err)
			return
		}
		query.Threshold = &threshold
	}
	limit, err := pagination.Int(values, "limit")
	if err != nil {
		writeQueryParamError(ctx, w, err)
		return
	}
	query.Limit = limit

	report, err := h.svc.Inventory.ListLowStock(ctx, query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := lowStockResponse{Threshold: report.Threshold, Items: make([]lowStockProductPayload, 0, len(report.Products))}
	for _, product := range report.Products {
		resp.Items = append(resp.Items, lowStockProductPayload{
			ID:       product.ID,
			ClientID: product.ClientID,
			Name:     product.Name,
			Stock:    product.Stock,
			Price:    product.Price,
		})
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

type productSalesPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Revenue   int64  `json:"revenue"`
}

type dailyRevenuePayload struct {
	Date    string `json:"date"`
	Revenue int64  `json:"revenue"`
	Orders  int    `json:"orders"`
}

type salesSummaryPayload struct {
	From              string                `json:"from"`
	To                string                `json:"to"`
	TotalRevenue      int64                 `json:"totalRevenue"`
	TotalOrders       int                   `json:"totalOrders"`
	AverageOrderValue float64               `json:"averageOrderValue"`
	TopProducts       []productSalesPayload `json:"topProducts"`
	DailyRevenue      []dailyRevenuePayload `json:"dailyRevenue"`
}

func (h *AdminHandlers) salesSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Analytics == nil {
		serviceUnavailable(w, r, "analytics")
		return
	}
	var query services.SalesSummaryQuery
	var err error
	if query.From, err = parseReportBound(r.URL.Query().Get("from"), false); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "from bir tarih (YYYY-MM-DD) ya da RFC3339 zaman damgası olmalıdır.", http.StatusBadRequest).WithDetails(map[string]any{"field": "from"}))
		return
	}
	if query.To, err = parseReportBound(r.URL.Query().Get("to"), true); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "to bir tarih (YYYY-MM-DD) ya da RFC3339 zaman damgası olmalıdır.", http.StatusBadRequest).WithDetails(map[string]any{"field": "to"}))
		return
	}

	summary, err := h.svc.Analytics.SalesSummary(ctx, query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSalesSummaryPayload(summary))
}

// parseReportBound accepts RFC3339 or a bare date. A bare upper bound covers the whole day.
func parseReportBound(raw string, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	if upper {
		day = day.AddDate(0, 0, 1)
	}
	return &day, nil
}

func buildSalesSummaryPayload(summary domain.SalesSummary) salesSummaryPayload {
	payload := salesSummaryPayload{
		From:              formatTime(summary.From),
		To:                formatTime(summary.To),
		TotalRevenue:      summary.TotalRevenue,
		TotalOrders:       summary.TotalOrders,
		AverageOrderValue: summary.AverageOrderValue,
		TopProducts:       make([]productSalesPayload, 0, len(summary.TopProducts)),
		DailyRevenue:      make([]dailyRevenuePayload, 0, len(summary.DailyRevenue)),
	}
	for _, p := range summary.TopProducts {
		payload.TopProducts = append(payload.TopProducts, productSalesPayload(p))
	}
	for _, d := range summary.DailyRevenue {
		payload.DailyRevenue = append(payload.DailyRevenue, dailyRevenuePayload(d))
	}
	return payload
}
