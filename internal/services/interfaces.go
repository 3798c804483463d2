package services

import (
	"context"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product            = domain.Product
	ProductRef         = domain.ProductRef
	Coupon             = domain.Coupon
	CouponType         = domain.CouponType
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	OrderReceipt       = domain.OrderReceipt
	OrderSummary       = domain.OrderSummary
	PaymentMethod      = domain.PaymentMethod
	Notification       = domain.Notification
	PageRequest        = domain.PageRequest
	SalesSummary       = domain.SalesSummary
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService creates orders from untrusted checkout requests.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderReceipt, error)
}

// OrderStatusService moves orders through the fulfilment state machine.
type OrderStatusService interface {
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
}

// OrderQueryService exposes read paths for customers and administrators.
type OrderQueryService interface {
	ListUserOrders(ctx context.Context, userID string, page PageRequest) (domain.Page[Order], error)
	GetUserOrder(ctx context.Context, userID string, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListQuery) (domain.Page[Order], error)
}

// CouponService manages discount codes for administrators.
type CouponService interface {
	CreateCoupon(ctx context.Context, input CouponInput) (Coupon, error)
	UpdateCoupon(ctx context.Context, code string, input CouponInput) (Coupon, error)
	DeactivateCoupon(ctx context.Context, code string) (Coupon, error)
	ListCoupons(ctx context.Context, query CouponListQuery) (domain.Page[Coupon], error)
}

// NotificationService records and delivers order notifications.
type NotificationService interface {
	NotifyOrderStatus(ctx context.Context, change OrderStatusChange) (Notification, error)
	ListForUser(ctx context.Context, userID string, page PageRequest) (domain.Page[Notification], error)
}

// InventoryService reports on catalog stock levels.
type InventoryService interface {
	ListLowStock(ctx context.Context, query LowStockQuery) (LowStockReport, error)
}

// AnalyticsService aggregates sales figures for the admin dashboard.
type AnalyticsService interface {
	SalesSummary(ctx context.Context, query SalesSummaryQuery) (SalesSummary, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher delivers order lifecycle events to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent is published whenever an order changes status.
type OrderEvent struct {
	Type           string
	OrderID        string
	UserID         string
	NotificationID string
	PreviousStatus string
	CurrentStatus  string
	Title          string
	Body           string
	OccurredAt     time.Time
}

// CreateOrderCommand carries an unvalidated checkout request together with the caller identity.
type CreateOrderCommand struct {
	Request OrderRequest
	Actor   OrderActor
}

// UpdateOrderStatusCommand requests a status transition.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  string
	ActorID string
}

// OrderListQuery filters the admin order listing.
type OrderListQuery struct {
	Status string
	Page   PageRequest
}

// OrderStatusChange describes a persisted status transition.
type OrderStatusChange struct {
	Order    Order
	Previous OrderStatus
}

// CouponInput is the admin supplied coupon definition. It replaces the stored definition on
// update; a nil IsActive keeps the stored flag there and means active on create.
type CouponInput struct {
	Code           string
	Type           string
	Value          int64
	MinCartTotal   int64
	MaxUses        int
	MaxUsesPerUser int
	StartsAt       *time.Time
	ExpiresAt      *time.Time
	IsActive       *bool
}

// CouponListQuery filters the admin coupon listing.
type CouponListQuery struct {
	IncludeInactive bool
	Page            PageRequest
}

// LowStockQuery selects products at or below a stock threshold.
type LowStockQuery struct {
	Threshold *int
	Limit     int
}

// LowStockReport lists products at or below Threshold.
type LowStockReport struct {
	Threshold int
	Products  []Product
}

// SalesSummaryQuery selects the reporting window. Nil bounds default to the last thirty days.
type SalesSummaryQuery struct {
	From *time.Time
	To   *time.Time
}
