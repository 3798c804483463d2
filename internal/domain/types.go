package domain

import (
	"strconv"
	"strings"
	"time"
)

// OrderStatus describes the fulfilment state of an order.
type OrderStatus string

const (
	// OrderStatusPending is assigned to every newly created order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPreparing indicates the store is picking the basket.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusShipped indicates the courier left with the order.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered is terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentMethod enumerates the accepted payment options. Both are settled on delivery.
type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodCard PaymentMethod = "card"
)

// ProductRef identifies a catalog product by its primary document identifier or by the
// numeric identifier older mobile clients generate. Both candidates may be present.
type ProductRef struct {
	Raw         string
	PrimaryID   string
	ClientID    int64
	HasClientID bool
}

// ParseProductRef builds the candidate identifiers for a client supplied product id.
// An empty value yields an empty ref.
func ParseProductRef(raw string) ProductRef {
	raw = strings.TrimSpace(raw)
	ref := ProductRef{Raw: raw}
	if raw == "" {
		return ref
	}
	if !strings.Contains(raw, "/") {
		ref.PrimaryID = raw
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		ref.ClientID = n
		ref.HasClientID = true
	}
	return ref
}

// IsZero reports whether the ref carries no usable candidate.
func (r ProductRef) IsZero() bool {
	return r.PrimaryID == "" && !r.HasClientID
}

func (r ProductRef) String() string {
	return r.Raw
}

// Product is the catalog record consulted during checkout. Prices are expressed in minor
// currency units.
type Product struct {
	ID         string
	ClientID   int64
	Name       string
	Price      int64
	Stock      int
	Categories []string
	ImageURL   string
	IsActive   bool
	IsDeleted  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Available reports whether the product may be sold.
func (p Product) Available() bool {
	return p.IsActive && !p.IsDeleted
}

// CouponType selects how a coupon value is interpreted.
type CouponType string

const (
	// CouponTypePercent discounts Value percent of the subtotal.
	CouponTypePercent CouponType = "percent"
	// CouponTypeFixed discounts Value minor units.
	CouponTypeFixed CouponType = "fixed"
)

// Coupon describes a discount code. A zero MaxUses or MaxUsesPerUser means unlimited.
type Coupon struct {
	Code           string
	Type           CouponType
	Value          int64
	MinCartTotal   int64
	MaxUses        int
	MaxUsesPerUser int
	UsedCount      int
	UsedBy         map[string]int
	StartsAt       *time.Time
	ExpiresAt      *time.Time
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UsesBy returns how many times the user redeemed the coupon.
func (c Coupon) UsesBy(userID string) int {
	if userID == "" || c.UsedBy == nil {
		return 0
	}
	return c.UsedBy[userID]
}

// NormalizeCouponCode canonicalises coupon codes for storage and lookup.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// OrderCustomer is the customer snapshot captured at checkout.
type OrderCustomer struct {
	FullName string
	Phone    string
	Email    string
}

// OrderDelivery is the delivery address snapshot captured at checkout.
type OrderDelivery struct {
	Title  string
	Detail string
	Note   string
}

// OrderItem snapshots a priced cart line. It never changes after creation.
type OrderItem struct {
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
	LineTotal int64
}

// Order is immutable after creation except for Status and UpdatedAt.
type Order struct {
	ID            string
	UserID        string
	IsGuest       bool
	Customer      OrderCustomer
	Delivery      OrderDelivery
	Items         []OrderItem
	Subtotal      int64
	Discount      int64
	Total         int64
	PaymentMethod PaymentMethod
	CouponCode    string
	Status        OrderStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ItemCount sums line quantities.
func (o Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}

// Summary returns the totals reported to the client after checkout.
func (o Order) Summary() OrderSummary {
	return OrderSummary{
		Subtotal:  o.Subtotal,
		Discount:  o.Discount,
		Total:     o.Total,
		ItemCount: o.ItemCount(),
		IsGuest:   o.IsGuest,
	}
}

// OrderSummary is the minimal checkout response.
type OrderSummary struct {
	Subtotal  int64
	Discount  int64
	Total     int64
	ItemCount int
	IsGuest   bool
}

// OrderReceipt identifies a created order together with its summary.
type OrderReceipt struct {
	ID      string
	Summary OrderSummary
}

// NotificationStatus records the delivery outcome of a notification.
type NotificationStatus string

const (
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
	NotificationStatusSkipped NotificationStatus = "skipped"
)

// Notification is an audit record of a user facing message.
type Notification struct {
	ID        string
	UserID    string
	OrderID   string
	Type      string
	Title     string
	Body      string
	Status    NotificationStatus
	Error     string
	CreatedAt time.Time
}

// PageRequest selects a 1-based page of results.
type PageRequest struct {
	Page  int
	Limit int
}

// Offset returns the number of records preceding the page.
func (p PageRequest) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Page packages list results with the total match count.
type Page[T any] struct {
	Items []T
	Page  int
	Limit int
	Total int
}

// ProductSales aggregates sold quantity per product.
type ProductSales struct {
	ProductID string
	Name      string
	Quantity  int
	Revenue   int64
}

// DailyRevenue aggregates revenue for one UTC calendar day (YYYY-MM-DD).
type DailyRevenue struct {
	Date    string
	Revenue int64
	Orders  int
}

// SalesSummary reports revenue over a date range.
type SalesSummary struct {
	From              time.Time
	To                time.Time
	TotalRevenue      int64
	TotalOrders       int
	AverageOrderValue float64
	TopProducts       []ProductSales
	DailyRevenue      []DailyRevenue
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
