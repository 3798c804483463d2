package repositories

import (
	"context"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Coupons() CouponRepository
	Orders() OrderRepository
	Notifications() NotificationRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one atomic boundary. Repository calls made with the
// context passed to fn participate in the transaction; an error from fn discards every write.
// fn may be invoked more than once when the backend retries on contention.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository reads catalog products and maintains their stock counters.
type ProductRepository interface {
	// FindActive resolves ref by primary identifier first and by numeric client identifier
	// second. Inactive or deleted products never match.
	FindActive(ctx context.Context, ref domain.ProductRef) (domain.Product, error)
	// DecrementStock subtracts quantity from the product's stock, failing with a StockError when
	// the product holds fewer units.
	DecrementStock(ctx context.Context, productID string, quantity int) (domain.Product, error)
	ListLowStock(ctx context.Context, threshold int, limit int) ([]domain.Product, error)
}

// CouponRepository persists discount codes and their usage counters.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	// RecordUsage increments the global and, for non-empty userID, the per-user counters after
	// re-checking the configured limits against the stored counts.
	RecordUsage(ctx context.Context, code string, userID string, at time.Time) (domain.Coupon, error)
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	List(ctx context.Context, filter CouponListFilter) (domain.Page[domain.Coupon], error)
}

// CouponListFilter narrows coupon listings.
type CouponListFilter struct {
	IncludeInactive bool
	Page            domain.PageRequest
}

// OrderRepository persists orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error
	// ListCreatedBetween returns orders created in [from, to).
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error)
}

// OrderListFilter narrows order listings. Results are ordered newest first.
type OrderListFilter struct {
	UserID string
	Status domain.OrderStatus
	Page   domain.PageRequest
}

// NotificationRepository stores notification records.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	ListByUser(ctx context.Context, userID string, page domain.PageRequest) (domain.Page[domain.Notification], error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
