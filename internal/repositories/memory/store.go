// Package memory provides an in-process repositories.Registry. Transactions serialise on a single
// mutex and restore a snapshot when the unit of work fails, which makes the store suitable for
// local development and for exercising transactional behaviour in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

// Store holds every collection in memory.
type Store struct {
	mu    sync.Mutex
	clock func() time.Time

	products      map[string]domain.Product
	coupons       map[string]domain.Coupon
	orders        map[string]domain.Order
	notifications map[string]domain.Notification

	health repositories.HealthRepository
}

var _ repositories.Registry = (*Store)(nil)

// Option customises the store.
type Option func(*Store)

// WithClock overrides the clock used for timestamps the store assigns itself.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:         time.Now,
		products:      make(map[string]domain.Product),
		coupons:       make(map[string]domain.Coupon),
		orders:        make(map[string]domain.Order),
		notifications: make(map[string]domain.Notification),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.health, _ = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:  "memory",
		Check: func(context.Context) error { return nil },
	}})
	return s
}

type txKey struct{}

// RunInTx implements repositories.UnitOfWork. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// locked runs fn holding the store mutex unless the caller already owns it through RunInTx.
func (s *Store) locked(ctx context.Context, fn func() error) error {
	if !s.inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn()
}

type snapshot struct {
	products      map[string]domain.Product
	coupons       map[string]domain.Coupon
	orders        map[string]domain.Order
	notifications map[string]domain.Notification
}

// snapshot copies the top level maps. Nested maps and slices are treated as immutable and
// replaced, never mutated, by the repositories.
func (s *Store) snapshot() snapshot {
	return snapshot{
		products:      cloneMap(s.products),
		coupons:       cloneMap(s.coupons),
		orders:        cloneMap(s.orders),
		notifications: cloneMap(s.notifications),
	}
}

func (s *Store) restore(snap snapshot) {
	s.products = snap.products
	s.coupons = snap.coupons
	s.orders = snap.orders
	s.notifications = snap.notifications
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Close implements repositories.Registry.
func (s *Store) Close(context.Context) error { return nil }

// Products implements repositories.Registry.
func (s *Store) Products() repositories.ProductRepository { return productRepository{s} }

// Coupons implements repositories.Registry.
func (s *Store) Coupons() repositories.CouponRepository { return couponRepository{s} }

// Orders implements repositories.Registry.
func (s *Store) Orders() repositories.OrderRepository { return orderRepository{s} }

// Notifications implements repositories.Registry.
func (s *Store) Notifications() repositories.NotificationRepository {
	return notificationRepository{s}
}

// Health implements repositories.Registry.
func (s *Store) Health() repositories.HealthRepository { return s.health }

// PutProduct inserts or replaces a product. Used for seeding.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = now
	}
	product.Categories = append([]string(nil), product.Categories...)
	s.products[product.ID] = product
}

// PutCoupon inserts or replaces a coupon. Used for seeding.
func (s *Store) PutCoupon(coupon domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coupon.Code = domain.NormalizeCouponCode(coupon.Code)
	coupon.UsedBy = cloneMap(coupon.UsedBy)
	s.coupons[coupon.Code] = coupon
}

func paginate[T any](items []T, page domain.PageRequest) domain.Page[T] {
	result := domain.Page[T]{Page: page.Page, Limit: page.Limit, Total: len(items)}
	start := page.Offset()
	if start >= len(items) {
		result.Items = []T{}
		return result
	}
	end := len(items)
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}
	result.Items = append([]T(nil), items[start:end]...)
	return result
}

func sortNewestFirst[T any](items []T, created func(T) time.Time, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return id(items[i]) > id(items[j])
	})
}
