package firestore

import (
	"context"
	"errors"
	"time"

	pfirestore "github.com/grocery-storefront/api/internal/platform/firestore"
	"github.com/grocery-storefront/api/internal/repositories"
)

// Registry wires the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider      *pfirestore.Provider
	products      *ProductRepository
	coupons       *CouponRepository
	orders        *OrderRepository
	notifications *NotificationRepository
	health        repositories.HealthRepository
	txOpts        []pfirestore.TxOption
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises the registry.
type RegistryOption func(*Registry)

// WithTransactionPolicy bounds the attempts and duration of each unit of work.
func WithTransactionPolicy(attempts int, timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		r.txOpts = append(r.txOpts, pfirestore.WithTxAttempts(attempts), pfirestore.WithTxTimeout(timeout))
	}
}

// WithHealthRepository replaces the default Firestore-only health check.
func WithHealthRepository(health repositories.HealthRepository) RegistryOption {
	return func(r *Registry) {
		if health != nil {
			r.health = health
		}
	}
}

// NewRegistry constructs all Firestore repositories on the shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	coupons, err := NewCouponRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	notifications, err := NewNotificationRepository(provider)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		provider:      provider,
		products:      products,
		coupons:       coupons,
		orders:        orders,
		notifications: notifications,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.health == nil {
		r.health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
			{Name: "firestore", Check: provider.Ping},
		})
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RunInTx runs fn inside a Firestore transaction scope. fn may run more than once.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunScoped(ctx, fn, r.txOpts...)
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Coupons() repositories.CouponRepository { return r.coupons }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }

func (r *Registry) Health() repositories.HealthRepository { return r.health }
