package memory

import (
	"context"
	"fmt"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

type orderRepository struct{ s *Store }

func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.s.locked(ctx, func() error {
		if _, exists := r.s.orders[order.ID]; exists {
			return repositories.NewConflictError("orders.insert", fmt.Errorf("order %q already exists", order.ID))
		}
		order.Items = append([]domain.OrderItem(nil), order.Items...)
		r.s.orders[order.ID] = order
		return nil
	})
}

func (r orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var found domain.Order
	err := r.s.locked(ctx, func() error {
		order, ok := r.s.orders[orderID]
		if !ok {
			return repositories.NewNotFoundError("orders.get", fmt.Errorf("order %q not found", orderID))
		}
		found = order
		return nil
	})
	return found, err
}

func (r orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	var items []domain.Order
	err := r.s.locked(ctx, func() error {
		for _, order := range r.s.orders {
			if filter.UserID != "" && order.UserID != filter.UserID {
				continue
			}
			if filter.Status != "" && order.Status != filter.Status {
				continue
			}
			items = append(items, order)
		}
		return nil
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	sortNewestFirst(items, orderCreatedAt, orderKey)
	return paginate(items, filter.Page), nil
}

func (r orderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error {
	return r.s.locked(ctx, func() error {
		order, ok := r.s.orders[orderID]
		if !ok {
			return repositories.NewNotFoundError("orders.update_status", fmt.Errorf("order %q not found", orderID))
		}
		order.Status = status
		order.UpdatedAt = updatedAt.UTC()
		r.s.orders[orderID] = order
		return nil
	})
}

func (r orderRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	var items []domain.Order
	err := r.s.locked(ctx, func() error {
		for _, order := range r.s.orders {
			if !order.CreatedAt.Before(from) && order.CreatedAt.Before(to) {
				items = append(items, order)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(items, orderCreatedAt, orderKey)
	return items, nil
}

func orderCreatedAt(o domain.Order) time.Time {
	return o.CreatedAt
}

func orderKey(o domain.Order) string {
	return o.ID
}
