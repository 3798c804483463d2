package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// OrderQueryServiceDeps bundles the collaborators of the query service.
type OrderQueryServiceDeps struct {
	Orders repositories.OrderRepository
}

type orderQueryService struct {
	orders repositories.OrderRepository
}

// NewOrderQueryService constructs the read side for orders.
func NewOrderQueryService(deps OrderQueryServiceDeps) (OrderQueryService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order query service: order repository is required")
	}
	return &orderQueryService{orders: deps.Orders}, nil
}

func (s *orderQueryService) ListUserOrders(ctx context.Context, userID string, page PageRequest) (domain.Page[Order], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Page[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	result, err := s.orders.List(ctx, repositories.OrderListFilter{UserID: userID, Page: normalizePage(page)})
	if err != nil {
		return domain.Page[Order]{}, mapOrderRepositoryError(err)
	}
	return result, nil
}

// GetUserOrder returns ErrOrderNotFound for orders owned by someone else so existence is not
// revealed.
func (s *orderQueryService) GetUserOrder(ctx context.Context, userID string, orderID string) (Order, error) {
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return Order{}, ErrOrderNotFound
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	if order.IsGuest || order.UserID != userID {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderQueryService) ListOrders(ctx context.Context, query OrderListQuery) (domain.Page[Order], error) {
	filter := repositories.OrderListFilter{Page: normalizePage(query.Page)}
	if strings.TrimSpace(query.Status) != "" {
		status, err := ParseOrderStatus(query.Status)
		if err != nil {
			return domain.Page[Order]{}, err
		}
		filter.Status = status
	}
	result, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[Order]{}, mapOrderRepositoryError(err)
	}
	return result, nil
}

func normalizePage(page PageRequest) PageRequest {
	if page.Page < 1 {
		page.Page = 1
	}
	switch {
	case page.Limit <= 0:
		page.Limit = defaultPageLimit
	case page.Limit > maxPageLimit:
		page.Limit = maxPageLimit
	}
	return page
}
