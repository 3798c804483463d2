package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

var orderStatusTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusPreparing, domain.OrderStatusCancelled},
	domain.OrderStatusPreparing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:   {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered: {},
	domain.OrderStatusCancelled: {},
}

// ParseOrderStatus validates a client supplied status value.
func ParseOrderStatus(value string) (domain.OrderStatus, error) {
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := orderStatusTransitions[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrOrderInvalidStatus, value)
	}
	return status, nil
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to domain.OrderStatus) bool {
	for _, next := range orderStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderStatusServiceDeps bundles the collaborators of the status service.
type OrderStatusServiceDeps struct {
	Orders        repositories.OrderRepository
	UnitOfWork    repositories.UnitOfWork
	Notifications NotificationService
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderStatusService struct {
	orders        repositories.OrderRepository
	unitOfWork    repositories.UnitOfWork
	notifications NotificationService
	clock         func() time.Time
	logger        func(context.Context, string, map[string]any)
}

// NewOrderStatusService constructs the status service. Notifications are optional.
func NewOrderStatusService(deps OrderStatusServiceDeps) (OrderStatusService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order status service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderStatusService{
		orders:        deps.Orders,
		unitOfWork:    deps.UnitOfWork,
		notifications: deps.Notifications,
		clock:         func() time.Time { return clock().UTC() },
		logger:        logger,
	}, nil
}

func (s *orderStatusService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, err := ParseOrderStatus(cmd.Status)
	if err != nil {
		return Order{}, err
	}

	var (
		order    domain.Order
		previous domain.OrderStatus
	)
	err = runInTx(ctx, s.unitOfWork, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapOrderRepositoryError(err)
		}
		if !CanTransition(current.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, current.Status, target)
		}
		now := s.clock()
		if err := s.orders.UpdateStatus(txCtx, orderID, target, now); err != nil {
			return mapOrderRepositoryError(err)
		}
		previous = current.Status
		current.Status = target
		current.UpdatedAt = now
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.status.updated", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"to":      string(target),
		"actor":   cmd.ActorID,
	})
	s.notify(ctx, OrderStatusChange{Order: order, Previous: previous})
	return order, nil
}

// notify never fails the transition; problems are logged and recorded on the notification.
func (s *orderStatusService) notify(ctx context.Context, change OrderStatusChange) {
	if s.notifications == nil {
		return
	}
	notification, err := s.notifications.NotifyOrderStatus(ctx, change)
	if err != nil {
		s.logger(ctx, "order.status.notify.failed", map[string]any{
			"orderId": change.Order.ID,
			"error":   err.Error(),
		})
		return
	}
	if notification.Status != domain.NotificationStatusSent {
		s.logger(ctx, "order.status.notify.degraded", map[string]any{
			"orderId": change.Order.ID,
			"status":  string(notification.Status),
			"reason":  notification.Error,
		})
	}
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}
