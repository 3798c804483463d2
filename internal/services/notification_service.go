package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

const (
	notificationIDPrefix        = "ntf_"
	notificationTypeOrderStatus = "order_status"
	// OrderEventStatusChanged is the event type published for status transitions.
	OrderEventStatusChanged = "order.status_changed"
)

// NotificationServiceDeps bundles the collaborators of the notification service.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Publisher     OrderEventPublisher
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	repo      repositories.NotificationRepository
	publisher OrderEventPublisher
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewNotificationService constructs the notification service. A nil publisher records every
// notification as skipped.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &notificationService{
		repo:      deps.Notifications,
		publisher: deps.Publisher,
		clock:     func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// NotifyOrderStatus publishes the status change and stores the delivery outcome. Delivery
// failures are recorded on the returned notification; only a failure to store the record is
// returned as an error.
func (s *notificationService) NotifyOrderStatus(ctx context.Context, change OrderStatusChange) (Notification, error) {
	order := change.Order
	now := s.clock()
	notification := domain.Notification{
		ID:        notificationIDPrefix + s.newID(),
		UserID:    order.UserID,
		OrderID:   order.ID,
		Type:      notificationTypeOrderStatus,
		Title:     "Order status updated",
		Body:      fmt.Sprintf("Your order is now %s", order.Status),
		Status:    domain.NotificationStatusSent,
		CreatedAt: now,
	}

	switch {
	case strings.TrimSpace(order.UserID) == "":
		notification.Status = domain.NotificationStatusSkipped
		notification.Error = "no recipient"
	case s.publisher == nil:
		notification.Status = domain.NotificationStatusSkipped
		notification.Error = "publisher not configured"
	default:
		err := s.publisher.PublishOrderEvent(ctx, OrderEvent{
			Type:           OrderEventStatusChanged,
			OrderID:        order.ID,
			UserID:         order.UserID,
			NotificationID: notification.ID,
			PreviousStatus: string(change.Previous),
			CurrentStatus:  string(order.Status),
			Title:          notification.Title,
			Body:           notification.Body,
			OccurredAt:     now,
		})
		if err != nil {
			notification.Status = domain.NotificationStatusFailed
			notification.Error = err.Error()
			s.logger(ctx, "notification.publish.failed", map[string]any{
				"orderId":        order.ID,
				"notificationId": notification.ID,
				"error":          err.Error(),
			})
		}
	}

	if err := s.repo.Insert(ctx, notification); err != nil {
		return notification, fmt.Errorf("notification service: store record: %w", err)
	}
	return notification, nil
}

func (s *notificationService) ListForUser(ctx context.Context, userID string, page PageRequest) (domain.Page[Notification], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Page[Notification]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	return s.repo.ListByUser(ctx, userID, normalizePage(page))
}
