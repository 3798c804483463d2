package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories/memory"
)

type capturePublisher struct {
	events []OrderEvent
	err    error
}

func (c *capturePublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func seedOrder(t *testing.T, store *memory.Store, order domain.Order) {
	t.Helper()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = checkoutNow.Add(-time.Hour)
	}
	order.UpdatedAt = order.CreatedAt
	if err := store.Orders().Insert(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func newStatusService(t *testing.T, store *memory.Store, publisher OrderEventPublisher, logger *captureLogger) OrderStatusService {
	t.Helper()
	notifications, err := NewNotificationService(NotificationServiceDeps{
		Notifications: store.Notifications(),
		Publisher:     publisher,
		Clock:         func() time.Time { return checkoutNow },
		IDGenerator:   func() string { return "N1" },
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	deps := OrderStatusServiceDeps{
		Orders:        store.Orders(),
		UnitOfWork:    store,
		Notifications: notifications,
		Clock:         func() time.Time { return checkoutNow },
	}
	if logger != nil {
		deps.Logger = logger.log
	}
	svc, err := NewOrderStatusService(deps)
	if err != nil {
		t.Fatalf("NewOrderStatusService: %v", err)
	}
	return svc
}

func TestUpdateStatusTransitionsAndNotifies(t *testing.T) {
	store := memory.New()
	seedOrder(t, store, domain.Order{ID: "ord_1", UserID: "u1", Status: domain.OrderStatusPending})
	publisher := &capturePublisher{}
	svc := newStatusService(t, store, publisher, nil)

	order, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ord_1", Status: "Preparing"})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if order.Status != domain.OrderStatusPreparing || !order.UpdatedAt.Equal(checkoutNow) {
		t.Fatalf("unexpected order %+v", order)
	}
	stored, _ := store.Orders().FindByID(context.Background(), "ord_1")
	if stored.Status != domain.OrderStatusPreparing {
		t.Fatalf("expected persisted status, got %s", stored.Status)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected one event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Type != OrderEventStatusChanged || event.PreviousStatus != "pending" || event.CurrentStatus != "preparing" || event.NotificationID != "ntf_N1" {
		t.Fatalf("unexpected event %+v", event)
	}

	page, err := store.Notifications().ListByUser(context.Background(), "u1", domain.PageRequest{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if page.Total != 1 || page.Items[0].Status != domain.NotificationStatusSent || page.Items[0].Body != "Your order is now preparing" {
		t.Fatalf("unexpected notifications %+v", page.Items)
	}
}

func TestUpdateStatusRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		name    string
		current domain.OrderStatus
		target  string
		wantErr error
	}{
		{name: "backwards", current: domain.OrderStatusPreparing, target: "pending", wantErr: ErrOrderInvalidTransition},
		{name: "skip", current: domain.OrderStatusPending, target: "shipped", wantErr: ErrOrderInvalidTransition},
		{name: "delivered terminal", current: domain.OrderStatusDelivered, target: "cancelled", wantErr: ErrOrderInvalidTransition},
		{name: "cancelled terminal", current: domain.OrderStatusCancelled, target: "preparing", wantErr: ErrOrderInvalidTransition},
		{name: "shipped cannot cancel", current: domain.OrderStatusShipped, target: "cancelled", wantErr: ErrOrderInvalidTransition},
		{name: "unknown status", current: domain.OrderStatusPending, target: "lost", wantErr: ErrOrderInvalidStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.New()
			seedOrder(t, store, domain.Order{ID: "ord_1", UserID: "u1", Status: tc.current})
			publisher := &capturePublisher{}
			svc := newStatusService(t, store, publisher, nil)

			_, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ord_1", Status: tc.target})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			stored, _ := store.Orders().FindByID(context.Background(), "ord_1")
			if stored.Status != tc.current {
				t.Fatalf("expected status unchanged, got %s", stored.Status)
			}
			if len(publisher.events) != 0 {
				t.Fatal("expected no notification")
			}
		})
	}
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	svc := newStatusService(t, memory.New(), nil, nil)
	_, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "missing", Status: "preparing"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateStatusSurvivesNotificationFailure(t *testing.T) {
	store := memory.New()
	seedOrder(t, store, domain.Order{ID: "ord_1", UserID: "u1", Status: domain.OrderStatusShipped})
	logger := &captureLogger{}
	svc := newStatusService(t, store, &capturePublisher{err: errors.New("pubsub down")}, logger)

	order, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ord_1", Status: "delivered"})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if order.Status != domain.OrderStatusDelivered {
		t.Fatalf("unexpected status %s", order.Status)
	}
	page, _ := store.Notifications().ListByUser(context.Background(), "u1", domain.PageRequest{Page: 1, Limit: 10})
	if page.Total != 1 || page.Items[0].Status != domain.NotificationStatusFailed || page.Items[0].Error != "pubsub down" {
		t.Fatalf("expected failed notification record, got %+v", page.Items)
	}
	if !logger.has("order.status.notify.degraded") {
		t.Fatal("expected degraded notification event")
	}
}

func TestNotifyOrderStatusSkipsGuests(t *testing.T) {
	store := memory.New()
	publisher := &capturePublisher{}
	svc, err := NewNotificationService(NotificationServiceDeps{Notifications: store.Notifications(), Publisher: publisher})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	notification, err := svc.NotifyOrderStatus(context.Background(), OrderStatusChange{
		Order:    domain.Order{ID: "ord_guest", IsGuest: true, Status: domain.OrderStatusCancelled},
		Previous: domain.OrderStatusPending,
	})
	if err != nil {
		t.Fatalf("NotifyOrderStatus: %v", err)
	}
	if notification.Status != domain.NotificationStatusSkipped || len(publisher.events) != 0 {
		t.Fatalf("expected skipped without publish, got %+v", notification)
	}
}

func TestNotificationListRequiresUser(t *testing.T) {
	svc, err := NewNotificationService(NotificationServiceDeps{Notifications: memory.New().Notifications()})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	if _, err := svc.ListForUser(context.Background(), " ", domain.PageRequest{}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCanTransitionTable(t *testing.T) {
	if !CanTransition(domain.OrderStatusPending, domain.OrderStatusPreparing) {
		t.Fatal("pending -> preparing must be allowed")
	}
	if CanTransition(domain.OrderStatusPreparing, domain.OrderStatusPending) {
		t.Fatal("preparing -> pending must be rejected")
	}
	for _, target := range []domain.OrderStatus{
		domain.OrderStatusPending, domain.OrderStatusPreparing, domain.OrderStatusShipped,
		domain.OrderStatusDelivered, domain.OrderStatusCancelled,
	} {
		if CanTransition(domain.OrderStatusDelivered, target) {
			t.Fatalf("delivered -> %s must be rejected", target)
		}
	}
}
