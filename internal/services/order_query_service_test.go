package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories/memory"
)

func seededQueryStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		status := domain.OrderStatusPending
		if i%3 == 0 {
			status = domain.OrderStatusDelivered
		}
		seedOrder(t, store, domain.Order{
			ID:        fmt.Sprintf("ord_%02d", i),
			UserID:    "alice",
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	seedOrder(t, store, domain.Order{ID: "ord_bob", UserID: "bob", Status: domain.OrderStatusPending, CreatedAt: base})
	seedOrder(t, store, domain.Order{ID: "ord_guest", IsGuest: true, Status: domain.OrderStatusPending, CreatedAt: base})
	return store
}

func TestListUserOrdersPagesNewestFirst(t *testing.T) {
	svc, err := NewOrderQueryService(OrderQueryServiceDeps{Orders: seededQueryStore(t).Orders()})
	if err != nil {
		t.Fatalf("NewOrderQueryService: %v", err)
	}

	page, err := svc.ListUserOrders(context.Background(), "alice", PageRequest{})
	if err != nil {
		t.Fatalf("ListUserOrders: %v", err)
	}
	if page.Page != 1 || page.Limit != defaultPageLimit || page.Total != 12 || len(page.Items) != 10 {
		t.Fatalf("unexpected page meta %+v", page)
	}
	if page.Items[0].ID != "ord_11" {
		t.Fatalf("expected newest first, got %s", page.Items[0].ID)
	}

	page, err = svc.ListUserOrders(context.Background(), "alice", PageRequest{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("ListUserOrders: %v", err)
	}
	if len(page.Items) != 2 || page.Items[1].ID != "ord_00" {
		t.Fatalf("unexpected second page %+v", page.Items)
	}

	page, err = svc.ListUserOrders(context.Background(), "alice", PageRequest{Limit: 1000})
	if err != nil {
		t.Fatalf("ListUserOrders: %v", err)
	}
	if page.Limit != maxPageLimit {
		t.Fatalf("expected limit clamped to %d, got %d", maxPageLimit, page.Limit)
	}
}

func TestGetUserOrderHidesOtherUsers(t *testing.T) {
	svc, _ := NewOrderQueryService(OrderQueryServiceDeps{Orders: seededQueryStore(t).Orders()})

	if _, err := svc.GetUserOrder(context.Background(), "alice", "ord_03"); err != nil {
		t.Fatalf("expected own order, got %v", err)
	}
	for _, id := range []string{"ord_bob", "ord_guest", "ord_missing"} {
		if _, err := svc.GetUserOrder(context.Background(), "alice", id); !errors.Is(err, ErrOrderNotFound) {
			t.Fatalf("%s: expected not found, got %v", id, err)
		}
	}
}

func TestListOrdersFiltersByStatus(t *testing.T) {
	svc, _ := NewOrderQueryService(OrderQueryServiceDeps{Orders: seededQueryStore(t).Orders()})

	page, err := svc.ListOrders(context.Background(), OrderListQuery{Status: "DELIVERED", Page: PageRequest{Limit: 50}})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if page.Total != 4 {
		t.Fatalf("expected 4 delivered orders, got %d", page.Total)
	}
	for _, order := range page.Items {
		if order.Status != domain.OrderStatusDelivered {
			t.Fatalf("unexpected status %s", order.Status)
		}
	}

	all, err := svc.ListOrders(context.Background(), OrderListQuery{})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if all.Total != 14 {
		t.Fatalf("expected 14 orders, got %d", all.Total)
	}

	if _, err := svc.ListOrders(context.Background(), OrderListQuery{Status: "lost"}); !errors.Is(err, ErrOrderInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}
