package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/platform/auth"
	"github.com/grocery-storefront/api/internal/repositories/memory"
	"github.com/grocery-storefront/api/internal/services"
)

func TestMeNotificationsListsCallerRecords(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	for i, userID := range []string{"u1", "u1", "u2"} {
		if err := store.Notifications().Insert(ctx, domain.Notification{
			ID:        "ntf_" + string(rune('a'+i)),
			UserID:    userID,
			OrderID:   "ord_1",
			Type:      "order_status",
			Title:     "Order status updated",
			Status:    domain.NotificationStatusSent,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	svc, err := services.NewNotificationService(services.NotificationServiceDeps{Notifications: store.Notifications()})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	router := chi.NewRouter()
	router.Route("/me", NewMeHandlers(nil, svc).Routes)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/me/notifications", nil), &auth.Identity{UID: "u1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	items, _ := body["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected two notifications, got %v", items)
	}
	first, _ := items[0].(map[string]any)
	if first["id"] != "ntf_b" {
		t.Fatalf("expected newest first, got %v", first["id"])
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me/notifications", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rr.Code)
	}
}
