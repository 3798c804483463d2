package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grocery-storefront/api/internal/platform/auth"
	"github.com/grocery-storefront/api/internal/services"
)

// MeHandlers serves endpoints scoped to the calling user.
type MeHandlers struct {
	authn         *auth.Authenticator
	notifications services.NotificationService
}

// NewMeHandlers constructs MeHandlers.
func NewMeHandlers(authn *auth.Authenticator, notifications services.NotificationService) *MeHandlers {
	return &MeHandlers{authn: authn, notifications: notifications}
}

// Routes registers /me endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/notifications", h.listNotifications)
}

type notificationPayload struct {
	ID        string `json:"id"`
	OrderID   string `json:"orderId,omitempty"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func buildNotificationPayload(n services.Notification) notificationPayload {
	return notificationPayload{
		ID:        n.ID,
		OrderID:   n.OrderID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		Status:    string(n.Status),
		CreatedAt: formatTime(n.CreatedAt),
	}
}

func (h *MeHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		serviceUnavailable(w, r, "notification")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	page, ok := parsePageParams(w, r)
	if !ok {
		return
	}
	result, err := h.notifications.ListForUser(ctx, identity.UID, page)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(result, buildNotificationPayload))
}
