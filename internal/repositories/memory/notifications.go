package memory

import (
	"context"
	"fmt"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

type notificationRepository struct{ s *Store }

func (r notificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	return r.s.locked(ctx, func() error {
		if _, exists := r.s.notifications[notification.ID]; exists {
			return repositories.NewConflictError("notifications.insert", fmt.Errorf("notification %q already exists", notification.ID))
		}
		r.s.notifications[notification.ID] = notification
		return nil
	})
}

func (r notificationRepository) ListByUser(ctx context.Context, userID string, page domain.PageRequest) (domain.Page[domain.Notification], error) {
	var items []domain.Notification
	err := r.s.locked(ctx, func() error {
		for _, n := range r.s.notifications {
			if n.UserID == userID {
				items = append(items, n)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Page[domain.Notification]{}, err
	}
	sortNewestFirst(items,
		func(n domain.Notification) time.Time { return n.CreatedAt },
		func(n domain.Notification) string { return n.ID },
	)
	return paginate(items, page), nil
}
