package postgres

import (
	"context"

	domain "github.com/grocery-storefront/api/internal/domain"
)

type notificationRepository struct{ s *Store }

func (r notificationRepository) Insert(ctx context.Context, n domain.Notification) error {
	_, err := r.s.querier(ctx).Exec(ctx,
		`INSERT INTO notifications (id, user_id, order_id, type, title, body, status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.UserID, n.OrderID, n.Type, n.Title, n.Body, string(n.Status), n.Error, n.CreatedAt.UTC())
	return wrapError("notifications.insert", err)
}

func (r notificationRepository) ListByUser(ctx context.Context, userID string, page domain.PageRequest) (domain.Page[domain.Notification], error) {
	q := r.s.querier(ctx)
	result := domain.Page[domain.Notification]{Page: page.Page, Limit: page.Limit, Items: []domain.Notification{}}
	if err := q.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE user_id = $1`, userID).Scan(&result.Total); err != nil {
		return result, wrapError("notifications.list", err)
	}
	rows, err := q.Query(ctx,
		`SELECT id, user_id, order_id, type, title, body, status, error, created_at
		 FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, limitOrAll(page.Limit), page.Offset())
	if err != nil {
		return result, wrapError("notifications.list", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			n      domain.Notification
			status string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.OrderID, &n.Type, &n.Title, &n.Body, &status, &n.Error, &n.CreatedAt); err != nil {
			return result, wrapError("notifications.list", err)
		}
		n.Status = domain.NotificationStatus(status)
		result.Items = append(result.Items, n)
	}
	return result, wrapError("notifications.list", rows.Err())
}
