package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	domain "github.com/grocery-storefront/api/internal/domain"
	pfirestore "github.com/grocery-storefront/api/internal/platform/firestore"
	"github.com/grocery-storefront/api/internal/repositories"
)

// NotificationRepository implements repositories.NotificationRepository.
type NotificationRepository struct {
	notifications *pfirestore.BaseRepository[notificationDocument]
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	return &NotificationRepository{
		notifications: pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection, nil),
	}, nil
}

func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	ref, err := r.notifications.DocumentRef(ctx, notification.ID)
	if err != nil {
		return err
	}
	doc := newNotificationDocument(notification)
	err = write(ctx, ref, doc,
		func(tx *firestore.Transaction) error { return tx.Create(ref, doc) },
		func(ctx context.Context) error {
			_, err := ref.Create(ctx, doc)
			return err
		},
	)
	return pfirestore.WrapError("notifications.insert", err)
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, page domain.PageRequest) (domain.Page[domain.Notification], error) {
	byUser := func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID)
	}
	total, err := r.notifications.Count(ctx, byUser)
	if err != nil {
		return domain.Page[domain.Notification]{}, err
	}
	docs, err := r.notifications.Query(ctx, func(q firestore.Query) firestore.Query {
		q = byUser(q).OrderBy("createdAt", firestore.Desc).Offset(page.Offset())
		if page.Limit > 0 {
			q = q.Limit(page.Limit)
		}
		return q
	})
	if err != nil {
		return domain.Page[domain.Notification]{}, err
	}
	result := domain.Page[domain.Notification]{
		Items: make([]domain.Notification, 0, len(docs)),
		Page:  page.Page,
		Limit: page.Limit,
		Total: total,
	}
	for _, doc := range docs {
		result.Items = append(result.Items, doc.Data.toDomain(doc.ID))
	}
	return result, nil
}
