package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/grocery-storefront/api/internal/domain"
	pfirestore "github.com/grocery-storefront/api/internal/platform/firestore"
	"github.com/grocery-storefront/api/internal/repositories"
)

// OrderRepository implements repositories.OrderRepository on the orders collection.
type OrderRepository struct {
	orders *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	doc := newOrderDocument(order)
	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	err = write(ctx, ref, doc,
		func(tx *firestore.Transaction) error { return tx.Create(ref, doc) },
		func(ctx context.Context) error {
			_, err := ref.Create(ctx, doc)
			return err
		},
	)
	if status.Code(err) == codes.AlreadyExists {
		return repositories.NewConflictError("orders.insert", fmt.Errorf("order %q already exists", order.ID))
	}
	return pfirestore.WrapError("orders.insert", err)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, _, err := loadStaged(ctx, r.orders, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(orderID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	filtered := func(q firestore.Query) firestore.Query {
		if filter.UserID != "" {
			q = q.Where("userId", "==", filter.UserID)
		}
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		return q
	}
	total, err := r.orders.Count(ctx, filtered)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = filtered(q).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc).
			Offset(filter.Page.Offset())
		if filter.Page.Limit > 0 {
			q = q.Limit(filter.Page.Limit)
		}
		return q
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return domain.Page[domain.Order]{
		Items: decodeOrders(docs),
		Page:  filter.Page.Page,
		Limit: filter.Page.Limit,
		Total: total,
	}, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error {
	ref, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	updates := []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	}

	var staged any
	if _, ok := pfirestore.ScopeFromContext(ctx); ok {
		doc, _, err := loadStaged(ctx, r.orders, orderID)
		if err != nil {
			return err
		}
		doc.Status = string(status)
		doc.UpdatedAt = updatedAt.UTC()
		staged = doc
	}
	err = write(ctx, ref, staged,
		func(tx *firestore.Transaction) error { return tx.Update(ref, updates) },
		func(ctx context.Context) error {
			_, err := ref.Update(ctx, updates)
			return err
		},
	)
	return pfirestore.WrapError("orders.update_status", err)
}

func (r *OrderRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("createdAt", ">=", from.UTC()).
			Where("createdAt", "<", to.UTC()).
			OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	return decodeOrders(docs), nil
}

func decodeOrders(docs []pfirestore.Document[orderDocument]) []domain.Order {
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders
}
