package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/grocery-storefront/api/internal/domain"
	pfirestore "github.com/grocery-storefront/api/internal/platform/firestore"
	"github.com/grocery-storefront/api/internal/repositories"
)

const (
	productsCollection      = "products"
	couponsCollection       = "coupons"
	ordersCollection        = "orders"
	notificationsCollection = "notifications"
)

type productDocument struct {
	ClientID   int64     `firestore:"clientId"`
	Name       string    `firestore:"name"`
	Price      int64     `firestore:"price"`
	Stock      int       `firestore:"stock"`
	Categories []string  `firestore:"categories,omitempty"`
	ImageURL   string    `firestore:"imageUrl,omitempty"`
	IsActive   bool      `firestore:"isActive"`
	IsDeleted  bool      `firestore:"isDeleted"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:         id,
		ClientID:   d.ClientID,
		Name:       d.Name,
		Price:      d.Price,
		Stock:      d.Stock,
		Categories: append([]string(nil), d.Categories...),
		ImageURL:   d.ImageURL,
		IsActive:   d.IsActive,
		IsDeleted:  d.IsDeleted,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type couponDocument struct {
	Code           string         `firestore:"code"`
	Type           string         `firestore:"type"`
	Value          int64          `firestore:"value"`
	MinCartTotal   int64          `firestore:"minCartTotal"`
	MaxUses        int            `firestore:"maxUses"`
	MaxUsesPerUser int            `firestore:"maxUsesPerUser"`
	UsedCount      int            `firestore:"usedCount"`
	UsedBy         map[string]int `firestore:"usedBy,omitempty"`
	StartsAt       *time.Time     `firestore:"startsAt,omitempty"`
	ExpiresAt      *time.Time     `firestore:"expiresAt,omitempty"`
	IsActive       bool           `firestore:"isActive"`
	CreatedAt      time.Time      `firestore:"createdAt"`
	UpdatedAt      time.Time      `firestore:"updatedAt"`
}

func newCouponDocument(c domain.Coupon) couponDocument {
	usedBy := make(map[string]int, len(c.UsedBy))
	for k, v := range c.UsedBy {
		usedBy[k] = v
	}
	return couponDocument{
		Code:           domain.NormalizeCouponCode(c.Code),
		Type:           string(c.Type),
		Value:          c.Value,
		MinCartTotal:   c.MinCartTotal,
		MaxUses:        c.MaxUses,
		MaxUsesPerUser: c.MaxUsesPerUser,
		UsedCount:      c.UsedCount,
		UsedBy:         usedBy,
		StartsAt:       c.StartsAt,
		ExpiresAt:      c.ExpiresAt,
		IsActive:       c.IsActive,
		CreatedAt:      c.CreatedAt.UTC(),
		UpdatedAt:      c.UpdatedAt.UTC(),
	}
}

func (d couponDocument) toDomain(id string) domain.Coupon {
	code := d.Code
	if code == "" {
		code = id
	}
	usedBy := make(map[string]int, len(d.UsedBy))
	for k, v := range d.UsedBy {
		usedBy[k] = v
	}
	return domain.Coupon{
		Code:           code,
		Type:           domain.CouponType(d.Type),
		Value:          d.Value,
		MinCartTotal:   d.MinCartTotal,
		MaxUses:        d.MaxUses,
		MaxUsesPerUser: d.MaxUsesPerUser,
		UsedCount:      d.UsedCount,
		UsedBy:         usedBy,
		StartsAt:       d.StartsAt,
		ExpiresAt:      d.ExpiresAt,
		IsActive:       d.IsActive,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
	LineTotal int64  `firestore:"lineTotal"`
}

type orderDocument struct {
	UserID   *string `firestore:"userId"`
	IsGuest  bool    `firestore:"isGuest"`
	Customer struct {
		FullName string `firestore:"fullName"`
		Phone    string `firestore:"phone"`
		Email    string `firestore:"email,omitempty"`
	} `firestore:"customer"`
	Delivery struct {
		Title  string `firestore:"title,omitempty"`
		Detail string `firestore:"detail"`
		Note   string `firestore:"note,omitempty"`
	} `firestore:"delivery"`
	Items         []orderItemDocument `firestore:"items"`
	Subtotal      int64               `firestore:"subtotal"`
	Discount      int64               `firestore:"discount"`
	Total         int64               `firestore:"total"`
	PaymentMethod string              `firestore:"paymentMethod"`
	CouponCode    string              `firestore:"couponCode,omitempty"`
	Status        string              `firestore:"status"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
}

func newOrderDocument(o domain.Order) orderDocument {
	var doc orderDocument
	// Guest orders store an explicit null so they can be queried with userId == null.
	if o.UserID != "" {
		userID := o.UserID
		doc.UserID = &userID
	}
	doc.IsGuest = o.IsGuest
	doc.Customer.FullName = o.Customer.FullName
	doc.Customer.Phone = o.Customer.Phone
	doc.Customer.Email = o.Customer.Email
	doc.Delivery.Title = o.Delivery.Title
	doc.Delivery.Detail = o.Delivery.Detail
	doc.Delivery.Note = o.Delivery.Note
	doc.Items = make([]orderItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		doc.Items = append(doc.Items, orderItemDocument(item))
	}
	doc.Subtotal = o.Subtotal
	doc.Discount = o.Discount
	doc.Total = o.Total
	doc.PaymentMethod = string(o.PaymentMethod)
	doc.CouponCode = o.CouponCode
	doc.Status = string(o.Status)
	doc.CreatedAt = o.CreatedAt.UTC()
	doc.UpdatedAt = o.UpdatedAt.UTC()
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:      id,
		IsGuest: d.IsGuest,
		Customer: domain.OrderCustomer{
			FullName: d.Customer.FullName,
			Phone:    d.Customer.Phone,
			Email:    d.Customer.Email,
		},
		Delivery: domain.OrderDelivery{
			Title:  d.Delivery.Title,
			Detail: d.Delivery.Detail,
			Note:   d.Delivery.Note,
		},
		Items:         make([]domain.OrderItem, 0, len(d.Items)),
		Subtotal:      d.Subtotal,
		Discount:      d.Discount,
		Total:         d.Total,
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		CouponCode:    d.CouponCode,
		Status:        domain.OrderStatus(d.Status),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.UserID != nil {
		order.UserID = *d.UserID
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem(item))
	}
	return order
}

type notificationDocument struct {
	UserID    string    `firestore:"userId"`
	OrderID   string    `firestore:"orderId,omitempty"`
	Type      string    `firestore:"type"`
	Title     string    `firestore:"title"`
	Body      string    `firestore:"body"`
	Status    string    `firestore:"status"`
	Error     string    `firestore:"error,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newNotificationDocument(n domain.Notification) notificationDocument {
	return notificationDocument{
		UserID:    n.UserID,
		OrderID:   n.OrderID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		Status:    string(n.Status),
		Error:     n.Error,
		CreatedAt: n.CreatedAt.UTC(),
	}
}

func (d notificationDocument) toDomain(id string) domain.Notification {
	return domain.Notification{
		ID:        id,
		UserID:    d.UserID,
		OrderID:   d.OrderID,
		Type:      d.Type,
		Title:     d.Title,
		Body:      d.Body,
		Status:    domain.NotificationStatus(d.Status),
		Error:     d.Error,
		CreatedAt: d.CreatedAt,
	}
}

// loadStaged returns the value staged for id in the active scope, falling back to a
// transactional read.
func loadStaged[T any](ctx context.Context, base *pfirestore.BaseRepository[T], id string) (T, *firestore.DocumentRef, error) {
	var zero T
	if !pfirestore.ValidDocumentID(id) {
		return zero, nil, repositories.NewNotFoundError("firestore.load", fmt.Errorf("document %q cannot exist", id))
	}
	ref, err := base.DocumentRef(ctx, id)
	if err != nil {
		return zero, nil, err
	}
	if scope, ok := pfirestore.ScopeFromContext(ctx); ok {
		if staged, ok := scope.Staged(ref); ok {
			value, ok := staged.(T)
			if !ok {
				return zero, nil, fmt.Errorf("firestore: staged value for %s has type %T", ref.Path, staged)
			}
			return value, ref, nil
		}
	}
	doc, err := base.Get(ctx, id)
	if err != nil {
		return zero, nil, err
	}
	return doc.Data, ref, nil
}

// write queues staged on the active scope, or applies direct immediately when no scope is active.
func write(ctx context.Context, ref *firestore.DocumentRef, value any, staged func(*firestore.Transaction) error, direct func(context.Context) error) error {
	if scope, ok := pfirestore.ScopeFromContext(ctx); ok {
		scope.Stage(ref, value, staged)
		return nil
	}
	return direct(ctx)
}
