package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

const orderColumnsInsert = `id, user_id, is_guest, customer, delivery, items, subtotal, discount, total, payment_method, coupon_code, status, created_at, updated_at`

const orderColumns = `id, COALESCE(user_id, ''), is_guest, customer, delivery, items, subtotal, discount, total, payment_method, coupon_code, status, created_at, updated_at`

type orderRepository struct{ s *Store }

type customerJSON struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
}

type deliveryJSON struct {
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail"`
	Note   string `json:"note,omitempty"`
}

type itemJSON struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"lineTotal"`
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                        domain.Order
		customer, delivery, rawI []byte
		payment, status          string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.IsGuest, &customer, &delivery, &rawI, &o.Subtotal, &o.Discount, &o.Total, &payment, &o.CouponCode, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	var c customerJSON
	if err := json.Unmarshal(customer, &c); err != nil {
		return domain.Order{}, fmt.Errorf("decode customer for order %s: %w", o.ID, err)
	}
	var d deliveryJSON
	if err := json.Unmarshal(delivery, &d); err != nil {
		return domain.Order{}, fmt.Errorf("decode delivery for order %s: %w", o.ID, err)
	}
	var items []itemJSON
	if err := json.Unmarshal(rawI, &items); err != nil {
		return domain.Order{}, fmt.Errorf("decode items for order %s: %w", o.ID, err)
	}
	o.Customer = domain.OrderCustomer(c)
	o.Delivery = domain.OrderDelivery(d)
	o.Items = make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		o.Items = append(o.Items, domain.OrderItem(item))
	}
	o.PaymentMethod = domain.PaymentMethod(payment)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	customer, err := json.Marshal(customerJSON(order.Customer))
	if err != nil {
		return err
	}
	delivery, err := json.Marshal(deliveryJSON(order.Delivery))
	if err != nil {
		return err
	}
	items := make([]itemJSON, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, itemJSON(item))
	}
	rawItems, err := json.Marshal(items)
	if err != nil {
		return err
	}

	var userID *string
	if order.UserID != "" {
		userID = &order.UserID
	}
	_, err = r.s.querier(ctx).Exec(ctx,
		`INSERT INTO orders (`+orderColumnsInsert+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		order.ID, userID, order.IsGuest, customer, delivery, rawItems, order.Subtotal, order.Discount, order.Total,
		string(order.PaymentMethod), order.CouponCode, string(order.Status), order.CreatedAt.UTC(), order.UpdatedAt.UTC())
	return wrapError("orders.insert", err)
}

func (r orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := scanOrder(r.s.querier(ctx).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		return domain.Order{}, wrapError("orders.get", err)
	}
	return order, nil
}

func (r orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	q := r.s.querier(ctx)
	page := domain.Page[domain.Order]{Page: filter.Page.Page, Limit: filter.Page.Limit, Items: []domain.Order{}}
	if err := q.QueryRow(ctx, `SELECT count(*) FROM orders`+where, args...).Scan(&page.Total); err != nil {
		return page, wrapError("orders.list", err)
	}

	args = append(args, limitOrAll(filter.Page.Limit), filter.Page.Offset())
	sql := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))
	orders, err := r.query(ctx, q, sql, args...)
	if err != nil {
		return page, wrapError("orders.list", err)
	}
	page.Items = orders
	return page, nil
}

func (r orderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error {
	tag, err := r.s.querier(ctx).Exec(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, orderID, string(status), updatedAt.UTC())
	if err != nil {
		return wrapError("orders.update_status", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFoundError("orders.update_status", fmt.Errorf("order %q not found", orderID))
	}
	return nil
}

func (r orderRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	q := r.s.querier(ctx)
	orders, err := r.query(ctx, q,
		`SELECT `+orderColumns+` FROM orders WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at DESC`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, wrapError("orders.list_created_between", err)
	}
	return orders, nil
}

func (r orderRepository) query(ctx context.Context, q querier, sql string, args ...any) ([]domain.Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
