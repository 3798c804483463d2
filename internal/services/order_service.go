package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

const (
	orderIDPrefix    = "ord_"
	orderMeterName   = "github.com/grocery-storefront/api/internal/services/orders"
	genericOrderFail = "Sipariş oluşturulamadı."
)

// OrderServiceDeps bundles the collaborators required by the checkout path.
type OrderServiceDeps struct {
	Products    repositories.ProductRepository
	Coupons     repositories.CouponRepository
	Orders      repositories.OrderRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Meter       metric.Meter
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	products   repositories.ProductRepository
	coupons    repositories.CouponRepository
	orders     repositories.OrderRepository
	unitOfWork repositories.UnitOfWork
	validator  *OrderValidator
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)

	created  metric.Int64Counter
	rejected metric.Int64Counter
}

// NewOrderService wires the checkout orchestrator.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("order service: coupon repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(orderMeterName)
	}
	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders committed by the checkout transaction"))
	if err != nil {
		return nil, fmt.Errorf("order service: register created counter: %w", err)
	}
	rejected, err := meter.Int64Counter("orders.rejected",
		metric.WithDescription("Checkout attempts rejected or rolled back, by error kind"))
	if err != nil {
		return nil, fmt.Errorf("order service: register rejected counter: %w", err)
	}

	return &orderService{
		products:   deps.Products,
		coupons:    deps.Coupons,
		orders:     deps.Orders,
		unitOfWork: unit,
		validator:  NewOrderValidator(logger),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		logger:   logger,
		created:  created,
		rejected: rejected,
	}, nil
}

// orderDraft accumulates the state of one transaction attempt.
type orderDraft struct {
	input    NormalizedOrder
	now      time.Time
	products []domain.Product
	order    domain.Order
}

type orderStep func(ctx context.Context, draft *orderDraft) error

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderReceipt, error) {
	input, err := s.validator.Normalize(ctx, cmd.Request, cmd.Actor)
	if err != nil {
		return OrderReceipt{}, s.reject(ctx, err, cmd.Actor)
	}

	orderID := s.nextOrderID()
	var order domain.Order
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		draft := &orderDraft{input: input, now: s.clock()}
		draft.order.ID = orderID
		steps := []orderStep{s.resolveLines, s.reserveStock, s.applyCoupon, s.persist}
		for _, step := range steps {
			if err := step(txCtx, draft); err != nil {
				return err
			}
		}
		order = draft.order
		return nil
	})
	if err != nil {
		return OrderReceipt{}, s.reject(ctx, err, cmd.Actor)
	}

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.Bool("guest", order.IsGuest)))
	s.logger(ctx, "order.created", map[string]any{
		"orderId":  order.ID,
		"guest":    order.IsGuest,
		"total":    order.Total,
		"discount": order.Discount,
		"items":    order.ItemCount(),
	})
	return OrderReceipt{ID: order.ID, Summary: order.Summary()}, nil
}

// resolveLines loads every product inside the transaction and prices the lines from the catalog.
func (s *orderService) resolveLines(ctx context.Context, draft *orderDraft) error {
	draft.products = make([]domain.Product, 0, len(draft.input.Lines))
	draft.order.Items = make([]domain.OrderItem, 0, len(draft.input.Lines))
	for _, line := range draft.input.Lines {
		product, err := s.products.FindActive(ctx, line.Ref)
		if err != nil {
			if repositories.IsNotFound(err) {
				return newOrderError(OrderErrorProductNotFound, fmt.Sprintf("Ürün bulunamadı: %s", line.Ref.Raw), err)
			}
			return err
		}
		if product.Stock < line.Quantity {
			return outOfStock(product.Name, nil)
		}
		draft.products = append(draft.products, product)
		lineTotal := product.Price * int64(line.Quantity)
		draft.order.Items = append(draft.order.Items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  line.Quantity,
			LineTotal: lineTotal,
		})
		draft.order.Subtotal += lineTotal
	}
	return nil
}

// reserveStock performs the guarded decrement for each line.
func (s *orderService) reserveStock(ctx context.Context, draft *orderDraft) error {
	for i, item := range draft.order.Items {
		if _, err := s.products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			var stockErr *repositories.StockError
			if errors.As(err, &stockErr) {
				return outOfStock(draft.products[i].Name, err)
			}
			return err
		}
	}
	return nil
}

func (s *orderService) applyCoupon(ctx context.Context, draft *orderDraft) error {
	code := draft.input.CouponCode
	if code == "" {
		return nil
	}
	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if repositories.IsNotFound(err) {
			return couponRejected(fmt.Errorf("%w: %s", ErrCouponNotFound, code))
		}
		return err
	}
	discount, err := EvaluateCoupon(coupon, draft.order.Subtotal, draft.input.UserID, draft.now)
	if err != nil {
		return couponRejected(err)
	}
	if _, err := s.coupons.RecordUsage(ctx, coupon.Code, draft.input.UserID, draft.now); err != nil {
		var couponErr *repositories.CouponError
		if errors.As(err, &couponErr) {
			return couponRejected(err)
		}
		return err
	}
	draft.order.CouponCode = coupon.Code
	draft.order.Discount = discount
	return nil
}

func (s *orderService) persist(ctx context.Context, draft *orderDraft) error {
	in := draft.input
	order := &draft.order
	order.UserID = in.UserID
	order.IsGuest = in.IsGuest
	order.Customer = in.Customer
	order.Delivery = in.Delivery
	order.PaymentMethod = in.PaymentMethod
	order.Total = order.Subtotal - order.Discount
	order.Status = domain.OrderStatusPending
	order.CreatedAt = draft.now
	order.UpdatedAt = draft.now
	return s.orders.Insert(ctx, *order)
}

// reject converts err into the *OrderError returned to callers and records the rejection.
func (s *orderService) reject(ctx context.Context, err error, actor OrderActor) error {
	orderErr := s.classify(err)
	s.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(orderErr.Kind)),
		attribute.Bool("guest", actor.IsGuest),
	))
	fields := map[string]any{
		"kind":  string(orderErr.Kind),
		"guest": actor.IsGuest,
		"error": err.Error(),
	}
	event := "order.create.rejected"
	if orderErr.Kind == OrderErrorInternal || orderErr.Kind == OrderErrorConflict {
		event = "order.create.failed"
	}
	s.logger(ctx, event, fields)
	return orderErr
}

func (s *orderService) classify(err error) *OrderError {
	if orderErr, ok := AsOrderError(err); ok {
		return orderErr
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		return outOfStock(stockErr.ProductID, err)
	}
	switch {
	case repositories.IsConflict(err):
		return newOrderError(OrderErrorConflict, "Sipariş şu anda işlenemiyor, lütfen tekrar deneyin.", err)
	case errors.Is(err, context.DeadlineExceeded), repositories.IsUnavailable(err):
		return newOrderError(OrderErrorConflict, "Sipariş şu anda işlenemiyor, lütfen tekrar deneyin.", err)
	}
	return newOrderError(OrderErrorInternal, genericOrderFail, err)
}

func outOfStock(name string, err error) *OrderError {
	return newOrderError(OrderErrorOutOfStock, fmt.Sprintf("%s için stok yetersiz.", strings.TrimSpace(name)), err)
}

func couponRejected(err error) *OrderError {
	message := "Kupon geçersiz."
	switch {
	case errors.Is(err, ErrCouponNotFound), errors.Is(err, ErrCouponInactive):
		message = "Kupon bulunamadı."
	case errors.Is(err, ErrCouponNotStarted):
		message = "Kupon henüz geçerli değil."
	case errors.Is(err, ErrCouponExpired):
		message = "Kuponun süresi dolmuş."
	case errors.Is(err, ErrCouponMinimumNotMet):
		message = "Sepet tutarı kupon için yetersiz."
	case errors.Is(err, ErrCouponExhausted), errors.Is(err, ErrCouponUserLimitReached):
		message = "Kupon kullanım limitine ulaşıldı."
	default:
		var couponErr *repositories.CouponError
		if errors.As(err, &couponErr) {
			message = "Kupon kullanım limitine ulaşıldı."
		}
	}
	return newOrderError(OrderErrorValidation, message, err)
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func runInTx(ctx context.Context, unit repositories.UnitOfWork, fn func(context.Context) error) error {
	if unit == nil {
		return fn(ctx)
	}
	return unit.RunInTx(ctx, fn)
}
