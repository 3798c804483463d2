package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
	"github.com/grocery-storefront/api/internal/repositories/memory"
)

type stubUnitOfWork struct {
	runFn func(context.Context, func(context.Context) error) error
}

func (s *stubUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.runFn != nil {
		return s.runFn(ctx, fn)
	}
	return fn(ctx)
}

type capturedEvent struct {
	name   string
	fields map[string]any
}

type captureLogger struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (c *captureLogger) log(_ context.Context, event string, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, capturedEvent{name: event, fields: fields})
}

func (c *captureLogger) has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, event := range c.events {
		if event.name == name {
			return true
		}
	}
	return false
}

var checkoutNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newCheckoutStore() *memory.Store {
	store := memory.New(memory.WithClock(func() time.Time { return checkoutNow }))
	store.PutProduct(domain.Product{ID: "prod-milk", ClientID: 7, Name: "Süt", Price: 55, Stock: 4, IsActive: true})
	store.PutProduct(domain.Product{ID: "prod-bread", ClientID: 8, Name: "Ekmek", Price: 100, Stock: 10, IsActive: true})
	store.PutProduct(domain.Product{ID: "prod-gone", ClientID: 9, Name: "Eski", Price: 10, Stock: 10, IsActive: true, IsDeleted: true})
	store.PutCoupon(domain.Coupon{Code: "SAVE10", Type: domain.CouponTypePercent, Value: 10, MinCartTotal: 50, IsActive: true})
	store.PutCoupon(domain.Coupon{Code: "ONCE", Type: domain.CouponTypeFixed, Value: 30, MaxUses: 1, UsedCount: 1, IsActive: true})
	return store
}

func newCheckoutService(t *testing.T, store *memory.Store, logger *captureLogger) OrderService {
	t.Helper()
	deps := OrderServiceDeps{
		Products:    store.Products(),
		Coupons:     store.Coupons(),
		Orders:      store.Orders(),
		UnitOfWork:  store,
		Clock:       func() time.Time { return checkoutNow },
		IDGenerator: sequentialIDs(),
	}
	if logger != nil {
		deps.Logger = logger.log
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "TEST" + string(rune('A'+n-1))
	}
}

func guestRequest(lines ...OrderLineInput) CreateOrderCommand {
	return CreateOrderCommand{
		Request: OrderRequest{
			Customer:      OrderCustomerInput{FullName: "Ayşe Yılmaz", Phone: "0532 123 45 67"},
			Delivery:      &OrderDeliveryInput{Title: "Ev", Detail: "Atatürk Cad. No:5 Kadıköy"},
			Items:         lines,
			PaymentMethod: PaymentMethodInput{Value: "cash"},
		},
		Actor: OrderActor{IsGuest: true},
	}
}

func line(productID string, quantity string) OrderLineInput {
	return OrderLineInput{ProductID: productID, Quantity: json.Number(quantity)}
}

func stockOf(t *testing.T, store *memory.Store, id string) int {
	t.Helper()
	product, err := store.Products().FindActive(context.Background(), domain.ParseProductRef(id))
	if err != nil {
		t.Fatalf("find %s: %v", id, err)
	}
	return product.Stock
}

func orderCount(t *testing.T, store *memory.Store) int {
	t.Helper()
	page, err := store.Orders().List(context.Background(), repositories.OrderListFilter{})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	return page.Total
}

func requireOrderError(t *testing.T, err error, kind OrderErrorKind, status int) *OrderError {
	t.Helper()
	orderErr, ok := AsOrderError(err)
	if !ok {
		t.Fatalf("expected *OrderError, got %T (%v)", err, err)
	}
	if orderErr.Kind != kind || orderErr.Status != status {
		t.Fatalf("expected %s/%d, got %s/%d (%s)", kind, status, orderErr.Kind, orderErr.Status, orderErr.Message)
	}
	return orderErr
}

func TestCreateOrderGuestHappyPath(t *testing.T) {
	store := newCheckoutStore()
	logger := &captureLogger{}
	svc := newCheckoutService(t, store, logger)

	receipt, err := svc.CreateOrder(context.Background(), guestRequest(line("prod-milk", "2")))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if receipt.ID != "ord_TESTA" {
		t.Fatalf("unexpected id %s", receipt.ID)
	}
	want := OrderSummary{Subtotal: 110, Discount: 0, Total: 110, ItemCount: 2, IsGuest: true}
	if receipt.Summary != want {
		t.Fatalf("unexpected summary %+v", receipt.Summary)
	}
	if got := stockOf(t, store, "prod-milk"); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}

	order, err := store.Orders().FindByID(context.Background(), receipt.ID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if order.Status != domain.OrderStatusPending || !order.IsGuest || order.UserID != "" {
		t.Fatalf("unexpected order %+v", order)
	}
	if order.Customer.Phone != "05321234567" {
		t.Fatalf("expected normalised phone, got %q", order.Customer.Phone)
	}
	if len(order.Items) != 1 || order.Items[0].UnitPrice != 55 || order.Items[0].LineTotal != 110 || order.Items[0].Name != "Süt" {
		t.Fatalf("unexpected items %+v", order.Items)
	}
	if !order.CreatedAt.Equal(checkoutNow) {
		t.Fatalf("unexpected createdAt %s", order.CreatedAt)
	}
	if !logger.has("order.created") {
		t.Fatal("expected order.created event")
	}
}

func TestCreateOrderResolvesNumericClientID(t *testing.T) {
	store := newCheckoutStore()
	svc := newCheckoutService(t, store, nil)

	receipt, err := svc.CreateOrder(context.Background(), guestRequest(line("8", "3")))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if receipt.Summary.Total != 300 {
		t.Fatalf("expected total 300, got %d", receipt.Summary.Total)
	}
	order, _ := store.Orders().FindByID(context.Background(), receipt.ID)
	if order.Items[0].ProductID != "prod-bread" {
		t.Fatalf("expected canonical product id, got %s", order.Items[0].ProductID)
	}
}

func TestCreateOrderAppliesCouponAndRecordsUsage(t *testing.T) {
	store := newCheckoutStore()
	svc := newCheckoutService(t, store, nil)

	cmd := guestRequest(line("prod-bread", "2"))
	cmd.Actor = OrderActor{UserID: "user-1"}
	cmd.Request.CouponCode = " save10 "

	receipt, err := svc.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if receipt.Summary.Subtotal != 200 || receipt.Summary.Discount != 20 || receipt.Summary.Total != 180 {
		t.Fatalf("unexpected summary %+v", receipt.Summary)
	}
	if receipt.Summary.IsGuest {
		t.Fatal("expected authenticated order")
	}

	coupon, err := store.Coupons().FindByCode(context.Background(), "SAVE10")
	if err != nil {
		t.Fatalf("find coupon: %v", err)
	}
	if coupon.UsedCount != 1 || coupon.UsesBy("user-1") != 1 {
		t.Fatalf("expected usage recorded, got %+v", coupon)
	}
	order, _ := store.Orders().FindByID(context.Background(), receipt.ID)
	if order.CouponCode != "SAVE10" || order.UserID != "user-1" {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestCreateOrderMissingProductRollsBack(t *testing.T) {
	store := newCheckoutStore()
	svc := newCheckoutService(t, store, nil)

	_, err := svc.CreateOrder(context.Background(), guestRequest(line("prod-milk", "1"), line("prod-gone", "1")))
	orderErr := requireOrderError(t, err, OrderErrorProductNotFound, http.StatusNotFound)
	if orderErr.Message != "Ürün bulunamadı: prod-gone" {
		t.Fatalf("unexpected message %q", orderErr.Message)
	}
	if got := stockOf(t, store, "prod-milk"); got != 4 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
	if got := orderCount(t, store); got != 0 {
		t.Fatalf("expected no orders, got %d", got)
	}
}

func TestCreateOrderCouponRejectionRollsBackStock(t *testing.T) {
	store := newCheckoutStore()
	svc := newCheckoutService(t, store, nil)

	cmd := guestRequest(line("prod-bread", "1"))
	cmd.Request.CouponCode = "ONCE"
	_, err := svc.CreateOrder(context.Background(), cmd)
	requireOrderError(t, err, OrderErrorValidation, http.StatusBadRequest)
	if !errors.Is(err, ErrCouponExhausted) {
		t.Fatalf("expected exhausted cause, got %v", err)
	}
	if got := stockOf(t, store, "prod-bread"); got != 10 {
		t.Fatalf("expected stock restored, got %d", got)
	}
	if got := orderCount(t, store); got != 0 {
		t.Fatalf("expected no orders, got %d", got)
	}

	cmd.Request.CouponCode = "MISSING"
	_, err = svc.CreateOrder(context.Background(), cmd)
	requireOrderError(t, err, OrderErrorValidation, http.StatusBadRequest)
}

func TestCreateOrderOutOfStock(t *testing.T) {
	store := newCheckoutStore()
	svc := newCheckoutService(t, store, nil)

	_, err := svc.CreateOrder(context.Background(), guestRequest(line("prod-milk", "5")))
	orderErr := requireOrderError(t, err, OrderErrorOutOfStock, http.StatusConflict)
	if orderErr.Message != "Süt için stok yetersiz." {
		t.Fatalf("unexpected message %q", orderErr.Message)
	}
}

func TestCreateOrderDuplicateLinesShareStock(t *testing.T) {
	store := newCheckoutStore()
	svc := newCheckoutService(t, store, nil)

	_, err := svc.CreateOrder(context.Background(), guestRequest(line("prod-milk", "3"), line("7", "2")))
	requireOrderError(t, err, OrderErrorOutOfStock, http.StatusConflict)
	if got := stockOf(t, store, "prod-milk"); got != 4 {
		t.Fatalf("expected stock restored, got %d", got)
	}
}

func TestCreateOrderConcurrentRequestsDoNotOversell(t *testing.T) {
	store := newCheckoutStore()
	svc := newCheckoutService(t, store, nil)

	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		errs     = make([]error, 2)
		receipts = make([]OrderReceipt, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			receipts[i], errs[i] = svc.CreateOrder(context.Background(), guestRequest(line("prod-milk", "3")))
		}(i)
	}
	close(start)
	wg.Wait()

	var successes, outOfStock int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		default:
			requireOrderError(t, err, OrderErrorOutOfStock, http.StatusConflict)
			outOfStock++
		}
	}
	if successes != 1 || outOfStock != 1 {
		t.Fatalf("expected one success and one OUT_OF_STOCK, got %d/%d (%v)", successes, outOfStock, errs)
	}
	if got := stockOf(t, store, "prod-milk"); got != 1 {
		t.Fatalf("expected final stock 1, got %d", got)
	}
	if got := orderCount(t, store); got != 1 {
		t.Fatalf("expected one order, got %d", got)
	}
}

func TestCreateOrderRejectsQuantityBounds(t *testing.T) {
	store := newCheckoutStore()
	svc := newCheckoutService(t, store, nil)

	for _, quantity := range []string{"0", "51", "2.5", "", "-1"} {
		_, err := svc.CreateOrder(context.Background(), guestRequest(line("prod-bread", "1"), line("prod-milk", quantity)))
		requireOrderError(t, err, OrderErrorValidation, http.StatusBadRequest)
	}
	if got := stockOf(t, store, "prod-bread"); got != 10 {
		t.Fatalf("expected no partial processing, got stock %d", got)
	}
}

func TestCreateOrderMapsConflictToRetryable(t *testing.T) {
	store := newCheckoutStore()
	logger := &captureLogger{}
	svc, err := NewOrderService(OrderServiceDeps{
		Products: store.Products(),
		Coupons:  store.Coupons(),
		Orders:   store.Orders(),
		UnitOfWork: &stubUnitOfWork{runFn: func(context.Context, func(context.Context) error) error {
			return repositories.NewConflictError("transaction", errors.New("aborted"))
		}},
		Logger: logger.log,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = svc.CreateOrder(context.Background(), guestRequest(line("prod-milk", "1")))
	orderErr := requireOrderError(t, err, OrderErrorConflict, http.StatusServiceUnavailable)
	if !orderErr.Retryable() {
		t.Fatal("expected retryable error")
	}
	if !logger.has("order.create.failed") {
		t.Fatal("expected failure event")
	}
}

func TestCreateOrderHidesUnexpectedErrors(t *testing.T) {
	store := newCheckoutStore()
	svc, err := NewOrderService(OrderServiceDeps{
		Products: store.Products(),
		Coupons:  store.Coupons(),
		Orders:   store.Orders(),
		UnitOfWork: &stubUnitOfWork{runFn: func(context.Context, func(context.Context) error) error {
			return errors.New("dial tcp 10.0.0.3:5432: connection refused")
		}},
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = svc.CreateOrder(context.Background(), guestRequest(line("prod-milk", "1")))
	orderErr := requireOrderError(t, err, OrderErrorInternal, http.StatusInternalServerError)
	if orderErr.Message != genericOrderFail {
		t.Fatalf("expected generic message, got %q", orderErr.Message)
	}
}

func TestNewOrderServiceRequiresRepositories(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{}); err == nil {
		t.Fatal("expected error for missing repositories")
	}
}
