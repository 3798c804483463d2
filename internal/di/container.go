package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/grocery-storefront/api/internal/platform/config"
	"github.com/grocery-storefront/api/internal/platform/requestctx"
	"github.com/grocery-storefront/api/internal/repositories"
	"github.com/grocery-storefront/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders        services.OrderService
	Queries       services.OrderQueryService
	Status        services.OrderStatusService
	Notifications services.NotificationService
	Coupons       services.CouponService
	Inventory     services.InventoryService
	Analytics     services.AnalyticsService
	System        services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	logger    *zap.Logger
	publisher services.OrderEventPublisher
	build     services.BuildInfo
	clock     func() time.Time
}

// WithLogger routes service events to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPublisher delivers order status events through publisher.
func WithPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *containerOptions) {
		o.publisher = publisher
	}
}

// WithBuildInfo sets the metadata reported by the health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// WithClock overrides the clock handed to every service.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies. Production wiring passes the registry selected
// by OpenRegistry, while tests can supply the in-memory store.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	options := containerOptions{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	svc, err := buildServices(ctx, reg, cfg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients and connection pools.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, opts containerOptions) (Services, error) {
	var svc Services
	var err error

	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Products:   reg.Products(),
		Coupons:    reg.Coupons(),
		Orders:     reg.Orders(),
		UnitOfWork: reg,
		Clock:      opts.clock,
		Logger:     serviceLogger(opts.logger, "orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	svc.Queries, err = services.NewOrderQueryService(services.OrderQueryServiceDeps{Orders: reg.Orders()})
	if err != nil {
		return Services{}, fmt.Errorf("build order query service: %w", err)
	}

	svc.Notifications, err = services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: reg.Notifications(),
		Publisher:     opts.publisher,
		Clock:         opts.clock,
		Logger:        serviceLogger(opts.logger, "notifications"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}

	svc.Status, err = services.NewOrderStatusService(services.OrderStatusServiceDeps{
		Orders:        reg.Orders(),
		UnitOfWork:    reg,
		Notifications: svc.Notifications,
		Clock:         opts.clock,
		Logger:        serviceLogger(opts.logger, "order_status"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order status service: %w", err)
	}

	svc.Coupons, err = services.NewCouponService(services.CouponServiceDeps{
		Coupons: reg.Coupons(),
		Clock:   opts.clock,
		Logger:  serviceLogger(opts.logger, "coupons"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon service: %w", err)
	}

	svc.Inventory, err = services.NewInventoryService(services.InventoryServiceDeps{
		Products:         reg.Products(),
		DefaultThreshold: cfg.Orders.LowStockThreshold,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}

	svc.Analytics, err = services.NewAnalyticsService(services.AnalyticsServiceDeps{
		Orders: reg.Orders(),
		Clock:  opts.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build analytics service: %w", err)
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := opts.build
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = opts.clock().UTC()
		}
		svc.System, err = services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            opts.clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
	}

	return svc, nil
}

// serviceLogger adapts the services' event hook to zap. Request scoped fields win over the base
// logger when the context carries one.
func serviceLogger(base *zap.Logger, name string) func(context.Context, string, map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.LoggerOr(ctx, base).Named(name)
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		switch {
		case strings.HasSuffix(event, ".failed"), strings.HasSuffix(event, ".degraded"):
			logger.Warn(name+" event", zFields...)
		case strings.HasSuffix(event, ".created"), strings.HasSuffix(event, ".updated"), strings.HasSuffix(event, ".deactivated"):
			logger.Info(name+" event", zFields...)
		default:
			logger.Debug(name+" event", zFields...)
		}
	}
}
