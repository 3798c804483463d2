package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

const (
	defaultSummaryWindow = 30 * 24 * time.Hour
	topProductsLimit     = 5
)

// ErrAnalyticsInvalidRange indicates from is after to.
var ErrAnalyticsInvalidRange = errors.New("analytics: invalid date range")

// AnalyticsServiceDeps bundles the collaborators of the analytics service.
type AnalyticsServiceDeps struct {
	Orders repositories.OrderRepository
	Clock  func() time.Time
}

type analyticsService struct {
	orders repositories.OrderRepository
	clock  func() time.Time
}

// NewAnalyticsService constructs the sales analytics service.
func NewAnalyticsService(deps AnalyticsServiceDeps) (AnalyticsService, error) {
	if deps.Orders == nil {
		return nil, errors.New("analytics service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &analyticsService{
		orders: deps.Orders,
		clock:  func() time.Time { return clock().UTC() },
	}, nil
}

// SalesSummary aggregates orders created in [from, to). Cancelled orders are left out.
func (s *analyticsService) SalesSummary(ctx context.Context, query SalesSummaryQuery) (SalesSummary, error) {
	to := s.clock()
	if query.To != nil {
		to = query.To.UTC()
	}
	from := to.Add(-defaultSummaryWindow)
	if query.From != nil {
		from = query.From.UTC()
	}
	if from.After(to) {
		return SalesSummary{}, fmt.Errorf("%w: %s is after %s", ErrAnalyticsInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	orders, err := s.orders.ListCreatedBetween(ctx, from, to)
	if err != nil {
		return SalesSummary{}, fmt.Errorf("analytics service: list orders: %w", err)
	}

	summary := domain.SalesSummary{From: from, To: to}
	products := make(map[string]*domain.ProductSales)
	days := make(map[string]*domain.DailyRevenue)
	for _, order := range orders {
		if order.Status == domain.OrderStatusCancelled {
			continue
		}
		summary.TotalRevenue += order.Total
		summary.TotalOrders++

		day := order.CreatedAt.UTC().Format(time.DateOnly)
		bucket, ok := days[day]
		if !ok {
			bucket = &domain.DailyRevenue{Date: day}
			days[day] = bucket
		}
		bucket.Revenue += order.Total
		bucket.Orders++

		for _, item := range order.Items {
			sales, ok := products[item.ProductID]
			if !ok {
				sales = &domain.ProductSales{ProductID: item.ProductID, Name: item.Name}
				products[item.ProductID] = sales
			}
			sales.Quantity += item.Quantity
			sales.Revenue += item.LineTotal
		}
	}
	if summary.TotalOrders > 0 {
		summary.AverageOrderValue = float64(summary.TotalRevenue) / float64(summary.TotalOrders)
	}

	summary.TopProducts = make([]domain.ProductSales, 0, len(products))
	for _, sales := range products {
		summary.TopProducts = append(summary.TopProducts, *sales)
	}
	sort.Slice(summary.TopProducts, func(i, j int) bool {
		a, b := summary.TopProducts[i], summary.TopProducts[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		return a.ProductID < b.ProductID
	})
	if len(summary.TopProducts) > topProductsLimit {
		summary.TopProducts = summary.TopProducts[:topProductsLimit]
	}

	summary.DailyRevenue = make([]domain.DailyRevenue, 0, len(days))
	for _, bucket := range days {
		summary.DailyRevenue = append(summary.DailyRevenue, *bucket)
	}
	sort.Slice(summary.DailyRevenue, func(i, j int) bool {
		return summary.DailyRevenue[i].Date < summary.DailyRevenue[j].Date
	})
	return summary, nil
}
