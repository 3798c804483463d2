package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/grocery-storefront/api/internal/repositories"
)

const (
	defaultLowStockThreshold = 5
	defaultLowStockLimit     = 50
	maxLowStockLimit         = 200
)

// InventoryServiceDeps bundles the collaborators of the inventory report service.
type InventoryServiceDeps struct {
	Products         repositories.ProductRepository
	DefaultThreshold int
}

type inventoryService struct {
	products  repositories.ProductRepository
	threshold int
}

// NewInventoryService constructs the low stock report service.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory service: product repository is required")
	}
	threshold := deps.DefaultThreshold
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}
	return &inventoryService{products: deps.Products, threshold: threshold}, nil
}

// ListLowStock returns available products whose stock is at or below the threshold, lowest first.
func (s *inventoryService) ListLowStock(ctx context.Context, query LowStockQuery) (LowStockReport, error) {
	threshold := s.threshold
	if query.Threshold != nil {
		threshold = *query.Threshold
	}
	if threshold < 0 {
		return LowStockReport{}, fmt.Errorf("%w: threshold must not be negative", ErrOrderInvalidInput)
	}
	limit := query.Limit
	switch {
	case limit <= 0:
		limit = defaultLowStockLimit
	case limit > maxLowStockLimit:
		limit = maxLowStockLimit
	}

	products, err := s.products.ListLowStock(ctx, threshold, limit)
	if err != nil {
		return LowStockReport{}, fmt.Errorf("inventory service: list low stock: %w", err)
	}
	return LowStockReport{Threshold: threshold, Products: products}, nil
}
