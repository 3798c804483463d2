package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

type productRepository struct{ s *Store }

func (r productRepository) FindActive(ctx context.Context, ref domain.ProductRef) (domain.Product, error) {
	var found domain.Product
	err := r.s.locked(ctx, func() error {
		if ref.PrimaryID != "" {
			if product, ok := r.s.products[ref.PrimaryID]; ok && product.Available() {
				found = product
				return nil
			}
		}
		if ref.HasClientID {
			var matches []domain.Product
			for _, product := range r.s.products {
				if product.ClientID == ref.ClientID && product.Available() {
					matches = append(matches, product)
				}
			}
			if len(matches) > 0 {
				sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
				found = matches[0]
				return nil
			}
		}
		return repositories.NewNotFoundError("products.find_active", fmt.Errorf("product %q not found", ref.Raw))
	})
	return found, err
}

func (r productRepository) DecrementStock(ctx context.Context, productID string, quantity int) (domain.Product, error) {
	if quantity <= 0 {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorInvalidQuantity, productID, quantity, 0)
	}
	var updated domain.Product
	err := r.s.locked(ctx, func() error {
		product, ok := r.s.products[strings.TrimSpace(productID)]
		if !ok {
			return repositories.NewNotFoundError("products.decrement_stock", fmt.Errorf("product %q not found", productID))
		}
		if product.Stock < quantity {
			return repositories.NewStockError(repositories.StockErrorInsufficient, product.ID, quantity, product.Stock)
		}
		product.Stock -= quantity
		product.UpdatedAt = r.s.clock().UTC()
		r.s.products[product.ID] = product
		updated = product
		return nil
	})
	return updated, err
}

func (r productRepository) ListLowStock(ctx context.Context, threshold int, limit int) ([]domain.Product, error) {
	if threshold < 0 {
		return nil, errors.New("products.list_low_stock: threshold must be >= 0")
	}
	var out []domain.Product
	err := r.s.locked(ctx, func() error {
		for _, product := range r.s.products {
			if product.Available() && product.Stock <= threshold {
				out = append(out, product)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stock != out[j].Stock {
			return out[i].Stock < out[j].Stock
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
