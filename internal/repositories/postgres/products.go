package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

const productColumns = `id, COALESCE(client_id, 0), name, price, stock, categories, image_url, is_active, is_deleted, created_at, updated_at`

type productRepository struct{ s *Store }

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.ClientID, &p.Name, &p.Price, &p.Stock, &p.Categories, &p.ImageURL, &p.IsActive, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r productRepository) FindActive(ctx context.Context, ref domain.ProductRef) (domain.Product, error) {
	q := r.s.querier(ctx)
	if ref.PrimaryID != "" {
		product, err := scanProduct(q.QueryRow(ctx,
			`SELECT `+productColumns+` FROM products WHERE id = $1 AND is_active AND NOT is_deleted`,
			ref.PrimaryID))
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, wrapError("products.find_active", err)
		}
	}
	if ref.HasClientID {
		product, err := scanProduct(q.QueryRow(ctx,
			`SELECT `+productColumns+` FROM products WHERE client_id = $1 AND is_active AND NOT is_deleted ORDER BY id LIMIT 1`,
			ref.ClientID))
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, wrapError("products.find_active", err)
		}
	}
	return domain.Product{}, repositories.NewNotFoundError("products.find_active", fmt.Errorf("product %q not found", ref.Raw))
}

// DecrementStock relies on the guarded UPDATE for atomicity: concurrent orders serialise on the
// row lock and the stock >= quantity predicate is evaluated against the committed value.
func (r productRepository) DecrementStock(ctx context.Context, productID string, quantity int) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if quantity <= 0 {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorInvalidQuantity, productID, quantity, 0)
	}
	q := r.s.querier(ctx)
	product, err := scanProduct(q.QueryRow(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = $3
		 WHERE id = $1 AND stock >= $2
		 RETURNING `+productColumns,
		productID, quantity, r.s.now().UTC()))
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, wrapError("products.decrement_stock", err)
	}

	var available int
	if err := q.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&available); err != nil {
		return domain.Product{}, wrapError("products.decrement_stock", err)
	}
	return domain.Product{}, repositories.NewStockError(repositories.StockErrorInsufficient, productID, quantity, available)
}

func (r productRepository) ListLowStock(ctx context.Context, threshold int, limit int) ([]domain.Product, error) {
	if threshold < 0 {
		return nil, errors.New("products.list_low_stock: threshold must be >= 0")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.s.querier(ctx).Query(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE is_active AND NOT is_deleted AND stock <= $1
		 ORDER BY stock, id LIMIT $2`,
		threshold, limit)
	if err != nil {
		return nil, wrapError("products.list_low_stock", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, wrapError("products.list_low_stock", err)
		}
		out = append(out, product)
	}
	return out, wrapError("products.list_low_stock", rows.Err())
}
