package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/grocery-storefront/api/internal/domain"
	pfirestore "github.com/grocery-storefront/api/internal/platform/firestore"
	"github.com/grocery-storefront/api/internal/repositories"
)

const clientIDLookupLimit = 5

// ProductRepository implements repositories.ProductRepository on the products collection.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
	now      func() time.Time
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
		now:      time.Now,
	}, nil
}

// FindActive resolves the document id first and the numeric clientId field second.
func (r *ProductRepository) FindActive(ctx context.Context, ref domain.ProductRef) (domain.Product, error) {
	if ref.PrimaryID != "" && pfirestore.ValidDocumentID(ref.PrimaryID) {
		doc, _, err := loadStaged(ctx, r.products, ref.PrimaryID)
		switch {
		case err == nil:
			if product := doc.toDomain(ref.PrimaryID); product.Available() {
				return product, nil
			}
		case !repositories.IsNotFound(err) && !pfirestore.IsInvalidArgument(err):
			return domain.Product{}, err
		}
	}

	if ref.HasClientID {
		docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("clientId", "==", ref.ClientID).Limit(clientIDLookupLimit)
		})
		if err != nil {
			return domain.Product{}, err
		}
		sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
		for _, doc := range docs {
			data, _, err := loadStaged(ctx, r.products, doc.ID)
			if err != nil {
				return domain.Product{}, err
			}
			if product := data.toDomain(doc.ID); product.Available() {
				return product, nil
			}
		}
	}

	return domain.Product{}, repositories.NewNotFoundError("products.find_active", fmt.Errorf("product %q not found", ref.Raw))
}

// DecrementStock performs a guarded read-modify-write of the stock field. Outside a unit of work it
// runs in its own transaction.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID string, quantity int) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if quantity <= 0 {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorInvalidQuantity, productID, quantity, 0)
	}

	var updated domain.Product
	err := r.provider.RunScoped(ctx, func(ctx context.Context) error {
		doc, ref, err := loadStaged(ctx, r.products, productID)
		if err != nil {
			return err
		}
		if doc.Stock < quantity {
			return repositories.NewStockError(repositories.StockErrorInsufficient, productID, quantity, doc.Stock)
		}
		doc.Stock -= quantity
		doc.UpdatedAt = r.now().UTC()

		scope, _ := pfirestore.ScopeFromContext(ctx)
		scope.Stage(ref, doc, func(tx *firestore.Transaction) error {
			return tx.Update(ref, []firestore.Update{
				{Path: "stock", Value: doc.Stock},
				{Path: "updatedAt", Value: doc.UpdatedAt},
			})
		})
		updated = doc.toDomain(productID)
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

// ListLowStock returns active products whose stock is at or below threshold, lowest first.
func (r *ProductRepository) ListLowStock(ctx context.Context, threshold int, limit int) ([]domain.Product, error) {
	if threshold < 0 {
		return nil, errors.New("products.list_low_stock: threshold must be >= 0")
	}
	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("isActive", "==", true).
			Where("isDeleted", "==", false).
			Where("stock", "<=", threshold).
			OrderBy("stock", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.Data.toDomain(doc.ID))
	}
	return products, nil
}
