package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/grocery-storefront/api/internal/domain"
	pfirestore "github.com/grocery-storefront/api/internal/platform/firestore"
	"github.com/grocery-storefront/api/internal/repositories"
)

// CouponRepository implements repositories.CouponRepository. Documents are keyed by the
// normalised coupon code.
type CouponRepository struct {
	provider *pfirestore.Provider
	coupons  *pfirestore.BaseRepository[couponDocument]
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		provider: provider,
		coupons:  pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection, nil),
	}, nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	id := domain.NormalizeCouponCode(code)
	if id == "" {
		return domain.Coupon{}, repositories.NewNotFoundError("coupons.find", errors.New("coupon code is empty"))
	}
	doc, _, err := loadStaged(ctx, r.coupons, id)
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.toDomain(id), nil
}

// RecordUsage re-reads the counters inside the transaction before incrementing them.
func (r *CouponRepository) RecordUsage(ctx context.Context, code string, userID string, at time.Time) (domain.Coupon, error) {
	id := domain.NormalizeCouponCode(code)
	var updated domain.Coupon
	err := r.provider.RunScoped(ctx, func(ctx context.Context) error {
		doc, ref, err := loadStaged(ctx, r.coupons, id)
		if err != nil {
			return err
		}
		usage := repositories.CouponUsage{
			Code:           id,
			MaxUses:        doc.MaxUses,
			MaxUsesPerUser: doc.MaxUsesPerUser,
			UsedCount:      doc.UsedCount,
			UserCount:      doc.UsedBy[userID],
		}
		if err := repositories.CheckCouponUsage(usage, userID); err != nil {
			return err
		}

		usedBy := make(map[string]int, len(doc.UsedBy)+1)
		for k, v := range doc.UsedBy {
			usedBy[k] = v
		}
		if userID != "" {
			usedBy[userID]++
		}
		doc.UsedCount++
		doc.UsedBy = usedBy
		doc.UpdatedAt = at.UTC()

		scope, _ := pfirestore.ScopeFromContext(ctx)
		scope.Stage(ref, doc, func(tx *firestore.Transaction) error {
			return tx.Set(ref, doc)
		})
		updated = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	return updated, nil
}

func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	doc := newCouponDocument(coupon)
	ref, err := r.coupons.DocumentRef(ctx, doc.Code)
	if err != nil {
		return err
	}
	err = write(ctx, ref, doc,
		func(tx *firestore.Transaction) error { return tx.Create(ref, doc) },
		func(ctx context.Context) error {
			_, err := ref.Create(ctx, doc)
			return err
		},
	)
	if status.Code(err) == codes.AlreadyExists {
		return repositories.NewConflictError("coupons.insert", fmt.Errorf("coupon %q already exists", doc.Code))
	}
	return pfirestore.WrapError("coupons.insert", err)
}

// Update rewrites the mutable coupon fields, leaving usage counters untouched. Missing coupons
// surface as not found.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	doc := newCouponDocument(coupon)
	ref, err := r.coupons.DocumentRef(ctx, doc.Code)
	if err != nil {
		return err
	}
	err = write(ctx, ref, doc,
		func(tx *firestore.Transaction) error { return tx.Update(ref, couponUpdates(doc)) },
		func(ctx context.Context) error {
			_, err := ref.Update(ctx, couponUpdates(doc))
			return err
		},
	)
	return pfirestore.WrapError("coupons.update", err)
}

func couponUpdates(doc couponDocument) []firestore.Update {
	return []firestore.Update{
		{Path: "type", Value: doc.Type},
		{Path: "value", Value: doc.Value},
		{Path: "minCartTotal", Value: doc.MinCartTotal},
		{Path: "maxUses", Value: doc.MaxUses},
		{Path: "maxUsesPerUser", Value: doc.MaxUsesPerUser},
		{Path: "startsAt", Value: doc.StartsAt},
		{Path: "expiresAt", Value: doc.ExpiresAt},
		{Path: "isActive", Value: doc.IsActive},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
}

func (r *CouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) (domain.Page[domain.Coupon], error) {
	filtered := func(q firestore.Query) firestore.Query {
		if !filter.IncludeInactive {
			q = q.Where("isActive", "==", true)
		}
		return q
	}
	total, err := r.coupons.Count(ctx, filtered)
	if err != nil {
		return domain.Page[domain.Coupon]{}, err
	}
	docs, err := r.coupons.Query(ctx, func(q firestore.Query) firestore.Query {
		q = filtered(q).OrderBy(firestore.DocumentID, firestore.Asc).Offset(filter.Page.Offset())
		if filter.Page.Limit > 0 {
			q = q.Limit(filter.Page.Limit)
		}
		return q
	})
	if err != nil {
		return domain.Page[domain.Coupon]{}, err
	}
	page := domain.Page[domain.Coupon]{
		Items: make([]domain.Coupon, 0, len(docs)),
		Page:  filter.Page.Page,
		Limit: filter.Page.Limit,
		Total: total,
	}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}
