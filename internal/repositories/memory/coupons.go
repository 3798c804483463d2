package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

type couponRepository struct{ s *Store }

func (r couponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	var found domain.Coupon
	err := r.s.locked(ctx, func() error {
		coupon, ok := r.s.coupons[domain.NormalizeCouponCode(code)]
		if !ok {
			return repositories.NewNotFoundError("coupons.find", fmt.Errorf("coupon %q not found", code))
		}
		found = coupon
		return nil
	})
	return found, err
}

func (r couponRepository) RecordUsage(ctx context.Context, code string, userID string, at time.Time) (domain.Coupon, error) {
	var updated domain.Coupon
	err := r.s.locked(ctx, func() error {
		key := domain.NormalizeCouponCode(code)
		coupon, ok := r.s.coupons[key]
		if !ok {
			return repositories.NewNotFoundError("coupons.record_usage", fmt.Errorf("coupon %q not found", code))
		}
		usage := repositories.CouponUsage{
			Code:           coupon.Code,
			MaxUses:        coupon.MaxUses,
			MaxUsesPerUser: coupon.MaxUsesPerUser,
			UsedCount:      coupon.UsedCount,
			UserCount:      coupon.UsesBy(userID),
		}
		if err := repositories.CheckCouponUsage(usage, userID); err != nil {
			return err
		}
		coupon.UsedCount++
		coupon.UsedBy = cloneMap(coupon.UsedBy)
		if userID != "" {
			coupon.UsedBy[userID]++
		}
		coupon.UpdatedAt = at.UTC()
		r.s.coupons[key] = coupon
		updated = coupon
		return nil
	})
	return updated, err
}

func (r couponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	return r.s.locked(ctx, func() error {
		key := domain.NormalizeCouponCode(coupon.Code)
		if _, exists := r.s.coupons[key]; exists {
			return repositories.NewConflictError("coupons.insert", fmt.Errorf("coupon %q already exists", key))
		}
		coupon.Code = key
		coupon.UsedBy = cloneMap(coupon.UsedBy)
		r.s.coupons[key] = coupon
		return nil
	})
}

func (r couponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	return r.s.locked(ctx, func() error {
		key := domain.NormalizeCouponCode(coupon.Code)
		if _, exists := r.s.coupons[key]; !exists {
			return repositories.NewNotFoundError("coupons.update", fmt.Errorf("coupon %q not found", key))
		}
		coupon.Code = key
		coupon.UsedBy = cloneMap(coupon.UsedBy)
		r.s.coupons[key] = coupon
		return nil
	})
}

func (r couponRepository) List(ctx context.Context, filter repositories.CouponListFilter) (domain.Page[domain.Coupon], error) {
	var items []domain.Coupon
	err := r.s.locked(ctx, func() error {
		for _, coupon := range r.s.coupons {
			if coupon.IsActive || filter.IncludeInactive {
				items = append(items, coupon)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Page[domain.Coupon]{}, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Code < items[j].Code })
	return paginate(items, filter.Page), nil
}
