package services

import (
	"fmt"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
)

// EvaluateCoupon checks coupon against the cart subtotal and the caller's usage and returns the
// discount to apply. An empty userID skips the per-user limit. The stored counters are checked
// again by CouponRepository.RecordUsage inside the order transaction.
func EvaluateCoupon(coupon domain.Coupon, subtotal int64, userID string, now time.Time) (int64, error) {
	if !coupon.IsActive {
		return 0, fmt.Errorf("%w: %s", ErrCouponInactive, coupon.Code)
	}
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return 0, fmt.Errorf("%w: %s starts at %s", ErrCouponNotStarted, coupon.Code, coupon.StartsAt.UTC().Format(time.RFC3339))
	}
	if coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt) {
		return 0, fmt.Errorf("%w: %s expired at %s", ErrCouponExpired, coupon.Code, coupon.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if subtotal < coupon.MinCartTotal {
		return 0, fmt.Errorf("%w: %s requires %d", ErrCouponMinimumNotMet, coupon.Code, coupon.MinCartTotal)
	}
	if coupon.MaxUses > 0 && coupon.UsedCount >= coupon.MaxUses {
		return 0, fmt.Errorf("%w: %s", ErrCouponExhausted, coupon.Code)
	}
	if userID != "" && coupon.MaxUsesPerUser > 0 && coupon.UsesBy(userID) >= coupon.MaxUsesPerUser {
		return 0, fmt.Errorf("%w: %s", ErrCouponUserLimitReached, coupon.Code)
	}
	return ComputeDiscount(coupon, subtotal), nil
}

// ComputeDiscount returns the discount coupon yields on subtotal, clamped to [0, subtotal].
// Percent discounts round half up to the nearest minor unit.
func ComputeDiscount(coupon domain.Coupon, subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	var discount int64
	switch coupon.Type {
	case domain.CouponTypePercent:
		percent := coupon.Value
		if percent > 100 {
			percent = 100
		}
		if percent > 0 {
			discount = (subtotal*percent + 50) / 100
		}
	case domain.CouponTypeFixed:
		discount = coupon.Value
	}
	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		return subtotal
	}
	return discount
}
