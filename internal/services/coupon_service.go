package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

// CouponServiceDeps bundles the collaborators of the coupon admin service.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type couponService struct {
	repo   repositories.CouponRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewCouponService constructs the coupon admin service.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: coupon repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &couponService{
		repo:   deps.Coupons,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

func (s *couponService) CreateCoupon(ctx context.Context, input CouponInput) (Coupon, error) {
	now := s.clock()
	coupon := domain.Coupon{
		Code:      domain.NormalizeCouponCode(input.Code),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyCouponInput(&coupon, input)
	if err := validateCoupon(coupon); err != nil {
		return Coupon{}, err
	}
	if err := s.repo.Insert(ctx, coupon); err != nil {
		return Coupon{}, mapCouponRepositoryError(err)
	}
	s.logger(ctx, "coupon.created", map[string]any{"code": coupon.Code})
	return coupon, nil
}

// UpdateCoupon replaces the definition of an existing coupon. Usage counters are preserved.
func (s *couponService) UpdateCoupon(ctx context.Context, code string, input CouponInput) (Coupon, error) {
	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return Coupon{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}
	if incoming := domain.NormalizeCouponCode(input.Code); incoming != "" && incoming != code {
		return Coupon{}, fmt.Errorf("%w: code cannot be changed", ErrCouponInvalidInput)
	}

	updated, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return Coupon{}, mapCouponRepositoryError(err)
	}
	applyCouponInput(&updated, input)
	updated.Code = code
	updated.UpdatedAt = s.clock()
	if err := validateCoupon(updated); err != nil {
		return Coupon{}, err
	}
	if err := s.repo.Update(ctx, updated); err != nil {
		return Coupon{}, mapCouponRepositoryError(err)
	}
	s.logger(ctx, "coupon.updated", map[string]any{"code": code})
	return updated, nil
}

// DeactivateCoupon soft deletes the coupon by clearing IsActive.
func (s *couponService) DeactivateCoupon(ctx context.Context, code string) (Coupon, error) {
	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return Coupon{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return Coupon{}, mapCouponRepositoryError(err)
	}
	coupon.IsActive = false
	coupon.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, coupon); err != nil {
		return Coupon{}, mapCouponRepositoryError(err)
	}
	s.logger(ctx, "coupon.deactivated", map[string]any{"code": code})
	return coupon, nil
}

func (s *couponService) ListCoupons(ctx context.Context, query CouponListQuery) (domain.Page[Coupon], error) {
	page, err := s.repo.List(ctx, repositories.CouponListFilter{
		IncludeInactive: query.IncludeInactive,
		Page:            normalizePage(query.Page),
	})
	if err != nil {
		return domain.Page[Coupon]{}, mapCouponRepositoryError(err)
	}
	return page, nil
}

func applyCouponInput(coupon *domain.Coupon, input CouponInput) {
	coupon.Type = domain.CouponType(strings.ToLower(strings.TrimSpace(input.Type)))
	coupon.Value = input.Value
	coupon.MinCartTotal = input.MinCartTotal
	coupon.MaxUses = input.MaxUses
	coupon.MaxUsesPerUser = input.MaxUsesPerUser
	coupon.StartsAt = utcPtr(input.StartsAt)
	coupon.ExpiresAt = utcPtr(input.ExpiresAt)
	if input.IsActive != nil {
		coupon.IsActive = *input.IsActive
	}
}

func validateCoupon(coupon domain.Coupon) error {
	var problems []string
	if coupon.Code == "" {
		problems = append(problems, "code is required")
	} else if len(coupon.Code) > maxCouponCodeLength {
		problems = append(problems, fmt.Sprintf("code exceeds %d characters", maxCouponCodeLength))
	}
	switch coupon.Type {
	case domain.CouponTypePercent:
		if coupon.Value > 100 {
			problems = append(problems, "percent value must not exceed 100")
		}
	case domain.CouponTypeFixed:
	default:
		problems = append(problems, "type must be percent or fixed")
	}
	if coupon.Value <= 0 {
		problems = append(problems, "value must be positive")
	}
	if coupon.MinCartTotal < 0 || coupon.MaxUses < 0 || coupon.MaxUsesPerUser < 0 {
		problems = append(problems, "limits must not be negative")
	}
	if coupon.StartsAt != nil && coupon.ExpiresAt != nil && coupon.StartsAt.After(*coupon.ExpiresAt) {
		problems = append(problems, "startsAt must not be after expiresAt")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrCouponInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func mapCouponRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrCouponNotFound, err)
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrCouponConflict, err)
	}
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
