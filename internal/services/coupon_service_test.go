package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories/memory"
)

func newCouponTestService(t *testing.T, store *memory.Store) CouponService {
	t.Helper()
	svc, err := NewCouponService(CouponServiceDeps{
		Coupons: store.Coupons(),
		Clock:   func() time.Time { return checkoutNow },
	})
	if err != nil {
		t.Fatalf("NewCouponService: %v", err)
	}
	return svc
}

func TestCouponLifecycle(t *testing.T) {
	store := memory.New()
	svc := newCouponTestService(t, store)
	ctx := context.Background()

	created, err := svc.CreateCoupon(ctx, CouponInput{Code: " spring ", Type: "Percent", Value: 15, MaxUsesPerUser: 1})
	if err != nil {
		t.Fatalf("CreateCoupon: %v", err)
	}
	if created.Code != "SPRING" || created.Type != domain.CouponTypePercent || !created.IsActive {
		t.Fatalf("unexpected coupon %+v", created)
	}
	if _, err := svc.CreateCoupon(ctx, CouponInput{Code: "SPRING", Type: "fixed", Value: 5}); !errors.Is(err, ErrCouponConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if _, err := store.Coupons().RecordUsage(ctx, "SPRING", "u1", checkoutNow); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	updated, err := svc.UpdateCoupon(ctx, "spring", CouponInput{Type: "fixed", Value: 40, MinCartTotal: 100})
	if err != nil {
		t.Fatalf("UpdateCoupon: %v", err)
	}
	if updated.Type != domain.CouponTypeFixed || updated.Value != 40 || updated.UsedCount != 1 || updated.UsesBy("u1") != 1 {
		t.Fatalf("expected definition replaced and counters kept, got %+v", updated)
	}

	deactivated, err := svc.DeactivateCoupon(ctx, "SPRING")
	if err != nil {
		t.Fatalf("DeactivateCoupon: %v", err)
	}
	if deactivated.IsActive {
		t.Fatal("expected coupon inactive")
	}

	active, err := svc.ListCoupons(ctx, CouponListQuery{})
	if err != nil {
		t.Fatalf("ListCoupons: %v", err)
	}
	if active.Total != 0 {
		t.Fatalf("expected no active coupons, got %d", active.Total)
	}
	all, err := svc.ListCoupons(ctx, CouponListQuery{IncludeInactive: true})
	if err != nil {
		t.Fatalf("ListCoupons: %v", err)
	}
	if all.Total != 1 || all.Items[0].Code != "SPRING" {
		t.Fatalf("expected soft deleted coupon listed, got %+v", all.Items)
	}
}

func TestCouponValidation(t *testing.T) {
	start := checkoutNow
	end := checkoutNow.Add(-time.Hour)
	cases := []struct {
		name  string
		input CouponInput
	}{
		{name: "missing code", input: CouponInput{Type: "fixed", Value: 5}},
		{name: "unknown type", input: CouponInput{Code: "X", Type: "bogo", Value: 5}},
		{name: "zero value", input: CouponInput{Code: "X", Type: "fixed"}},
		{name: "percent over hundred", input: CouponInput{Code: "X", Type: "percent", Value: 101}},
		{name: "negative limit", input: CouponInput{Code: "X", Type: "fixed", Value: 5, MaxUses: -1}},
		{name: "inverted window", input: CouponInput{Code: "X", Type: "fixed", Value: 5, StartsAt: &start, ExpiresAt: &end}},
	}
	svc := newCouponTestService(t, memory.New())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateCoupon(context.Background(), tc.input); !errors.Is(err, ErrCouponInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestCouponUpdateMissingAndRename(t *testing.T) {
	store := memory.New()
	store.PutCoupon(domain.Coupon{Code: "KEEP", Type: domain.CouponTypeFixed, Value: 5, IsActive: true})
	svc := newCouponTestService(t, store)

	if _, err := svc.UpdateCoupon(context.Background(), "NOPE", CouponInput{Type: "fixed", Value: 5}); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.UpdateCoupon(context.Background(), "KEEP", CouponInput{Code: "OTHER", Type: "fixed", Value: 5}); !errors.Is(err, ErrCouponInvalidInput) {
		t.Fatalf("expected rename rejected, got %v", err)
	}
	if _, err := svc.DeactivateCoupon(context.Background(), "NOPE"); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
