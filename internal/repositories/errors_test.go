package repositories

import (
	"errors"
	"fmt"
	"testing"
)

func TestCheckCouponUsage(t *testing.T) {
	cases := []struct {
		name   string
		usage  CouponUsage
		userID string
		want   CouponErrorCode
	}{
		{name: "unlimited", usage: CouponUsage{Code: "A", UsedCount: 1000}, userID: "u1"},
		{name: "global limit reached", usage: CouponUsage{Code: "A", MaxUses: 3, UsedCount: 3}, userID: "u1", want: CouponErrorExhausted},
		{name: "below global limit", usage: CouponUsage{Code: "A", MaxUses: 3, UsedCount: 2}, userID: "u1"},
		{name: "per user limit reached", usage: CouponUsage{Code: "A", MaxUsesPerUser: 1, UserCount: 1}, userID: "u1", want: CouponErrorUserExhausted},
		{name: "guest skips per user limit", usage: CouponUsage{Code: "A", MaxUsesPerUser: 1, UserCount: 1}},
		{name: "guest still bound by global limit", usage: CouponUsage{Code: "A", MaxUses: 1, UsedCount: 1}, want: CouponErrorExhausted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckCouponUsage(tc.usage, tc.userID)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			var couponErr *CouponError
			if !errors.As(err, &couponErr) {
				t.Fatalf("expected CouponError, got %v", err)
			}
			if couponErr.Code != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, couponErr.Code)
			}
		})
	}
}

func TestStoreErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", NewNotFoundError("orders.get", errors.New("missing")))
	if !IsNotFound(wrapped) {
		t.Fatal("expected wrapped not found error to be detected")
	}
	if IsConflict(wrapped) || IsUnavailable(wrapped) {
		t.Fatal("unexpected classification")
	}
	if !IsConflict(NewConflictError("coupons.insert", nil)) {
		t.Fatal("expected conflict")
	}
	if IsNotFound(errors.New("plain")) {
		t.Fatal("plain errors are not repository errors")
	}
}
