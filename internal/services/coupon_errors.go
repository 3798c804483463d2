package services

import "errors"

var (
	// ErrCouponNotFound indicates no coupon exists for the code.
	ErrCouponNotFound = errors.New("coupon: not found")
	// ErrCouponInactive indicates the coupon was deactivated.
	ErrCouponInactive = errors.New("coupon: inactive")
	// ErrCouponNotStarted indicates the coupon window has not opened yet.
	ErrCouponNotStarted = errors.New("coupon: not started")
	// ErrCouponExpired indicates the coupon window has closed.
	ErrCouponExpired = errors.New("coupon: expired")
	// ErrCouponMinimumNotMet indicates the subtotal is below the coupon minimum.
	ErrCouponMinimumNotMet = errors.New("coupon: minimum cart total not met")
	// ErrCouponExhausted indicates the global usage limit was reached.
	ErrCouponExhausted = errors.New("coupon: usage limit reached")
	// ErrCouponUserLimitReached indicates the caller used the coupon the maximum number of times.
	ErrCouponUserLimitReached = errors.New("coupon: per-user usage limit reached")
	// ErrCouponInvalidInput indicates an invalid admin coupon definition.
	ErrCouponInvalidInput = errors.New("coupon: invalid input")
	// ErrCouponConflict indicates a coupon with the same code already exists.
	ErrCouponConflict = errors.New("coupon: already exists")
)
