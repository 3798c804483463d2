package repositories

import (
	"errors"
	"fmt"
)

// ErrorKind categorises StoreError values.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindNotFound
	ErrorKindConflict
	ErrorKindUnavailable
)

// StoreError is the RepositoryError returned by backends that do not carry their own error type.
type StoreError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

var _ RepositoryError = (*StoreError)(nil)

// NewNotFoundError reports a missing record.
func NewNotFoundError(op string, err error) *StoreError {
	return &StoreError{Op: op, Kind: ErrorKindNotFound, Err: err}
}

// NewConflictError reports a write that collided with existing state.
func NewConflictError(op string, err error) *StoreError {
	return &StoreError{Op: op, Kind: ErrorKindConflict, Err: err}
}

// NewUnavailableError reports a transient backend failure.
func NewUnavailableError(op string, err error) *StoreError {
	return &StoreError{Op: op, Kind: ErrorKindUnavailable, Err: err}
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool {
	return e != nil && e.Kind == ErrorKindNotFound
}

func (e *StoreError) IsConflict() bool {
	return e != nil && e.Kind == ErrorKindConflict
}

func (e *StoreError) IsUnavailable() bool {
	return e != nil && e.Kind == ErrorKindUnavailable
}

// IsNotFound reports whether err is a RepositoryError for a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a RepositoryError for a conflicting write.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err is a RepositoryError for a transient failure.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// StockErrorCode enumerates failure reasons for stock operations.
type StockErrorCode string

const (
	// StockErrorInsufficient indicates the requested quantity exceeds the stock on hand.
	StockErrorInsufficient StockErrorCode = "insufficient_stock"
	// StockErrorInvalidQuantity indicates a non-positive quantity.
	StockErrorInvalidQuantity StockErrorCode = "invalid_quantity"
)

// StockError wraps stock specific failures with machine readable codes.
type StockError struct {
	Op        string
	Code      StockErrorCode
	ProductID string
	Requested int
	Available int
	Err       error
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, productID string, requested, available int) *StockError {
	return &StockError{Code: code, ProductID: productID, Requested: requested, Available: available}
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: product %s requested %d available %d", e.Code, e.ProductID, e.Requested, e.Available)
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CouponErrorCode enumerates failure reasons for coupon usage updates.
type CouponErrorCode string

const (
	// CouponErrorExhausted indicates maxUses has been reached.
	CouponErrorExhausted CouponErrorCode = "coupon_exhausted"
	// CouponErrorUserExhausted indicates maxUsesPerUser has been reached for the caller.
	CouponErrorUserExhausted CouponErrorCode = "coupon_user_exhausted"
)

// CouponError wraps coupon usage failures with machine readable codes.
type CouponError struct {
	Op      string
	Code    CouponErrorCode
	Message string
	Err     error
}

// NewCouponError constructs a typed coupon error.
func NewCouponError(code CouponErrorCode, message string) *CouponError {
	if message == "" {
		message = string(code)
	}
	return &CouponError{Code: code, Message: message}
}

// Error implements the error interface.
func (e *CouponError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *CouponError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CheckCouponUsage returns the CouponError that recording one more use by userID would cause.
// Backends call it on the transactional read before incrementing counters.
func CheckCouponUsage(coupon CouponUsage, userID string) error {
	if coupon.MaxUses > 0 && coupon.UsedCount >= coupon.MaxUses {
		return NewCouponError(CouponErrorExhausted, fmt.Sprintf("coupon %s reached its usage limit", coupon.Code))
	}
	if userID != "" && coupon.MaxUsesPerUser > 0 && coupon.UserCount >= coupon.MaxUsesPerUser {
		return NewCouponError(CouponErrorUserExhausted, fmt.Sprintf("coupon %s reached its per-user limit", coupon.Code))
	}
	return nil
}

// CouponUsage is the counter state CheckCouponUsage evaluates.
type CouponUsage struct {
	Code           string
	MaxUses        int
	MaxUsesPerUser int
	UsedCount      int
	UserCount      int
}
