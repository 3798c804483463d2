package services

import (
	"errors"
	"fmt"
	"net/http"
)

// OrderErrorKind is the machine readable error code returned to API clients.
type OrderErrorKind string

const (
	OrderErrorValidation      OrderErrorKind = "VALIDATION_ERROR"
	OrderErrorProductNotFound OrderErrorKind = "PRODUCT_NOT_FOUND"
	OrderErrorOrderNotFound   OrderErrorKind = "ORDER_NOT_FOUND"
	OrderErrorOutOfStock      OrderErrorKind = "OUT_OF_STOCK"
	OrderErrorConflict        OrderErrorKind = "TRANSACTION_CONFLICT"
	OrderErrorInternal        OrderErrorKind = "INTERNAL_SERVER_ERROR"
)

var orderErrorStatus = map[OrderErrorKind]int{
	OrderErrorValidation:      http.StatusBadRequest,
	OrderErrorProductNotFound: http.StatusNotFound,
	OrderErrorOrderNotFound:   http.StatusNotFound,
	OrderErrorOutOfStock:      http.StatusConflict,
	OrderErrorConflict:        http.StatusServiceUnavailable,
	OrderErrorInternal:        http.StatusInternalServerError,
}

// OrderError is returned by the checkout path. Message is safe to show to the caller.
type OrderError struct {
	Kind    OrderErrorKind
	Status  int
	Message string
	Err     error
}

func newOrderError(kind OrderErrorKind, message string, err error) *OrderError {
	status, ok := orderErrorStatus[kind]
	if !ok {
		kind, status = OrderErrorInternal, http.StatusInternalServerError
	}
	return &OrderError{Kind: kind, Status: status, Message: message, Err: err}
}

func validationError(format string, args ...any) *OrderError {
	return newOrderError(OrderErrorValidation, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface.
func (e *OrderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause.
func (e *OrderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the caller may resubmit the same request unchanged.
func (e *OrderError) Retryable() bool {
	return e != nil && e.Kind == OrderErrorConflict
}

// AsOrderError extracts an OrderError from err.
func AsOrderError(err error) (*OrderError, bool) {
	var orderErr *OrderError
	if errors.As(err, &orderErr) && orderErr != nil {
		return orderErr, true
	}
	return nil, false
}

var (
	// ErrOrderNotFound indicates the order does not exist or is not visible to the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidStatus indicates an unknown status value.
	ErrOrderInvalidStatus = errors.New("order: invalid status")
	// ErrOrderInvalidTransition indicates the target status is not reachable from the current one.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderInvalidInput indicates malformed query or command input.
	ErrOrderInvalidInput = errors.New("order: invalid input")
)
