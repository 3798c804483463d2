// Package httpx renders the JSON error envelope shared by every route:
//
//	{"error": "OUT_OF_STOCK", "message": "...", "status": 409, "request_id": "...", "trace_id": "..."}
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/grocery-storefront/api/internal/platform/requestctx"
	"github.com/grocery-storefront/api/internal/platform/textutil"
)

// Error kinds reported in the "error" field.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeProductNotFound     = "PRODUCT_NOT_FOUND"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeOutOfStock          = "OUT_OF_STOCK"
	CodeRateLimited         = "RATE_LIMITED"
	CodeTransactionConflict = "TRANSACTION_CONFLICT"
	CodeInternal            = "INTERNAL_SERVER_ERROR"

	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeForbidden        = "INSUFFICIENT_ROLE"
	CodeRouteNotFound    = "ROUTE_NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeNotImplemented   = "NOT_IMPLEMENTED"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

const (
	codeLimit      = 64
	messageLimit   = 512
	requestIDLimit = 80
	traceIDLimit   = 64
)

var statusCodes = map[int]string{
	http.StatusBadRequest:            CodeValidation,
	http.StatusUnauthorized:          CodeUnauthenticated,
	http.StatusForbidden:             CodeForbidden,
	http.StatusNotFound:              CodeRouteNotFound,
	http.StatusMethodNotAllowed:      CodeMethodNotAllowed,
	http.StatusRequestEntityTooLarge: CodeValidation,
	http.StatusTooManyRequests:       CodeRateLimited,
	http.StatusNotImplemented:        CodeNotImplemented,
	http.StatusServiceUnavailable:    CodeUnavailable,
}

var statusMessages = map[int]string{
	http.StatusBadRequest:            "İstek geçersiz.",
	http.StatusUnauthorized:          "Oturum açmanız gerekiyor.",
	http.StatusForbidden:             "Bu işlem için yetkiniz yok.",
	http.StatusNotFound:              "Kaynak bulunamadı.",
	http.StatusMethodNotAllowed:      "Bu yöntem desteklenmiyor.",
	http.StatusRequestEntityTooLarge: "İstek gövdesi çok büyük.",
	http.StatusTooManyRequests:       "Çok fazla istek gönderildi. Lütfen daha sonra tekrar deneyin.",
	http.StatusNotImplemented:        "Bu özellik henüz kullanılamıyor.",
	http.StatusServiceUnavailable:    "Servis geçici olarak kullanılamıyor.",
}

// InternalMessage is the message of every unclassified 500.
const InternalMessage = "Beklenmeyen bir hata oluştu."

// Error is one error response.
type Error struct {
	Code      string
	Message   string
	Status    int
	Retryable bool
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError builds an error response. Codes are normalised to the uppercase kind style and an
// empty code or message falls back to the default for status.
func NewError(code, message string, status int) Error {
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	message = textutil.SingleLine(message, messageLimit)
	if message == "" {
		message = DefaultMessage(status)
	}
	return Error{
		Code:    normaliseCode(code, status),
		Message: message,
		Status:  status,
	}
}

// DefaultMessage returns the user facing text used when a caller supplies none.
func DefaultMessage(status int) string {
	if message, ok := statusMessages[status]; ok {
		return message
	}
	return InternalMessage
}

func normaliseCode(code string, status int) string {
	code = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		case r == '-' || r == '.' || r == ' ':
			return '_'
		default:
			return -1
		}
	}, strings.TrimSpace(code))
	code = strings.Trim(textutil.Truncate(code, codeLimit), "_")
	if code != "" {
		return code
	}
	if fallback, ok := statusCodes[status]; ok {
		return fallback
	}
	return CodeInternal
}

// WithRetryable marks the failure as safe to retry unchanged.
func (e Error) WithRetryable() Error {
	e.Retryable = true
	return e
}

// WithRequestID overrides the request id taken from the chi middleware.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = textutil.SingleLine(id, requestIDLimit)
	return e
}

// WithTraceID overrides the trace id taken from the request context.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = textutil.SingleLine(id, traceIDLimit)
	return e
}

// WithDetails attaches extra fields. Reserved envelope keys cannot be overwritten.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

func (e Error) payload(ctx context.Context) map[string]any {
	payload := make(map[string]any, len(e.Details)+6)
	for k, v := range e.Details {
		payload[k] = v
	}
	payload["error"] = e.Code
	payload["message"] = e.Message
	payload["status"] = e.Status
	if e.Retryable {
		payload["retryable"] = true
	}

	requestID := e.RequestID
	if requestID == "" {
		requestID = textutil.SingleLine(middleware.GetReqID(ctx), requestIDLimit)
	}
	if requestID != "" {
		payload["request_id"] = requestID
	}
	traceID := e.TraceID
	if traceID == "" {
		traceID = textutil.SingleLine(requestctx.TraceID(ctx), traceIDLimit)
	}
	if traceID != "" {
		payload["trace_id"] = traceID
	}
	return payload
}

// WriteError writes err as JSON. Values built without NewError are normalised the same way.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status < 400 || err.Status > 599 || err.Code == "" || err.Message == "" {
		normalised := NewError(err.Code, err.Message, err.Status)
		err.Code, err.Message, err.Status = normalised.Code, normalised.Message, normalised.Status
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(err.payload(ctx))
}
