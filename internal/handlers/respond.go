package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/platform/auth"
	"github.com/grocery-storefront/api/internal/platform/httpx"
	"github.com/grocery-storefront/api/internal/platform/pagination"
	"github.com/grocery-storefront/api/internal/platform/requestctx"
	"github.com/grocery-storefront/api/internal/repositories"
	"github.com/grocery-storefront/api/internal/services"
)

const (
	maxJSONBodySize = 64 * 1024

	codeValidation  = httpx.CodeValidation
	codeNotFound    = httpx.CodeOrderNotFound
	codeInternal    = httpx.CodeInternal
	codeUnavailable = httpx.CodeUnavailable

	internalErrorMessage = httpx.InternalMessage
)

// validationMessages gives every input sentinel a fixed user facing message. The wrapped detail
// is logged instead of returned.
var validationMessages = []struct {
	err     error
	message string
}{
	{err: services.ErrOrderInvalidStatus, message: "Geçersiz sipariş durumu."},
	{err: services.ErrOrderInvalidTransition, message: "Sipariş mevcut durumundan bu duruma geçirilemez."},
	{err: services.ErrCouponInvalidInput, message: "Kupon bilgileri geçersiz."},
	{err: services.ErrAnalyticsInvalidRange, message: "Başlangıç tarihi bitiş tarihinden sonra olamaz."},
	{err: services.ErrOrderInvalidInput, message: "İstek parametreleri geçersiz."},
}

var errBodyTooLarge = errors.New("request body too large")

type listMetaPayload struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

type listResponse[T any] struct {
	Items []T             `json:"items"`
	Meta  listMetaPayload `json:"meta"`
}

func newListResponse[S any, T any](page domain.Page[S], build func(S) T) listResponse[T] {
	items := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, build(item))
	}
	return listResponse[T]{
		Items: items,
		Meta:  listMetaPayload{Page: page.Page, Limit: page.Limit, Total: page.Total},
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// decodeJSONBody reads a bounded body into dst, writing a 400 on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxJSONBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "İstek gövdesi çok büyük.", http.StatusRequestEntityTooLarge))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "İstek gövdesi okunamadı.", http.StatusBadRequest))
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "İstek gövdesi boş olamaz.", http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "Geçersiz JSON gövdesi.", http.StatusBadRequest))
		return false
	}
	return true
}

// parsePageParams reads page and limit, writing a 400 when either is not an integer. Missing
// values are left zero for the service defaults.
func parsePageParams(w http.ResponseWriter, r *http.Request) (domain.PageRequest, bool) {
	params, err := pagination.FromRequest(r)
	if err != nil {
		writeQueryParamError(r.Context(), w, err)
		return domain.PageRequest{}, false
	}
	return domain.PageRequest{Page: params.Page, Limit: params.Limit}, true
}

func writeQueryParamError(ctx context.Context, w http.ResponseWriter, err error) {
	var paramErr *pagination.ParamError
	if !errors.As(err, &paramErr) {
		httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "", http.StatusBadRequest))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError(codeValidation, paramErr.Name+" bir tam sayı olmalıdır.", http.StatusBadRequest).
		WithDetails(map[string]any{"field": paramErr.Name}))
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnauthenticated, "", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	value := formatTime(*t)
	return &value
}

// writeServiceError maps service sentinels onto the shared error envelope. Anything unknown is
// logged and reported as a generic 500.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if orderErr, ok := services.AsOrderError(err); ok {
		writeOrderError(ctx, w, orderErr)
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError(codeNotFound, "Sipariş bulunamadı.", http.StatusNotFound))
		return
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("COUPON_NOT_FOUND", "Kupon bulunamadı.", http.StatusNotFound))
		return
	case errors.Is(err, services.ErrCouponConflict):
		httpx.WriteError(ctx, w, httpx.NewError("COUPON_CONFLICT", "Bu kupon kodu zaten mevcut.", http.StatusConflict))
		return
	case repositories.IsUnavailable(err), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError(codeUnavailable, "", http.StatusServiceUnavailable).WithRetryable())
		return
	}
	for _, entry := range validationMessages {
		if errors.Is(err, entry.err) {
			requestctx.Logger(ctx).Debug("request rejected", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError(codeValidation, entry.message, http.StatusBadRequest))
			return
		}
	}

	requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError(codeInternal, internalErrorMessage, http.StatusInternalServerError))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, orderErr *services.OrderError) {
	status := orderErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	message := orderErr.Message
	if strings.TrimSpace(message) == "" {
		message = internalErrorMessage
	}
	apiErr := httpx.NewError(string(orderErr.Kind), message, status)
	if orderErr.Retryable() {
		apiErr = apiErr.WithRetryable()
	}
	httpx.WriteError(ctx, w, apiErr)
}
