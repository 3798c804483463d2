package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/grocery-storefront/api/internal/platform/requestctx"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestNewErrorNormalisesCodes(t *testing.T) {
	cases := []struct {
		code   string
		status int
		want   string
	}{
		{code: "route_not_found", status: http.StatusNotFound, want: "ROUTE_NOT_FOUND"},
		{code: "method-not-allowed", status: http.StatusMethodNotAllowed, want: "METHOD_NOT_ALLOWED"},
		{code: CodeOutOfStock, status: http.StatusConflict, want: CodeOutOfStock},
		{code: "", status: http.StatusTooManyRequests, want: CodeRateLimited},
		{code: "  ", status: http.StatusTeapot, want: CodeInternal},
		{code: "ğ", status: http.StatusUnauthorized, want: CodeUnauthenticated},
	}
	for _, tc := range cases {
		if got := NewError(tc.code, "x", tc.status).Code; got != tc.want {
			t.Fatalf("NewError(%q, %d).Code = %q, want %q", tc.code, tc.status, got, tc.want)
		}
	}
}

func TestNewErrorCutsMessagesOnRuneBoundaries(t *testing.T) {
	message := "Ürün bulunamadı: " + strings.Repeat("ş", 600)
	err := NewError(CodeProductNotFound, message, http.StatusNotFound)
	if !utf8.ValidString(err.Message) {
		t.Fatalf("message split a multi-byte rune: %q", err.Message[len(err.Message)-3:])
	}
	if n := utf8.RuneCountInString(err.Message); n != messageLimit {
		t.Fatalf("expected %d runes, got %d", messageLimit, n)
	}
	if got := NewError(CodeValidation, "satır\nsonu", http.StatusBadRequest).Message; got != "satır sonu" {
		t.Fatalf("expected single line message, got %q", got)
	}
}

func TestNewErrorDefaults(t *testing.T) {
	err := NewError("", "", 0)
	if err.Status != http.StatusInternalServerError || err.Code != CodeInternal || err.Message != InternalMessage {
		t.Fatalf("unexpected defaults %+v", err)
	}
	if got := NewError(CodeUnavailable, "", http.StatusServiceUnavailable).Message; got != DefaultMessage(http.StatusServiceUnavailable) {
		t.Fatalf("expected default message, got %q", got)
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "trace-1"})
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, NewError(CodeTransactionConflict, "Lütfen tekrar deneyin.", http.StatusServiceUnavailable).
		WithRetryable().
		WithDetails(map[string]any{"error": "overwritten", "productId": "p1"}))

	if rr.Code != http.StatusServiceUnavailable || rr.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected response %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	body := decode(t, rr)
	if body["error"] != CodeTransactionConflict || body["message"] != "Lütfen tekrar deneyin." || body["status"] != float64(503) {
		t.Fatalf("unexpected envelope %v", body)
	}
	if body["retryable"] != true || body["productId"] != "p1" {
		t.Fatalf("expected retryable and details, got %v", body)
	}
	if body["request_id"] != "req-1" || body["trace_id"] != "trace-1" {
		t.Fatalf("expected ids, got %v", body)
	}
}

func TestWriteErrorNormalisesLiteral(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(context.Background(), rr, Error{Status: http.StatusNotFound})
	body := decode(t, rr)
	if rr.Code != http.StatusNotFound || body["error"] != CodeRouteNotFound || body["message"] != DefaultMessage(http.StatusNotFound) {
		t.Fatalf("unexpected envelope %d %v", rr.Code, body)
	}
	if _, ok := body["retryable"]; ok {
		t.Fatal("retryable must be omitted unless set")
	}
}
