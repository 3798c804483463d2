package firestore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/grocery-storefront/api/internal/platform/config"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		code codes.Code
		want ErrorKind
	}{
		{codes.NotFound, KindNotFound},
		{codes.AlreadyExists, KindConflict},
		{codes.Aborted, KindConflict},
		{codes.FailedPrecondition, KindConflict},
		{codes.Unavailable, KindUnavailable},
		{codes.ResourceExhausted, KindUnavailable},
		{codes.InvalidArgument, KindInvalidArgument},
		{codes.PermissionDenied, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.code.String(), func(t *testing.T) {
			err := WrapError("products.get", status.Error(tc.code, "boom"))
			var classified *Error
			if !errors.As(err, &classified) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if classified.Kind != tc.want || classified.Code != tc.code {
				t.Fatalf("expected %s/%s, got %s/%s", tc.want, tc.code, classified.Kind, classified.Code)
			}
			if !strings.HasPrefix(err.Error(), "products.get: ") {
				t.Fatalf("expected op prefix, got %q", err.Error())
			}
		})
	}
}

func TestWrapErrorPassesContextErrorsThrough(t *testing.T) {
	if err := WrapError("tx", status.Error(codes.Canceled, "gone")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("tx", status.Error(codes.DeadlineExceeded, "slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if err := WrapError("tx", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestIsInvalidArgument(t *testing.T) {
	if !IsInvalidArgument(WrapError("get", status.Error(codes.InvalidArgument, "bad id"))) {
		t.Fatal("expected invalid argument")
	}
	if IsInvalidArgument(errors.New("plain")) {
		t.Fatal("plain errors are not classified")
	}
}

func TestValidDocumentID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{id: "p1", want: true},
		{id: "ürün-ä", want: true},
		{id: "___", want: true},
		{id: strings.Repeat("a", 1500), want: true},
		{id: "", want: false},
		{id: ".", want: false},
		{id: "..", want: false},
		{id: "__x__", want: false},
		{id: "____", want: false},
		{id: "a/b", want: false},
		{id: strings.Repeat("a", 1501), want: false},
		{id: string([]byte{0xff, 0xfe, 'a'}), want: false},
	}
	for _, tc := range cases {
		if got := ValidDocumentID(tc.id); got != tc.want {
			t.Errorf("ValidDocumentID(%.20q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestBaseRepositoryGetTreatsUnstorableIDAsMissing(t *testing.T) {
	provider := NewProvider(config.FirestoreConfig{ProjectID: "market"})
	repo := NewBaseRepository[map[string]any](provider, "products", nil)

	_, err := repo.Get(context.Background(), "__x__")
	var classified *Error
	if !errors.As(err, &classified) || !classified.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := repo.DocumentRef(context.Background(), ".."); !IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument for document ref, got %v", err)
	}
}
