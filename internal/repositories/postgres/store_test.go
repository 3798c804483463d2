package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/grocery-storefront/api/internal/repositories"
)

func TestWrapErrorClassification(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		passthrough bool
	}{
		{name: "no rows", err: pgx.ErrNoRows, notFound: true},
		{name: "unique violation", err: &pgconn.PgError{Code: sqlStateUniqueViolation}, conflict: true},
		{name: "deadlock", err: &pgconn.PgError{Code: sqlStateDeadlockDetected}, conflict: true},
		{name: "cancelled", err: context.Canceled, passthrough: true},
		{name: "stock error", err: repositories.NewStockError(repositories.StockErrorInsufficient, "p", 2, 1), passthrough: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := wrapError("op", tc.err)
			if tc.passthrough {
				if !errors.Is(got, tc.err) {
					t.Fatalf("expected passthrough of %v, got %v", tc.err, got)
				}
				return
			}
			if repositories.IsNotFound(got) != tc.notFound {
				t.Fatalf("IsNotFound = %v, want %v", repositories.IsNotFound(got), tc.notFound)
			}
			if repositories.IsConflict(got) != tc.conflict {
				t.Fatalf("IsConflict = %v, want %v", repositories.IsConflict(got), tc.conflict)
			}
		})
	}

	if wrapError("op", nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestIsRetryableSeesThroughWrapping(t *testing.T) {
	serialization := wrapError("op", &pgconn.PgError{Code: sqlStateSerializationFailure})
	if !isRetryable(fmt.Errorf("commit: %w", serialization)) {
		t.Fatal("expected serialization failure to be retryable")
	}
	if isRetryable(&pgconn.PgError{Code: sqlStateUniqueViolation}) {
		t.Fatal("unique violations are not retryable")
	}
	if isRetryable(errors.New("plain")) {
		t.Fatal("plain errors are not retryable")
	}
}

func TestLimitOrAll(t *testing.T) {
	if limitOrAll(0) != nil || limitOrAll(-1) != nil {
		t.Fatal("expected nil for non-positive limits")
	}
	if got := limitOrAll(25); got == nil || *got != 25 {
		t.Fatalf("unexpected limit %v", got)
	}
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one migration")
	}
}
