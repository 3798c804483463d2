// Package postgres implements repositories.Registry on PostgreSQL through pgx. Stock and coupon
// counters are updated with guarded statements and row locks inside the unit of work.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/grocery-storefront/api/internal/platform/config"
	"github.com/grocery-storefront/api/internal/repositories"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	defaultTxAttempts = 5

	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL backed registry.
type Store struct {
	pool       *pgxpool.Pool
	txAttempts int
	now        func() time.Time
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Store)(nil)

// Option customises the store.
type Option func(*Store)

// WithTxAttempts bounds retries of units of work aborted by serialisation failures or deadlocks.
func WithTxAttempts(attempts int) Option {
	return func(s *Store) {
		if attempts > 0 {
			s.txAttempts = attempts
		}
	}
}

// WithHealthRepository replaces the default pool ping check.
func WithHealthRepository(health repositories.HealthRepository) Option {
	return func(s *Store) {
		if health != nil {
			s.health = health
		}
	}
}

// Open connects to the database described by cfg, applying migrations when enabled.
func Open(ctx context.Context, cfg config.PostgresConfig, opts ...Option) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if cfg.AutoMigrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return New(pool, opts...)
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, opts ...Option) (*Store, error) {
	if pool == nil {
		return nil, errors.New("postgres: pool is nil")
	}
	s := &Store{pool: pool, txAttempts: defaultTxAttempts, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.health == nil {
		health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
			{Name: "postgres", Check: pool.Ping},
		})
		if err != nil {
			return nil, err
		}
		s.health = health
	}
	return s, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("postgres: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

type txKey struct{}

// RunInTx implements repositories.UnitOfWork. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	var err error
	for attempt := 1; attempt <= s.txAttempts; attempt++ {
		err = s.runOnce(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return wrapError("postgres.transaction", err)
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapError("postgres.begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapError("postgres.commit", err)
	}
	return nil
}

func (s *Store) querier(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// Close releases the pool.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Store) Products() repositories.ProductRepository { return productRepository{s} }

func (s *Store) Coupons() repositories.CouponRepository { return couponRepository{s} }

func (s *Store) Orders() repositories.OrderRepository { return orderRepository{s} }

func (s *Store) Notifications() repositories.NotificationRepository {
	return notificationRepository{s}
}

func (s *Store) Health() repositories.HealthRepository { return s.health }

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}

// wrapError maps pgx failures onto repositories.StoreError. Errors that already carry repository
// semantics, and context cancellations, are returned unchanged.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repositories.NewNotFoundError(op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation, sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return repositories.NewConflictError(op, err)
		}
		return &repositories.StoreError{Op: op, Err: err}
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return repositories.NewUnavailableError(op, err)
	}
	return &repositories.StoreError{Op: op, Err: err}
}
