package firestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// TxFunc is executed within a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts overrides the retry attempts for a transaction.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout sets a timeout for the transaction context.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// RunTransaction executes fn within a transaction on the provided client.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	txnCtx := ctx
	var cancel context.CancelFunc
	if cfg.timeout > 0 {
		deadline, hasDeadline := ctx.Deadline()
		if !hasDeadline || time.Until(deadline) > cfg.timeout {
			txnCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
		}
	}
	if cancel != nil {
		defer cancel()
	}

	firestoreOpts := make([]firestore.TransactionOption, 0, 1)
	if cfg.attempts > 0 {
		firestoreOpts = append(firestoreOpts, firestore.MaxAttempts(cfg.attempts))
	}

	err := client.RunTransaction(txnCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, firestoreOpts...)

	return WrapError("transaction", err)
}

// Scope tracks one transaction attempt. Firestore rejects reads issued after a write, so
// repositories stage their writes on the scope and the scope applies them once the unit of
// work returns. Staged values are visible to later reads in the same attempt.
type Scope struct {
	tx *firestore.Transaction

	mu     sync.Mutex
	staged map[string]any
	order  []string
	writes map[string]func(*firestore.Transaction) error
}

func newScope(tx *firestore.Transaction) *Scope {
	return &Scope{
		tx:     tx,
		staged: make(map[string]any),
		writes: make(map[string]func(*firestore.Transaction) error),
	}
}

// Tx exposes the underlying transaction for reads.
func (s *Scope) Tx() *firestore.Transaction {
	return s.tx
}

// Staged returns the value most recently staged for doc in this attempt.
func (s *Scope) Staged(doc *firestore.DocumentRef) (any, bool) {
	if s == nil || doc == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.staged[doc.Path]
	return value, ok
}

// Stage records value as the new state of doc and queues write to run at commit. A commit carries
// at most one write per document, so a later Stage for the same document replaces the earlier
// write and must therefore persist the document's full staged state.
func (s *Scope) Stage(doc *firestore.DocumentRef, value any, write func(*firestore.Transaction) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.writes[doc.Path]; !exists {
		s.order = append(s.order, doc.Path)
	}
	s.staged[doc.Path] = value
	s.writes[doc.Path] = write
}

func (s *Scope) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, path := range s.order {
		if err := s.writes[path](s.tx); err != nil {
			return err
		}
	}
	s.order = nil
	s.writes = make(map[string]func(*firestore.Transaction) error)
	return nil
}

type scopeContextKey struct{}

// ScopeFromContext returns the active transaction scope, if any.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	if ctx == nil {
		return nil, false
	}
	scope, ok := ctx.Value(scopeContextKey{}).(*Scope)
	return scope, ok && scope != nil
}

// RunScoped executes fn inside a transaction whose scope is available to repositories through
// ScopeFromContext. Errors returned by fn are passed through unchanged; fn may run more than once
// when Firestore retries a contended commit.
func (p *Provider) RunScoped(ctx context.Context, fn func(ctx context.Context) error, opts ...TxOption) error {
	if _, ok := ScopeFromContext(ctx); ok {
		return fn(ctx)
	}

	var fnErr error
	err := p.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		fnErr = nil
		scope := newScope(tx)
		if err := fn(context.WithValue(txCtx, scopeContextKey{}, scope)); err != nil {
			fnErr = err
			return err
		}
		return scope.flush()
	}, opts...)
	if fnErr != nil {
		return fnErr
	}
	return err
}
