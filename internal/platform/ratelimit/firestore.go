package ratelimit

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection  = "rate_limits"
	defaultMaxAttempts = 5
)

// FirestoreOption customises the FirestoreLimiter behaviour.
type FirestoreOption func(*FirestoreLimiter)

// WithCollection overrides the collection holding window documents.
func WithCollection(name string) FirestoreOption {
	return func(l *FirestoreLimiter) {
		if name != "" {
			l.collection = name
		}
	}
}

// WithScope namespaces keys so several limiters can share one collection.
func WithScope(scope string) FirestoreOption {
	return func(l *FirestoreLimiter) {
		l.scope = scope
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) FirestoreOption {
	return func(l *FirestoreLimiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// FirestoreLimiter shares windows across instances through one counter document per key.
type FirestoreLimiter struct {
	client      *firestore.Client
	policy      Policy
	collection  string
	scope       string
	maxAttempts int
	clock       func() time.Time
}

type windowDocument struct {
	Key     string    `firestore:"key"`
	Count   int       `firestore:"count"`
	ResetAt time.Time `firestore:"reset_at"`
	// ExpiresAt lets a Firestore TTL policy reap idle windows.
	ExpiresAt time.Time `firestore:"expires_at"`
}

// NewFirestoreLimiter constructs a Firestore-backed fixed window limiter.
func NewFirestoreLimiter(client *firestore.Client, policy Policy, opts ...FirestoreOption) *FirestoreLimiter {
	l := &FirestoreLimiter{
		client:      client,
		policy:      policy,
		collection:  defaultCollection,
		scope:       "default",
		maxAttempts: defaultMaxAttempts,
		clock:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Allow implements Limiter.
func (l *FirestoreLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l == nil || !l.policy.enabled() {
		return Policy{}.allowAll(time.Now()), nil
	}
	if l.client == nil {
		return Decision{}, errors.New("ratelimit: firestore client is nil")
	}

	key = normaliseKey(key)
	ref := l.client.Collection(l.collection).Doc(documentID(l.scope, key))

	var decision Decision
	err := l.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := l.clock().UTC()
		var doc windowDocument
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
		case status.Code(err) == codes.NotFound:
		default:
			return err
		}

		count, resetAt, d := l.policy.hit(doc.Count, doc.ResetAt, now)
		decision = d
		if !d.Allowed && count == doc.Count && resetAt.Equal(doc.ResetAt) {
			return nil
		}
		return tx.Set(ref, windowDocument{
			Key:       key,
			Count:     count,
			ResetAt:   resetAt,
			ExpiresAt: resetAt,
		})
	}, firestore.MaxAttempts(l.maxAttempts))
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}
