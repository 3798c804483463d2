package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps per-key windows in process memory. Counts are not shared between
// instances.
type MemoryLimiter struct {
	policy Policy
	clock  func() time.Time

	mu    sync.Mutex
	store map[string]entry
}

type entry struct {
	count int
	reset time.Time
}

// NewMemoryLimiter constructs an in-memory fixed window limiter. A nil clock uses time.Now.
func NewMemoryLimiter(policy Policy, clock func() time.Time) *MemoryLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLimiter{
		policy: policy,
		clock:  clock,
		store:  make(map[string]entry),
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	if l == nil || !l.policy.enabled() {
		return Policy{}.allowAll(time.Now()), nil
	}
	now := l.clock()
	key = normaliseKey(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.store[key]
	if !ok || !now.Before(current.reset) {
		l.pruneExpiredLocked(now)
	}
	count, reset, decision := l.policy.hit(current.count, current.reset, now)
	l.store[key] = entry{count: count, reset: reset}
	return decision, nil
}

func (l *MemoryLimiter) pruneExpiredLocked(now time.Time) {
	for key, e := range l.store {
		if !now.Before(e.reset) {
			delete(l.store, key)
		}
	}
}
