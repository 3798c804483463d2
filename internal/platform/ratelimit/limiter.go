// Package ratelimit implements fixed-window request limiting keyed by caller (for example a
// client IP) with in-memory and Firestore-backed counters.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"time"
)

const anonymousKey = "anonymous"

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds renders RetryAfter as whole seconds rounded up, never below one.
func (d Decision) RetryAfterSeconds() int {
	seconds := int(math.Ceil(d.RetryAfter.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Policy configures a fixed window limiter.
type Policy struct {
	Max    int
	Window time.Duration
}

func (p Policy) enabled() bool {
	return p.Max > 0 && p.Window > 0
}

func (p Policy) allowAll(now time.Time) Decision {
	return Decision{Allowed: true, Limit: p.Max, Remaining: p.Max, ResetAt: now}
}

// hit evaluates one request against a counter that resets at resetAt.
func (p Policy) hit(count int, resetAt, now time.Time) (int, time.Time, Decision) {
	if resetAt.IsZero() || !now.Before(resetAt) {
		count = 0
		resetAt = now.Add(p.Window)
	}
	if count >= p.Max {
		return count, resetAt, Decision{
			Allowed:    false,
			Limit:      p.Max,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}
	count++
	return count, resetAt, Decision{
		Allowed:   true,
		Limit:     p.Max,
		Remaining: p.Max - count,
		ResetAt:   resetAt,
	}
}

func normaliseKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return anonymousKey
	}
	return key
}

// documentID maps arbitrary keys (IPv6 addresses contain characters Firestore ids may not) onto a
// stable identifier.
func documentID(scope, key string) string {
	sum := sha256.Sum256([]byte(scope + "|" + key))
	return hex.EncodeToString(sum[:16])
}
