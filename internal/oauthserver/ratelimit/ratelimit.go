// Package ratelimit bounds self-signed token minting per user (spec §5
// "Rate limiting"): a per-(username, hour_bucket) ceiling, default 100
// tokens/user/hour, purged lazily.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a per-user token-mint ceiling using a token bucket
// refilled evenly over an hour, which is equivalent in steady state to the
// spec's hour-bucket counter while avoiding a thundering reset at bucket
// boundaries.
type Limiter struct {
	mu       sync.Mutex
	perHour  int
	limiters map[string]*entry
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New constructs a Limiter with the given per-user hourly ceiling.
func New(perHour int) *Limiter {
	return &Limiter{perHour: perHour, limiters: map[string]*entry{}}
}

// Allow reports whether username may mint another token now, consuming one
// unit of their budget if so.
func (l *Limiter) Allow(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked()

	e, ok := l.limiters[username]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(time.Hour/time.Duration(l.perHour)), l.perHour)}
		l.limiters[username] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// pruneLocked evicts limiters untouched for over an hour, matching the
// spec's "purged lazily" requirement without a background sweep goroutine.
func (l *Limiter) pruneLocked() {
	cutoff := time.Now().Add(-time.Hour)
	for k, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, k)
		}
	}
}
