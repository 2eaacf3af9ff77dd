package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a keyed token bucket. Each key gets its own bucket refilled at
// perHour tokens per hour with the given burst.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
	burst int
	now   func() time.Time
}

func New(perHour float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	lim := rate.Inf
	if perHour > 0 {
		lim = rate.Limit(perHour / 3600)
	}
	return &Limiter{m: make(map[string]*rate.Limiter), limit: lim, burst: burst, now: time.Now}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.m[key] = b
	}
	return b
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).AllowN(l.now(), 1)
}

// RetryAfter reports how long key has to wait for its next token; zero
// means a token is available now.
func (l *Limiter) RetryAfter(key string) time.Duration {
	b := l.get(key)
	now := l.now()
	r := b.ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d
}

// Forget drops the bucket for key.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.m, key)
	l.mu.Unlock()
}
