package http

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"
)

// ControlLimiter throttles control requests per agent with a token bucket,
// so a stuck client cannot flood the platform with intents for one agent.
type ControlLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int
	now     func() time.Time
}

type bucket struct {
	tokens    float64
	updatedAt time.Time
}

// NewControlLimiter allows rate requests per second per agent, bursting to burst.
func NewControlLimiter(rate float64, burst int) *ControlLimiter {
	return &ControlLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   max(burst, 1),
		now:     time.Now,
	}
}

// Handler enforces the limit for the agent named by the {id} route parameter.
func (l *ControlLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		retryAfter, ok := l.allow(urlParam(r, "id"))
		if !ok {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(retryAfter)))
			writeError(w, http.StatusTooManyRequests, "too many control requests for this agent")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow takes a token for key, or reports how many seconds until one is free.
func (l *ControlLimiter) allow(key string) (retryAfter float64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, exists := l.buckets[key]
	if !exists {
		l.buckets[key] = &bucket{tokens: float64(l.burst) - 1, updatedAt: now}
		return 0, true
	}

	b.tokens = min(b.tokens+now.Sub(b.updatedAt).Seconds()*l.rate, float64(l.burst))
	b.updatedAt = now
	if b.tokens < 1 {
		return (1 - b.tokens) / l.rate, false
	}
	b.tokens--
	return 0, true
}

// Forget drops buckets untouched for longer than idle. Full buckets carry no
// state worth keeping.
func (l *ControlLimiter) Forget(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idle)
	n := 0
	for k, b := range l.buckets {
		if b.updatedAt.Before(cutoff) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}
