package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterTable keeps one token bucket per client key and evicts
// buckets that have been idle longer than idleAfter.
type limiterTable struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	idleAfter time.Duration
	now       func() time.Time
	buckets   map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterTable(rps, burst int, idleAfter time.Duration) *limiterTable {
	return &limiterTable{
		rps:       rate.Limit(rps),
		burst:     burst,
		idleAfter: idleAfter,
		now:       time.Now,
		buckets:   make(map[string]*clientBucket),
	}
}

// take reserves one request slot for key, creating the bucket on first
// sight.
func (t *limiterTable) take(key string) bool {
	t.mu.Lock()
	b, ok := t.buckets[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.buckets[key] = b
	}
	b.lastSeen = t.now()
	t.mu.Unlock()

	return b.limiter.Allow()
}

// sweep drops buckets idle past the threshold and reports how many
// were removed.
func (t *limiterTable) sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	cutoff := t.now().Add(-t.idleAfter)
	for key, b := range t.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(t.buckets, key)
			removed++
		}
	}
	return removed
}

// RateLimiter enforces per-client-IP token-bucket rate limiting ahead
// of authentication, so unauthenticated endpoints (register, nonce,
// auth) are covered too. rps is the steady-state requests per second,
// burst the bucket depth.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	table := newLimiterTable(rps, burst, 10*time.Minute)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			table.sweep()
		}
	}()

	return func(c *gin.Context) {
		if !table.take(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate_limited",
			})
			return
		}
		c.Next()
	}
}
