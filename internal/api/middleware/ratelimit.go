package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────────────
// Token Bucket Rate Limiter
// ──────────────────────────────────────────────────────────────────────────────

const (
	evictInterval = 5 * time.Minute  // how often idle buckets are swept
	evictIdleAge  = 10 * time.Minute // buckets untouched this long are dropped
)

// bucket is an in-memory token bucket for one client IP.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// take refills the bucket by elapsed time, then deducts one token.
// Returns false when the bucket is empty.
func (b *bucket) take(rate, burst float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// rateLimiter holds per-IP buckets behind a shared read-write lock.
type rateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64 // maximum token capacity
}

// newRateLimiter creates a limiter allowing rps sustained requests per second
// with the given burst capacity. A burst below the sustained rate is raised to
// it; anything else would throttle steady traffic below rps.
func newRateLimiter(rps int, burst int) *rateLimiter {
	capacity := float64(burst)
	if capacity < float64(rps) {
		capacity = float64(rps)
	}
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		rate:    float64(rps),
		burst:   capacity,
	}
}

// allow reports whether the given key may proceed, creating a full bucket on
// first sight of the key.
func (rl *rateLimiter) allow(key string) bool {
	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()

	if !ok {
		rl.mu.Lock()
		if b, ok = rl.buckets[key]; !ok {
			b = &bucket{tokens: rl.burst, lastRefill: time.Now()}
			rl.buckets[key] = b
		}
		rl.mu.Unlock()
	}
	return b.take(rl.rate, rl.burst)
}

// evictIdle drops buckets that have not been touched since the cutoff, so the
// per-IP map cannot grow without bound.
func (rl *rateLimiter) evictIdle(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.buckets {
		b.mu.Lock()
		idle := b.lastRefill.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(rl.buckets, ip)
		}
	}
}

// RateLimitMiddleware enforces a per-IP token bucket of rps requests per
// second with a burst capacity of max(10, rps). Clients exceeding the limit
// receive 429 Too Many Requests.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	return RateLimitMiddlewareBurst(rps, 10)
}

// RateLimitMiddlewareBurst is RateLimitMiddleware with an explicit burst
// capacity, for routes where the default headroom is too generous or too
// tight.
func RateLimitMiddlewareBurst(rps, burst int) gin.HandlerFunc {
	rl := newRateLimiter(rps, burst)

	go func() {
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()
		for range ticker.C {
			rl.evictIdle(time.Now().Add(-evictIdleAge))
		}
	}()

	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests — please slow down",
			})
			return
		}
		c.Next()
	}
}
