package middleware

import (
	"testing"
	"time"
)

// TestRateLimiter_BurstThenDeny drains a fresh bucket to its burst capacity
// and verifies the next request is denied.
func TestRateLimiter_BurstThenDeny(t *testing.T) {
	rl := newRateLimiter(1, 5)

	for i := 0; i < 5; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d within burst capacity was denied", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("request beyond burst capacity was allowed")
	}
}

// TestRateLimiter_BurstFloorsAtRate: a burst smaller than the sustained rate
// is raised to it, so steady traffic at rps is never throttled.
func TestRateLimiter_BurstFloorsAtRate(t *testing.T) {
	rl := newRateLimiter(20, 1)
	if rl.burst != 20 {
		t.Errorf("burst = %v, want raised to rate 20", rl.burst)
	}
}

// TestRateLimiter_KeysAreIndependent: exhausting one IP's bucket must not
// affect another IP.
func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := newRateLimiter(1, 2)

	rl.allow("10.0.0.1")
	rl.allow("10.0.0.1")
	if rl.allow("10.0.0.1") {
		t.Fatal("first key should be exhausted")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("second key should start with a full bucket")
	}
}

// TestRateLimiter_Refills verifies tokens come back as time passes.
func TestRateLimiter_Refills(t *testing.T) {
	rl := newRateLimiter(100, 1)

	key := "10.0.0.3"
	// Raised burst is 100; drain it.
	for rl.allow(key) {
	}
	time.Sleep(50 * time.Millisecond) // 100/s × 50ms ≥ 1 token back
	if !rl.allow(key) {
		t.Error("bucket did not refill after waiting")
	}
}

// TestRateLimiter_EvictIdle drops buckets idle past the cutoff and keeps
// active ones.
func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := newRateLimiter(1, 1)
	rl.allow("stale-ip")
	rl.allow("fresh-ip")

	rl.buckets["stale-ip"].lastRefill = time.Now().Add(-time.Hour)
	rl.evictIdle(time.Now().Add(-time.Minute))

	if _, ok := rl.buckets["stale-ip"]; ok {
		t.Error("idle bucket survived eviction")
	}
	if _, ok := rl.buckets["fresh-ip"]; !ok {
		t.Error("active bucket was evicted")
	}
}
