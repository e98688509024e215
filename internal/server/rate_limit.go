package server

import (
	"math"
	"net/netip"
	"sync"
	"time"
)

// Pre-parse admission control: token buckets applied at three levels
// before any bytes are parsed. A query must pass all of them.
//
//   - global: the server-wide budget
//   - prefix: per network prefix (/24 for IPv4, /64 for IPv6)
//   - ip: per source address
//
// Token buckets allow short bursts while bounding the average rate.

// RateLimitSettings configures the three limiter levels. A rate or
// burst of zero disables that level.
type RateLimitSettings struct {
	CleanupSeconds   float64
	MaxIPEntries     int
	MaxPrefixEntries int
	GlobalQPS        float64
	GlobalBurst      int
	PrefixQPS        float64
	PrefixBurst      int
	IPQPS            float64
	IPBurst          int
}

// RateLimiter combines the global, prefix and per-IP token buckets.
type RateLimiter struct {
	global *tokenBuckets
	prefix *tokenBuckets
	ip     *tokenBuckets
}

// NewRateLimiter creates a RateLimiter from the provided settings.
func NewRateLimiter(s RateLimitSettings) *RateLimiter {
	cleanup := time.Duration(math.Max(0, s.CleanupSeconds) * float64(time.Second))
	if cleanup <= 0 {
		cleanup = 60 * time.Second
	}
	return &RateLimiter{
		global: newTokenBuckets(s.GlobalQPS, s.GlobalBurst, cleanup, 1),
		prefix: newTokenBuckets(s.PrefixQPS, s.PrefixBurst, cleanup, s.MaxPrefixEntries),
		ip:     newTokenBuckets(s.IPQPS, s.IPBurst, cleanup, s.MaxIPEntries),
	}
}

// Allow reports whether a query from ip passes all three levels.
// Checks run global first so a saturated server rejects cheaply.
func (r *RateLimiter) Allow(ip netip.Addr) bool {
	if r == nil {
		return true
	}
	if !r.global.allow("*") {
		return false
	}
	if !r.prefix.allow(prefixKey(ip)) {
		return false
	}
	return r.ip.allow(ip.String())
}

// prefixKey maps an address to its rate-limit aggregation prefix.
func prefixKey(ip netip.Addr) string {
	ip = ip.Unmap()
	bits := 24
	if ip.Is6() && !ip.Is4In6() {
		bits = 64
	}
	pfx, err := ip.Prefix(bits)
	if err != nil {
		return ip.String()
	}
	return pfx.String()
}

// tokenBuckets tracks one token bucket per key.
type tokenBuckets struct {
	rate    float64
	burst   float64
	cleanup time.Duration
	maxKeys int

	mu          sync.Mutex
	lastCleanup time.Time
	lastUpdate  map[string]time.Time
	tokens      map[string]float64
}

func newTokenBuckets(rate float64, burst int, cleanup time.Duration, maxKeys int) *tokenBuckets {
	if maxKeys <= 0 {
		maxKeys = 1
	}
	return &tokenBuckets{
		rate:        rate,
		burst:       float64(burst),
		cleanup:     cleanup,
		maxKeys:     maxKeys,
		lastCleanup: time.Now(),
		lastUpdate:  map[string]time.Time{},
		tokens:      map[string]float64{},
	}
}

// allow consumes one token for key if available. A rate or burst <= 0
// disables the bucket entirely.
func (b *tokenBuckets) allow(key string) bool {
	if b == nil || b.rate <= 0 || b.burst <= 0 {
		return true
	}

	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastCleanup) > b.cleanup {
		b.cleanupLocked(now)
	}

	last, exists := b.lastUpdate[key]
	if !exists {
		if len(b.lastUpdate) >= b.maxKeys {
			b.cleanupLocked(now)
			if len(b.lastUpdate) >= b.maxKeys {
				// Still at capacity: new sources are refused rather
				// than evicting active ones.
				return false
			}
		}
		b.lastUpdate[key] = now
		b.tokens[key] = b.burst - 1
		return true
	}

	tokens := b.tokens[key]
	if elapsed := now.Sub(last).Seconds(); elapsed > 0 {
		tokens = math.Min(b.burst, tokens+elapsed*b.rate)
	}
	b.lastUpdate[key] = now

	if tokens >= 1 {
		b.tokens[key] = tokens - 1
		return true
	}
	b.tokens[key] = tokens
	return false
}

// cleanupLocked drops keys idle longer than the cleanup interval.
// Callers hold b.mu.
func (b *tokenBuckets) cleanupLocked(now time.Time) {
	stale := now.Add(-b.cleanup)
	for k, last := range b.lastUpdate {
		if !last.After(stale) {
			delete(b.lastUpdate, k)
			delete(b.tokens, k)
		}
	}
	b.lastCleanup = now
}
