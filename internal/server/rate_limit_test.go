package server

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterDisabledByZeroRates(t *testing.T) {
	r := NewRateLimiter(RateLimitSettings{})
	ip := netip.MustParseAddr("192.0.2.1")
	for range 1000 {
		assert.True(t, r.Allow(ip))
	}
}

func TestRateLimiterNilAllowsAll(t *testing.T) {
	var r *RateLimiter
	assert.True(t, r.Allow(netip.MustParseAddr("192.0.2.1")))
}

func TestPerIPBurstExhaustion(t *testing.T) {
	r := NewRateLimiter(RateLimitSettings{
		IPQPS:        1,
		IPBurst:      3,
		MaxIPEntries: 100,
	})
	ip := netip.MustParseAddr("192.0.2.7")

	for i := range 3 {
		assert.True(t, r.Allow(ip), "request %d within burst", i)
	}
	assert.False(t, r.Allow(ip), "burst exhausted")

	// A different source has its own bucket.
	assert.True(t, r.Allow(netip.MustParseAddr("198.51.100.1")))
}

func TestGlobalLimitAppliesAcrossSources(t *testing.T) {
	r := NewRateLimiter(RateLimitSettings{
		GlobalQPS:   1,
		GlobalBurst: 2,
	})
	assert.True(t, r.Allow(netip.MustParseAddr("192.0.2.1")))
	assert.True(t, r.Allow(netip.MustParseAddr("192.0.2.2")))
	assert.False(t, r.Allow(netip.MustParseAddr("192.0.2.3")))
}

func TestPrefixKeyAggregation(t *testing.T) {
	a := prefixKey(netip.MustParseAddr("192.0.2.1"))
	b := prefixKey(netip.MustParseAddr("192.0.2.200"))
	c := prefixKey(netip.MustParseAddr("192.0.3.1"))
	assert.Equal(t, a, b, "same /24")
	assert.NotEqual(t, a, c, "different /24")

	v6a := prefixKey(netip.MustParseAddr("2001:db8:1:2::1"))
	v6b := prefixKey(netip.MustParseAddr("2001:db8:1:2:ffff::1"))
	v6c := prefixKey(netip.MustParseAddr("2001:db8:1:3::1"))
	assert.Equal(t, v6a, v6b, "same /64")
	assert.NotEqual(t, v6a, v6c, "different /64")
}

func TestMaxEntriesRefusesNewSources(t *testing.T) {
	r := NewRateLimiter(RateLimitSettings{
		IPQPS:          100,
		IPBurst:        100,
		MaxIPEntries:   2,
		CleanupSeconds: 3600,
	})
	assert.True(t, r.Allow(netip.MustParseAddr("192.0.2.1")))
	assert.True(t, r.Allow(netip.MustParseAddr("192.0.2.2")))
	// Table full and nothing is stale: the third source is refused.
	assert.False(t, r.Allow(netip.MustParseAddr("192.0.2.3")))
	// Known sources keep working.
	assert.True(t, r.Allow(netip.MustParseAddr("192.0.2.1")))
}
