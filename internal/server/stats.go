package server

import (
	"sync/atomic"

	"github.com/jroosing/apexdns/internal/dns"
)

// DNSStats collects query counters across all workers.
// All methods are safe for concurrent use.
type DNSStats struct {
	queriesTotal atomic.Uint64
	queriesUDP   atomic.Uint64
	queriesTCP   atomic.Uint64

	respNoError  atomic.Uint64
	respNXDomain atomic.Uint64
	respFormErr  atomic.Uint64
	respServFail atomic.Uint64
	respNotImp   atomic.Uint64
	respBadVers  atomic.Uint64

	truncated atomic.Uint64
	dropped   atomic.Uint64
	ratelimit atomic.Uint64
}

// NewDNSStats creates a new statistics collector.
func NewDNSStats() *DNSStats {
	return &DNSStats{}
}

// RecordResponse records an emitted response by transport and rcode.
func (s *DNSStats) RecordResponse(transport string, rcode uint16, truncated bool) {
	s.queriesTotal.Add(1)
	switch transport {
	case "udp":
		s.queriesUDP.Add(1)
	case "tcp":
		s.queriesTCP.Add(1)
	}
	switch dns.RCode(rcode) {
	case dns.RCodeNoError:
		s.respNoError.Add(1)
	case dns.RCodeNXDomain:
		s.respNXDomain.Add(1)
	case dns.RCodeFormErr:
		s.respFormErr.Add(1)
	case dns.RCodeServFail:
		s.respServFail.Add(1)
	case dns.RCodeNotImp:
		s.respNotImp.Add(1)
	case dns.RCodeBadVers:
		s.respBadVers.Add(1)
	}
	if truncated {
		s.truncated.Add(1)
	}
}

// RecordDrop records a silently discarded input.
func (s *DNSStats) RecordDrop() {
	s.dropped.Add(1)
}

// RecordRateLimited records a query rejected before parsing.
func (s *DNSStats) RecordRateLimited() {
	s.ratelimit.Add(1)
}

// DNSStatsSnapshot is a point-in-time view of the counters.
type DNSStatsSnapshot struct {
	QueriesTotal uint64 `json:"queries_total"`
	QueriesUDP   uint64 `json:"queries_udp"`
	QueriesTCP   uint64 `json:"queries_tcp"`
	NoError      uint64 `json:"noerror"`
	NXDomain     uint64 `json:"nxdomain"`
	FormErr      uint64 `json:"formerr"`
	ServFail     uint64 `json:"servfail"`
	NotImp       uint64 `json:"notimp"`
	BadVers      uint64 `json:"badvers"`
	Truncated    uint64 `json:"truncated"`
	Dropped      uint64 `json:"dropped"`
	RateLimited  uint64 `json:"rate_limited"`
}

// Snapshot returns the current statistics.
func (s *DNSStats) Snapshot() DNSStatsSnapshot {
	return DNSStatsSnapshot{
		QueriesTotal: s.queriesTotal.Load(),
		QueriesUDP:   s.queriesUDP.Load(),
		QueriesTCP:   s.queriesTCP.Load(),
		NoError:      s.respNoError.Load(),
		NXDomain:     s.respNXDomain.Load(),
		FormErr:      s.respFormErr.Load(),
		ServFail:     s.respServFail.Load(),
		NotImp:       s.respNotImp.Load(),
		BadVers:      s.respBadVers.Load(),
		Truncated:    s.truncated.Load(),
		Dropped:      s.dropped.Load(),
		RateLimited:  s.ratelimit.Load(),
	}
}
