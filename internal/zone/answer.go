package zone

import (
	"encoding/binary"

	"github.com/jroosing/apexdns/internal/dns"
	"github.com/jroosing/apexdns/internal/helpers"
)

// AnswerType classifies a query against the zone. It is a pure function
// of the lookup outcome, the qname label count and the qtype, and is the
// index into a NameData's precomputed answer table.
type AnswerType int

const (
	RootSOA AnswerType = iota
	RootNS
	RootDNSKEY
	RootNSEC
	RootNoData
	RootAny
	TLDDS
	TLDReferral
	NXDomain
	answerTypeCount
)

// String returns the answer type name for logs and tooling.
func (t AnswerType) String() string {
	switch t {
	case RootSOA:
		return "root_soa"
	case RootNS:
		return "root_ns"
	case RootDNSKEY:
		return "root_dnskey"
	case RootNSEC:
		return "root_nsec"
	case RootNoData:
		return "root_nodata"
	case RootAny:
		return "root_any"
	case TLDDS:
		return "tld_ds"
	case TLDReferral:
		return "tld_referral"
	case NXDomain:
		return "nxdomain"
	default:
		return "unknown"
	}
}

// Answer is an immutable precomputed response body: the answer,
// authority and additional sections in wire format, always terminated
// by an 11-byte EDNS OPT RR template. Section counts include the OPT,
// so ARCount >= 1; callers stripping the OPT drop the last OptRRSize
// bytes and decrement ARCount themselves.
type Answer struct {
	wire []byte

	ANCount uint16
	NSCount uint16
	ARCount uint16

	// Authoritative controls the AA bit in responses built from this
	// answer. Referrals and Empty are the only non-authoritative bodies.
	Authoritative bool
}

// Empty is the distinguished answer holding nothing but the OPT
// template. It backs SERVFAIL responses and truncated responses.
var Empty = &Answer{
	wire:    optTemplate(),
	ARCount: 1,
}

// optTemplate builds the trailing EDNS OPT RR (RFC 6891): root owner,
// type OPT, class = advertised UDP payload size, TTL zero (the
// extended-rcode byte at offset 5 is patched per response), empty RDATA.
func optTemplate() []byte {
	b := make([]byte, dns.OptRRSize)
	b[0] = 0
	binary.BigEndian.PutUint16(b[1:3], uint16(dns.TypeOPT))
	binary.BigEndian.PutUint16(b[3:5], dns.EDNSDefaultUDPPayloadSize)
	binary.BigEndian.PutUint32(b[5:9], 0)
	binary.BigEndian.PutUint16(b[9:11], 0)
	return b
}

// newAnswer serializes the three sections and appends the OPT template.
// The OPT must be the final bytes of the wire body: stripping it for
// non-EDNS clients relies on that ordering.
func newAnswer(an, ns, ar []Record, authoritative bool) (*Answer, error) {
	est := dns.OptRRSize
	for _, rr := range an {
		est += len(rr.Name) + 12 + len(rr.Data)
	}
	for _, rr := range ns {
		est += len(rr.Name) + 12 + len(rr.Data)
	}
	for _, rr := range ar {
		est += len(rr.Name) + 12 + len(rr.Data)
	}

	wire := make([]byte, 0, est)
	var err error
	for _, rr := range an {
		if wire, err = rr.appendWire(wire); err != nil {
			return nil, err
		}
	}
	for _, rr := range ns {
		if wire, err = rr.appendWire(wire); err != nil {
			return nil, err
		}
	}
	for _, rr := range ar {
		if wire, err = rr.appendWire(wire); err != nil {
			return nil, err
		}
	}
	wire = append(wire, optTemplate()...)

	return &Answer{
		wire:          wire,
		ANCount:       helpers.ClampIntToUint16(len(an)),
		NSCount:       helpers.ClampIntToUint16(len(ns)),
		ARCount:       helpers.ClampIntToUint16(len(ar) + 1),
		Authoritative: authoritative,
	}, nil
}

// Size returns the full wire length including the OPT template.
func (a *Answer) Size() int {
	return len(a.wire)
}

// Body returns the wire body without the trailing OPT template. The
// slice is shared across all queries; callers must not mutate it.
func (a *Answer) Body() []byte {
	return a.wire[:len(a.wire)-dns.OptRRSize]
}

// OptTemplate returns the trailing OPT RR bytes. Callers patch the
// extended rcode on their own copy, never on this slice.
func (a *Answer) OptTemplate() []byte {
	return a.wire[len(a.wire)-dns.OptRRSize:]
}
