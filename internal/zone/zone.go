package zone

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jroosing/apexdns/internal/dns"
)

// ErrZoneLoad is the sentinel for structural zone failures (missing
// apex SOA, unparseable records, empty zone).
var ErrZoneLoad = errors.New("zone load error")

// Zone is the read-only result of loading a zone file: every
// authoritative owner name mapped to its precomputed NameData, plus an
// ordered index for predecessor lookups. Owner keys are single labels
// (the apex is the empty string); deeper owners carry glue only and are
// indexed separately for additional-section assembly.
type Zone struct {
	Origin   string
	Serial   uint32
	LoadedAt time.Time

	names []string    // canonical order; names[0] is the apex ""
	data  []*NameData // parallel to names
	aux   map[string]*NameData

	records []Record
}

// Load parses and builds a zone from the file at path.
func Load(path string) (*Zone, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrZoneLoad, err)
	}
	return Parse(string(b))
}

// Parse builds a zone from presentation-format text.
func Parse(text string) (*Zone, error) {
	recs, origin, err := parseText(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrZoneLoad, err)
	}
	return build(recs, origin)
}

// NameCount returns the number of authoritative owner names.
func (z *Zone) NameCount() int {
	return len(z.names)
}

// Records returns the parsed records, for tooling and the API.
func (z *Zone) Records() []Record {
	return z.records
}

// Lookup finds the NameData for qname (a lowercase label, empty for the
// apex). On an exact hit match is true. Otherwise the entry returned is
// the greatest name strictly less than qname in canonical order, whose
// NSEC records prove the gap; a qname preceding every entry wraps to
// the apex. The apex key is the empty string and sorts first, so the
// predecessor always exists for a non-empty zone.
func (z *Zone) Lookup(qname []byte) (*NameData, bool) {
	if nd, ok := z.aux[string(qname)]; ok {
		return nd, true
	}
	if len(z.names) == 0 {
		return nil, false
	}
	// First name >= qname; the entry before it is the predecessor.
	q := string(qname)
	i := sort.Search(len(z.names), func(m int) bool {
		return z.names[m] >= q
	})
	if i == 0 {
		return z.data[0], false
	}
	return z.data[i-1], false
}

// build walks the records and materializes per-name answer tables.
func build(recs []Record, origin string) (*Zone, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: empty zone", ErrZoneLoad)
	}

	b := &builder{
		byOwner: make(map[string][]Record),
		glue:    make(map[string][]Record),
	}
	for _, rr := range recs {
		owner := strings.ToLower(rr.Name)
		if strings.Contains(owner, ".") {
			// Occluded names below a delegation: glue only, not part of
			// the authoritative name set or the NSEC chain.
			if t := dns.RecordType(rr.Type); t == dns.TypeA || t == dns.TypeAAAA {
				b.glue[owner] = append(b.glue[owner], rr)
			}
			continue
		}
		b.byOwner[owner] = append(b.byOwner[owner], rr)
	}

	soa := b.rrset("", dns.TypeSOA)
	if len(soa) == 0 {
		return nil, fmt.Errorf("%w: no SOA at the apex", ErrZoneLoad)
	}
	serial := soaSerial(soa[0])

	names := make([]string, 0, len(b.byOwner))
	for name := range b.byOwner {
		names = append(names, name)
	}
	sort.Strings(names)

	// Shared fallbacks for slots a name never serves.
	var err error
	b.fallbackPlain, err = newAnswer(nil, b.rrset("", dns.TypeSOA), nil, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrZoneLoad, err)
	}
	b.fallbackSigned, err = newAnswer(nil, b.withSigs("", dns.TypeSOA), nil, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrZoneLoad, err)
	}

	z := &Zone{
		Origin:   origin,
		Serial:   serial,
		LoadedAt: time.Now(),
		names:    names,
		data:     make([]*NameData, len(names)),
		aux:      make(map[string]*NameData, len(names)),
		records:  recs,
	}
	for i, name := range names {
		nd, err := b.buildName(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrZoneLoad, name, err)
		}
		z.data[i] = nd
		z.aux[name] = nd
	}
	return z, nil
}

type builder struct {
	byOwner map[string][]Record
	glue    map[string][]Record

	fallbackPlain  *Answer
	fallbackSigned *Answer
}

// rrset returns the records of one type at one owner.
func (b *builder) rrset(owner string, t dns.RecordType) []Record {
	var out []Record
	for _, rr := range b.byOwner[owner] {
		if dns.RecordType(rr.Type) == t {
			out = append(out, rr)
		}
	}
	return out
}

// sigs returns the RRSIGs at owner covering type t.
func (b *builder) sigs(owner string, t dns.RecordType) []Record {
	var out []Record
	for _, rr := range b.byOwner[owner] {
		if dns.RecordType(rr.Type) == dns.TypeRRSIG && rr.coveredType() == uint16(t) {
			out = append(out, rr)
		}
	}
	return out
}

// withSigs returns the RRset followed by its covering RRSIGs.
func (b *builder) withSigs(owner string, t dns.RecordType) []Record {
	set := b.rrset(owner, t)
	if len(set) == 0 {
		return nil
	}
	return append(set, b.sigs(owner, t)...)
}

// glueFor collects in-zone A/AAAA records for the targets of an NS set.
func (b *builder) glueFor(nsSet []Record) []Record {
	var out []Record
	for _, ns := range nsSet {
		target := nameFromWire(ns.Data)
		out = append(out, b.glue[target]...)
		// A nameserver may also live directly at a delegated label.
		if !strings.Contains(target, ".") {
			for _, rr := range b.byOwner[target] {
				if t := dns.RecordType(rr.Type); t == dns.TypeA || t == dns.TypeAAAA {
					out = append(out, rr)
				}
			}
		}
	}
	return out
}

// buildName materializes the answer table for one owner.
func (b *builder) buildName(name string) (*NameData, error) {
	nd := &NameData{}
	var err error

	pair := func(t AnswerType, plainAn, plainNs, plainAr, sigAn, sigNs, sigAr []Record, aa bool) {
		if err != nil {
			return
		}
		var plain, signed *Answer
		if plain, err = newAnswer(plainAn, plainNs, plainAr, aa); err != nil {
			return
		}
		if signed, err = newAnswer(sigAn, sigNs, sigAr, aa); err != nil {
			return
		}
		nd.set(t, plain, signed)
	}

	soa := b.rrset("", dns.TypeSOA)
	soaSig := b.withSigs("", dns.TypeSOA)
	apexNSEC := b.withSigs("", dns.TypeNSEC)

	if name == "" {
		ns := b.rrset("", dns.TypeNS)
		nsGlue := b.glueFor(ns)
		dnskey := b.rrset("", dns.TypeDNSKEY)
		nsec := b.rrset("", dns.TypeNSEC)

		pair(RootSOA, soa, nil, nil, soaSig, nil, nil, true)
		pair(RootNS, ns, nil, nsGlue, b.withSigs("", dns.TypeNS), nil, nsGlue, true)
		if len(dnskey) > 0 {
			pair(RootDNSKEY, dnskey, nil, nil, b.withSigs("", dns.TypeDNSKEY), nil, nil, true)
		}
		if len(nsec) > 0 {
			pair(RootNSEC, nsec, nil, nil, apexNSEC, nil, nil, true)
		}
		pair(RootAny,
			concat(soa, ns), nil, nsGlue,
			concat(soaSig, b.withSigs("", dns.TypeNS)), nil, nsGlue,
			true)
		pair(RootNoData,
			nil, soa, nil,
			nil, concat(soaSig, apexNSEC), nil,
			true)
		// The apex NSEC alone proves both the gap and the absent
		// wildcard when the apex is the predecessor.
		pair(NXDomain,
			nil, soa, nil,
			nil, concat(soaSig, apexNSEC), nil,
			true)
	} else {
		ns := b.rrset(name, dns.TypeNS)
		ds := b.rrset(name, dns.TypeDS)
		nsGlue := b.glueFor(ns)
		ownNSEC := b.withSigs(name, dns.TypeNSEC)

		if len(ns) > 0 {
			pair(TLDReferral,
				nil, ns, nsGlue,
				nil, concat(ns, b.withSigs(name, dns.TypeDS)), nsGlue,
				false)
		}
		if len(ds) > 0 {
			pair(TLDDS,
				ds, nil, nil,
				b.withSigs(name, dns.TypeDS), nil, nil,
				true)
		} else {
			// Unsigned delegation: DS queries get a no-data answer with
			// the NSEC proving the type's absence.
			pair(TLDDS,
				nil, soa, nil,
				nil, concat(soaSig, ownNSEC), nil,
				true)
		}
		pair(NXDomain,
			nil, soa, nil,
			nil, concat(soaSig, ownNSEC, apexNSEC), nil,
			true)
	}

	if err != nil {
		return nil, err
	}
	nd.fill(b.fallbackPlain, b.fallbackSigned)
	return nd, nil
}

func concat(sets ...[]Record) []Record {
	var out []Record
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}

// soaSerial extracts the serial from SOA wire rdata: it follows the
// mname and rname fields.
func soaSerial(soa Record) uint32 {
	d := soa.Data
	i := 0
	for skipped := 0; skipped < 2 && i < len(d); skipped++ {
		for i < len(d) {
			n := int(d[i])
			i++
			if n == 0 {
				break
			}
			i += n
		}
	}
	if i+4 > len(d) {
		return 0
	}
	return binary.BigEndian.Uint32(d[i : i+4])
}

// Handle publishes a Zone to concurrent readers and lets a reload swap
// in a replacement atomically. In-flight queries keep the zone pointer
// they loaded and finish against it.
type Handle struct {
	p atomic.Pointer[Zone]
}

// NewHandle returns a handle publishing z.
func NewHandle(z *Zone) *Handle {
	h := &Handle{}
	h.p.Store(z)
	return h
}

// Current returns the zone visible to new queries.
func (h *Handle) Current() *Zone {
	return h.p.Load()
}

// Swap publishes a freshly loaded zone.
func (h *Handle) Swap(z *Zone) {
	h.p.Store(z)
}
