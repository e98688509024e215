package query

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/jroosing/apexdns/internal/dns"
	"github.com/jroosing/apexdns/internal/zone"
)

const sigB64 = "c2lnbmF0dXJlc2lnbmF0dXJlc2lnbmF0dXJl"

// bigKeyB64 decodes to 600 bytes, making the DNSKEY answer overflow a
// 512-byte UDP budget for the truncation tests.
var bigKeyB64 = strings.Repeat("A", 800)

var testZoneText = `
$ORIGIN .
$TTL 86400
.	IN	SOA	a.root-servers.net. nstld.example.org. 2026080600 1800 900 604800 86400
.	518400	IN	NS	a.root-servers.net.
.	172800	IN	DNSKEY	257 3 8 ` + bigKeyB64 + `
.	IN	NSEC	aaa. NS SOA RRSIG NSEC DNSKEY
.	IN	RRSIG	SOA 8 0 86400 20260901000000 20260801000000 46780 . ` + sigB64 + `
.	IN	RRSIG	NS 8 0 518400 20260901000000 20260801000000 46780 . ` + sigB64 + `
.	IN	RRSIG	NSEC 8 0 86400 20260901000000 20260801000000 46780 . ` + sigB64 + `
.	IN	RRSIG	DNSKEY 8 0 172800 20260901000000 20260801000000 26470 . ` + sigB64 + `
aaa.	IN	NS	ns1.dns.nic.aaa.
aaa.	IN	DS	1657 8 2 49AAC11D7B6F6446702E54A1607371607A1A41855200FD2CE1CDDE32F24E8FB5
aaa.	IN	NSEC	zzz. NS DS RRSIG NSEC
aaa.	IN	RRSIG	DS 8 1 86400 20260901000000 20260801000000 46780 . ` + sigB64 + `
aaa.	IN	RRSIG	NSEC 8 1 86400 20260901000000 20260801000000 46780 . ` + sigB64 + `
zzz.	IN	NS	ns.zzz.
zzz.	IN	NSEC	. NS RRSIG NSEC
zzz.	IN	RRSIG	NSEC 8 1 86400 20260901000000 20260801000000 46780 . ` + sigB64 + `
ns.zzz.	IN	A	192.0.2.53
a.root-servers.net.	IN	A	198.41.0.4
`

func testContext(t *testing.T) *Context {
	t.Helper()
	z, err := zone.Parse(testZoneText)
	if err != nil {
		t.Fatalf("zone parse: %v", err)
	}
	return NewContext(zone.NewHandle(z))
}

// edns describes the OPT RR appended to a built query.
type edns struct {
	bufsize uint16
	version uint8
	doBit   bool
}

// buildQuery assembles a wire query. qname is the wire-format name.
func buildQuery(id, flags uint16, qname []byte, qtype, qclass uint16, e *edns) []byte {
	arcount := uint16(0)
	if e != nil {
		arcount = 1
	}
	out := make([]byte, 0, 64)
	out = binary.BigEndian.AppendUint16(out, id)
	out = binary.BigEndian.AppendUint16(out, flags)
	out = binary.BigEndian.AppendUint16(out, 1) // QDCOUNT
	out = binary.BigEndian.AppendUint16(out, 0)
	out = binary.BigEndian.AppendUint16(out, 0)
	out = binary.BigEndian.AppendUint16(out, arcount)
	out = append(out, qname...)
	out = binary.BigEndian.AppendUint16(out, qtype)
	out = binary.BigEndian.AppendUint16(out, qclass)
	if e != nil {
		out = append(out, 0) // root owner
		out = binary.BigEndian.AppendUint16(out, uint16(dns.TypeOPT))
		out = binary.BigEndian.AppendUint16(out, e.bufsize)
		ttl := uint32(e.version) << 16
		if e.doBit {
			ttl |= 1 << 15
		}
		out = binary.BigEndian.AppendUint32(out, ttl)
		out = binary.BigEndian.AppendUint16(out, 0) // rdlen
	}
	return out
}

func flatten(segs [][]byte) []byte {
	var out []byte
	for _, s := range segs {
		out = append(out, s...)
	}
	return out
}

func respHeader(t *testing.T, resp []byte) dns.Header {
	t.Helper()
	h, err := dns.ParseHeader(resp)
	if err != nil {
		t.Fatalf("response header: %v", err)
	}
	return h
}

var (
	rootName = []byte{0}
	aaaName  = []byte{3, 'a', 'a', 'a', 0}
)

// --- drop conditions ---

func TestDropsShortInput(t *testing.T) {
	c := testContext(t)
	for n := 0; n < dns.MinQuerySize; n++ {
		if _, ok := c.Execute(make([]byte, n), false); ok {
			t.Fatalf("input of %d bytes must be dropped", n)
		}
	}
}

func TestDropsQRSet(t *testing.T) {
	c := testContext(t)
	req := buildQuery(1, dns.QRFlag, rootName, uint16(dns.TypeSOA), 1, nil)
	if _, ok := c.Execute(req, false); ok {
		t.Fatalf("response packets must be dropped")
	}
}

func TestDropsBadTCPFraming(t *testing.T) {
	c := testContext(t)
	req := buildQuery(1, 0, rootName, uint16(dns.TypeSOA), 1, nil)

	if _, ok := c.Execute([]byte{0x00}, true); ok {
		t.Fatalf("missing length word must be dropped")
	}

	framed := make([]byte, 0, len(req)+2)
	framed = binary.BigEndian.AppendUint16(framed, uint16(len(req)+5)) // overruns
	framed = append(framed, req...)
	if _, ok := c.Execute(framed, true); ok {
		t.Fatalf("short TCP frame must be dropped")
	}
}

// --- scenarios ---

// S1: root SOA query with EDNS and DO.
func TestRootSOAWithEDNSDO(t *testing.T) {
	c := testContext(t)
	req := buildQuery(0x1234, dns.RDFlag|dns.ADFlag, rootName, uint16(dns.TypeSOA), 1,
		&edns{bufsize: 4096, doBit: true})

	segs, ok := c.Execute(req, false)
	if !ok {
		t.Fatalf("expected a response")
	}
	resp := flatten(segs)
	h := respHeader(t, resp)

	if h.ID != 0x1234 {
		t.Fatalf("id = %04x", h.ID)
	}
	if !h.IsResponse() || !h.Authoritative() || !h.RecursionDesired() {
		t.Fatalf("flags = %04x", h.Flags)
	}
	if dns.RCodeFromFlags(h.Flags) != dns.RCodeNoError {
		t.Fatalf("rcode = %d", dns.RCodeFromFlags(h.Flags))
	}
	if h.QDCount != 1 || h.ANCount != 2 {
		t.Fatalf("counts: qd=%d an=%d (want SOA+RRSIG)", h.QDCount, h.ANCount)
	}
	if h.ARCount != 1 {
		t.Fatalf("arcount = %d, want the OPT RR", h.ARCount)
	}
	// The response ends with the OPT RR; its type field sits 9 bytes
	// from the end.
	optType := binary.BigEndian.Uint16(resp[len(resp)-10 : len(resp)-8])
	if optType != uint16(dns.TypeOPT) {
		t.Fatalf("trailing record type = %d, want OPT", optType)
	}
}

// S2: unknown TLD yields NXDOMAIN with NSEC proofs from the predecessor.
func TestUnknownTLDNXDomain(t *testing.T) {
	c := testContext(t)
	qname := []byte{7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 0}
	req := buildQuery(7, 0, qname, uint16(dns.TypeA), 1, nil)

	segs, ok := c.Execute(req, false)
	if !ok {
		t.Fatalf("expected a response")
	}
	resp := flatten(segs)
	h := respHeader(t, resp)

	if dns.RCodeFromFlags(h.Flags) != dns.RCodeNXDomain {
		t.Fatalf("rcode = %d, want NXDOMAIN", dns.RCodeFromFlags(h.Flags))
	}
	if !h.Authoritative() {
		t.Fatalf("NXDOMAIN must be authoritative")
	}
	if h.ANCount != 0 || h.NSCount == 0 {
		t.Fatalf("counts: an=%d ns=%d", h.ANCount, h.NSCount)
	}
	// No EDNS in the request: no OPT RR in the response.
	if h.ARCount != 0 {
		t.Fatalf("arcount = %d, want 0 without EDNS", h.ARCount)
	}
}

// S3: meta qtypes are rejected with NOTIMPL, question echoed.
func TestMetaQTypeNotImplemented(t *testing.T) {
	c := testContext(t)
	req := buildQuery(9, 0, rootName, 250, 1, nil) // TSIG

	segs, ok := c.Execute(req, false)
	if !ok {
		t.Fatalf("expected a response")
	}
	resp := flatten(segs)
	h := respHeader(t, resp)

	if dns.RCodeFromFlags(h.Flags) != dns.RCodeNotImp {
		t.Fatalf("rcode = %d, want NOTIMPL", dns.RCodeFromFlags(h.Flags))
	}
	if h.QDCount != 1 {
		t.Fatalf("question must be echoed")
	}
	if h.ANCount != 0 || h.NSCount != 0 || h.ARCount != 0 {
		t.Fatalf("sections must be empty: %+v", h)
	}
	if !bytes.Equal(resp[dns.HeaderSize:], req[dns.HeaderSize:]) {
		t.Fatalf("question echo mismatch")
	}
}

// S4: a compression pointer in the question is FORMERR with QDCOUNT=0.
func TestCompressedQNameFormErr(t *testing.T) {
	c := testContext(t)
	req := buildQuery(0xABCD, 0, []byte{0xC0, 0x0C}, uint16(dns.TypeA), 1, nil)

	segs, ok := c.Execute(req, false)
	if !ok {
		t.Fatalf("expected a response")
	}
	resp := flatten(segs)
	h := respHeader(t, resp)

	if h.ID != 0xABCD {
		t.Fatalf("id not echoed")
	}
	if dns.RCodeFromFlags(h.Flags) != dns.RCodeFormErr {
		t.Fatalf("rcode = %d, want FORMERR", dns.RCodeFromFlags(h.Flags))
	}
	if h.QDCount != 0 {
		t.Fatalf("unparsed question must not be counted")
	}
	if len(resp) != dns.HeaderSize {
		t.Fatalf("response length = %d, want bare header", len(resp))
	}
}

// S5: EDNS version 1 yields BADVERS via the extended rcode.
func TestEDNSVersionMismatch(t *testing.T) {
	c := testContext(t)
	req := buildQuery(5, 0, rootName, uint16(dns.TypeSOA), 1,
		&edns{bufsize: 4096, version: 1})

	segs, ok := c.Execute(req, false)
	if !ok {
		t.Fatalf("expected a response")
	}
	resp := flatten(segs)
	h := respHeader(t, resp)

	if dns.RCodeFromFlags(h.Flags) != 0 {
		t.Fatalf("rcode low nibble = %d, want 0", dns.RCodeFromFlags(h.Flags))
	}
	if h.ARCount != 1 {
		t.Fatalf("OPT RR must be present")
	}
	// Extended rcode byte inside the trailing OPT RR: BADVERS >> 4 == 1.
	extRCode := resp[len(resp)-dns.OptRRSize+dns.OptExtRCodeOffset]
	if extRCode != 1 {
		t.Fatalf("extended rcode = %d, want 1", extRCode)
	}
	if c.RCode() != uint16(dns.RCodeBadVers) {
		t.Fatalf("context rcode = %d", c.RCode())
	}
}

// S6: a response too large for the advertised UDP budget is truncated.
func TestUDPTruncation(t *testing.T) {
	c := testContext(t)
	req := buildQuery(6, 0, rootName, uint16(dns.TypeDNSKEY), 1,
		&edns{bufsize: 512, doBit: true})

	segs, ok := c.Execute(req, false)
	if !ok {
		t.Fatalf("expected a response")
	}
	resp := flatten(segs)
	h := respHeader(t, resp)

	if !h.Truncated() {
		t.Fatalf("TC must be set")
	}
	if h.ANCount != 0 || h.NSCount != 0 {
		t.Fatalf("truncated response must carry no records: %+v", h)
	}
	if h.ARCount != 1 {
		t.Fatalf("OPT RR must survive truncation")
	}
	if len(resp) > 512 {
		t.Fatalf("truncated response is %d bytes", len(resp))
	}
	if !c.Truncated() {
		t.Fatalf("context must report truncation")
	}
}

// The same oversized answer fits over TCP: no truncation there.
func TestTCPCarriesLargeAnswer(t *testing.T) {
	c := testContext(t)
	req := buildQuery(6, 0, rootName, uint16(dns.TypeDNSKEY), 1,
		&edns{bufsize: 512, doBit: true})
	framed := binary.BigEndian.AppendUint16(nil, uint16(len(req)))
	framed = append(framed, req...)

	segs, ok := c.Execute(framed, true)
	if !ok {
		t.Fatalf("expected a response")
	}
	resp := flatten(segs)

	// First two bytes are the TCP length word and must match.
	frameLen := int(binary.BigEndian.Uint16(resp[:2]))
	if frameLen != len(resp)-2 {
		t.Fatalf("length word %d, body %d", frameLen, len(resp)-2)
	}
	h := respHeader(t, resp[2:])
	if h.Truncated() {
		t.Fatalf("TCP responses are never truncated")
	}
	if h.ANCount != 2 {
		t.Fatalf("ancount = %d, want DNSKEY+RRSIG", h.ANCount)
	}
}

// --- properties ---

func TestQuestionEchoPreservesCase(t *testing.T) {
	c := testContext(t)
	mixed := []byte{3, 'A', 'a', 'A', 0}
	req := buildQuery(11, 0, mixed, uint16(dns.TypeA), 1, nil)

	segs, ok := c.Execute(req, false)
	if !ok {
		t.Fatalf("expected a response")
	}
	resp := flatten(segs)
	qdsize := len(mixed) + 4
	if !bytes.Equal(resp[dns.HeaderSize:dns.HeaderSize+qdsize], req[dns.HeaderSize:dns.HeaderSize+qdsize]) {
		t.Fatalf("question must be echoed byte-for-byte")
	}
}

func TestCaseInsensitiveLookup(t *testing.T) {
	c := testContext(t)
	lower := buildQuery(1, 0, aaaName, uint16(dns.TypeDS), 1, nil)
	upper := buildQuery(1, 0, []byte{3, 'A', 'A', 'A', 0}, uint16(dns.TypeDS), 1, nil)

	r1, ok1 := c.Execute(lower, false)
	body1 := append([]byte(nil), flatten(r1)...)
	r2, ok2 := c.Execute(upper, false)
	body2 := flatten(r2)

	if !ok1 || !ok2 {
		t.Fatalf("expected responses")
	}
	// Identical beyond the question section (which echoes the casing).
	qdsize := len(aaaName) + 4
	if !bytes.Equal(body1[dns.HeaderSize+qdsize:], body2[dns.HeaderSize+qdsize:]) {
		t.Fatalf("responses differ beyond the question section")
	}
	h1 := respHeader(t, body1)
	h2 := respHeader(t, body2)
	if h1.Flags != h2.Flags {
		t.Fatalf("flags differ: %04x vs %04x", h1.Flags, h2.Flags)
	}
}

func TestIdempotence(t *testing.T) {
	c := testContext(t)
	req := buildQuery(3, dns.RDFlag, aaaName, uint16(dns.TypeA), 1, &edns{bufsize: 1232, doBit: true})

	var first []byte
	for i := range 5 {
		segs, ok := c.Execute(req, false)
		if !ok {
			t.Fatalf("expected a response")
		}
		resp := flatten(segs)
		if first == nil {
			first = append([]byte(nil), resp...)
		} else if !bytes.Equal(first, resp) {
			t.Fatalf("iteration %d produced different bytes", i)
		}
	}
}

func TestQRAlwaysSetAndRcodeNibble(t *testing.T) {
	c := testContext(t)
	inputs := [][]byte{
		buildQuery(1, 0, rootName, uint16(dns.TypeSOA), 1, nil),
		buildQuery(2, 0, rootName, 250, 1, nil),                          // NOTIMPL
		buildQuery(3, 0, []byte{0xC0, 0x0C}, uint16(dns.TypeA), 1, nil),  // FORMERR
		buildQuery(4, 0, aaaName, uint16(dns.TypeA), 3, nil),             // CHAOS class
		buildQuery(5, 0, []byte{1, 'q', 0}, uint16(dns.TypeAAAA), 1, nil), // NXDOMAIN
	}
	for i, req := range inputs {
		segs, ok := c.Execute(req, false)
		if !ok {
			t.Fatalf("input %d: expected a response", i)
		}
		resp := flatten(segs)
		h := respHeader(t, resp)
		if !h.IsResponse() {
			t.Fatalf("input %d: QR not set", i)
		}
		if uint16(dns.RCodeFromFlags(h.Flags)) != c.RCode()&0x0F {
			t.Fatalf("input %d: rcode nibble %d vs %d", i, dns.RCodeFromFlags(h.Flags), c.RCode())
		}
	}
}

func TestNonINClassNotImplemented(t *testing.T) {
	c := testContext(t)
	req := buildQuery(8, 0, rootName, uint16(dns.TypeSOA), 3, nil)
	segs, ok := c.Execute(req, false)
	if !ok {
		t.Fatalf("expected a response")
	}
	h := respHeader(t, flatten(segs))
	if dns.RCodeFromFlags(h.Flags) != dns.RCodeNotImp {
		t.Fatalf("rcode = %d", dns.RCodeFromFlags(h.Flags))
	}
}

func TestNonQueryOpcodeNotImplemented(t *testing.T) {
	c := testContext(t)
	req := buildQuery(8, 2<<11, rootName, uint16(dns.TypeSOA), 1, nil) // STATUS
	segs, ok := c.Execute(req, false)
	if !ok {
		t.Fatalf("expected a response")
	}
	h := respHeader(t, flatten(segs))
	if dns.RCodeFromFlags(h.Flags) != dns.RCodeNotImp {
		t.Fatalf("rcode = %d", dns.RCodeFromFlags(h.Flags))
	}
	// Opcode must be copied back.
	if h.Opcode() != 2 {
		t.Fatalf("opcode = %d", h.Opcode())
	}
}

func TestInvalidHeaderCountsFormErr(t *testing.T) {
	c := testContext(t)
	req := buildQuery(8, 0, rootName, uint16(dns.TypeSOA), 1, nil)
	binary.BigEndian.PutUint16(req[6:8], 1) // ANCOUNT=1 is invalid in a query

	segs, ok := c.Execute(req, false)
	if !ok {
		t.Fatalf("expected a response")
	}
	h := respHeader(t, flatten(segs))
	if dns.RCodeFromFlags(h.Flags) != dns.RCodeFormErr {
		t.Fatalf("rcode = %d", dns.RCodeFromFlags(h.Flags))
	}
}

func TestTrailingGarbageFormErr(t *testing.T) {
	c := testContext(t)
	req := buildQuery(8, 0, rootName, uint16(dns.TypeSOA), 1, nil)
	req = append(req, 0xDE, 0xAD)

	segs, ok := c.Execute(req, false)
	if !ok {
		t.Fatalf("expected a response")
	}
	h := respHeader(t, flatten(segs))
	if dns.RCodeFromFlags(h.Flags) != dns.RCodeFormErr {
		t.Fatalf("rcode = %d", dns.RCodeFromFlags(h.Flags))
	}
}

func TestReferralForDeepName(t *testing.T) {
	c := testContext(t)
	qname := []byte{3, 'w', 'w', 'w', 3, 'a', 'a', 'a', 0}
	req := buildQuery(12, 0, qname, uint16(dns.TypeA), 1, nil)

	segs, ok := c.Execute(req, false)
	if !ok {
		t.Fatalf("expected a response")
	}
	h := respHeader(t, flatten(segs))
	if dns.RCodeFromFlags(h.Flags) != dns.RCodeNoError {
		t.Fatalf("rcode = %d", dns.RCodeFromFlags(h.Flags))
	}
	if h.Authoritative() {
		t.Fatalf("referrals must not set AA")
	}
	if h.NSCount == 0 {
		t.Fatalf("referral must carry the delegation NS set")
	}
}

func TestAnswerTypeTable(t *testing.T) {
	c := testContext(t)
	cases := []struct {
		match   bool
		qlabels int
		qtype   dns.RecordType
		want    zone.AnswerType
	}{
		{false, 1, dns.TypeA, zone.NXDomain},
		{true, 2, dns.TypeDS, zone.TLDReferral},
		{true, 1, dns.TypeDS, zone.TLDDS},
		{true, 1, dns.TypeA, zone.TLDReferral},
		{true, 0, dns.TypeSOA, zone.RootSOA},
		{true, 0, dns.TypeNS, zone.RootNS},
		{true, 0, dns.TypeNSEC, zone.RootNSEC},
		{true, 0, dns.TypeDNSKEY, zone.RootDNSKEY},
		{true, 0, dns.TypeANY, zone.RootAny},
		{true, 0, dns.TypeTXT, zone.RootNoData},
	}
	for _, tc := range cases {
		c.match = tc.match
		c.qlabels = tc.qlabels
		c.qtype = uint16(tc.qtype)
		if got := c.answerType(); got != tc.want {
			t.Fatalf("classify(match=%v labels=%d qtype=%d) = %s, want %s",
				tc.match, tc.qlabels, tc.qtype, got, tc.want)
		}
	}
}
