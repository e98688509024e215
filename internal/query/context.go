// Package query implements the per-query state machine: it validates a
// raw DNS message, classifies the question against the zone, selects a
// precomputed answer and assembles the response as a vector of I/O
// segments for gather-write transmission.
package query

import (
	"github.com/jroosing/apexdns/internal/buffer"
	"github.com/jroosing/apexdns/internal/dns"
	"github.com/jroosing/apexdns/internal/zone"
)

// headBufSize bounds the response head segment: an optional TCP length
// word, the 12-byte header and a question of at most 259 bytes.
const headBufSize = 512

// Context is the reusable per-worker query state. It owns fixed scratch
// buffers and performs no allocation per query; the answer segment it
// emits is a borrowed view into the zone's precomputed wire bytes.
//
// A Context serves one query at a time. The segments returned by
// Execute alias its buffers and the zone and are valid until the next
// Execute call.
type Context struct {
	zones *zone.Handle

	headBuf [headBufSize]byte
	optBuf  [dns.OptRRSize]byte
	nameBuf [dns.MaxNameSize]byte

	in   buffer.ReadBuffer
	head buffer.WriteBuffer

	qname   []byte
	qtype   uint16
	qdstart int
	qdsize  int
	qlabels int
	bufsize int
	match   bool
	hasEDNS bool
	doBit   bool
	tc      bool
	rcode   uint16

	segs [][]byte
}

// NewContext returns a Context answering from the zones handle. Each
// worker owns one; Contexts are not safe for concurrent use.
func NewContext(zones *zone.Handle) *Context {
	c := &Context{zones: zones}
	c.head.Load(c.headBuf[:])
	c.segs = make([][]byte, 0, 3)
	return c
}

// reset returns the context to its initial state.
func (c *Context) reset() {
	c.qname = nil
	c.qtype = 0
	c.qdstart = 0
	c.qdsize = 0
	c.qlabels = 0
	c.bufsize = dns.DefaultUDPPayloadSize
	c.match = false
	c.hasEDNS = false
	c.doBit = false
	c.tc = false
	c.rcode = uint16(dns.RCodeNoError)
	c.head.Reset()
	c.segs = c.segs[:0]
}

// RCode reports the rcode of the last executed query, including the
// extended BADVERS value.
func (c *Context) RCode() uint16 { return c.rcode }

// Truncated reports whether the last response carried the TC bit.
func (c *Context) Truncated() bool { return c.tc }

// QType reports the qtype of the last executed query.
func (c *Context) QType() uint16 { return c.qtype }

// QName returns a copy of the last query's lookup name.
func (c *Context) QName() string { return string(c.qname) }

// Execute processes one DNS message and returns the response as I/O
// segments. It returns ok=false only when no response at all should be
// emitted: a TCP frame whose length word is missing or overruns the
// buffer, an input shorter than the minimum viable query, or a message
// with the QR bit set. Past those checks every path produces a
// response; parse failures become response rcodes.
//
// For TCP, in must start with the 2-byte length prefix and the returned
// head segment starts with the response's own length word.
func (c *Context) Execute(in []byte, tcp bool) ([][]byte, bool) {
	c.reset()

	msg := in
	if tcp {
		if len(in) < 2 {
			return nil, false
		}
		n := int(in[0])<<8 | int(in[1])
		if len(in)-2 < n {
			return nil, false
		}
		msg = in[2 : 2+n]
	}
	c.in.Load(msg)

	// Minimum viable query: header + root qname + qtype + qclass.
	if c.in.Available() < dns.MinQuerySize {
		return nil, false
	}

	id, _ := c.in.ReadUint16()
	flags, _ := c.in.ReadUint16()
	qdcount, _ := c.in.ReadUint16()
	ancount, _ := c.in.ReadUint16()
	nscount, _ := c.in.ReadUint16()
	arcount, _ := c.in.ReadUint16()

	// Never answer a response.
	if flags&dns.QRFlag != 0 {
		return nil, false
	}

	// Point of no return: everything below emits a response.

	answer := zone.Empty
	if !validHeader(flags, qdcount, ancount, nscount, arcount) {
		c.rcode = uint16(dns.RCodeFormErr)
	} else if opcode := (flags & dns.OpcodeMask) >> 11; opcode != dns.OpcodeQuery {
		c.rcode = uint16(dns.RCodeNotImp)
	} else {
		c.parsePacket()
		if c.rcode == uint16(dns.RCodeNoError) {
			answer = c.performLookup()
		}
	}

	// Total response length, needed for TCP framing and truncation.
	totalLen := dns.HeaderSize + c.qdsize + answer.Size()
	if !c.hasEDNS {
		totalLen -= dns.OptRRSize
	}

	c.tc = !tcp && totalLen > c.bufsize
	if c.tc {
		answer = zone.Empty
		totalLen = dns.HeaderSize + c.qdsize + answer.Size()
		if !c.hasEDNS {
			totalLen -= dns.OptRRSize
		}
	}

	// Head segment: optional TCP length word, header, question echo.
	// The head buffer is statically large enough for all of it.
	if tcp {
		_ = c.head.WriteUint16(uint16(totalLen))
	}

	outFlags := flags & dns.OpcodeMask // copy opcode
	if outFlags == 0 {                 // a QUERY also keeps RD and CD
		outFlags |= flags & (dns.RDFlag | dns.CDFlag)
	}
	outFlags |= dns.QRFlag
	outFlags |= c.rcode & dns.RCodeMask
	if c.tc {
		outFlags |= dns.TCFlag
	}
	if answer.Authoritative {
		outFlags |= dns.AAFlag
	}

	outQD := uint16(0)
	if c.qdsize > 0 {
		outQD = 1
	}
	outAR := answer.ARCount
	if !c.hasEDNS {
		outAR--
	}

	_ = c.head.WriteUint16(id)
	_ = c.head.WriteUint16(outFlags)
	_ = c.head.WriteUint16(outQD)
	_ = c.head.WriteUint16(answer.ANCount)
	_ = c.head.WriteUint16(answer.NSCount)
	_ = c.head.WriteUint16(outAR)

	if c.qdsize > 0 {
		q, err := c.in.Slice(c.qdstart, c.qdsize)
		if err == nil {
			_ = c.head.WriteBytes(q)
		}
	}

	c.segs = append(c.segs, c.head.Bytes())

	if body := answer.Body(); len(body) > 0 {
		c.segs = append(c.segs, body)
	}

	// The OPT RR is echoed only to EDNS requesters. Its extended-rcode
	// byte depends on this query, so it is patched on the context's own
	// copy; the shared answer bytes are never written to.
	if c.hasEDNS {
		copy(c.optBuf[:], answer.OptTemplate())
		c.optBuf[dns.OptExtRCodeOffset] = byte(c.rcode >> 4)
		c.segs = append(c.segs, c.optBuf[:])
	}

	return c.segs, true
}

// validHeader enforces the query shape this server accepts: no rcode,
// exactly one question, empty answer and authority sections, and at
// most one additional record (the OPT RR).
func validHeader(flags, qdcount, ancount, nscount, arcount uint16) bool {
	if flags&dns.RCodeMask != 0 {
		return false
	}
	if qdcount != 1 {
		return false
	}
	if ancount != 0 || nscount != 0 {
		return false
	}
	return arcount <= 1
}

// parsePacket parses the question and optional OPT RR, leaving any
// failure in c.rcode.
func (c *Context) parsePacket() {
	c.parseQuestion()
	if c.rcode != uint16(dns.RCodeNoError) {
		return
	}
	c.parseEDNS()
	if c.rcode != uint16(dns.RCodeNoError) {
		return
	}
	// Trailing garbage after the OPT RR.
	if c.in.Available() > 0 {
		c.rcode = uint16(dns.RCodeFormErr)
	}
}

func (c *Context) parseQuestion() {
	c.qdstart = c.in.Position()

	qname, labels, err := dns.ParseQName(&c.in, c.nameBuf[:])
	if err != nil {
		c.rcode = uint16(dns.RCodeFormErr)
		return
	}
	c.qname = qname
	c.qlabels = labels

	if c.in.Available() < 4 {
		c.rcode = uint16(dns.RCodeFormErr)
		return
	}
	c.qtype, _ = c.in.ReadUint16()
	qclass, _ := c.in.ReadUint16()

	// From here on responses echo the question section.
	c.qdsize = c.in.Position() - c.qdstart

	// Meta qtypes other than ANY are not served.
	if c.qtype >= dns.MetaTypeLow && c.qtype < dns.MetaTypeHigh {
		c.rcode = uint16(dns.RCodeNotImp)
		return
	}
	if qclass != uint16(dns.ClassIN) {
		c.rcode = uint16(dns.RCodeNotImp)
		return
	}
}

func (c *Context) parseEDNS() {
	if c.in.Available() == 0 {
		return
	}
	if c.in.Available() < dns.OptRRSize {
		c.rcode = uint16(dns.RCodeFormErr)
		return
	}

	// OPT RR owner must be the root.
	owner, _ := c.in.ReadUint8()
	if owner != 0 {
		c.rcode = uint16(dns.RCodeFormErr)
		return
	}
	rrType, _ := c.in.ReadUint16()
	if rrType != uint16(dns.TypeOPT) {
		c.rcode = uint16(dns.RCodeFormErr)
		return
	}

	size, _ := c.in.ReadUint16()
	c.bufsize = int(size)
	if c.bufsize < dns.DefaultUDPPayloadSize {
		c.bufsize = dns.DefaultUDPPayloadSize
	}

	_, _ = c.in.ReadUint8() // requester's extended rcode, ignored
	version, _ := c.in.ReadUint8()
	flags, _ := c.in.ReadUint16()
	rdlen, _ := c.in.ReadUint16()

	if c.in.Available() < int(rdlen) {
		c.rcode = uint16(dns.RCodeFormErr)
		return
	}
	_, _ = c.in.ReadBytes(int(rdlen)) // EDNS options are not inspected

	// A valid OPT RR was presented, so the response carries one even if
	// the version is unsupported.
	c.hasEDNS = true
	c.doBit = flags&dns.EDNSDOFlag != 0

	if version > 0 {
		c.rcode = uint16(dns.RCodeBadVers)
	}
}

// performLookup resolves the parsed question against the current zone
// and picks the precomputed answer.
func (c *Context) performLookup() *zone.Answer {
	z := c.zones.Current()
	if z == nil {
		c.rcode = uint16(dns.RCodeServFail)
		return zone.Empty
	}
	entry, match := z.Lookup(c.qname)
	if entry == nil {
		c.rcode = uint16(dns.RCodeServFail)
		return zone.Empty
	}
	c.match = match
	if match {
		c.rcode = uint16(dns.RCodeNoError)
	} else {
		c.rcode = uint16(dns.RCodeNXDomain)
	}
	return entry.Answer(c.answerType(), c.doBit)
}

// answerType classifies the query. It is a pure function of the lookup
// outcome, the label count and the qtype.
func (c *Context) answerType() zone.AnswerType {
	switch {
	case !c.match:
		return zone.NXDomain
	case c.qlabels > 1:
		return zone.TLDReferral
	case c.qlabels == 1:
		if c.qtype == uint16(dns.TypeDS) {
			return zone.TLDDS
		}
		return zone.TLDReferral
	default:
		switch dns.RecordType(c.qtype) {
		case dns.TypeSOA:
			return zone.RootSOA
		case dns.TypeNS:
			return zone.RootNS
		case dns.TypeNSEC:
			return zone.RootNSEC
		case dns.TypeDNSKEY:
			return zone.RootDNSKEY
		case dns.TypeANY:
			return zone.RootAny
		default:
			return zone.RootNoData
		}
	}
}
