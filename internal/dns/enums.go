package dns

// DNS header flags and masks (RFC 1035 Section 4.1.1)
//
// The DNS header contains a 16-bit flags field with the following layout:
//
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|QR|   Opcode  |AA|TC|RD|RA| Z|AD|CD|   RCODE   |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	 15 14 13 12 11 10  9  8  7  6  5  4  3  2  1  0
const (
	QRFlag     uint16 = 0x8000 // Query/Response: 1 = response, 0 = query
	OpcodeMask uint16 = 0x7800 // Bits 14-11: operation type (use >> 11 to extract)
	AAFlag     uint16 = 0x0400 // Authoritative Answer
	TCFlag     uint16 = 0x0200 // Truncation: message was truncated
	RDFlag     uint16 = 0x0100 // Recursion Desired
	RAFlag     uint16 = 0x0080 // Recursion Available
	ZFlag      uint16 = 0x0040 // Reserved (must be zero in queries)
	ADFlag     uint16 = 0x0020 // Authenticated Data (DNSSEC)
	CDFlag     uint16 = 0x0010 // Checking Disabled (DNSSEC)
	RCodeMask  uint16 = 0x000F // Bits 3-0: response code
)

// OpcodeQuery is the only opcode this server answers (RFC 1035).
const OpcodeQuery = 0

// RecordType represents DNS resource record types (RFC 1035, RFC 4034).
type RecordType uint16

const (
	TypeA      RecordType = 1   // IPv4 address
	TypeNS     RecordType = 2   // Authoritative name server
	TypeCNAME  RecordType = 5   // Canonical name (alias)
	TypeSOA    RecordType = 6   // Start of Authority
	TypePTR    RecordType = 12  // Domain name pointer
	TypeMX     RecordType = 15  // Mail exchange
	TypeTXT    RecordType = 16  // Text strings
	TypeAAAA   RecordType = 28  // IPv6 address (RFC 3596)
	TypeOPT    RecordType = 41  // EDNS pseudo-record (RFC 6891)
	TypeDS     RecordType = 43  // Delegation signer (RFC 4034)
	TypeRRSIG  RecordType = 46  // Resource record signature (RFC 4034)
	TypeNSEC   RecordType = 47  // Next secure (RFC 4034)
	TypeDNSKEY RecordType = 48  // DNS public key (RFC 4034)
	TypeANY    RecordType = 255 // Pseudo-type: all records (QTYPE only)
)

// Meta qtypes occupy [128, 255); queries for them (other than ANY) are
// answered with NOTIMPL.
const (
	MetaTypeLow  = 128
	MetaTypeHigh = 255
)

// RecordClass represents DNS resource record classes (RFC 1035).
type RecordClass uint16

const (
	ClassIN RecordClass = 1 // Internet class
)

// RCode represents DNS response codes (RFC 1035, RFC 6891).
type RCode uint16

const (
	RCodeNoError  RCode = 0  // No error
	RCodeFormErr  RCode = 1  // Format error: query malformed
	RCodeServFail RCode = 2  // Server failure: internal error
	RCodeNXDomain RCode = 3  // Non-existent domain
	RCodeNotImp   RCode = 4  // Not implemented: unsupported query shape
	RCodeRefused  RCode = 5  // Query refused by policy
	RCodeBadVers  RCode = 16 // EDNS version not supported (RFC 6891)
)

// RCodeFromFlags extracts the response code from the DNS header flags.
func RCodeFromFlags(flags uint16) RCode {
	return RCode(flags & RCodeMask)
}

// Wire-format size constants.
const (
	// HeaderSize is the fixed size of a DNS message header in bytes.
	HeaderSize = 12

	// MinQuerySize is the smallest viable DNS query: a header, a root
	// qname, qtype and qclass. Anything shorter is dropped unanswered.
	MinQuerySize = HeaderSize + 1 + 2 + 2

	// OptRRSize is the size of an EDNS OPT RR with empty RDATA: root
	// owner (1) + type (2) + class (2) + TTL (4) + rdlen (2).
	OptRRSize = 11

	// OptExtRCodeOffset is the offset of the extended-rcode byte within
	// an empty OPT RR.
	OptExtRCodeOffset = 5

	// MaxNameSize is the maximum encoded length of a DNS name (RFC 1035).
	MaxNameSize = 255

	// MaxLabelSize is the maximum length of a single label (RFC 1035).
	MaxLabelSize = 63
)

// EDNS (Extension Mechanisms for DNS) constants per RFC 6891.
const (
	DefaultUDPPayloadSize     = 512  // Traditional DNS UDP limit (RFC 1035)
	EDNSDefaultUDPPayloadSize = 1232 // Safe EDNS size avoiding fragmentation
	EDNSDOFlag                = 0x8000
)
