package zone

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jroosing/apexdns/internal/dns"
)

// encodeRData converts the presentation-form RDATA tokens of one record
// to canonical wire format (RFC 1035, RFC 4034). Names inside RDATA are
// lowercased per DNSSEC canonical form.
func encodeRData(t dns.RecordType, tokens []string, origin string) ([]byte, error) {
	switch t {
	case dns.TypeA:
		return rdataA(tokens)
	case dns.TypeAAAA:
		return rdataAAAA(tokens)
	case dns.TypeNS:
		return rdataName(tokens, origin)
	case dns.TypeSOA:
		return rdataSOA(tokens, origin)
	case dns.TypeMX:
		return rdataMX(tokens, origin)
	case dns.TypeTXT:
		return rdataTXT(tokens)
	case dns.TypeDS:
		return rdataDS(tokens)
	case dns.TypeDNSKEY:
		return rdataDNSKEY(tokens)
	case dns.TypeRRSIG:
		return rdataRRSIG(tokens, origin)
	case dns.TypeNSEC:
		return rdataNSEC(tokens, origin)
	default:
		return nil, fmt.Errorf("no rdata encoder for type %d", t)
	}
}

// qualify resolves an RDATA name token against the origin and encodes
// it to wire format.
func qualify(name, origin string) ([]byte, error) {
	name = strings.TrimSpace(name)
	if name == "@" {
		name = origin
	}
	if !strings.HasSuffix(name, ".") {
		origin = strings.TrimSuffix(origin, ".")
		if origin != "" {
			name = name + "." + origin
		}
	}
	return dns.EncodeName(name)
}

func rdataA(tokens []string) ([]byte, error) {
	if len(tokens) != 1 {
		return nil, errors.New("A rdata must be a single address")
	}
	addr, err := netip.ParseAddr(tokens[0])
	if err != nil || !addr.Is4() {
		return nil, errors.New("invalid IPv4 address")
	}
	b := addr.As4()
	return b[:], nil
}

func rdataAAAA(tokens []string) ([]byte, error) {
	if len(tokens) != 1 {
		return nil, errors.New("AAAA rdata must be a single address")
	}
	addr, err := netip.ParseAddr(tokens[0])
	if err != nil || !addr.Is6() || addr.Is4In6() {
		return nil, errors.New("invalid IPv6 address")
	}
	b := addr.As16()
	return b[:], nil
}

func rdataName(tokens []string, origin string) ([]byte, error) {
	if len(tokens) != 1 {
		return nil, errors.New("rdata must be a single domain name")
	}
	return qualify(tokens[0], origin)
}

func rdataSOA(tokens []string, origin string) ([]byte, error) {
	if len(tokens) != 7 {
		return nil, errors.New("SOA rdata must have 7 fields")
	}
	mname, err := qualify(tokens[0], origin)
	if err != nil {
		return nil, err
	}
	rname, err := qualify(tokens[1], origin)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(mname)+len(rname)+20)
	out = append(out, mname...)
	out = append(out, rname...)
	for _, tok := range tokens[2:] {
		v, err := parseTTL(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid SOA counter %q", tok)
		}
		out = binary.BigEndian.AppendUint32(out, v)
	}
	return out, nil
}

func rdataMX(tokens []string, origin string) ([]byte, error) {
	if len(tokens) != 2 {
		return nil, errors.New("MX rdata must be preference and exchange")
	}
	pref, err := strconv.ParseUint(tokens[0], 10, 16)
	if err != nil {
		return nil, errors.New("invalid MX preference")
	}
	exch, err := qualify(tokens[1], origin)
	if err != nil {
		return nil, err
	}
	out := binary.BigEndian.AppendUint16(nil, uint16(pref))
	return append(out, exch...), nil
}

func rdataTXT(tokens []string) ([]byte, error) {
	var out []byte
	for _, tok := range tokens {
		s := strings.Trim(tok, `"`)
		if len(s) > 255 {
			return nil, errors.New("TXT string too long")
		}
		out = append(out, byte(len(s)))
		out = append(out, s...)
	}
	return out, nil
}

func rdataDS(tokens []string) ([]byte, error) {
	if len(tokens) < 4 {
		return nil, errors.New("DS rdata must be keytag, algorithm, digest type, digest")
	}
	keyTag, err := strconv.ParseUint(tokens[0], 10, 16)
	if err != nil {
		return nil, errors.New("invalid DS key tag")
	}
	alg, err := strconv.ParseUint(tokens[1], 10, 8)
	if err != nil {
		return nil, errors.New("invalid DS algorithm")
	}
	digType, err := strconv.ParseUint(tokens[2], 10, 8)
	if err != nil {
		return nil, errors.New("invalid DS digest type")
	}
	digest, err := hex.DecodeString(strings.ToLower(strings.Join(tokens[3:], "")))
	if err != nil {
		return nil, errors.New("invalid DS digest hex")
	}
	out := binary.BigEndian.AppendUint16(nil, uint16(keyTag))
	out = append(out, byte(alg), byte(digType))
	return append(out, digest...), nil
}

func rdataDNSKEY(tokens []string) ([]byte, error) {
	if len(tokens) < 4 {
		return nil, errors.New("DNSKEY rdata must be flags, protocol, algorithm, key")
	}
	flags, err := strconv.ParseUint(tokens[0], 10, 16)
	if err != nil {
		return nil, errors.New("invalid DNSKEY flags")
	}
	proto, err := strconv.ParseUint(tokens[1], 10, 8)
	if err != nil {
		return nil, errors.New("invalid DNSKEY protocol")
	}
	alg, err := strconv.ParseUint(tokens[2], 10, 8)
	if err != nil {
		return nil, errors.New("invalid DNSKEY algorithm")
	}
	key, err := base64.StdEncoding.DecodeString(strings.Join(tokens[3:], ""))
	if err != nil {
		return nil, errors.New("invalid DNSKEY base64")
	}
	out := binary.BigEndian.AppendUint16(nil, uint16(flags))
	out = append(out, byte(proto), byte(alg))
	return append(out, key...), nil
}

func rdataRRSIG(tokens []string, origin string) ([]byte, error) {
	if len(tokens) < 9 {
		return nil, errors.New("RRSIG rdata must have 9 fields")
	}
	covered, ok := rrTypeToCode(tokens[0])
	if !ok {
		if v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToUpper(tokens[0]), "TYPE"), 10, 16); err == nil {
			covered = dns.RecordType(v)
		} else {
			return nil, fmt.Errorf("unknown RRSIG covered type %q", tokens[0])
		}
	}
	alg, err := strconv.ParseUint(tokens[1], 10, 8)
	if err != nil {
		return nil, errors.New("invalid RRSIG algorithm")
	}
	labels, err := strconv.ParseUint(tokens[2], 10, 8)
	if err != nil {
		return nil, errors.New("invalid RRSIG label count")
	}
	origTTL, err := strconv.ParseUint(tokens[3], 10, 32)
	if err != nil {
		return nil, errors.New("invalid RRSIG original TTL")
	}
	expiration, err := parseSigTime(tokens[4])
	if err != nil {
		return nil, err
	}
	inception, err := parseSigTime(tokens[5])
	if err != nil {
		return nil, err
	}
	keyTag, err := strconv.ParseUint(tokens[6], 10, 16)
	if err != nil {
		return nil, errors.New("invalid RRSIG key tag")
	}
	signer, err := qualify(tokens[7], origin)
	if err != nil {
		return nil, err
	}
	sig, err := base64.StdEncoding.DecodeString(strings.Join(tokens[8:], ""))
	if err != nil {
		return nil, errors.New("invalid RRSIG base64")
	}

	out := binary.BigEndian.AppendUint16(nil, uint16(covered))
	out = append(out, byte(alg), byte(labels))
	out = binary.BigEndian.AppendUint32(out, uint32(origTTL))
	out = binary.BigEndian.AppendUint32(out, expiration)
	out = binary.BigEndian.AppendUint32(out, inception)
	out = binary.BigEndian.AppendUint16(out, uint16(keyTag))
	out = append(out, signer...)
	return append(out, sig...), nil
}

// parseSigTime accepts RFC 4034 YYYYMMDDHHmmSS timestamps or raw
// seconds-since-epoch integers.
func parseSigTime(s string) (uint32, error) {
	if len(s) == 14 {
		t, err := time.Parse("20060102150405", s)
		if err == nil {
			return uint32(t.Unix()), nil
		}
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid signature time %q", s)
	}
	return uint32(v), nil
}

func rdataNSEC(tokens []string, origin string) ([]byte, error) {
	if len(tokens) < 1 {
		return nil, errors.New("NSEC rdata must have a next name")
	}
	next, err := qualify(tokens[0], origin)
	if err != nil {
		return nil, err
	}
	types := make([]uint16, 0, len(tokens)-1)
	for _, tok := range tokens[1:] {
		code, ok := rrTypeToCode(tok)
		if !ok {
			switch strings.ToUpper(tok) {
			case "CAA":
				code = 257
			case "PTR":
				code = dns.TypePTR
			case "CNAME":
				code = dns.TypeCNAME
			default:
				if v, perr := strconv.ParseUint(strings.TrimPrefix(strings.ToUpper(tok), "TYPE"), 10, 16); perr == nil {
					code = dns.RecordType(v)
				} else {
					return nil, fmt.Errorf("unknown NSEC type %q", tok)
				}
			}
		}
		types = append(types, uint16(code))
	}
	return append(next, typeBitmap(types)...), nil
}

// typeBitmap encodes an NSEC type bitmap (RFC 4034 Section 4.1.2):
// per 256-type window, a window number, an octet count, and a bitmap
// with bit (7 - type%8) of octet type%256/8 set.
func typeBitmap(types []uint16) []byte {
	if len(types) == 0 {
		return nil
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var out []byte
	window := -1
	var bits [32]byte
	maxOctet := 0

	flush := func() {
		if window < 0 {
			return
		}
		out = append(out, byte(window), byte(maxOctet+1))
		out = append(out, bits[:maxOctet+1]...)
	}

	for _, t := range types {
		w := int(t >> 8)
		if w != window {
			flush()
			window = w
			bits = [32]byte{}
			maxOctet = 0
		}
		lo := int(t & 0xFF)
		octet := lo / 8
		bits[octet] |= 1 << (7 - lo%8)
		if octet > maxOctet {
			maxOctet = octet
		}
	}
	flush()
	return out
}
