// Package zone loads a DNSSEC-signed zone from presentation format and
// precomputes, per owner name, the full set of wire-format response
// bodies the query engine can ever need. After Load the zone is
// read-only; reloads publish a fresh Zone through a Handle.
package zone

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/jroosing/apexdns/internal/dns"
	"github.com/jroosing/apexdns/internal/helpers"
)

// Record is one parsed resource record. Owner names are stored
// lowercase without a trailing dot (the apex is the empty string);
// RDATA is already in canonical wire format.
type Record struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  []byte
}

// appendWire appends the record in uncompressed wire format.
func (r Record) appendWire(out []byte) ([]byte, error) {
	name, err := dns.EncodeName(r.Name)
	if err != nil {
		return nil, err
	}
	if len(r.Data) > 65535 {
		return nil, fmt.Errorf("rdata too large: %d bytes", len(r.Data))
	}
	out = append(out, name...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], r.Type)
	binary.BigEndian.PutUint16(fixed[2:4], r.Class)
	binary.BigEndian.PutUint32(fixed[4:8], r.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], helpers.ClampIntToUint16(len(r.Data)))
	out = append(out, fixed...)
	out = append(out, r.Data...)
	return out, nil
}

// coveredType returns the type an RRSIG record signs (first two RDATA
// bytes, RFC 4034 Section 3.1).
func (r Record) coveredType() uint16 {
	if dns.RecordType(r.Type) != dns.TypeRRSIG || len(r.Data) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(r.Data[:2])
}

// nameFromWire decodes an uncompressed wire-format name back to
// presentation text without a trailing dot. Load-time only.
func nameFromWire(b []byte) string {
	var sb strings.Builder
	i := 0
	for i < len(b) {
		n := int(b[i])
		i++
		if n == 0 || i+n > len(b) {
			break
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.Write(b[i : i+n])
		i += n
	}
	return strings.ToLower(sb.String())
}
