package dns

import (
	"encoding/binary"
	"fmt"
)

// Header represents a DNS message header (RFC 1035 Section 4.1.1).
//
// The header is always 12 bytes:
//   - ID: 16-bit identifier for matching requests to responses
//   - Flags: QR, Opcode, AA, TC, RD, RA, Z, AD, CD, RCODE
//   - QDCount/ANCount/NSCount/ARCount: section entry counts
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Marshal serializes the header to wire format (big-endian, 12 bytes).
func (h Header) Marshal() []byte {
	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(b[0:2], h.ID)
	binary.BigEndian.PutUint16(b[2:4], h.Flags)
	binary.BigEndian.PutUint16(b[4:6], h.QDCount)
	binary.BigEndian.PutUint16(b[6:8], h.ANCount)
	binary.BigEndian.PutUint16(b[8:10], h.NSCount)
	binary.BigEndian.PutUint16(b[10:12], h.ARCount)
	return b
}

// ParseHeader parses a DNS header from the start of msg.
func ParseHeader(msg []byte) (Header, error) {
	if len(msg) < HeaderSize {
		return Header{}, fmt.Errorf("%w: short header", ErrDNSError)
	}
	return Header{
		ID:      binary.BigEndian.Uint16(msg[0:2]),
		Flags:   binary.BigEndian.Uint16(msg[2:4]),
		QDCount: binary.BigEndian.Uint16(msg[4:6]),
		ANCount: binary.BigEndian.Uint16(msg[6:8]),
		NSCount: binary.BigEndian.Uint16(msg[8:10]),
		ARCount: binary.BigEndian.Uint16(msg[10:12]),
	}, nil
}

// Opcode extracts the 4-bit opcode from the flags field (bits 14-11).
func (h Header) Opcode() uint16 {
	return (h.Flags & OpcodeMask) >> 11
}

// IsResponse returns true if the QR flag is set.
func (h Header) IsResponse() bool {
	return h.Flags&QRFlag != 0
}

// Authoritative returns true if the AA flag is set.
func (h Header) Authoritative() bool {
	return h.Flags&AAFlag != 0
}

// Truncated returns true if the TC flag is set.
func (h Header) Truncated() bool {
	return h.Flags&TCFlag != 0
}

// RecursionDesired returns true if the RD flag is set.
func (h Header) RecursionDesired() bool {
	return h.Flags&RDFlag != 0
}
