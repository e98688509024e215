package dns

import (
	"fmt"
	"strings"

	"github.com/jroosing/apexdns/internal/buffer"
)

// ParseQName consumes a question-section name from rb and returns the
// zone lookup key plus the label count (excluding the root label).
//
// Question names must be uncompressed (RFC 1035 Section 4.1.2): any
// length byte with either of its top two bits set is rejected, as is a
// name whose encoded form exceeds 255 bytes or that runs off the end of
// the buffer.
//
// The lookup key is the lowercased FINAL label of the qname, written
// into dst (which must have capacity for a full label). In a root zone
// every authoritative owner is a single label, so the final label of any
// qname is the candidate delegation: for "www.example." the key is
// "example", for the root itself it is the empty string. ASCII-only
// folding; bytes outside 'A'..'Z' pass through unchanged.
func ParseQName(rb *buffer.ReadBuffer, dst []byte) (qname []byte, labels int, err error) {
	total := 0
	last := rb.Position()

	for rb.Available() > 0 {
		c, rerr := rb.ReadUint8()
		if rerr != nil {
			return nil, 0, fmt.Errorf("%w: truncated name", ErrDNSError)
		}
		if c == 0 {
			// One beyond the root label; [last, here) is the final label
			// plus the root byte.
			n := rb.Position() - last - 1
			raw, serr := rb.Slice(last, n)
			if serr != nil {
				return nil, 0, fmt.Errorf("%w: truncated name", ErrDNSError)
			}
			return foldLower(raw, dst), labels, nil
		}

		// remember the start of this label
		last = rb.Position()
		labels++

		// No compression (or reserved label types) in the question.
		if c&0xC0 != 0 {
			return nil, 0, fmt.Errorf("%w: compression pointer in question name", ErrDNSError)
		}

		total += int(c) + 1 // label bytes plus the length byte
		if total > MaxNameSize {
			return nil, 0, fmt.Errorf("%w: name exceeds %d bytes", ErrDNSError, MaxNameSize)
		}

		if rb.Available() < int(c) {
			return nil, 0, fmt.Errorf("%w: truncated label", ErrDNSError)
		}
		if _, rerr := rb.ReadBytes(int(c)); rerr != nil {
			return nil, 0, fmt.Errorf("%w: truncated label", ErrDNSError)
		}
	}

	return nil, 0, fmt.Errorf("%w: name missing root label", ErrDNSError)
}

// foldLower writes the ASCII-lowercased form of src into dst[:0] and
// returns the filled slice. dst must have capacity >= len(src).
func foldLower(src, dst []byte) []byte {
	out := dst[:len(src)]
	for i, b := range src {
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
	return out
}

// NormalizeName converts a domain name to lowercase without a trailing
// dot, for case-insensitive comparisons per RFC 4343.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// EncodeName encodes a domain name to uncompressed DNS wire format
// (RFC 1035 Section 3.1), lowercasing it to DNSSEC canonical form
// (RFC 4034 Section 6.2).
//
// Example: "Example.com." -> [7]"example"[3]"com"[0]
//
// "" and "." both encode to the root name (a single zero byte).
func EncodeName(domain string) ([]byte, error) {
	domain = NormalizeName(domain)
	if domain == "" {
		return []byte{0}, nil
	}

	out := make([]byte, 0, len(domain)+2)
	labelStart := 0
	for i := 0; i <= len(domain); i++ {
		if i == len(domain) || domain[i] == '.' {
			if i == labelStart {
				return nil, fmt.Errorf("%w: empty label in %q", ErrDNSError, domain)
			}
			label := domain[labelStart:i]

			for j := range len(label) {
				if label[j] > 0x7F {
					return nil, fmt.Errorf("%w: name must be ASCII", ErrDNSError)
				}
			}
			if len(label) > MaxLabelSize {
				return nil, fmt.Errorf("%w: label too long (%d > %d): %q", ErrDNSError, len(label), MaxLabelSize, label)
			}

			out = append(out, byte(len(label)))
			out = append(out, label...)
			labelStart = i + 1
		}
	}
	out = append(out, 0)

	if len(out) > MaxNameSize {
		return nil, fmt.Errorf("%w: encoded name too long (%d > %d)", ErrDNSError, len(out), MaxNameSize)
	}
	return out, nil
}
