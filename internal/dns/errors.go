// Package dns provides the DNS wire-format constants and codecs used by
// the query engine: header layout, flag masks, record type and rcode
// values, and the question-name codec.
//
// Standards Compliance:
//
//   - RFC 1035: Domain Names - Implementation and Specification
//   - RFC 4034: Resource Records for the DNS Security Extensions
//   - RFC 6891: Extension Mechanisms for DNS (EDNS)
//
// Error Handling:
//
// All errors wrap the ErrDNSError sentinel with fmt.Errorf("...: %w", ...)
// so callers can classify them with errors.Is.
package dns

import "errors"

var (
	// ErrDNSError is a sentinel error type for DNS wire-format violations.
	ErrDNSError = errors.New("dns wire error")
)
