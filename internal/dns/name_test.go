package dns

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jroosing/apexdns/internal/buffer"
)

func parseQName(t *testing.T, wire []byte) ([]byte, int, error) {
	t.Helper()
	rb := buffer.NewReadBuffer(wire)
	dst := make([]byte, 0, MaxLabelSize)
	return ParseQName(rb, dst[:cap(dst)])
}

func TestParseQNameRoot(t *testing.T) {
	name, labels, err := parseQName(t, []byte{0})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if labels != 0 || len(name) != 0 {
		t.Fatalf("root = %q (%d labels)", name, labels)
	}
}

func TestParseQNameReturnsFinalLabel(t *testing.T) {
	// www.Example. -> key "example", 2 labels
	wire := []byte{3, 'w', 'w', 'w', 7, 'E', 'x', 'a', 'm', 'p', 'l', 'e', 0}
	name, labels, err := parseQName(t, wire)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if labels != 2 {
		t.Fatalf("labels = %d, want 2", labels)
	}
	if !bytes.Equal(name, []byte("example")) {
		t.Fatalf("name = %q, want %q", name, "example")
	}
}

func TestParseQNameCaseFolding(t *testing.T) {
	upper := []byte{3, 'C', 'O', 'M', 0}
	lower := []byte{3, 'c', 'o', 'm', 0}
	a, _, err := parseQName(t, upper)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, _, err := parseQName(t, lower)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("case folding broken: %q vs %q", a, b)
	}
}

func TestParseQNameRejectsCompression(t *testing.T) {
	for _, b := range []byte{0xC0, 0x40, 0x80} {
		if _, _, err := parseQName(t, []byte{b, 0x0C, 0}); !errors.Is(err, ErrDNSError) {
			t.Fatalf("length byte %02x: expected ErrDNSError, got %v", b, err)
		}
	}
}

func TestParseQNameRejectsOverlongName(t *testing.T) {
	// Five 63-byte labels exceed the 255-byte total.
	var wire []byte
	for range 5 {
		wire = append(wire, 63)
		wire = append(wire, bytes.Repeat([]byte{'a'}, 63)...)
	}
	wire = append(wire, 0)
	if _, _, err := parseQName(t, wire); !errors.Is(err, ErrDNSError) {
		t.Fatalf("expected ErrDNSError, got %v", err)
	}
}

func TestParseQNameRejectsTruncation(t *testing.T) {
	// Length byte promises 7 bytes, only 3 present.
	wire := []byte{7, 'e', 'x', 'a'}
	if _, _, err := parseQName(t, wire); !errors.Is(err, ErrDNSError) {
		t.Fatalf("expected ErrDNSError, got %v", err)
	}
	// Missing root label entirely.
	wire = []byte{3, 'c', 'o', 'm'}
	if _, _, err := parseQName(t, wire); !errors.Is(err, ErrDNSError) {
		t.Fatalf("expected ErrDNSError, got %v", err)
	}
}

func TestParseQNameLeavesCursorAfterName(t *testing.T) {
	wire := []byte{3, 'c', 'o', 'm', 0, 0x00, 0x01, 0x00, 0x01}
	rb := buffer.NewReadBuffer(wire)
	dst := make([]byte, MaxLabelSize)
	if _, _, err := ParseQName(rb, dst); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rb.Position() != 5 {
		t.Fatalf("cursor = %d, want 5", rb.Position())
	}
	qtype, err := rb.ReadUint16()
	if err != nil || qtype != 1 {
		t.Fatalf("qtype = %d, %v", qtype, err)
	}
}

func TestEncodeName(t *testing.T) {
	cases := []struct {
		in   string
		want []byte
	}{
		{"", []byte{0}},
		{".", []byte{0}},
		{"com", []byte{3, 'c', 'o', 'm', 0}},
		{"com.", []byte{3, 'c', 'o', 'm', 0}},
		{"A.Example.", []byte{1, 'a', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 0}},
	}
	for _, tc := range cases {
		got, err := EncodeName(tc.in)
		if err != nil {
			t.Fatalf("EncodeName(%q): %v", tc.in, err)
		}
		if !bytes.Equal(got, tc.want) {
			t.Fatalf("EncodeName(%q) = % x, want % x", tc.in, got, tc.want)
		}
	}
}

func TestEncodeNameRejectsBadLabels(t *testing.T) {
	if _, err := EncodeName("a..b"); !errors.Is(err, ErrDNSError) {
		t.Fatalf("empty label: expected ErrDNSError, got %v", err)
	}
	long := bytes.Repeat([]byte{'x'}, 64)
	if _, err := EncodeName(string(long)); !errors.Is(err, ErrDNSError) {
		t.Fatalf("long label: expected ErrDNSError, got %v", err)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{ID: 0x1234, Flags: QRFlag | AAFlag | 3, QDCount: 1, ARCount: 1}
	b := h.Marshal()
	got, err := ParseHeader(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != h {
		t.Fatalf("round trip: %+v != %+v", got, h)
	}
	if !got.IsResponse() || !got.Authoritative() || got.Truncated() {
		t.Fatalf("flag accessors wrong: %+v", got)
	}
	if RCodeFromFlags(got.Flags) != RCodeNXDomain {
		t.Fatalf("rcode = %d", RCodeFromFlags(got.Flags))
	}
}
