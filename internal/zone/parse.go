package zone

import (
	"bufio"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/jroosing/apexdns/internal/dns"
)

// parseText reads presentation-format zone data: $ORIGIN/$TTL
// directives, ';' comments, parentheses continuations, owner
// inheritance. Records of types this server does not serve are skipped.
// When no $ORIGIN is present the origin defaults to the root.
func parseText(text string) ([]Record, string, error) {
	origin := "."
	defaultTTL := uint32(86400)
	lastOwner := ""
	sawOwner := false
	recs := make([]Record, 0, 64)

	for _, line := range logicalLines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "$ORIGIN") {
			parts := strings.Fields(line)
			if len(parts) != 2 {
				return nil, "", errors.New("invalid $ORIGIN directive")
			}
			origin = parts[1]
			continue
		}
		if strings.HasPrefix(upper, "$TTL") {
			parts := strings.Fields(line)
			if len(parts) != 2 {
				return nil, "", errors.New("invalid $TTL directive")
			}
			ttl, err := parseTTL(parts[1])
			if err != nil {
				return nil, "", err
			}
			defaultTTL = ttl
			continue
		}

		tokens := strings.Fields(line)
		owner, rest, err := parseOwner(tokens, origin, lastOwner, sawOwner)
		if err != nil {
			return nil, "", err
		}
		lastOwner = owner
		sawOwner = true

		ttl, class, typ, rdata, err := parseRRFields(rest, defaultTTL)
		if err != nil {
			return nil, "", err
		}
		typeCode, ok := rrTypeToCode(typ)
		if !ok {
			continue // unsupported type, e.g. NSEC3PARAM in some feeds
		}
		wire, err := encodeRData(typeCode, rdata, origin)
		if err != nil {
			return nil, "", err
		}

		recs = append(recs, Record{Name: owner, Type: uint16(typeCode), Class: class, TTL: ttl, Data: wire})
	}

	return recs, origin, nil
}

// --- line assembly ---

func logicalLines(text string) []string {
	// Join parentheses blocks and strip ';' comments per-line first.
	var (
		buf     []string
		depth   int
		out     []string
		scanner = bufio.NewScanner(strings.NewReader(text))
	)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		line = strings.TrimRight(line, " \t\r\n")
		if strings.TrimSpace(line) == "" && depth == 0 {
			continue
		}
		depth += strings.Count(line, "(")
		depth -= strings.Count(line, ")")
		buf = append(buf, line)
		if depth <= 0 {
			joined := strings.Join(buf, " ")
			buf = buf[:0]
			depth = 0
			joined = strings.ReplaceAll(joined, "(", " ")
			joined = strings.ReplaceAll(joined, ")", " ")
			joined = strings.TrimSpace(joined)
			if joined != "" {
				out = append(out, joined)
			}
		}
	}
	if len(buf) > 0 {
		return append(out, "") // unbalanced parentheses; force an error later
	}
	return out
}

func stripComment(line string) string {
	// A ';' inside a quoted TXT string is literal.
	inQuote := false
	for i := range len(line) {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				return line[:i]
			}
		}
	}
	return line
}

// --- field parsing ---

// normalizeOwner maps an owner token to a zone-relative key: lowercase,
// no trailing dot, the apex as "". Fully qualified names under the
// origin are made relative; names outside it keep their full form.
func normalizeOwner(name, origin string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	origin = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(origin), "."))
	if name == "@" || name == "." {
		return ""
	}
	if strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
		if origin != "" {
			if name == origin {
				return ""
			}
			name = strings.TrimSuffix(name, "."+origin)
		}
		return name
	}
	// Relative name: qualify under the origin.
	if origin == "" {
		return name
	}
	return name + "." + origin
}

var ttlRE = regexp.MustCompile(`^(?:\d+[wdhmsWDHMS]?)+$`)

func looksLikeTTL(tok string) bool { return ttlRE.MatchString(strings.TrimSpace(tok)) }

func looksLikeClass(tok string) bool { return strings.ToUpper(tok) == "IN" }

func looksLikeType(tok string) bool {
	_, ok := rrTypeToCode(strings.ToUpper(tok))
	return ok
}

func parseOwner(tokens []string, origin, lastOwner string, sawOwner bool) (string, []string, error) {
	if len(tokens) == 0 {
		return "", nil, errors.New("invalid empty RR")
	}
	first := tokens[0]
	if looksLikeTTL(first) || looksLikeClass(first) || looksLikeType(first) {
		if !sawOwner {
			return "", nil, errors.New("owner name omitted on first RR")
		}
		return lastOwner, tokens, nil
	}
	return normalizeOwner(first, origin), tokens[1:], nil
}

func parseRRFields(rest []string, defaultTTL uint32) (uint32, uint16, string, []string, error) {
	var (
		haveTTL   bool
		haveClass bool
		idx       int
	)
	ttl := defaultTTL
	class := uint16(dns.ClassIN)
	for idx < len(rest) {
		tok := rest[idx]
		if !haveTTL && looksLikeTTL(tok) {
			n, err := parseTTL(tok)
			if err != nil {
				return 0, 0, "", nil, err
			}
			ttl = n
			haveTTL = true
			idx++
			continue
		}
		if !haveClass && looksLikeClass(tok) {
			haveClass = true
			idx++
			continue
		}
		break
	}
	if idx >= len(rest) {
		return 0, 0, "", nil, errors.New("missing RR type")
	}
	typ := strings.ToUpper(rest[idx])
	idx++
	if idx >= len(rest) {
		return 0, 0, "", nil, errors.New("missing RR rdata")
	}
	return ttl, class, typ, rest[idx:], nil
}

func parseTTL(tok string) (uint32, error) {
	tok = strings.TrimSpace(tok)
	if !ttlRE.MatchString(tok) {
		return 0, errors.New("TTL must be integer seconds or use w/d/h/m/s suffixes")
	}
	total := uint64(0)
	num := ""
	flush := func(unit byte) error {
		if num == "" {
			return nil
		}
		n, err := strconv.ParseUint(num, 10, 64)
		if err != nil {
			return errors.New("invalid TTL")
		}
		num = ""
		mul := uint64(1)
		switch unit {
		case 's':
			mul = 1
		case 'm':
			mul = 60
		case 'h':
			mul = 3600
		case 'd':
			mul = 86400
		case 'w':
			mul = 604800
		}
		total += n * mul
		if total > uint64(^uint32(0)) {
			return errors.New("TTL too large")
		}
		return nil
	}
	for i := range len(tok) {
		c := tok[i]
		if c >= '0' && c <= '9' {
			num += string(c)
			continue
		}
		if err := flush(strings.ToLower(string(c))[0]); err != nil {
			return 0, err
		}
	}
	if err := flush('s'); err != nil {
		return 0, err
	}
	return uint32(total), nil
}

func rrTypeToCode(typ string) (dns.RecordType, bool) {
	switch strings.ToUpper(typ) {
	case "A":
		return dns.TypeA, true
	case "AAAA":
		return dns.TypeAAAA, true
	case "NS":
		return dns.TypeNS, true
	case "SOA":
		return dns.TypeSOA, true
	case "MX":
		return dns.TypeMX, true
	case "TXT":
		return dns.TypeTXT, true
	case "DS":
		return dns.TypeDS, true
	case "DNSKEY":
		return dns.TypeDNSKEY, true
	case "RRSIG":
		return dns.TypeRRSIG, true
	case "NSEC":
		return dns.TypeNSEC, true
	default:
		return 0, false
	}
}
