// dnsquery is a minimal query client for poking an authoritative
// server: it sends one question over UDP or TCP and prints the
// response header and section counts.
package main

import (
	"encoding/binary"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/jroosing/apexdns/internal/dns"
)

func main() {
	var (
		server  = flag.String("server", "127.0.0.1:53", "DNS server HOST:PORT")
		name    = flag.String("name", ".", "Query name")
		qtype   = flag.Int("qtype", int(dns.TypeSOA), "Query type (numeric, SOA=6)")
		useTCP  = flag.Bool("tcp", false, "Query over TCP")
		doBit   = flag.Bool("do", false, "Set the EDNS DO bit")
		edns    = flag.Bool("edns", true, "Send an EDNS OPT RR")
		bufsize = flag.Int("bufsize", 1232, "EDNS UDP payload size")
		timeout = flag.Duration("timeout", 2*time.Second, "Timeout")
		dump    = flag.Bool("hex", false, "Hex dump the raw response")
	)
	flag.Parse()

	req, err := buildQuery(*name, uint16(*qtype), *edns, *doBit, uint16(*bufsize))
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsquery error: %v\n", err)
		os.Exit(1)
	}

	var resp []byte
	if *useTCP {
		resp, err = queryTCP(*server, req, *timeout)
	} else {
		resp, err = queryUDP(*server, req, *timeout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsquery error: %v\n", err)
		os.Exit(1)
	}

	h, err := dns.ParseHeader(resp)
	if err != nil {
		fmt.Printf("received %d bytes (unparseable header)\n", len(resp))
		return
	}
	fmt.Printf("id=%d rcode=%d aa=%v tc=%v qd=%d an=%d ns=%d ar=%d size=%d\n",
		h.ID,
		dns.RCodeFromFlags(h.Flags),
		h.Authoritative(),
		h.Truncated(),
		h.QDCount, h.ANCount, h.NSCount, h.ARCount,
		len(resp),
	)
	if *dump {
		fmt.Println(hex.Dump(resp))
	}
}

func buildQuery(name string, qtype uint16, edns, doBit bool, bufsize uint16) ([]byte, error) {
	qname, err := dns.EncodeName(name)
	if err != nil {
		return nil, err
	}
	arcount := uint16(0)
	if edns {
		arcount = 1
	}
	h := dns.Header{
		ID:      uint16(time.Now().UnixNano()), //nolint:gosec // query id, not security sensitive
		Flags:   dns.RDFlag,
		QDCount: 1,
		ARCount: arcount,
	}
	out := h.Marshal()
	out = append(out, qname...)
	out = binary.BigEndian.AppendUint16(out, qtype)
	out = binary.BigEndian.AppendUint16(out, uint16(dns.ClassIN))
	if edns {
		out = append(out, 0) // root owner
		out = binary.BigEndian.AppendUint16(out, uint16(dns.TypeOPT))
		out = binary.BigEndian.AppendUint16(out, bufsize)
		ttl := uint32(0)
		if doBit {
			ttl |= 1 << 15
		}
		out = binary.BigEndian.AppendUint32(out, ttl)
		out = binary.BigEndian.AppendUint16(out, 0) // rdlen
	}
	return out, nil
}

func queryUDP(server string, req []byte, timeout time.Duration) ([]byte, error) {
	c, err := net.Dial("udp", server)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	_ = c.SetDeadline(time.Now().Add(timeout))
	if _, err := c.Write(req); err != nil {
		return nil, err
	}
	buf := make([]byte, 4096)
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func queryTCP(server string, req []byte, timeout time.Duration) ([]byte, error) {
	c, err := net.DialTimeout("tcp", server, timeout)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(timeout))

	framed := binary.BigEndian.AppendUint16(nil, uint16(len(req)))
	framed = append(framed, req...)
	if _, err := c.Write(framed); err != nil {
		return nil, err
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(c, lenBuf[:]); err != nil {
		return nil, err
	}
	resp := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(c, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
