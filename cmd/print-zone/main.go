// print-zone loads a zone file and dumps the parsed records plus the
// precomputed sizes of the apex SOA, NS, DNSKEY and no-data answers,
// for eyeballing what the server will actually send.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/jroosing/apexdns/internal/zone"
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: print-zone path/to/zonefile\n")
		os.Exit(2)
	}
	path := flag.Arg(0)
	z, err := zone.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load zone: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("ORIGIN: %s\n", z.Origin)
	fmt.Printf("SERIAL: %d\n", z.Serial)
	fmt.Printf("NAMES: %d\n", z.NameCount())
	fmt.Println("RECORDS:")

	recs := append([]zone.Record(nil), z.Records()...)
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.TTL < b.TTL
	})
	for _, rr := range recs {
		owner := rr.Name
		if owner == "" {
			owner = "."
		}
		fmt.Printf("  %-24s %6d  type=%-3d  rdata=%d bytes\n", owner, rr.TTL, rr.Type, len(rr.Data))
	}

	fmt.Println("ANSWERS:")
	for _, probe := range []struct {
		label string
		qname string
		at    zone.AnswerType
	}{
		{"apex soa", "", zone.RootSOA},
		{"apex ns", "", zone.RootNS},
		{"apex dnskey", "", zone.RootDNSKEY},
		{"apex nodata", "", zone.RootNoData},
	} {
		nd, match := z.Lookup([]byte(probe.qname))
		if nd == nil || !match {
			continue
		}
		plain := nd.Answer(probe.at, false)
		signed := nd.Answer(probe.at, true)
		fmt.Printf("  %-12s plain=%4d bytes  signed=%4d bytes\n", probe.label, plain.Size(), signed.Size())
	}
}
