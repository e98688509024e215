// bench drives the query engine in-process: it loads a zone, spawns
// workers each owning a Context, and hammers precomputed lookups to
// measure throughput and latency without any sockets in the way.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jroosing/apexdns/internal/dns"
	"github.com/jroosing/apexdns/internal/query"
	"github.com/jroosing/apexdns/internal/zone"
)

func main() {
	var (
		zoneFile    = flag.String("zone", "root.zone", "Zone file to load")
		name        = flag.String("name", ".", "Query name")
		qtype       = flag.Int("qtype", int(dns.TypeSOA), "Query type (numeric)")
		doBit       = flag.Bool("do", true, "Set the EDNS DO bit")
		concurrency = flag.Int("concurrency", 4, "Number of workers")
		requests    = flag.Int("requests", 1_000_000, "Total number of queries")
	)
	flag.Parse()

	z, err := zone.Load(*zoneFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load zone: %v\n", err)
		os.Exit(1)
	}
	zones := zone.NewHandle(z)

	req, err := buildQuery(*name, uint16(*qtype), *doBit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build query: %v\n", err)
		os.Exit(1)
	}

	conc := max(*concurrency, 1)
	total := max(*requests, 1)
	per := total / conc

	type result struct {
		served int
		lat    []float64
	}
	results := make([]result, conc)

	t0 := time.Now()
	var wg sync.WaitGroup
	for i := range conc {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			c := query.NewContext(zones)
			lat := make([]float64, 0, per)
			for range per {
				start := time.Now()
				if _, ok := c.Execute(req, false); !ok {
					continue
				}
				lat = append(lat, float64(time.Since(start).Nanoseconds()))
				results[slot].served++
			}
			results[slot].lat = lat
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(t0)

	served := 0
	var all []float64
	for _, r := range results {
		served += r.served
		all = append(all, r.lat...)
	}
	sort.Float64s(all)

	fmt.Printf("served %d queries in %v (%.0f qps)\n",
		served, elapsed.Round(time.Millisecond), float64(served)/elapsed.Seconds())
	if len(all) > 0 {
		fmt.Printf("latency ns: p50=%.0f p90=%.0f p99=%.0f max=%.0f\n",
			percentile(all, 0.50), percentile(all, 0.90), percentile(all, 0.99), all[len(all)-1])
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func buildQuery(name string, qtype uint16, doBit bool) ([]byte, error) {
	qname, err := dns.EncodeName(name)
	if err != nil {
		return nil, err
	}
	h := dns.Header{ID: 0x4242, QDCount: 1, ARCount: 1}
	out := h.Marshal()
	out = append(out, qname...)
	out = binary.BigEndian.AppendUint16(out, qtype)
	out = binary.BigEndian.AppendUint16(out, uint16(dns.ClassIN))
	out = append(out, 0)
	out = binary.BigEndian.AppendUint16(out, uint16(dns.TypeOPT))
	out = binary.BigEndian.AppendUint16(out, dns.EDNSDefaultUDPPayloadSize)
	ttl := uint32(0)
	if doBit {
		ttl |= 1 << 15
	}
	out = binary.BigEndian.AppendUint32(out, ttl)
	out = binary.BigEndian.AppendUint16(out, 0)
	return out, nil
}
