// Package server runs the UDP and TCP DNS listeners around the query
// engine. Each worker owns its socket, its buffers and its query
// Context; workers share nothing mutable but the atomic counters, the
// mutex-guarded rate limiter and the query observer.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jroosing/apexdns/internal/query"
	"github.com/jroosing/apexdns/internal/zone"
)

// maxUDPMessageSize bounds incoming datagrams. Queries are tiny; this
// leaves headroom for EDNS padding.
const maxUDPMessageSize = 4096

// QueryObserver receives one record per emitted response. Implementors
// must not block: they run on the hot path.
type QueryObserver interface {
	ObserveQuery(transport, source, qname string, qtype, rcode uint16, truncated bool)
}

// UDPServer answers DNS queries over UDP.
//
// Workers SO_REUSEPORT-bind the same address so the kernel spreads load
// across their sockets. Each worker runs a tight receive loop with its
// own reusable Context, so the query engine allocates nothing per query;
// the rate limiter's keys and the observer's strings are allocated per
// query when those are set.
type UDPServer struct {
	Logger   *slog.Logger
	Zones    *zone.Handle
	Limiter  *RateLimiter
	Stats    *DNSStats
	Observer QueryObserver
	Workers  int

	mu    sync.Mutex
	conns []*net.UDPConn
	wg    sync.WaitGroup
}

// Run binds the workers and blocks until ctx is cancelled or the bind
// fails.
func (s *UDPServer) Run(ctx context.Context, addr string) error {
	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}

	s.mu.Lock()
	for range workers {
		conn, err := listenUDP(ctx, addr)
		if err != nil {
			s.mu.Unlock()
			s.closeConns()
			return err
		}
		s.conns = append(s.conns, conn)
	}
	conns := append([]*net.UDPConn(nil), s.conns...)
	s.mu.Unlock()

	for _, conn := range conns {
		s.wg.Add(1)
		go s.worker(ctx, conn)
	}

	<-ctx.Done()
	s.closeConns()
	s.wg.Wait()
	return nil
}

// RunOnConn serves a single existing connection until ctx is cancelled.
// Used by tests and callers managing their own sockets.
func (s *UDPServer) RunOnConn(ctx context.Context, conn *net.UDPConn) error {
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.worker(ctx, conn)

	<-ctx.Done()
	s.closeConns()
	s.wg.Wait()
	return nil
}

func (s *UDPServer) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

// worker is one receive loop: read, admit, execute, gather, send.
func (s *UDPServer) worker(ctx context.Context, conn *net.UDPConn) {
	defer s.wg.Done()

	c := query.NewContext(s.Zones)
	rx := make([]byte, maxUDPMessageSize)
	tx := make([]byte, 0, maxUDPMessageSize)

	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, remote, err := conn.ReadFromUDPAddrPort(rx)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		if s.Limiter != nil && !s.Limiter.Allow(remote.Addr()) {
			if s.Stats != nil {
				s.Stats.RecordRateLimited()
			}
			continue
		}

		segs, ok := c.Execute(rx[:n], false)
		if !ok {
			if s.Stats != nil {
				s.Stats.RecordDrop()
			}
			continue
		}

		// One datagram: gather the segments into the worker's tx buffer.
		tx = tx[:0]
		for _, seg := range segs {
			tx = append(tx, seg...)
		}
		if _, err := conn.WriteToUDPAddrPort(tx, remote); err != nil {
			if s.Logger != nil {
				s.Logger.Debug("udp write failed", "peer", remote.String(), "err", err)
			}
			continue
		}

		if s.Stats != nil {
			s.Stats.RecordResponse("udp", c.RCode(), c.Truncated())
		}
		if s.Observer != nil {
			s.Observer.ObserveQuery("udp", remote.Addr().String(), c.QName(), c.QType(), c.RCode(), c.Truncated())
		}
	}
}
