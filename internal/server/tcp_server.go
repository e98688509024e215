package server

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/jroosing/apexdns/internal/pool"
	"github.com/jroosing/apexdns/internal/query"
	"github.com/jroosing/apexdns/internal/zone"
)

// TCP server limits (RFC 1035 Section 4.2.2 framing).
const (
	maxTCPMessageSize       = 65535
	tcpReadTimeout          = 10 * time.Second
	tcpIdleTimeout          = 30 * time.Second
	maxTCPConnectionsPerIP  = 10
	maxQueriesPerConnection = 100
)

// tcpBufPool holds per-connection read buffers: 2-byte length word plus
// the largest message.
var tcpBufPool = pool.New(func() *[]byte {
	b := make([]byte, 2+maxTCPMessageSize)
	return &b
})

// TCPServer answers DNS queries over TCP with connection pipelining.
//
// Each accepted connection gets one handler goroutine and one reusable
// query Context. Responses are written with writev via net.Buffers, so
// the precomputed answer bytes are never copied. Per-IP connection caps
// and idle timeouts bound resource use.
type TCPServer struct {
	Logger   *slog.Logger
	Zones    *zone.Handle
	Limiter  *RateLimiter
	Stats    *DNSStats
	Observer QueryObserver

	mu       sync.Mutex
	listener *net.TCPListener
	perIP    map[netip.Addr]int
	connWG   sync.WaitGroup
	acceptWG sync.WaitGroup
}

// Run listens on addr and serves until ctx is cancelled.
func (s *TCPServer) Run(ctx context.Context, addr string) error {
	l, err := listenTCP(ctx, addr)
	if err != nil {
		return err
	}
	return s.RunOnListener(ctx, l)
}

// RunOnListener serves an existing listener until ctx is cancelled.
// Used by tests and callers managing their own sockets.
func (s *TCPServer) RunOnListener(ctx context.Context, l *net.TCPListener) error {
	s.mu.Lock()
	s.listener = l
	s.perIP = make(map[netip.Addr]int)
	s.mu.Unlock()

	s.acceptWG.Add(1)
	go s.acceptLoop(ctx, l)

	<-ctx.Done()
	_ = l.Close()
	s.acceptWG.Wait()
	s.connWG.Wait()
	return nil
}

func (s *TCPServer) acceptLoop(ctx context.Context, l *net.TCPListener) {
	defer s.acceptWG.Done()
	for {
		_ = l.SetDeadline(time.Now().Add(time.Second))
		conn, err := l.AcceptTCP()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			return
		}

		peer, ok := peerAddr(conn)
		if !ok || !s.admit(peer) {
			_ = conn.Close()
			continue
		}
		if s.Limiter != nil && !s.Limiter.Allow(peer) {
			if s.Stats != nil {
				s.Stats.RecordRateLimited()
			}
			s.release(peer)
			_ = conn.Close()
			continue
		}

		s.connWG.Add(1)
		go s.handleConn(ctx, conn, peer)
	}
}

func peerAddr(conn *net.TCPConn) (netip.Addr, bool) {
	tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(tcpAddr.IP)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// admit enforces the per-IP connection cap.
func (s *TCPServer) admit(peer netip.Addr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.perIP[peer] >= maxTCPConnectionsPerIP {
		return false
	}
	s.perIP[peer]++
	return true
}

func (s *TCPServer) release(peer netip.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.perIP[peer] > 1 {
		s.perIP[peer]--
	} else {
		delete(s.perIP, peer)
	}
}

// handleConn serves pipelined queries on one connection.
func (s *TCPServer) handleConn(ctx context.Context, conn *net.TCPConn, peer netip.Addr) {
	defer s.connWG.Done()
	defer s.release(peer)
	defer conn.Close()

	// Cancellation closes the connection so a blocked read returns.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	bufPtr := tcpBufPool.Get()
	defer tcpBufPool.Put(bufPtr)
	buf := *bufPtr

	c := query.NewContext(s.Zones)
	source := conn.RemoteAddr().String()

	for served := 0; served < maxQueriesPerConnection; served++ {
		if ctx.Err() != nil {
			return
		}

		// Idle timeout between queries, shorter timeout mid-message.
		_ = conn.SetReadDeadline(time.Now().Add(tcpIdleTimeout))
		if _, err := io.ReadFull(conn, buf[:2]); err != nil {
			return
		}
		msgLen := int(binary.BigEndian.Uint16(buf[:2]))
		if msgLen == 0 {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(tcpReadTimeout))
		if _, err := io.ReadFull(conn, buf[2:2+msgLen]); err != nil {
			return
		}

		segs, ok := c.Execute(buf[:2+msgLen], true)
		if !ok {
			if s.Stats != nil {
				s.Stats.RecordDrop()
			}
			return // framing is broken; drop the connection
		}

		// writev: the answer segment stays inside the zone's memory.
		out := net.Buffers(append([][]byte(nil), segs...))
		_ = conn.SetWriteDeadline(time.Now().Add(tcpReadTimeout))
		if _, err := out.WriteTo(conn); err != nil {
			if s.Logger != nil {
				s.Logger.Debug("tcp write failed", "peer", source, "err", err)
			}
			return
		}

		if s.Stats != nil {
			s.Stats.RecordResponse("tcp", c.RCode(), c.Truncated())
		}
		if s.Observer != nil {
			s.Observer.ObserveQuery("tcp", source, c.QName(), c.QType(), c.RCode(), c.Truncated())
		}
	}
}
