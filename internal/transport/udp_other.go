//go:build !unix

package transport

import (
	"net"
	"net/netip"
	"time"
)

// pollInterval bounds each attempt where raw non-blocking I/O is not
// available.
const pollInterval = 2 * time.Millisecond

func (s *UDPSocket) init() error {
	if ua, ok := s.conn.LocalAddr().(*net.UDPAddr); ok {
		s.inet6 = ua.IP.To4() == nil
	}
	return nil
}

// RecvFrom waits at most pollInterval for a datagram; an expired
// deadline reports would-block.
func (s *UDPSocket) RecvFrom(b []byte) (int, netip.AddrPort, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
		return 0, netip.AddrPort{}, err
	}
	n, addr, err := s.conn.ReadFromUDPAddrPort(b)
	return n, netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port()), err
}

// SendTo writes one datagram, bounded by pollInterval.
func (s *UDPSocket) SendTo(b []byte, addr netip.AddrPort) (int, error) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(pollInterval)); err != nil {
		return 0, err
	}
	return s.conn.WriteToUDPAddrPort(b, addr)
}

func (s *UDPSocket) readable(uintptr) bool { return true }

func (s *UDPSocket) writable(uintptr) bool { return true }
