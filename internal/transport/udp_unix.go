//go:build unix

package transport

import (
	"net"
	"net/netip"
	"os"

	"golang.org/x/sys/unix"
)

func (s *UDPSocket) init() error {
	var (
		sa   unix.Sockaddr
		serr error
	)
	if err := s.raw.Control(func(fd uintptr) {
		sa, serr = unix.Getsockname(int(fd))
	}); err != nil {
		return err
	}
	if serr != nil {
		return os.NewSyscallError("getsockname", serr)
	}
	_, s.inet6 = sa.(*unix.SockaddrInet6)
	return nil
}

// RecvFrom makes one recvfrom(2) attempt.  An empty queue yields EAGAIN.
func (s *UDPSocket) RecvFrom(b []byte) (int, netip.AddrPort, error) {
	var (
		n    int
		from unix.Sockaddr
		serr error
	)
	err := s.raw.Read(func(fd uintptr) bool {
		for {
			n, from, serr = unix.Recvfrom(int(fd), b, 0)
			if serr != unix.EINTR {
				return true
			}
		}
	})
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	if serr != nil {
		return 0, netip.AddrPort{}, os.NewSyscallError("recvfrom", serr)
	}
	return n, addrPortFromSockaddr(from), nil
}

// SendTo makes one sendmsg(2) attempt.  A full send buffer yields EAGAIN.
func (s *UDPSocket) SendTo(b []byte, addr netip.AddrPort) (int, error) {
	sa, err := s.sockaddr(addr)
	if err != nil {
		return 0, err
	}
	var (
		n    int
		serr error
	)
	err = s.raw.Write(func(fd uintptr) bool {
		for {
			n, serr = unix.SendmsgN(int(fd), b, nil, sa, 0)
			if serr != unix.EINTR {
				return true
			}
		}
	})
	if err != nil {
		return 0, err
	}
	if serr != nil {
		return 0, os.NewSyscallError("sendto", serr)
	}
	return n, nil
}

func (s *UDPSocket) readable(fd uintptr) bool { return pollReady(fd, unix.POLLIN) }

func (s *UDPSocket) writable(fd uintptr) bool { return pollReady(fd, unix.POLLOUT) }

// pollReady reports whether fd is ready without blocking.  Errors count
// as ready so the next attempt surfaces them.
func pollReady(fd uintptr, events int16) bool {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		n, err := unix.Poll(fds, 0)
		if err == unix.EINTR {
			continue
		}
		return err != nil || n > 0
	}
}

func (s *UDPSocket) sockaddr(addr netip.AddrPort) (unix.Sockaddr, error) {
	ip := addr.Addr()
	if !ip.IsValid() {
		return nil, &net.AddrError{Err: "invalid destination", Addr: addr.String()}
	}
	if !s.inet6 {
		ip = ip.Unmap()
		if !ip.Is4() {
			return nil, &net.AddrError{Err: "IPv6 destination on IPv4 socket", Addr: addr.String()}
		}
		return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.As4()}, nil
	}
	sa := &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
	if zone := ip.Zone(); zone != "" {
		ifi, err := net.InterfaceByName(zone)
		if err != nil {
			return nil, &net.AddrError{Err: "unknown zone", Addr: addr.String()}
		}
		sa.ZoneId = uint32(ifi.Index)
	}
	return sa, nil
}

func addrPortFromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr).Unmap(), uint16(sa.Port))
	default:
		return netip.AddrPort{}
	}
}
