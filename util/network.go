package util

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// ResolveAddrPort turns host and port into a netip.AddrPort, validating
// that the host is a numeric IP when noDNS is true.
func ResolveAddrPort(ctx context.Context, host string, port int, noDNS bool) (netip.AddrPort, error) {
	if port < 0 || port > 65535 {
		return netip.AddrPort{}, fmt.Errorf("port %d out of range 0-65535", port)
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return netip.AddrPortFrom(ip, uint16(port)), nil
	}
	if noDNS {
		return netip.AddrPort{}, fmt.Errorf("cannot parse %q as an IP address (DNS disabled with -n)", host)
	}
	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("DNS lookup for %q: %w", host, err)
	}
	if len(ips) == 0 {
		return netip.AddrPort{}, fmt.Errorf("DNS lookup for %q: no addresses", host)
	}
	return netip.AddrPortFrom(ips[0].Unmap(), uint16(port)), nil
}

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// FindFreePort returns an available UDP port on 127.0.0.1.
func FindFreePort() (int, error) {
	c, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer c.Close()
	return c.LocalAddr().(*net.UDPAddr).Port, nil
}
