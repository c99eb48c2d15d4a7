// Package transport provides the datagram socket capability the framing
// layer sits on.  Transports handle the "how" of moving one datagram
// (a non-blocking receive-from or send-to) independent of what the
// bytes mean, which is the codec's job.
package transport

import (
	"context"
	"net/netip"
)

// Socket is a connectionless datagram endpoint with non-blocking
// operations.  Each call makes exactly one attempt and reports one of
// three outcomes: a byte count, a would-block error (see
// errors.IsWouldBlock), or a hard error.
type Socket interface {
	// RecvFrom reads one datagram into b and reports its source.
	RecvFrom(b []byte) (int, netip.AddrPort, error)

	// SendTo writes b as one datagram to addr.
	SendTo(b []byte, addr netip.AddrPort) (int, error)
}

// Waiter is implemented by sockets that can park the caller until the
// next attempt is likely to make progress.  Blocking drivers use it
// between would-block results; sockets without it are re-polled.
type Waiter interface {
	WaitReadable(ctx context.Context) error
	WaitWritable(ctx context.Context) error
}
