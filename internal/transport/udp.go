package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	uferr "udpframed/internal/errors"
)

// UDPSocket adapts a bound *net.UDPConn to [Socket] and [Waiter].  The
// runtime already puts the descriptor in non-blocking mode; UDPSocket
// issues the system calls directly so that "not ready" comes back as
// EAGAIN instead of parking the goroutine.
type UDPSocket struct {
	conn  *net.UDPConn
	raw   syscall.RawConn
	inet6 bool // descriptor family; decides the sockaddr shape for SendTo
}

// NewUDPSocket wraps conn.  Ownership of conn moves to the socket.
func NewUDPSocket(conn *net.UDPConn) (*UDPSocket, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("raw conn: %w", err)
	}
	s := &UDPSocket{conn: conn, raw: raw}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// Bind opens a UDP socket on address (e.g. ":9000" or "127.0.0.1:0").
func Bind(ctx context.Context, address string) (*UDPSocket, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", address)
	if err != nil {
		return nil, uferr.Wrap("bind", address, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, uferr.Wrap("bind", address, fmt.Errorf("unexpected packet conn %T", pc))
	}
	s, err := NewUDPSocket(conn)
	if err != nil {
		conn.Close()
		return nil, uferr.Wrap("bind", address, err)
	}
	return s, nil
}

// Conn returns the underlying connection for configuration (buffer
// sizes, deadlines).  Reading or writing through it while a framing
// adapter drives the socket corrupts the frame stream.
func (s *UDPSocket) Conn() *net.UDPConn { return s.conn }

// LocalAddr returns the bound address.
func (s *UDPSocket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close closes the descriptor.
func (s *UDPSocket) Close() error { return s.conn.Close() }

// WaitReadable blocks until a datagram is queued, ctx is done, or the
// socket is closed.
func (s *UDPSocket) WaitReadable(ctx context.Context) error {
	return s.wait(ctx, s.conn.SetReadDeadline, s.raw.Read, s.readable)
}

// WaitWritable blocks until the send buffer has room, ctx is done, or
// the socket is closed.
func (s *UDPSocket) WaitWritable(ctx context.Context) error {
	return s.wait(ctx, s.conn.SetWriteDeadline, s.raw.Write, s.writable)
}

// wait runs ready under the runtime poller, translating ctx into a
// socket deadline for the duration of the call.
func (s *UDPSocket) wait(ctx context.Context, setDeadline func(time.Time) error,
	op func(func(uintptr) bool) error, ready func(uintptr) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dl, _ := ctx.Deadline()
	if err := setDeadline(dl); err != nil {
		return uferr.Wrap("wait", s.conn.LocalAddr().String(), err)
	}
	// A stale deadline would make every later attempt look like
	// would-block.
	defer setDeadline(time.Time{}) //nolint:errcheck

	if done := ctx.Done(); done != nil {
		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-done:
				_ = setDeadline(time.Now())
			case <-stop:
			}
		}()
		defer wg.Wait()
		defer close(stop)
	}

	err := op(ready)
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if uferr.IsWouldBlock(err) && !dl.IsZero() && !time.Now().Before(dl) {
		// The socket deadline can fire before ctx's own timer; callers
		// test ctx.Err() and must see it set.
		<-ctx.Done()
		return ctx.Err()
	}
	return uferr.Wrap("wait", s.conn.LocalAddr().String(), err)
}
