package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"time"

	"udpframed/internal/capability"
	"udpframed/internal/codec"
	uferr "udpframed/internal/errors"
	"udpframed/internal/framed"
	"udpframed/internal/metrics"
	"udpframed/internal/peer"
	"udpframed/internal/retry"
	"udpframed/internal/transport"
	"udpframed/util"
)

// PingMode sends one request frame and waits for the matching pong,
// retransmitting on a backoff schedule since either datagram may be
// lost.  A pong matches when its id equals the request's.
type PingMode struct {
	Host      string
	Port      int
	NoDNS     bool
	LocalPort int // source port; 0 picks one
	Codec     codec.Codec[codec.Message]
	Request   codec.Message
	Timeout   time.Duration // bounds the whole exchange
	Backoff   *retry.Backoff
	Stats     *metrics.Collector
	Logger    *util.Logger

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer

	// Reply holds the matching pong after a successful Run.
	Reply *framed.Datagram[codec.Message]
	// RTT is the time from the answered send to the pong.
	RTT time.Duration
}

func (m *PingMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run resolves the target, binds a socket and performs the exchange.
func (m *PingMode) Run(ctx context.Context) error {
	if m.Logger == nil {
		m.Logger = util.Nop()
	}
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	target, err := util.ResolveAddrPort(ctx, m.Host, m.Port, m.NoDNS)
	if err != nil {
		return err
	}

	sock, err := transport.Bind(ctx, bindAddress(target, m.LocalPort))
	if err != nil {
		return err
	}
	defer sock.Close()

	peers := peer.NewTable()
	peers.Touch(target)
	conn := framed.New[codec.Message](sock, m.Codec, peers,
		framed.WithLogger(m.Logger.With("component", "framed")),
		framed.WithMetrics(m.Stats))

	m.Logger.Verbose("pinging %s from %s (codec %s)", target, sock.LocalAddr(), codec.NameOf(m.Codec))

	backoff := m.Backoff
	if backoff == nil {
		backoff = retry.DefaultBackoff()
	}
	err = backoff.Do(ctx, func(attempt int, window time.Duration) error {
		return m.attempt(ctx, conn, peers, target, attempt, window)
	})
	if m.Logger.Level() >= util.LogVerbose {
		m.Logger.Verbose("stats: %s", m.Stats.JSON())
	}
	if err != nil {
		return fmt.Errorf("ping %s: %w", target, err)
	}

	fmt.Fprintf(m.stdout(), "%s from %s: id=%d bytes=%d time=%s\n",
		m.Reply.Frame.Op, m.Reply.Addr, m.Reply.Frame.ID, len(m.Reply.Frame.Payload),
		m.RTT.Round(time.Microsecond))
	return nil
}

// attempt transmits the request once and listens for window.
func (m *PingMode) attempt(ctx context.Context, conn *framed.Conn[codec.Message],
	peers *peer.Table, target netip.AddrPort, attempt int, window time.Duration) error {
	if attempt > 1 {
		m.Logger.Verbose("no reply, retransmitting (attempt %d)", attempt)
	}

	sent := time.Now()
	err := conn.Send(ctx, framed.Datagram[codec.Message]{Frame: m.Request, Addr: target})
	if err != nil {
		return retry.Permanent(err)
	}
	if !peers.Contains(target) {
		return retry.Permanent(fmt.Errorf("%s unreachable", target))
	}

	wctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	for {
		d, err := conn.Recv(wctx)
		switch {
		case err == nil:
		case uferr.IsCodec(err):
			m.Logger.Verbose("%v", err)
			continue
		case ctx.Err() != nil:
			return retry.Permanent(ctx.Err())
		case wctx.Err() != nil, errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("no %s within %s: %w", capability.OpPong, window, uferr.ErrTimeout)
		default:
			return retry.Permanent(err)
		}

		if d.Frame.Op != capability.OpPong || d.Frame.ID != m.Request.ID {
			m.Logger.Debug("ignoring %q id=%d from %s", d.Frame.Op, d.Frame.ID, d.Addr)
			continue
		}
		m.RTT = time.Since(sent)
		m.Reply = &d
		return nil
	}
}

// bindAddress picks the wildcard of the target's family so the socket
// can reach it.
func bindAddress(target netip.AddrPort, port int) string {
	host := "0.0.0.0"
	if target.Addr().Unmap().Is6() {
		host = "::"
	}
	return net.JoinHostPort(host, fmt.Sprint(port))
}
