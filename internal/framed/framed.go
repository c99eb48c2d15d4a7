// Package framed layers frames on top of a datagram socket.
//
// A [Conn] is both a producer of received frames and a consumer of
// frames to send, each paired with the peer address.  Every datagram is
// one decode unit.  At most one encoded frame waits in the send buffer;
// a submission that cannot be made room for is handed back to the
// caller instead of being queued.
//
// Unlike a plain framed transport, a failed send never ends the Conn:
// the destination is evicted from the peer registry and the Conn keeps
// serving every other peer.  Only local socket faults end the inbound
// stream.
package framed

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"udpframed/internal/codec"
	uferr "udpframed/internal/errors"
	"udpframed/internal/metrics"
	"udpframed/internal/peer"
	"udpframed/internal/transport"
	"udpframed/util"
)

const (
	// InitialReadCapacity is the spare room reserved before every
	// receive; it covers the largest UDP payload.
	InitialReadCapacity = 64 * 1024
	// InitialWriteCapacity is the preallocated send buffer size.
	InitialWriteCapacity = 8 * 1024
)

// Poll is the readiness outcome of a non-blocking operation.
type Poll uint8

const (
	// Pending means the socket was not ready; retry later.
	Pending Poll = iota
	// Ready means the operation completed (possibly with an error).
	Ready
)

func (p Poll) String() string {
	if p == Ready {
		return "ready"
	}
	return "pending"
}

// Datagram pairs a frame with the peer it came from or goes to.
type Datagram[F any] struct {
	Frame F
	Addr  netip.AddrPort
}

// SendResult reports whether StartSend took ownership of the item.  When
// it did not, Item holds the caller's datagram for resubmission.
type SendResult[F any] struct {
	Accepted bool
	Item     Datagram[F]
}

// FrameSource produces received frames.
type FrameSource[F any] interface {
	PollRecv() (Poll, *Datagram[F], error)
}

// FrameSink accepts frames to send.
type FrameSink[F any] interface {
	StartSend(d Datagram[F]) (SendResult[F], error)
	PollFlush() (Poll, error)
	Close() (Poll, error)
}

// Option configures a Conn.
type Option func(*options)

type options struct {
	logger  *util.Logger
	metrics *metrics.Collector
}

// WithLogger sets the logger (default: discard).
func WithLogger(l *util.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the collector that receives per-datagram counters.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

// Conn is the framing adapter.  The receive side and the send side each
// have their own lock and buffer, so one goroutine may receive while
// another sends; calls on the same side are serialized.
type Conn[F any] struct {
	sock  transport.Socket
	codec codec.Codec[F]
	peers peer.Remover
	log   *util.Logger
	stats *metrics.Collector
	name  string // codec name for errors
	local string // socket address for errors

	rmu  sync.Mutex
	rd   []byte
	rerr error // sticky local socket fault

	wmu     sync.Mutex
	wr      []byte
	outAddr netip.AddrPort
	flushed bool

	released atomic.Bool
}

var (
	_ FrameSource[codec.Message] = (*Conn[codec.Message])(nil)
	_ FrameSink[codec.Message]   = (*Conn[codec.Message])(nil)
)

// New takes ownership of sock and returns a Conn that translates
// datagrams with c and reports unreachable destinations to peers.
func New[F any](sock transport.Socket, c codec.Codec[F], peers peer.Remover, opts ...Option) *Conn[F] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = util.Nop()
	}
	if peers == nil {
		peers = peer.RemoverFunc(func(netip.AddrPort) {})
	}
	return &Conn[F]{
		sock:    sock,
		codec:   c,
		peers:   peers,
		log:     o.logger,
		stats:   o.metrics,
		name:    codec.NameOf(c),
		local:   localName(sock),
		rd:      make([]byte, 0, InitialReadCapacity),
		wr:      make([]byte, 0, InitialWriteCapacity),
		outAddr: netip.AddrPortFrom(netip.IPv4Unspecified(), 0),
		flushed: true,
	}
}

// ── Receive ──────────────────────────────────────────────────────────

// PollRecv makes one receive attempt.
//
// It returns Pending when no datagram is queued.  Otherwise the datagram
// is decoded exactly once and the receive buffer is emptied whatever the
// outcome; a nil *Datagram with Ready and no error means the datagram
// held no frame.  Codec errors concern only that datagram.  A socket
// fault is terminal: it is returned now and on every later call.
func (c *Conn[F]) PollRecv() (Poll, *Datagram[F], error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	if c.released.Load() {
		return Ready, nil, uferr.ErrReleased
	}
	if c.rerr != nil {
		return Ready, nil, c.rerr
	}

	c.rd = reserve(c.rd, InitialReadCapacity)
	n, addr, err := c.sock.RecvFrom(c.rd[len(c.rd):cap(c.rd)])
	if err != nil {
		if uferr.IsWouldBlock(err) {
			return Pending, nil, nil
		}
		c.rerr = uferr.Wrap("recvfrom", c.local, err)
		c.log.Error("receive failed, ending stream: %v", err)
		return Ready, nil, c.rerr
	}
	c.rd = c.rd[:len(c.rd)+n]
	c.stats.DatagramReceived(n)
	c.log.Debug("received %d bytes from %s, decoding", n, addr)

	frame, ok, err := c.codec.Decode(c.rd)
	c.rd = c.rd[:0]
	if err != nil {
		c.stats.DecodeError(err.Error())
		c.log.Verbose("dropping undecodable datagram from %s: %v", addr, err)
		return Ready, nil, uferr.WrapCodec("decode", c.name, n, err)
	}
	if !ok {
		c.stats.EmptyDatagram()
		return Ready, nil, nil
	}
	c.stats.FrameDecoded()
	return Ready, &Datagram[F]{Frame: frame, Addr: addr}, nil
}

// ── Send ─────────────────────────────────────────────────────────────

// StartSend encodes d into the send buffer.  If the previous frame is
// still owed, a flush is attempted first; when that would block, d is
// returned unaccepted in the result and nothing is buffered.  An encode
// error leaves the send buffer empty and returns d to the caller.
func (c *Conn[F]) StartSend(d Datagram[F]) (SendResult[F], error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.released.Load() {
		return SendResult[F]{Item: d}, uferr.ErrReleased
	}
	if !c.flushed && c.flushLocked() == Pending {
		return SendResult[F]{Item: d}, nil
	}

	wr, err := c.codec.Encode(c.wr[:0], d.Frame)
	if err != nil {
		c.wr = c.wr[:0]
		return SendResult[F]{Item: d}, uferr.WrapCodec("encode", c.name, len(wr), err)
	}
	c.wr = wr
	c.outAddr = d.Addr
	c.flushed = false
	c.log.Debug("frame encoded; length=%d", len(c.wr))
	return SendResult[F]{Accepted: true}, nil
}

// PollFlush transmits the buffered frame, if any.
//
// The datagram counts as dispatched once the socket accepts it, even
// partially; a short write is logged and never retried.  A hard send
// error evicts the destination from the peer registry and also counts
// as dispatched.  The only error returned is ErrReleased.
func (c *Conn[F]) PollFlush() (Poll, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.released.Load() {
		return Ready, uferr.ErrReleased
	}
	return c.flushLocked(), nil
}

// Close performs a final flush.  The socket stays open; it is released
// with the Conn.
func (c *Conn[F]) Close() (Poll, error) {
	return c.PollFlush()
}

func (c *Conn[F]) flushLocked() Poll {
	if c.flushed {
		return Ready
	}

	c.log.Debug("flushing frame; length=%d", len(c.wr))
	n, err := c.sock.SendTo(c.wr, c.outAddr)
	switch {
	case err == nil:
		if n < len(c.wr) {
			c.stats.PartialWrite()
			c.log.With("peer", c.outAddr).Warn(
				"failed to write entire datagram; wrote %d of %d bytes", n, len(c.wr))
		}
		c.stats.DatagramSent(n)
	case uferr.IsWouldBlock(err):
		return Pending
	default:
		key := peer.Normalize(c.outAddr)
		c.log.With("peer", key).Warn("error sending frame, removing peer: %v", err)
		c.stats.SendFault(key.String(), err.Error())
		c.peers.RemovePeer(key)
	}

	c.wr = c.wr[:0]
	c.flushed = true
	return Ready
}

// ── Accessors ────────────────────────────────────────────────────────

// Socket returns the underlying socket.  Use it for configuration only:
// reading or writing it directly while the Conn is driven corrupts the
// frame stream.
func (c *Conn[F]) Socket() transport.Socket { return c.sock }

// Release consumes the Conn and hands the socket back.  Any frame still
// waiting in the send buffer is discarded; every later call on the Conn
// returns ErrReleased.
func (c *Conn[F]) Release() transport.Socket {
	c.rmu.Lock()
	c.wmu.Lock()
	defer c.rmu.Unlock()
	defer c.wmu.Unlock()

	c.released.Store(true)
	c.wr = c.wr[:0]
	c.flushed = true
	return c.sock
}

// Split returns the receive and send halves of c.
func (c *Conn[F]) Split() (*Source[F], *Sink[F]) {
	return &Source[F]{c: c}, &Sink[F]{c: c}
}

// ── helpers ──────────────────────────────────────────────────────────

// reserve guarantees at least n bytes of spare capacity in b.
func reserve(b []byte, n int) []byte {
	if cap(b)-len(b) >= n {
		return b
	}
	nb := make([]byte, len(b), len(b)+n)
	copy(nb, b)
	return nb
}

func localName(sock transport.Socket) string {
	if la, ok := sock.(interface{ LocalAddr() net.Addr }); ok && la.LocalAddr() != nil {
		return la.LocalAddr().String()
	}
	return fmt.Sprintf("%T", sock)
}
