package framed

import (
	"context"
	"time"

	"udpframed/internal/transport"
)

// idlePoll is how long the blocking drivers sleep between attempts when
// the socket cannot report readiness.
const idlePoll = time.Millisecond

// Recv blocks until a frame arrives, ctx is done, or PollRecv fails.
// Datagrams without a frame are skipped; codec errors are returned and
// the caller may keep receiving.
func (c *Conn[F]) Recv(ctx context.Context) (Datagram[F], error) {
	for {
		if err := ctx.Err(); err != nil {
			return Datagram[F]{}, err
		}
		p, d, err := c.PollRecv()
		if err != nil {
			return Datagram[F]{}, err
		}
		if p == Ready {
			if d != nil {
				return *d, nil
			}
			continue
		}
		if err := c.waitReadable(ctx); err != nil {
			return Datagram[F]{}, err
		}
	}
}

// Send submits d and flushes it.  It returns once the datagram has been
// dispatched (or its peer evicted), ctx is done, or encoding fails.
func (c *Conn[F]) Send(ctx context.Context, d Datagram[F]) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := c.StartSend(d)
		if err != nil {
			return err
		}
		if res.Accepted {
			break
		}
		d = res.Item
		if err := c.waitWritable(ctx); err != nil {
			return err
		}
	}
	return c.Flush(ctx)
}

// Flush blocks until PollFlush is ready or ctx is done.
func (c *Conn[F]) Flush(ctx context.Context) error {
	for {
		p, err := c.PollFlush()
		if err != nil || p == Ready {
			return err
		}
		if err := c.waitWritable(ctx); err != nil {
			return err
		}
	}
}

func (c *Conn[F]) waitReadable(ctx context.Context) error {
	if w, ok := c.sock.(transport.Waiter); ok {
		return w.WaitReadable(ctx)
	}
	return sleepCtx(ctx, idlePoll)
}

func (c *Conn[F]) waitWritable(ctx context.Context) error {
	if w, ok := c.sock.(transport.Waiter); ok {
		return w.WaitWritable(ctx)
	}
	return sleepCtx(ctx, idlePoll)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ── Halves ───────────────────────────────────────────────────────────

// Source is the receive half of a Conn.
type Source[F any] struct{ c *Conn[F] }

// PollRecv is [Conn.PollRecv].
func (s *Source[F]) PollRecv() (Poll, *Datagram[F], error) { return s.c.PollRecv() }

// Recv is [Conn.Recv].
func (s *Source[F]) Recv(ctx context.Context) (Datagram[F], error) { return s.c.Recv(ctx) }

// Sink is the send half of a Conn.
type Sink[F any] struct{ c *Conn[F] }

// StartSend is [Conn.StartSend].
func (s *Sink[F]) StartSend(d Datagram[F]) (SendResult[F], error) { return s.c.StartSend(d) }

// PollFlush is [Conn.PollFlush].
func (s *Sink[F]) PollFlush() (Poll, error) { return s.c.PollFlush() }

// Close is [Conn.Close].
func (s *Sink[F]) Close() (Poll, error) { return s.c.Close() }

// Send is [Conn.Send].
func (s *Sink[F]) Send(ctx context.Context, d Datagram[F]) error { return s.c.Send(ctx, d) }

// Flush is [Conn.Flush].
func (s *Sink[F]) Flush(ctx context.Context) error { return s.c.Flush(ctx) }

var (
	_ FrameSource[int] = (*Source[int])(nil)
	_ FrameSink[int]   = (*Sink[int])(nil)
)
