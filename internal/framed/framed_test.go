package framed

import (
	"bytes"
	"context"
	"math/rand"
	"net/netip"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udpframed/internal/codec"
	uferr "udpframed/internal/errors"
	"udpframed/internal/metrics"
	"udpframed/internal/peer"
	"udpframed/util"
)

// ── test doubles ─────────────────────────────────────────────────────

type recvStep struct {
	data []byte
	from netip.AddrPort
	err  error
}

type sendStep struct {
	n   int // bytes reported written; -1 means all
	err error
}

type sent struct {
	data []byte
	to   netip.AddrPort
}

// fakeSocket replays scripted results.  An empty script means
// would-block for receives and full success for sends.
type fakeSocket struct {
	mu         sync.Mutex
	recvs      []recvStep
	sends      []sendStep
	sent       []sent
	recvBufLen []int
	sendCalls  int
}

func (s *fakeSocket) queueRecv(steps ...recvStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recvs = append(s.recvs, steps...)
}

func (s *fakeSocket) queueSend(steps ...sendStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, steps...)
}

func (s *fakeSocket) RecvFrom(b []byte) (int, netip.AddrPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recvBufLen = append(s.recvBufLen, len(b))
	if len(s.recvs) == 0 {
		return 0, netip.AddrPort{}, syscall.EAGAIN
	}
	step := s.recvs[0]
	s.recvs = s.recvs[1:]
	if step.err != nil {
		return 0, netip.AddrPort{}, step.err
	}
	return copy(b, step.data), step.from, nil
}

func (s *fakeSocket) SendTo(b []byte, addr netip.AddrPort) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendCalls++
	step := sendStep{n: -1}
	if len(s.sends) > 0 {
		step = s.sends[0]
		s.sends = s.sends[1:]
	}
	if step.err != nil {
		return 0, step.err
	}
	n := len(b)
	if step.n >= 0 {
		n = step.n
	}
	s.sent = append(s.sent, sent{data: append([]byte(nil), b...), to: addr})
	return n, nil
}

func (s *fakeSocket) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type recordingRemover struct {
	mu      sync.Mutex
	removed []netip.AddrPort
}

func (r *recordingRemover) RemovePeer(addr netip.AddrPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, addr)
}

func (r *recordingRemover) calls() []netip.AddrPort {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]netip.AddrPort(nil), r.removed...)
}

var (
	peerA = netip.MustParseAddrPort("10.0.0.1:9000")
	peerB = netip.MustParseAddrPort("10.0.0.2:9000")
)

func newTestConn(t *testing.T, opts ...Option) (*Conn[codec.Message], *fakeSocket, *recordingRemover) {
	t.Helper()
	sock := &fakeSocket{}
	rem := &recordingRemover{}
	return New[codec.Message](sock, codec.JSON{}, rem, opts...), sock, rem
}

func encodeJSON(t *testing.T, m codec.Message) []byte {
	t.Helper()
	b, err := codec.JSON{}.Encode(nil, m)
	require.NoError(t, err)
	return b
}

// ── construction ─────────────────────────────────────────────────────

func TestNew_Defaults(t *testing.T) {
	c, _, _ := newTestConn(t)

	assert.True(t, c.flushed)
	assert.Equal(t, netip.MustParseAddrPort("0.0.0.0:0"), c.outAddr)
	assert.GreaterOrEqual(t, cap(c.rd), InitialReadCapacity)
	assert.GreaterOrEqual(t, cap(c.wr), InitialWriteCapacity)
	assert.Empty(t, c.rd)
	assert.Empty(t, c.wr)
}

// ── receive ──────────────────────────────────────────────────────────

func TestPollRecv_PendingWhenEmpty(t *testing.T) {
	c, sock, _ := newTestConn(t)

	p, d, err := c.PollRecv()
	require.NoError(t, err)
	assert.Equal(t, Pending, p)
	assert.Nil(t, d)
	assert.Empty(t, c.rd)
	require.Len(t, sock.recvBufLen, 1)
	assert.GreaterOrEqual(t, sock.recvBufLen[0], InitialReadCapacity)
}

func TestPollRecv_DeliversFrameWithSource(t *testing.T) {
	stats := metrics.New()
	c, sock, _ := newTestConn(t, WithMetrics(stats))
	sock.queueRecv(recvStep{data: encodeJSON(t, codec.Message{Op: "ping", ID: 7}), from: peerA})

	p, d, err := c.PollRecv()
	require.NoError(t, err)
	assert.Equal(t, Ready, p)
	require.NotNil(t, d)
	assert.Equal(t, codec.Message{Op: "ping", ID: 7}, d.Frame)
	assert.Equal(t, peerA, d.Addr)
	assert.Empty(t, c.rd, "receive buffer must be cleared after decode")
	assert.Equal(t, int64(1), stats.FramesIn())
}

func TestPollRecv_EmptyDatagramIsNoFrame(t *testing.T) {
	c, sock, _ := newTestConn(t)
	sock.queueRecv(recvStep{data: []byte("   "), from: peerA})

	p, d, err := c.PollRecv()
	require.NoError(t, err)
	assert.Equal(t, Ready, p)
	assert.Nil(t, d)
	assert.Empty(t, c.rd)
}

func TestPollRecv_DecodeErrorDoesNotContaminate(t *testing.T) {
	c, sock, _ := newTestConn(t)
	sock.queueRecv(
		recvStep{data: []byte(`{"op":"pi`), from: peerA},
		recvStep{data: []byte(`ng","id":1}`), from: peerA},
		recvStep{data: encodeJSON(t, codec.Message{Op: "pong", ID: 2}), from: peerB},
	)

	// The two halves of a split object must not be glued together.
	for i := 0; i < 2; i++ {
		p, d, err := c.PollRecv()
		assert.Equal(t, Ready, p)
		assert.Nil(t, d)
		require.Error(t, err)
		assert.True(t, uferr.IsCodec(err), "want codec error, got %v", err)
		assert.Empty(t, c.rd, "receive buffer must be empty after a decode error")
	}

	p, d, err := c.PollRecv()
	require.NoError(t, err)
	assert.Equal(t, Ready, p)
	require.NotNil(t, d)
	assert.Equal(t, codec.Message{Op: "pong", ID: 2}, d.Frame)
	assert.Equal(t, peerB, d.Addr)
}

func TestPollRecv_SocketFaultIsTerminal(t *testing.T) {
	c, sock, rem := newTestConn(t)
	sock.queueRecv(
		recvStep{err: syscall.EBADF},
		recvStep{data: encodeJSON(t, codec.Message{Op: "ping"}), from: peerA},
	)

	_, d, err := c.PollRecv()
	require.Error(t, err)
	assert.Nil(t, d)
	var ne *uferr.NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "recvfrom", ne.Op)
	assert.ErrorIs(t, err, syscall.EBADF)

	// The stream has ended even though a datagram is now queued.
	_, d, err2 := c.PollRecv()
	assert.Nil(t, d)
	assert.Equal(t, err, err2)
	assert.Empty(t, rem.calls(), "local faults never evict peers")
}

func TestReserve(t *testing.T) {
	b := make([]byte, 3, 10)
	copy(b, "abc")
	b = reserve(b, 64)
	assert.Equal(t, "abc", string(b))
	assert.GreaterOrEqual(t, cap(b)-len(b), 64)

	same := reserve(b, 8)
	assert.Same(t, &b[0], &same[0], "no reallocation when room suffices")
}

// ── send ─────────────────────────────────────────────────────────────

func TestStartSend_AcceptsAndBuffersOneFrame(t *testing.T) {
	c, sock, _ := newTestConn(t)
	ping := codec.Message{Op: "ping", ID: 1}

	res, err := c.StartSend(Datagram[codec.Message]{Frame: ping, Addr: peerA})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.False(t, c.flushed)
	assert.Equal(t, encodeJSON(t, ping), c.wr)
	assert.Equal(t, peerA, c.outAddr)
	assert.Zero(t, sock.sentCount(), "nothing goes out before a flush")

	p, err := c.PollFlush()
	require.NoError(t, err)
	assert.Equal(t, Ready, p)
	assert.True(t, c.flushed)
	assert.Empty(t, c.wr)
	require.Equal(t, 1, sock.sentCount())
	assert.Equal(t, peerA, sock.sent[0].to)
}

func TestStartSend_BackpressureReturnsItem(t *testing.T) {
	c, sock, _ := newTestConn(t)
	first := Datagram[codec.Message]{Frame: codec.Message{Op: "one", ID: 1}, Addr: peerA}
	second := Datagram[codec.Message]{Frame: codec.Message{Op: "two", ID: 2}, Addr: peerB}

	res, err := c.StartSend(first)
	require.NoError(t, err)
	require.True(t, res.Accepted)

	sock.queueSend(sendStep{err: syscall.EAGAIN})
	res, err = c.StartSend(second)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, second, res.Item, "rejected item is handed back intact")
	assert.False(t, c.flushed)
	assert.Equal(t, encodeJSON(t, first.Frame), c.wr, "first frame still owed")
	assert.Equal(t, peerA, c.outAddr)

	// Socket drains: resubmitting flushes the first frame, then takes
	// the second.
	res, err = c.StartSend(res.Item)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	require.Equal(t, 1, sock.sentCount())
	assert.Equal(t, encodeJSON(t, first.Frame), sock.sent[0].data)

	p, err := c.PollFlush()
	require.NoError(t, err)
	assert.Equal(t, Ready, p)
	require.Equal(t, 2, sock.sentCount())
	assert.Equal(t, encodeJSON(t, second.Frame), sock.sent[1].data)
	assert.Equal(t, peerB, sock.sent[1].to)
}

func TestPollFlush_PendingKeepsFrame(t *testing.T) {
	c, sock, _ := newTestConn(t)
	_, err := c.StartSend(Datagram[codec.Message]{Frame: codec.Message{Op: "x"}, Addr: peerA})
	require.NoError(t, err)

	sock.queueSend(sendStep{err: syscall.EAGAIN})
	p, err := c.PollFlush()
	require.NoError(t, err)
	assert.Equal(t, Pending, p)
	assert.False(t, c.flushed)
	assert.NotEmpty(t, c.wr)
}

func TestPollFlush_NoopWhenFlushed(t *testing.T) {
	c, sock, _ := newTestConn(t)
	p, err := c.PollFlush()
	require.NoError(t, err)
	assert.Equal(t, Ready, p)
	assert.Zero(t, sock.sendCalls)
}

// At every observation point flushed is true exactly when the send
// buffer is empty, whatever mix of submissions, flushes and socket
// backpressure occurs.
func TestSend_AtMostOneFrameInFlight(t *testing.T) {
	c, sock, _ := newTestConn(t)
	rng := rand.New(rand.NewSource(42))

	submitted, accepted := 0, 0
	for i := 0; i < 500; i++ {
		if rng.Intn(3) == 0 {
			sock.queueSend(sendStep{err: syscall.EAGAIN})
		}
		if rng.Intn(2) == 0 {
			submitted++
			res, err := c.StartSend(Datagram[codec.Message]{
				Frame: codec.Message{Op: "op", ID: uint64(i)},
				Addr:  peerA,
			})
			require.NoError(t, err)
			if res.Accepted {
				accepted++
			} else {
				assert.Equal(t, uint64(i), res.Item.Frame.ID)
			}
		} else {
			_, err := c.PollFlush()
			require.NoError(t, err)
		}
		assert.Equal(t, c.flushed, len(c.wr) == 0, "step %d", i)
	}

	// Drain whatever is left: every accepted frame went out exactly once.
	sock.mu.Lock()
	sock.sends = nil
	sock.mu.Unlock()
	p, err := c.PollFlush()
	require.NoError(t, err)
	require.Equal(t, Ready, p)
	assert.Equal(t, accepted, sock.sentCount())
	assert.LessOrEqual(t, accepted, submitted)
}

func TestPollFlush_SendFaultEvictsPeer(t *testing.T) {
	stats := metrics.New()
	c, sock, rem := newTestConn(t, WithMetrics(stats))

	_, err := c.StartSend(Datagram[codec.Message]{Frame: codec.Message{Op: "ping"}, Addr: peerA})
	require.NoError(t, err)

	sock.queueSend(sendStep{err: syscall.EHOSTUNREACH})
	p, err := c.PollFlush()
	require.NoError(t, err, "send faults are never surfaced")
	assert.Equal(t, Ready, p)
	assert.Equal(t, []netip.AddrPort{peer.Normalize(peerA)}, rem.calls())
	assert.True(t, c.flushed)
	assert.Empty(t, c.wr)
	assert.Equal(t, int64(1), stats.PeersEvicted())

	// The adapter keeps serving other peers in both directions.
	res, err := c.StartSend(Datagram[codec.Message]{Frame: codec.Message{Op: "ping"}, Addr: peerB})
	require.NoError(t, err)
	require.True(t, res.Accepted)
	p, err = c.PollFlush()
	require.NoError(t, err)
	assert.Equal(t, Ready, p)
	require.Equal(t, 1, sock.sentCount())
	assert.Equal(t, peerB, sock.sent[0].to)

	sock.queueRecv(recvStep{data: encodeJSON(t, codec.Message{Op: "pong"}), from: peerB})
	_, d, err := c.PollRecv()
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "pong", d.Frame.Op)

	assert.Len(t, rem.calls(), 1, "exactly one eviction")
}

func TestStartSend_FaultDuringImplicitFlush(t *testing.T) {
	c, sock, rem := newTestConn(t)
	_, err := c.StartSend(Datagram[codec.Message]{Frame: codec.Message{Op: "a"}, Addr: peerA})
	require.NoError(t, err)

	sock.queueSend(sendStep{err: syscall.ECONNREFUSED})
	res, err := c.StartSend(Datagram[codec.Message]{Frame: codec.Message{Op: "b"}, Addr: peerB})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, []netip.AddrPort{peer.Normalize(peerA)}, rem.calls())
	assert.Equal(t, peerB, c.outAddr)
}

func TestPollFlush_PartialWriteNotRetried(t *testing.T) {
	var logs bytes.Buffer
	logger := util.NewLogger(1)
	logger.SetOutput(&logs)
	logger.SetTimestamps(false)
	stats := metrics.New()
	c, sock, rem := newTestConn(t, WithLogger(logger), WithMetrics(stats))

	frame := codec.Message{Op: "payload", ID: 99}
	_, err := c.StartSend(Datagram[codec.Message]{Frame: frame, Addr: peerA})
	require.NoError(t, err)
	encoded := len(encodeJSON(t, frame))

	sock.queueSend(sendStep{n: 3})
	p, err := c.PollFlush()
	require.NoError(t, err)
	assert.Equal(t, Ready, p)
	assert.True(t, c.flushed)
	assert.Empty(t, c.wr)

	// Later flushes have nothing to resend.
	p, err = c.PollFlush()
	require.NoError(t, err)
	assert.Equal(t, Ready, p)
	assert.Equal(t, 1, sock.sendCalls)
	assert.Empty(t, rem.calls())

	assert.Equal(t, int64(1), stats.PartialWrites())
	assert.Contains(t, logs.String(), "failed to write entire datagram")
	assert.Contains(t, logs.String(), "wrote 3 of "+strconv.Itoa(encoded)+" bytes",
		"expected length is taken before the buffer is cleared")
}

func TestStartSend_EncodeError(t *testing.T) {
	c, sock, _ := newTestConn(t)

	bad := Datagram[codec.Message]{Frame: codec.Message{ID: 1}, Addr: peerA}
	res, err := c.StartSend(bad)
	require.Error(t, err)
	assert.True(t, uferr.IsCodec(err))
	assert.ErrorIs(t, err, codec.ErrMissingOp)
	assert.False(t, res.Accepted)
	assert.Equal(t, bad, res.Item)
	assert.True(t, c.flushed)
	assert.Empty(t, c.wr)

	p, err := c.PollFlush()
	require.NoError(t, err)
	assert.Equal(t, Ready, p)
	assert.Zero(t, sock.sendCalls)
}

func TestClose_FlushesPending(t *testing.T) {
	c, sock, _ := newTestConn(t)
	_, err := c.StartSend(Datagram[codec.Message]{Frame: codec.Message{Op: "bye"}, Addr: peerA})
	require.NoError(t, err)

	sock.queueSend(sendStep{err: syscall.EWOULDBLOCK})
	p, err := c.Close()
	require.NoError(t, err)
	assert.Equal(t, Pending, p)

	p, err = c.Close()
	require.NoError(t, err)
	assert.Equal(t, Ready, p)
	assert.Equal(t, 1, sock.sentCount())
}

// ── accessors ────────────────────────────────────────────────────────

func TestRelease(t *testing.T) {
	c, sock, _ := newTestConn(t)
	assert.Same(t, sock, c.Socket())

	_, err := c.StartSend(Datagram[codec.Message]{Frame: codec.Message{Op: "x"}, Addr: peerA})
	require.NoError(t, err)

	got := c.Release()
	assert.Same(t, sock, got)
	assert.Zero(t, sock.sentCount(), "pending frame is discarded")

	_, _, err = c.PollRecv()
	assert.ErrorIs(t, err, uferr.ErrReleased)
	_, err = c.StartSend(Datagram[codec.Message]{Frame: codec.Message{Op: "x"}, Addr: peerA})
	assert.ErrorIs(t, err, uferr.ErrReleased)
	_, err = c.PollFlush()
	assert.ErrorIs(t, err, uferr.ErrReleased)
}

// ── blocking drivers ─────────────────────────────────────────────────

func TestRecv_SkipsEmptyAndHonoursContext(t *testing.T) {
	c, sock, _ := newTestConn(t)
	sock.queueRecv(
		recvStep{data: nil, from: peerA},
		recvStep{data: encodeJSON(t, codec.Message{Op: "ping", ID: 3}), from: peerA},
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := c.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), d.Frame.ID)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	_, err = c.Recv(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSend_WaitsOutBackpressure(t *testing.T) {
	c, sock, _ := newTestConn(t)
	sock.queueSend(sendStep{err: syscall.EAGAIN}, sendStep{err: syscall.EAGAIN})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.Send(ctx, Datagram[codec.Message]{Frame: codec.Message{Op: "ping"}, Addr: peerA})
	require.NoError(t, err)
	assert.Equal(t, 3, sock.sendCalls)
	assert.Equal(t, 1, sock.sentCount())
	assert.True(t, c.flushed)
}

func TestSplit_HalvesShareState(t *testing.T) {
	c, sock, _ := newTestConn(t)
	src, sink := c.Split()

	sock.queueRecv(recvStep{data: encodeJSON(t, codec.Message{Op: "ping", ID: 5}), from: peerA})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		d, err := src.Recv(ctx)
		assert.NoError(t, err)
		assert.Equal(t, uint64(5), d.Frame.ID)
	}()
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, sink.Send(ctx, Datagram[codec.Message]{Frame: codec.Message{Op: "pong", ID: 5}, Addr: peerA}))
	}()
	wg.Wait()

	assert.Equal(t, 1, sock.sentCount())
	p, err := sink.Close()
	require.NoError(t, err)
	assert.Equal(t, Ready, p)
}

func TestPollString(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "pending", Pending.String())
}
