package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"udpframed/internal/capability"
	"udpframed/internal/codec"
	uferr "udpframed/internal/errors"
	"udpframed/internal/framed"
	"udpframed/internal/metrics"
	"udpframed/internal/peer"
	"udpframed/internal/session"
	"udpframed/internal/transport"
	"udpframed/util"
)

// ListenMode binds a UDP socket and runs a capability on every frame
// received, tracking senders in a peer table.  Undecodable datagrams
// are logged and skipped; a socket fault ends the mode.
type ListenMode struct {
	Address       string // "host:port"
	Codec         codec.Codec[codec.Message]
	Capability    capability.Capability
	PeerIdle      time.Duration // 0 disables pruning
	PruneInterval time.Duration
	Stats         *metrics.Collector
	Logger        *util.Logger

	// OnListen, when set, is called with the bound address before the
	// first receive.
	OnListen func(addr net.Addr)
}

// Run binds the socket and serves until ctx is done or the socket
// fails.
func (m *ListenMode) Run(ctx context.Context) error {
	if m.Logger == nil {
		m.Logger = util.Nop()
	}
	sock, err := transport.Bind(ctx, m.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.Address, err)
	}
	defer sock.Close()

	m.Logger.Verbose("listening on %s (udp, codec %s)", sock.LocalAddr(), codec.NameOf(m.Codec))
	if m.OnListen != nil {
		m.OnListen(sock.LocalAddr())
	}

	peers := peer.NewTable()
	conn := framed.New[codec.Message](sock, m.Codec, peers,
		framed.WithLogger(m.Logger.With("component", "framed")),
		framed.WithMetrics(m.Stats))
	sess := session.New(conn, peers, m.Stats, m.Logger)

	// The sweeper stops with Run, whether ctx ended or the socket failed.
	ctx, cancel := context.WithCancel(ctx)
	var sweeper sync.WaitGroup
	if m.PeerIdle > 0 {
		sweeper.Add(1)
		go func() {
			defer sweeper.Done()
			m.prune(ctx, peers)
		}()
	}
	defer m.report(peers)
	defer sweeper.Wait()
	defer cancel()

	return m.serve(ctx, sess)
}

func (m *ListenMode) serve(ctx context.Context, sess *session.Session) error {
	for {
		d, err := sess.Conn.Recv(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case uferr.IsCodec(err):
			m.Logger.Verbose("%v", err)
			continue
		default:
			return fmt.Errorf("receive: %w", err)
		}

		if sess.Peers.Touch(d.Addr) {
			m.Logger.Verbose("new peer %s", d.Addr)
		}
		if err := m.Capability.Handle(ctx, sess, d); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, uferr.ErrReleased) {
				return err
			}
			m.Logger.Warn("handle %q from %s: %v", d.Frame.Op, d.Addr, err)
		}
	}
}

func (m *ListenMode) prune(ctx context.Context, peers *peer.Table) {
	interval := m.PruneInterval
	if interval <= 0 || interval > m.PeerIdle {
		interval = m.PeerIdle
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, addr := range peers.Prune(m.PeerIdle) {
				m.Logger.Verbose("peer %s idle, forgotten", addr)
			}
		}
	}
}

func (m *ListenMode) report(peers *peer.Table) {
	m.Logger.Verbose("shutting down; %d live peers", peers.Len())
	if m.Logger.Level() >= util.LogVerbose {
		m.Logger.Verbose("stats: %s", m.Stats.JSON())
	}
}
