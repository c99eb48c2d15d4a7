// Package session represents one node's lifecycle, binding a framed
// datagram adapter with the peer registry it evicts into and shared
// observability.
//
// Sessions decouple capabilities from the socket: a capability answers
// a request through the session and never touches the adapter's
// buffers or the peer table directly.
package session

import (
	"context"
	"net/netip"

	"udpframed/internal/codec"
	"udpframed/internal/framed"
	"udpframed/internal/metrics"
	"udpframed/internal/peer"
	"udpframed/util"
)

// Session encapsulates the runtime context for a node.
type Session struct {
	Conn   *framed.Conn[codec.Message]
	Peers  *peer.Table
	Stats  *metrics.Collector
	Logger *util.Logger
}

// New creates a Session.  peers must be the registry conn reports
// send faults to.
func New(conn *framed.Conn[codec.Message], peers *peer.Table, stats *metrics.Collector, logger *util.Logger) *Session {
	if logger == nil {
		logger = util.Nop()
	}
	return &Session{
		Conn:   conn,
		Peers:  peers,
		Stats:  stats,
		Logger: logger,
	}
}

// Reply sends m to addr and waits for it to leave the socket.  A send
// fault is not an error here: the adapter has already evicted addr,
// which Reply reports as false.  Eviction is only observable for peers
// present in the table before the send.
func (s *Session) Reply(ctx context.Context, addr netip.AddrPort, m codec.Message) (bool, error) {
	known := s.Peers != nil && s.Peers.Contains(addr)
	err := s.Conn.Send(ctx, framed.Datagram[codec.Message]{Frame: m, Addr: addr})
	if err != nil {
		return false, err
	}
	if known && !s.Peers.Contains(addr) {
		return false, nil
	}
	return true, nil
}
