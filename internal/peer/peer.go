// Package peer tracks which remote addresses a node currently considers
// live.  The framing layer only ever sees the narrow [Remover]
// capability; the full [Table] belongs to the node.
package peer

import (
	"net/netip"
	"sort"
	"sync"
	"time"
)

// Remover evicts a peer.  Calls are fire-and-forget and must be safe
// for addresses that are not present.
type Remover interface {
	RemovePeer(addr netip.AddrPort)
}

// RemoverFunc adapts a function to [Remover].
type RemoverFunc func(addr netip.AddrPort)

func (f RemoverFunc) RemovePeer(addr netip.AddrPort) { f(addr) }

// Normalize maps addr to the canonical registry key: a 16-byte IPv6
// address (IPv4 becomes IPv4-mapped), zone dropped, port kept.
func Normalize(addr netip.AddrPort) netip.AddrPort {
	if !addr.Addr().IsValid() {
		return addr
	}
	return netip.AddrPortFrom(netip.AddrFrom16(addr.Addr().As16()), addr.Port())
}

// Peer is one entry of a [Table] snapshot.
type Peer struct {
	Addr      netip.AddrPort
	FirstSeen time.Time
	LastSeen  time.Time
}

type entry struct {
	firstSeen time.Time
	lastSeen  time.Time
}

// Table is a concurrency-safe membership set keyed by normalized
// address.
type Table struct {
	mu    sync.RWMutex
	peers map[netip.AddrPort]entry
	now   func() time.Time
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{peers: make(map[netip.AddrPort]entry), now: time.Now}
}

// Touch records traffic from addr and reports whether it was unknown.
func (t *Table) Touch(addr netip.AddrPort) bool {
	key := Normalize(addr)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.peers[key]
	if !ok {
		e.firstSeen = now
	}
	e.lastSeen = now
	t.peers[key] = e
	return !ok
}

// RemovePeer implements [Remover].
func (t *Table) RemovePeer(addr netip.AddrPort) {
	key := Normalize(addr)
	t.mu.Lock()
	delete(t.peers, key)
	t.mu.Unlock()
}

// Contains reports whether addr is a live peer.
func (t *Table) Contains(addr netip.AddrPort) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.peers[Normalize(addr)]
	return ok
}

// Len returns the number of live peers.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// Prune removes peers silent for longer than idle and returns them.
func (t *Table) Prune(idle time.Duration) []netip.AddrPort {
	cutoff := t.now().Add(-idle)

	t.mu.Lock()
	defer t.mu.Unlock()
	var gone []netip.AddrPort
	for addr, e := range t.peers {
		if e.lastSeen.Before(cutoff) {
			delete(t.peers, addr)
			gone = append(gone, addr)
		}
	}
	return gone
}

// Snapshot returns the live peers ordered by address.
func (t *Table) Snapshot() []Peer {
	t.mu.RLock()
	out := make([]Peer, 0, len(t.peers))
	for addr, e := range t.peers {
		out = append(out, Peer{Addr: addr, FirstSeen: e.firstSeen, LastSeen: e.lastSeen})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Addr.Compare(out[j].Addr) < 0 })
	return out
}
