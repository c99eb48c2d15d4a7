package capability

import (
	"context"
	"sync"

	"udpframed/internal/codec"
	"udpframed/internal/framed"
	"udpframed/internal/session"
)

// Mux routes frames to a Capability by op.  Frames whose op has no
// route go to Fallback, or are dropped when it is nil.
type Mux struct {
	Fallback Capability

	mu     sync.RWMutex
	routes map[string]Capability
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{routes: make(map[string]Capability)}
}

// Route registers c for op, replacing any previous route.
func (m *Mux) Route(op string, c Capability) *Mux {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.routes == nil {
		m.routes = make(map[string]Capability)
	}
	m.routes[op] = c
	return m
}

// Handle dispatches req.
func (m *Mux) Handle(ctx context.Context, sess *session.Session, req framed.Datagram[codec.Message]) error {
	m.mu.RLock()
	c, ok := m.routes[req.Frame.Op]
	m.mu.RUnlock()
	if !ok {
		c = m.Fallback
	}
	if c == nil {
		sess.Logger.Verbose("no route for op %q from %s, dropping", req.Frame.Op, req.Addr)
		return nil
	}
	return c.Handle(ctx, sess, req)
}
