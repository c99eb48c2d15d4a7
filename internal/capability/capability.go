// Package capability defines how a node answers inbound frames.  Each
// Capability encapsulates a single behaviour (echoing pings, routing
// by op) and operates on a Session rather than a raw socket, which
// keeps capabilities testable and decoupled from transport details.
package capability

import (
	"context"

	"udpframed/internal/codec"
	"udpframed/internal/framed"
	"udpframed/internal/session"
)

// Capability handles one received frame.
type Capability interface {
	// Handle processes req, replying through sess as needed.  It
	// returns an error only for faults that should stop the node.
	Handle(ctx context.Context, sess *session.Session, req framed.Datagram[codec.Message]) error
}

// Func adapts a function to [Capability].
type Func func(ctx context.Context, sess *session.Session, req framed.Datagram[codec.Message]) error

func (f Func) Handle(ctx context.Context, sess *session.Session, req framed.Datagram[codec.Message]) error {
	return f(ctx, sess, req)
}
