package capability

import (
	"context"

	"udpframed/internal/codec"
	"udpframed/internal/framed"
	"udpframed/internal/session"
)

// Ops understood by the echo node.
const (
	OpPing = "ping"
	OpPong = "pong"
)

// Echo answers every ping with a pong carrying the same id and payload.
// Other ops are ignored so two echo nodes never answer each other
// forever.
type Echo struct{}

// Handle replies to pings.
func (Echo) Handle(ctx context.Context, sess *session.Session, req framed.Datagram[codec.Message]) error {
	if req.Frame.Op != OpPing {
		sess.Logger.Debug("echo: ignoring op %q from %s", req.Frame.Op, req.Addr)
		return nil
	}
	pong := codec.Message{Op: OpPong, ID: req.Frame.ID, Payload: req.Frame.Payload}
	delivered, err := sess.Reply(ctx, req.Addr, pong)
	if err != nil {
		return err
	}
	if !delivered {
		sess.Logger.Verbose("echo: %s unreachable, pong %d dropped", req.Addr, req.Frame.ID)
		return nil
	}
	sess.Logger.Debug("echo: pong %d -> %s", req.Frame.ID, req.Addr)
	return nil
}
