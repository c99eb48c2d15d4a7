// Package core is the orchestration layer.  It composes the datagram
// socket, framing adapter, peer registry and capabilities into
// complete operational modes and provides a builder that selects the
// right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  framed  →  session  →  capability  →  core  →  cmd (CLI)
package core

import "context"

// Mode represents a complete operational mode of udpframed (echo node
// or ping client).  Each mode owns its socket from bind to close.
type Mode interface {
	Run(ctx context.Context) error
}
