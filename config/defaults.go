package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultBindAddress is the local address the socket binds to.
	DefaultBindAddress = "0.0.0.0"

	// DefaultOp is the operation a ping sends; the node answers "pong".
	DefaultOp = "ping"

	// DefaultTimeout bounds the whole ping exchange.
	DefaultTimeout = 5 * time.Second

	// DefaultRetries is how many times a ping is retransmitted before
	// giving up.  UDP may drop either direction.
	DefaultRetries = 3

	// DefaultRetryBackoff is the first retransmit delay; it doubles up
	// to DefaultMaxRetryBackoff.
	DefaultRetryBackoff = 250 * time.Millisecond

	// DefaultMaxRetryBackoff caps the retransmit delay.
	DefaultMaxRetryBackoff = 2 * time.Second

	// DefaultPeerIdle is how long the node keeps a silent peer.
	DefaultPeerIdle = 2 * time.Minute

	// DefaultPruneInterval is how often the node sweeps idle peers.
	DefaultPruneInterval = 15 * time.Second

	// DefaultSalt is mixed into the sealed-codec key derivation.
	DefaultSalt = "udpframed/v1"

	// EnvPrefix prefixes every supported environment variable.
	EnvPrefix = "UDPFRAMED_"
)
