// Package config defines the runtime configuration for a udpframed node
// and the helpers that fill it from defaults, a TOML file, the
// environment and the command line.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	uferr "udpframed/internal/errors"
)

// Codec names accepted by --codec.
const (
	CodecJSON   = "json"
	CodecBinary = "binary"
)

// Config holds every tuneable for a single udpframed run.
type Config struct {
	// ── Socket ───────────────────────────────────────────────────────
	Listen    bool   // -l: run the echo node
	Host      string // remote host (ping mode)
	Port      int    // remote port (ping mode)
	LocalPort int    // -p: local bind port
	Bind      string // local bind address
	NoDNS     bool

	// ── Framing ──────────────────────────────────────────────────────
	Codec     string
	KeyFile   string // file holding the shared secret for sealing
	KeyPrompt bool   // true → read the secret from the terminal
	Salt      string // HKDF salt mixed into the derived key
	Key       []byte // resolved secret; never read from file or env

	// ── Ping ─────────────────────────────────────────────────────────
	Op      string
	ID      uint64
	Payload string
	Timeout time.Duration
	Retries int

	// ── Node ─────────────────────────────────────────────────────────
	PeerIdle time.Duration // evict peers silent for longer than this

	// ── Output ───────────────────────────────────────────────────────
	Verbose    int
	ConfigFile string
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Bind:     DefaultBindAddress,
		Codec:    CodecJSON,
		Salt:     DefaultSalt,
		Op:       DefaultOp,
		Timeout:  DefaultTimeout,
		Retries:  DefaultRetries,
		PeerIdle: DefaultPeerIdle,
	}
}

// Sealed reports whether datagrams are encrypted.
func (c *Config) Sealed() bool {
	return c.KeyFile != "" || c.KeyPrompt || len(c.Key) > 0
}

// ListenAddress is the host:port the socket binds to.
func (c *Config) ListenAddress() string {
	return joinHostPort(c.Bind, c.LocalPort)
}

// ParsePort accepts a decimal port in 1-65535.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Listen {
		if c.LocalPort == 0 {
			return &uferr.ConfigError{
				Field:   "port",
				Message: "listen mode requires a local port",
				Hint:    "udpframed -l -p 9000",
			}
		}
	} else {
		if c.Host == "" {
			return fmt.Errorf("hostname is required (use --help for usage)")
		}
		if c.Port == 0 {
			return fmt.Errorf("destination port is required")
		}
		if c.Op == "" {
			return &uferr.ConfigError{Field: "op", Message: "must not be empty"}
		}
		if c.Retries < 0 {
			return &uferr.ConfigError{Field: "retries", Value: c.Retries, Message: "must be >= 0"}
		}
		if c.Timeout <= 0 {
			return &uferr.ConfigError{
				Field:   "timeout",
				Value:   c.Timeout,
				Message: "ping mode needs a reply timeout",
				Hint:    "pass -w 5 to wait five seconds",
			}
		}
	}

	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return &uferr.ConfigError{Field: "port", Value: c.LocalPort, Message: "out of range 0-65535"}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &uferr.ConfigError{Field: "port", Value: c.Port, Message: "destination out of range 1-65535"}
	}

	switch c.Codec {
	case CodecJSON, CodecBinary:
	default:
		return &uferr.ConfigError{
			Field:   "codec",
			Value:   c.Codec,
			Message: "unknown codec",
			Hint:    "use json or binary",
		}
	}

	if c.KeyFile != "" && c.KeyPrompt {
		return fmt.Errorf("--key-file and --key-prompt are mutually exclusive")
	}
	if c.PeerIdle < 0 {
		return &uferr.ConfigError{Field: "peer-idle", Value: c.PeerIdle, Message: "must be >= 0"}
	}
	return nil
}

func joinHostPort(host string, port int) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return host + ":" + strconv.Itoa(port)
}
