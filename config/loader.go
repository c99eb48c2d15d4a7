package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Config file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the UDPFRAMED_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if envBool("LISTEN") {
		cfg.Listen = true
	}
	if v := env("HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("PORT"); v > 0 {
		cfg.LocalPort = v
	}
	if v := env("BIND"); v != "" {
		cfg.Bind = v
	}
	if envBool("NO_DNS") {
		cfg.NoDNS = true
	}

	// Framing
	if v := env("CODEC"); v != "" {
		cfg.Codec = strings.ToLower(v)
	}
	if v := env("KEY_FILE"); v != "" {
		cfg.KeyFile = v
	}
	if v := env("SALT"); v != "" {
		cfg.Salt = v
	}

	// Ping
	if v := env("OP"); v != "" {
		cfg.Op = v
	}
	if v := envInt("TIMEOUT"); v > 0 {
		cfg.Timeout = secondsDuration(v)
	}
	if v := env("RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Retries = n
		}
	}

	// Node
	if v := env("PEER_IDLE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PeerIdle = d
		}
	}

	// Output
	if v := envInt("VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func envInt(key string) int {
	v := env(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(env(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
