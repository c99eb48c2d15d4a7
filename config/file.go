package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	Listen    bool   `toml:"listen"`
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	LocalPort int    `toml:"local_port"`
	Bind      string `toml:"bind"`
	NoDNS     bool   `toml:"no_dns"`
	Codec     string `toml:"codec"`
	KeyFile   string `toml:"key_file"`
	Salt      string `toml:"salt"`
	Op        string `toml:"op"`
	ID        uint64 `toml:"id"`
	Payload   string `toml:"payload"`
	Timeout   string `toml:"timeout"`
	Retries   int    `toml:"retries"`
	PeerIdle  string `toml:"peer_idle"`
	Verbose   int    `toml:"verbose"`
}

// LoadFile overlays the keys present in the TOML file at path onto cfg.
// Absent keys leave cfg untouched.
func LoadFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("listen") {
		cfg.Listen = raw.Listen
	}
	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("local_port") {
		cfg.LocalPort = raw.LocalPort
	}
	if meta.IsDefined("bind") {
		cfg.Bind = strings.TrimSpace(raw.Bind)
	}
	if meta.IsDefined("no_dns") {
		cfg.NoDNS = raw.NoDNS
	}
	if meta.IsDefined("codec") {
		cfg.Codec = strings.ToLower(strings.TrimSpace(raw.Codec))
	}
	if meta.IsDefined("key_file") {
		cfg.KeyFile = strings.TrimSpace(raw.KeyFile)
	}
	if meta.IsDefined("salt") {
		cfg.Salt = raw.Salt
	}
	if meta.IsDefined("op") {
		cfg.Op = strings.TrimSpace(raw.Op)
	}
	if meta.IsDefined("id") {
		cfg.ID = raw.ID
	}
	if meta.IsDefined("payload") {
		cfg.Payload = raw.Payload
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("retries") {
		cfg.Retries = raw.Retries
	}
	if meta.IsDefined("peer_idle") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PeerIdle))
		if err != nil {
			return fmt.Errorf("parse peer_idle: %w", err)
		}
		cfg.PeerIdle = d
	}
	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}
	return nil
}
