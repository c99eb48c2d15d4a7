package core

import (
	"bytes"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"udpframed/config"
	"udpframed/internal/codec"
	uferr "udpframed/internal/errors"
	"udpframed/util"
)

// TestBuild_Ping verifies that Build produces a PingMode for a simple
// client configuration.
func TestBuild_Ping(t *testing.T) {
	cfg := config.Default()
	cfg.Host, cfg.Port, cfg.ID, cfg.Payload = "example.com", 9000, 7, "hi"

	mode, err := Build(cfg, util.NewLogger(0), &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	pm, ok := mode.(*PingMode)
	if !ok {
		t.Fatalf("expected *PingMode, got %T", mode)
	}
	if pm.Request.Op != config.DefaultOp || pm.Request.ID != 7 || string(pm.Request.Payload) != "hi" {
		t.Errorf("request = %+v", pm.Request)
	}
	if pm.Backoff.Retries != config.DefaultRetries {
		t.Errorf("retries = %d, want %d", pm.Backoff.Retries, config.DefaultRetries)
	}
}

// TestBuild_Listen verifies Build produces a ListenMode.
func TestBuild_Listen(t *testing.T) {
	cfg := config.Default()
	cfg.Listen, cfg.LocalPort = true, 8080

	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	lm, ok := mode.(*ListenMode)
	if !ok {
		t.Fatalf("expected *ListenMode, got %T", mode)
	}
	if lm.Address != "0.0.0.0:8080" {
		t.Errorf("address = %q", lm.Address)
	}
	if lm.Capability == nil || lm.Stats == nil {
		t.Error("capability and stats must be set")
	}
}

func TestBuildCodec(t *testing.T) {
	tests := []struct {
		name     string
		codec    string
		key      []byte
		wantName string
	}{
		{"default", "", nil, "json"},
		{"json", config.CodecJSON, nil, "json"},
		{"binary", config.CodecBinary, nil, "binary"},
		{"sealed json", config.CodecJSON, []byte("secret"), "sealed+json"},
		{"sealed binary", config.CodecBinary, []byte("secret"), "sealed+binary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Codec, cfg.Key = tt.codec, tt.key
			c, err := BuildCodec(cfg)
			if err != nil {
				t.Fatal(err)
			}
			if got := codec.NameOf(c); got != tt.wantName {
				t.Errorf("codec = %q, want %q", got, tt.wantName)
			}
		})
	}
}

func TestBuildCodec_Unknown(t *testing.T) {
	cfg := config.Default()
	cfg.Codec = "xml"
	_, err := BuildCodec(cfg)
	var ce *uferr.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

// TestBuildCodec_KeyFile verifies that both ends derive the same key
// from a key file, and that a different salt does not interoperate.
func TestBuildCodec_KeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  correct horse\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	a := config.Default()
	a.KeyFile = path
	ca, err := BuildCodec(a)
	if err != nil {
		t.Fatal(err)
	}

	b := config.Default()
	b.Key = []byte("correct horse")
	cb, err := BuildCodec(b)
	if err != nil {
		t.Fatal(err)
	}

	wire, err := ca.Encode(nil, codec.Message{Op: "ping", ID: 1})
	if err != nil {
		t.Fatal(err)
	}
	m, ok, err := cb.Decode(wire)
	if err != nil || !ok || m.ID != 1 {
		t.Fatalf("decode = %+v, %v, %v", m, ok, err)
	}

	c := config.Default()
	c.Key, c.Salt = []byte("correct horse"), "other"
	cc, err := BuildCodec(c)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := cc.Decode(wire); err == nil {
		t.Error("different salt must not decode")
	}
}

func TestBuildCodec_KeyErrors(t *testing.T) {
	empty := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cfg  func(*config.Config)
	}{
		{"prompt without key", func(c *config.Config) { c.KeyPrompt = true }},
		{"empty key file", func(c *config.Config) { c.KeyFile = empty }},
		{"missing key file", func(c *config.Config) { c.KeyFile = filepath.Join(t.TempDir(), "nope") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.cfg(cfg)
			if _, err := BuildCodec(cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	cfg := config.Default()
	cfg.KeyPrompt = true
	if _, err := BuildCodec(cfg); !errors.Is(err, uferr.ErrKeyRequired) {
		t.Errorf("got %v, want ErrKeyRequired", err)
	}
}

func TestBindAddress(t *testing.T) {
	tests := []struct {
		target string
		port   int
		want   string
	}{
		{"127.0.0.1:9000", 0, "0.0.0.0:0"},
		{"[::ffff:10.0.0.1]:9000", 5000, "0.0.0.0:5000"},
		{"[::1]:9000", 0, "[::]:0"},
	}
	for _, tt := range tests {
		if got := bindAddress(mustAddrPort(t, tt.target), tt.port); got != tt.want {
			t.Errorf("bindAddress(%s, %d) = %q, want %q", tt.target, tt.port, got, tt.want)
		}
	}
}

func mustAddrPort(t *testing.T, s string) netip.AddrPort {
	t.Helper()
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		t.Fatal(err)
	}
	return ap
}
