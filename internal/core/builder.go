package core

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"udpframed/config"
	"udpframed/internal/capability"
	"udpframed/internal/codec"
	uferr "udpframed/internal/errors"
	"udpframed/internal/metrics"
	"udpframed/internal/retry"
	"udpframed/util"
)

// Build constructs the appropriate Mode from the given configuration.
// Key material must already be resolved into cfg.Key unless it comes
// from cfg.KeyFile.
func Build(cfg *config.Config, logger *util.Logger, stdout io.Writer) (Mode, error) {
	c, err := BuildCodec(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Listen {
		return buildListen(cfg, c, logger), nil
	}
	return buildPing(cfg, c, logger, stdout), nil
}

// ── mode builders ────────────────────────────────────────────────────

func buildListen(cfg *config.Config, c codec.Codec[codec.Message], logger *util.Logger) Mode {
	return &ListenMode{
		Address:       cfg.ListenAddress(),
		Codec:         c,
		Capability:    capability.NewMux().Route(capability.OpPing, capability.Echo{}),
		PeerIdle:      cfg.PeerIdle,
		PruneInterval: config.DefaultPruneInterval,
		Stats:         metrics.New(),
		Logger:        logger,
	}
}

func buildPing(cfg *config.Config, c codec.Codec[codec.Message], logger *util.Logger, stdout io.Writer) Mode {
	b := retry.DefaultBackoff()
	b.InitialDelay = config.DefaultRetryBackoff
	b.MaxDelay = config.DefaultMaxRetryBackoff
	b.Retries = cfg.Retries

	return &PingMode{
		Host:      cfg.Host,
		Port:      cfg.Port,
		NoDNS:     cfg.NoDNS,
		LocalPort: cfg.LocalPort,
		Codec:     c,
		Request:   codec.Message{Op: cfg.Op, ID: cfg.ID, Payload: []byte(cfg.Payload)},
		Timeout:   cfg.Timeout,
		Backoff:   b,
		Stats:     metrics.New(),
		Logger:    logger,
		Stdout:    stdout,
	}
}

// ── shared helpers ───────────────────────────────────────────────────

// BuildCodec returns the codec named by cfg.Codec, sealed when key
// material is configured.
func BuildCodec(cfg *config.Config) (codec.Codec[codec.Message], error) {
	var c codec.Codec[codec.Message]
	switch cfg.Codec {
	case "", config.CodecJSON:
		c = codec.JSON{}
	case config.CodecBinary:
		c = codec.Binary{}
	default:
		return nil, &uferr.ConfigError{Field: "codec", Value: cfg.Codec, Message: "unknown codec"}
	}

	if !cfg.Sealed() {
		return c, nil
	}
	secret, err := loadKey(cfg)
	if err != nil {
		return nil, err
	}
	key, err := codec.DeriveKey(secret, cfg.Salt)
	if err != nil {
		return nil, err
	}
	sealed, err := codec.NewSealed(c, key)
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

func loadKey(cfg *config.Config) ([]byte, error) {
	if len(cfg.Key) > 0 {
		return cfg.Key, nil
	}
	if cfg.KeyFile == "" {
		return nil, uferr.ErrKeyRequired
	}
	raw, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("key file %s: %w", cfg.KeyFile, uferr.ErrKeyRequired)
	}
	return raw, nil
}
