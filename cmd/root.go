// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"udpframed/config"
	"udpframed/internal/core"
	"udpframed/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X udpframed/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// readPassphrase reads the sealing secret without echo.  Swapped out in
// tests.
var readPassphrase = func() ([]byte, error) { //nolint:gochecknoglobals
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("--key-prompt needs a terminal on stdin")
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return pass, nil
}

// flagValues receives the parsed flags.  Only flags the user actually
// set are copied onto the Config, so they override the file and the
// environment without clobbering them with zero values.
type flagValues struct {
	listen     bool
	localPort  int
	bind       string
	noDNS      bool
	codec      string
	keyFile    string
	keyPrompt  bool
	salt       string
	op         string
	id         uint64
	payload    string
	timeoutSec int
	retries    int
	peerIdle   time.Duration
	verbose    int
	configFile string
	dryRun     bool
}

// Execute parses args and runs the appropriate udpframed mode.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout)
}

func execute(ctx context.Context, args []string, stdout io.Writer) error {
	var f flagValues
	fs := flag.NewFlagSet("udpframed", flag.ContinueOnError)

	// ── socket ───────────────────────────────────────────────────
	fs.BoolVarP(&f.listen, "listen", "l", false, "Run the echo node")
	fs.IntVarP(&f.localPort, "port", "p", 0, "Local port number")
	fs.StringVarP(&f.bind, "bind", "s", config.DefaultBindAddress, "Local bind address")
	fs.BoolVarP(&f.noDNS, "no-dns", "n", false, "Numeric-only, no DNS resolution")

	// ── framing ──────────────────────────────────────────────────
	fs.StringVar(&f.codec, "codec", config.CodecJSON, "Frame codec: json or binary")
	fs.StringVar(&f.keyFile, "key-file", "", "Seal datagrams with the secret in this file")
	fs.BoolVar(&f.keyPrompt, "key-prompt", false, "Prompt for the sealing passphrase")
	fs.StringVar(&f.salt, "salt", config.DefaultSalt, "Key derivation salt (must match the peer)")

	// ── ping ─────────────────────────────────────────────────────
	fs.StringVar(&f.op, "op", config.DefaultOp, "Request op")
	fs.Uint64Var(&f.id, "id", 0, "Request id")
	fs.StringVar(&f.payload, "payload", "", "Request payload")
	fs.IntVarP(&f.timeoutSec, "timeout", "w", int(config.DefaultTimeout/time.Second), "Timeout in seconds")
	fs.IntVar(&f.retries, "retries", config.DefaultRetries, "Retransmits before giving up")

	// ── node ─────────────────────────────────────────────────────
	fs.DurationVar(&f.peerIdle, "peer-idle", config.DefaultPeerIdle, "Forget peers silent for this long (0 = never)")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&f.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&f.configFile, "config", "", "TOML config file")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Validate the configuration and exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "udpframed %s\n", version)
		return nil
	}

	// ── layer: defaults < file < env < flags ─────────────────────
	cfg := config.Default()
	if f.configFile != "" {
		cfg.ConfigFile = f.configFile
		if err := config.LoadFile(cfg, f.configFile); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)
	fs.Visit(func(fl *flag.Flag) { applyFlag(cfg, &f, fl.Name) })

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	if f.dryRun {
		fmt.Fprintf(stdout, "%s\n", describe(cfg))
		return nil
	}

	logger := util.NewLogger(cfg.Verbose)

	if cfg.KeyPrompt {
		key, err := readPassphrase()
		if err != nil {
			return err
		}
		cfg.Key = key
	}

	// ── build and run ────────────────────────────────────────────
	mode, err := core.Build(cfg, logger, stdout)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

func applyFlag(cfg *config.Config, f *flagValues, name string) {
	switch name {
	case "listen":
		cfg.Listen = f.listen
	case "port":
		cfg.LocalPort = f.localPort
	case "bind":
		cfg.Bind = f.bind
	case "no-dns":
		cfg.NoDNS = f.noDNS
	case "codec":
		cfg.Codec = f.codec
	case "key-file":
		cfg.KeyFile = f.keyFile
	case "key-prompt":
		cfg.KeyPrompt = f.keyPrompt
	case "salt":
		cfg.Salt = f.salt
	case "op":
		cfg.Op = f.op
	case "id":
		cfg.ID = f.id
	case "payload":
		cfg.Payload = f.payload
	case "timeout":
		cfg.Timeout = time.Duration(f.timeoutSec) * time.Second
	case "retries":
		cfg.Retries = f.retries
	case "peer-idle":
		cfg.PeerIdle = f.peerIdle
	case "verbose":
		cfg.Verbose = f.verbose
	}
}

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.Listen {
		switch len(remaining) {
		case 0: // udpframed -l -p PORT
		case 1:
			cfg.Bind = remaining[0]
		default:
			return fmt.Errorf("too many arguments for listen mode")
		}
		return nil
	}

	// Ping mode: host port
	switch len(remaining) {
	case 0:
		if cfg.Host == "" {
			return fmt.Errorf("hostname required (use --help for usage)")
		}
		return nil
	case 1:
		return fmt.Errorf("port required")
	case 2:
	default:
		return fmt.Errorf("too many arguments")
	}
	cfg.Host = remaining[0]
	port, err := config.ParsePort(remaining[1])
	if err != nil {
		return fmt.Errorf("port: %w", err)
	}
	cfg.Port = port
	return nil
}

func describe(cfg *config.Config) string {
	sealed := "plain"
	if cfg.Sealed() {
		sealed = "sealed"
	}
	if cfg.Listen {
		return fmt.Sprintf("listen %s codec=%s (%s) peer-idle=%s",
			cfg.ListenAddress(), cfg.Codec, sealed, cfg.PeerIdle)
	}
	return fmt.Sprintf("ping %s op=%s id=%d codec=%s (%s) timeout=%s retries=%d",
		util.FormatAddr(cfg.Host, cfg.Port), cfg.Op, cfg.ID, cfg.Codec, sealed, cfg.Timeout, cfg.Retries)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `udpframed – framed datagram node v%s

Exchanges codec-framed messages over UDP.  A send that fails evicts
the peer instead of ending the session.

Usage:
  udpframed [options] <host> <port>           Ping a node
  udpframed -l -p <port> [options] [bind]     Run an echo node

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  udpframed -l -p 9000                        Echo node on :9000
  udpframed -v 127.0.0.1 9000                 Ping it
  udpframed --codec binary --id 42 node 9000  Binary frames, id 42
  udpframed --key-file ./secret -l -p 9000    Sealed datagrams
`)
}
