// Package errors provides domain-specific error types for udpframed.
//
// These types carry structured context (operation, address, retryability)
// that helps callers decide how to handle failures and provides better
// diagnostics than plain string wrapping.
package errors

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrWouldBlock  = errors.New("operation would block")
	ErrReleased    = errors.New("adapter released its socket")
	ErrTimeout     = errors.New("operation timed out")
	ErrKeyRequired = errors.New("sealed codec requires a key")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a socket operation.
type NetworkError struct {
	Op        string // operation: "bind", "recvfrom", "sendto", "wait"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// CodecError represents a failure translating between bytes and frames.
type CodecError struct {
	Op    string // "decode" or "encode"
	Codec string // codec name, e.g. "json"
	Len   int    // datagram or buffer length involved
	Err   error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s %s (%d bytes): %v", e.Codec, e.Op, e.Len, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapCodec creates a CodecError.
func WrapCodec(op, codec string, n int, err error) *CodecError {
	return &CodecError{Op: op, Codec: codec, Len: n, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsWouldBlock reports whether err means "the socket is not ready yet"
// rather than a real failure.  Both the raw EAGAIN of a non-blocking fd
// and an expired poll deadline qualify.
func IsWouldBlock(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrWouldBlock) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EWOULDBLOCK) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsCodec reports whether err originated in a codec.
func IsCodec(err error) bool {
	var ce *CodecError
	return errors.As(err, &ce)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsWouldBlock(err) {
		return true
	}
	// ICMP-driven failures on unconnected UDP sockets clear up once the
	// peer comes back.
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}
