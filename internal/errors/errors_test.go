package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestNetworkError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  NetworkError
		want string
	}{
		{
			name: "retryable",
			err:  NetworkError{Op: "sendto", Addr: "10.0.0.9:7000", Err: io.EOF, Retryable: true},
			want: "sendto 10.0.0.9:7000: EOF (retryable)",
		},
		{
			name: "non-retryable",
			err:  NetworkError{Op: "bind", Addr: ":8080", Err: fmt.Errorf("address in use")},
			want: "bind :8080: address in use",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	err := &NetworkError{Op: "recvfrom", Addr: "x", Err: io.EOF}
	if !stderrors.Is(err, io.EOF) {
		t.Error("should unwrap to io.EOF")
	}
}

func TestCodecError_Format(t *testing.T) {
	err := WrapCodec("decode", "json", 12, fmt.Errorf("unexpected end of JSON input"))
	want := "json decode (12 bytes): unexpected end of JSON input"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !IsCodec(fmt.Errorf("poll: %w", err)) {
		t.Error("wrapped CodecError should be detected")
	}
	if IsCodec(io.EOF) {
		t.Error("io.EOF is not a codec error")
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "port",
				Value:   99999,
				Message: "out of range 1-65535",
				Hint:    "use a port between 1 and 65535",
			},
			want: "config: --port=99999: out of range 1-65535\n  hint: use a port between 1 and 65535",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "key-file",
				Message: "required with --codec sealed",
			},
			want: "config: --key-file: required with --codec sealed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	inner := syscall.ECONNREFUSED
	err := Wrap("sendto", "10.0.0.1:22", inner)

	if err.Op != "sendto" || err.Addr != "10.0.0.1:22" {
		t.Errorf("wrong fields: Op=%q Addr=%q", err.Op, err.Addr)
	}
	if !stderrors.Is(err, inner) {
		t.Error("should unwrap to inner error")
	}
	if !err.Retryable {
		t.Error("ECONNREFUSED should be classified retryable")
	}
}

func TestIsWouldBlock(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrWouldBlock, true},
		{"eagain", syscall.EAGAIN, true},
		{"wrapped eagain", &os.SyscallError{Syscall: "recvfrom", Err: syscall.EAGAIN}, true},
		{"deadline", os.ErrDeadlineExceeded, true},
		{"op timeout", &net.OpError{Op: "read", Net: "udp", Err: os.ErrDeadlineExceeded}, true},
		{"refused", syscall.ECONNREFUSED, false},
		{"plain", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWouldBlock(tt.err); got != tt.want {
				t.Errorf("IsWouldBlock(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable network", &NetworkError{Op: "sendto", Addr: "x", Err: io.EOF, Retryable: true}, true},
		{"non-retryable network", &NetworkError{Op: "sendto", Addr: "x", Err: io.EOF, Retryable: false}, false},
		{"plain error", fmt.Errorf("boom"), false},
		{"unreachable", syscall.EHOSTUNREACH, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyRetryable_DNSError(t *testing.T) {
	opErr := &net.OpError{
		Op:  "dial",
		Net: "udp",
		Err: &net.DNSError{IsTemporary: true},
	}
	if !classifyRetryable(opErr) {
		t.Error("temporary DNS error should be retryable")
	}
}

func TestSentinels(t *testing.T) {
	// Verify sentinel errors are distinct.
	sentinels := []error{
		ErrWouldBlock, ErrReleased, ErrTimeout, ErrKeyRequired,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && stderrors.Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}
