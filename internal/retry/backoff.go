// Package retry drives retransmission of unacknowledged datagrams with
// an exponentially growing reply window.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	uferr "udpframed/internal/errors"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError wraps an error to signal that retransmitting will not
// help.  Return [Permanent](err) from the attempt function to stop
// immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff schedules retransmits.  Each attempt is given a reply window;
// when the window closes without an answer the datagram is sent again
// with a window Multiplier times longer, capped at MaxDelay.
type Backoff struct {
	// InitialDelay is the first reply window (default 250ms).
	InitialDelay time.Duration
	// MaxDelay caps the window (default 2s).
	MaxDelay time.Duration
	// Multiplier grows the window each attempt (default 2.0).
	Multiplier float64
	// Retries is the number of retransmits after the first send.
	Retries int
	// Jitter adds ±25% randomisation so peers pinging each other do not
	// retransmit in lockstep.
	Jitter bool
}

// DefaultBackoff returns the ping client's schedule.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Retries:      3,
		Jitter:       true,
	}
}

// Windows returns the reply window of every attempt, first send
// included, without jitter.
func (b *Backoff) Windows() []time.Duration {
	delay, multiplier, maxDelay := b.params()
	out := make([]time.Duration, 0, b.Retries+1)
	for i := 0; i <= b.Retries; i++ {
		out = append(out, delay)
		delay = grow(delay, multiplier, maxDelay)
	}
	return out
}

// Do calls fn once per attempt with the 1-based attempt number and the
// window fn may spend waiting for a reply.  fn returns nil when the
// exchange completed, an error wrapping [uferr.ErrTimeout] when the
// window closed unanswered, or any other error to classify with
// [uferr.IsRetryable].  Permanent and non-retryable errors end the loop
// at once; so does ctx.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int, window time.Duration) error) error {
	delay, multiplier, maxDelay := b.params()
	attempts := b.Retries + 1

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return fmt.Errorf("retry cancelled after %d attempts: %w", attempt-1, last)
			}
			return fmt.Errorf("retry cancelled: %w", err)
		}

		window := delay
		if b.Jitter {
			window = addJitter(delay)
		}

		err := fn(attempt, window)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if !errors.Is(err, uferr.ErrTimeout) && !uferr.IsRetryable(err) {
			return err
		}
		last = err
		delay = grow(delay, multiplier, maxDelay)
	}
	return fmt.Errorf("no reply after %d attempts: %w", attempts, last)
}

func (b *Backoff) params() (delay time.Duration, multiplier float64, maxDelay time.Duration) {
	delay = b.InitialDelay
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	multiplier = b.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	maxDelay = b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay, multiplier, maxDelay
}

func grow(d time.Duration, multiplier float64, maxDelay time.Duration) time.Duration {
	d = time.Duration(float64(d) * multiplier)
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// addJitter adds ±25% randomisation to a duration.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	result := float64(d) + delta
	return time.Duration(math.Max(result, float64(time.Millisecond)))
}
