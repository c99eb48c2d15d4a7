// Package metrics provides lightweight, lock-free counters for tracking
// runtime statistics of a framed UDP endpoint.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one adapter (or one node).
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	framesIn      atomic.Int64
	framesOut     atomic.Int64
	emptyFrames   atomic.Int64
	bytesIn       atomic.Int64
	bytesOut      atomic.Int64
	decodeErrors  atomic.Int64
	partialWrites atomic.Int64
	sendFaults    atomic.Int64
	peersEvicted  atomic.Int64

	mu            sync.RWMutex
	startTime     time.Time
	lastEviction  time.Time
	lastEvictedAt string
	lastError     time.Time
	lastErrorMsg  string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Inbound ──────────────────────────────────────────────────────────

// DatagramReceived records one datagram of n bytes read from the socket.
func (c *Collector) DatagramReceived(n int) {
	if c == nil {
		return
	}
	c.bytesIn.Add(int64(n))
}

// FrameDecoded records a datagram that produced a frame.
func (c *Collector) FrameDecoded() {
	if c == nil {
		return
	}
	c.framesIn.Add(1)
}

// EmptyDatagram records a datagram the codec chose to ignore.
func (c *Collector) EmptyDatagram() {
	if c == nil {
		return
	}
	c.emptyFrames.Add(1)
}

// DecodeError records a datagram the codec rejected.
func (c *Collector) DecodeError(msg string) {
	if c == nil {
		return
	}
	c.decodeErrors.Add(1)
	c.recordError(msg)
}

// FramesIn returns the number of frames delivered to callers.
func (c *Collector) FramesIn() int64 {
	if c == nil {
		return 0
	}
	return c.framesIn.Load()
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// DecodeErrors returns the number of rejected datagrams.
func (c *Collector) DecodeErrors() int64 {
	if c == nil {
		return 0
	}
	return c.decodeErrors.Load()
}

// ── Outbound ─────────────────────────────────────────────────────────

// DatagramSent records a flushed datagram of n bytes.
func (c *Collector) DatagramSent(n int) {
	if c == nil {
		return
	}
	c.framesOut.Add(1)
	c.bytesOut.Add(int64(n))
}

// PartialWrite records a send that accepted fewer bytes than encoded.
func (c *Collector) PartialWrite() {
	if c == nil {
		return
	}
	c.partialWrites.Add(1)
}

// SendFault records a hard send error that led to evicting addr.
func (c *Collector) SendFault(addr, msg string) {
	if c == nil {
		return
	}
	c.sendFaults.Add(1)
	c.peersEvicted.Add(1)
	c.mu.Lock()
	c.lastEviction = time.Now()
	c.lastEvictedAt = addr
	c.mu.Unlock()
	c.recordError(msg)
}

// FramesOut returns the number of datagrams flushed.
func (c *Collector) FramesOut() int64 {
	if c == nil {
		return 0
	}
	return c.framesOut.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// PartialWrites returns the number of short sends observed.
func (c *Collector) PartialWrites() int64 {
	if c == nil {
		return 0
	}
	return c.partialWrites.Load()
}

// PeersEvicted returns how many peers were removed after send faults.
func (c *Collector) PeersEvicted() int64 {
	if c == nil {
		return 0
	}
	return c.peersEvicted.Load()
}

func (c *Collector) recordError(msg string) {
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	FramesIn         int64  `json:"frames_in"`
	FramesOut        int64  `json:"frames_out"`
	EmptyDatagrams   int64  `json:"empty_datagrams"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	DecodeErrors     int64  `json:"decode_errors"`
	PartialWrites    int64  `json:"partial_writes"`
	SendFaults       int64  `json:"send_faults"`
	PeersEvicted     int64  `json:"peers_evicted"`
	LastEviction     string `json:"last_eviction,omitempty"`
	LastEvictedPeer  string `json:"last_evicted_peer,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		FramesIn:       c.framesIn.Load(),
		FramesOut:      c.framesOut.Load(),
		EmptyDatagrams: c.emptyFrames.Load(),
		BytesIn:        c.bytesIn.Load(),
		BytesOut:       c.bytesOut.Load(),
		DecodeErrors:   c.decodeErrors.Load(),
		PartialWrites:  c.partialWrites.Load(),
		SendFaults:     c.sendFaults.Load(),
		PeersEvicted:   c.peersEvicted.Load(),
	}
	if !c.lastEviction.IsZero() {
		s.LastEviction = c.lastEviction.Format(time.RFC3339)
		s.LastEvictedPeer = c.lastEvictedAt
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
