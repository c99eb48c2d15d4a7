// Package codec translates between datagram bytes and frame values.
//
// A codec works on whole datagrams: Decode sees exactly one datagram's
// payload and keeps no state between calls, Encode appends the complete
// wire form of exactly one frame.  Codecs are owned by one adapter and
// need not be safe for concurrent use, except that one Decode may run
// alongside one Encode.
package codec

import "errors"

// Codec is the pair of translation functions a framing adapter uses.
type Codec[F any] interface {
	// Decode interprets b as one datagram.  ok=false with a nil error
	// means the datagram carried nothing to deliver (keepalive, empty).
	// Implementations must not retain b.
	Decode(b []byte) (f F, ok bool, err error)

	// Encode appends the wire bytes of f to dst and returns the result.
	Encode(dst []byte, f F) ([]byte, error)
}

// Named is implemented by codecs that report a short name for errors
// and logs.
type Named interface {
	Name() string
}

// NameOf returns c's name, or "codec" when it has none.
func NameOf(c any) string {
	if n, ok := c.(Named); ok {
		return n.Name()
	}
	return "codec"
}

// Message is the application frame exchanged by udpframed nodes.
type Message struct {
	Op      string `json:"op"`
	ID      uint64 `json:"id"`
	Payload []byte `json:"payload,omitempty"`
}

var (
	ErrMissingOp     = errors.New("codec: message has no op")
	ErrOpTooLong     = errors.New("codec: op too long")
	ErrShortHeader   = errors.New("codec: short header")
	ErrInvalidMagic  = errors.New("codec: invalid magic")
	ErrVersion       = errors.New("codec: unsupported version")
	ErrLength        = errors.New("codec: declared length does not match datagram")
	ErrPayloadTooBig = errors.New("codec: payload too large")
	ErrSealedShort   = errors.New("codec: sealed datagram too short")
	ErrUnsealed      = errors.New("codec: message authentication failed")
)
