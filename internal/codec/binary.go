package codec

import (
	"encoding/binary"
	"math"
)

const (
	BinaryMagic     uint32 = 0x55464431 // "UFD1"
	BinaryVersion   uint8  = 1
	BinaryHeaderLen        = 20

	// FlagKeepalive marks a datagram that only proves liveness; it
	// decodes to no frame.
	FlagKeepalive uint8 = 0x01

	maxOpLen = math.MaxUint8
)

// Header is the fixed binary wire header.
//
//	[4B magic][1B version][1B flags][2B op_len][8B id][4B payload_len]
type Header struct {
	Magic      uint32
	Version    uint8
	Flags      uint8
	OpLen      uint16
	ID         uint64
	PayloadLen uint32
}

// Binary is a compact big-endian encoding of Message.
type Binary struct {
	// MaxPayload caps decoded payloads; zero means the UDP maximum.
	MaxPayload uint32
}

func (Binary) Name() string { return "binary" }

func (c Binary) maxPayload() uint32 {
	if c.MaxPayload == 0 {
		return 65507 - BinaryHeaderLen
	}
	return c.MaxPayload
}

// Decode parses one datagram.  The declared lengths must cover the
// datagram exactly; trailing or missing bytes are an error.
func (c Binary) Decode(b []byte) (Message, bool, error) {
	if len(b) == 0 {
		return Message{}, false, nil
	}
	if len(b) < BinaryHeaderLen {
		return Message{}, false, ErrShortHeader
	}
	h := DecodeHeader(b[:BinaryHeaderLen])
	if h.Magic != BinaryMagic {
		return Message{}, false, ErrInvalidMagic
	}
	if h.Version != BinaryVersion {
		return Message{}, false, ErrVersion
	}
	if h.PayloadLen > c.maxPayload() {
		return Message{}, false, ErrPayloadTooBig
	}
	body := b[BinaryHeaderLen:]
	if uint64(len(body)) != uint64(h.OpLen)+uint64(h.PayloadLen) {
		return Message{}, false, ErrLength
	}
	if h.Flags&FlagKeepalive != 0 {
		return Message{}, false, nil
	}
	if h.OpLen == 0 {
		return Message{}, false, ErrMissingOp
	}

	m := Message{Op: string(body[:h.OpLen]), ID: h.ID}
	if h.PayloadLen > 0 {
		m.Payload = append([]byte(nil), body[h.OpLen:]...)
	}
	return m, true, nil
}

// Encode appends the header, op and payload of m.
func (c Binary) Encode(dst []byte, m Message) ([]byte, error) {
	if m.Op == "" {
		return dst, ErrMissingOp
	}
	if len(m.Op) > maxOpLen {
		return dst, ErrOpTooLong
	}
	if uint64(len(m.Payload)) > uint64(c.maxPayload()) {
		return dst, ErrPayloadTooBig
	}
	dst = AppendHeader(dst, Header{
		Magic:      BinaryMagic,
		Version:    BinaryVersion,
		OpLen:      uint16(len(m.Op)),
		ID:         m.ID,
		PayloadLen: uint32(len(m.Payload)),
	})
	dst = append(dst, m.Op...)
	return append(dst, m.Payload...), nil
}

// Keepalive appends a keepalive datagram.
func Keepalive(dst []byte) []byte {
	return AppendHeader(dst, Header{Magic: BinaryMagic, Version: BinaryVersion, Flags: FlagKeepalive})
}

func AppendHeader(dst []byte, h Header) []byte {
	dst = binary.BigEndian.AppendUint32(dst, h.Magic)
	dst = append(dst, h.Version, h.Flags)
	dst = binary.BigEndian.AppendUint16(dst, h.OpLen)
	dst = binary.BigEndian.AppendUint64(dst, h.ID)
	return binary.BigEndian.AppendUint32(dst, h.PayloadLen)
}

// DecodeHeader reads a header from b, which must hold at least
// BinaryHeaderLen bytes.
func DecodeHeader(b []byte) Header {
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    b[4],
		Flags:      b[5],
		OpLen:      binary.BigEndian.Uint16(b[6:8]),
		ID:         binary.BigEndian.Uint64(b[8:16]),
		PayloadLen: binary.BigEndian.Uint32(b[16:20]),
	}
}
