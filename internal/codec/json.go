package codec

import (
	"bytes"
	"encoding/json"
)

// JSON encodes each Message as one JSON object per datagram.
type JSON struct{}

func (JSON) Name() string { return "json" }

// Decode parses one JSON object.  Blank datagrams are ignored.
func (JSON) Decode(b []byte) (Message, bool, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return Message{}, false, nil
	}
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, false, err
	}
	if m.Op == "" {
		return Message{}, false, ErrMissingOp
	}
	return m, true, nil
}

// Encode appends m as compact JSON.
func (JSON) Encode(dst []byte, m Message) ([]byte, error) {
	if m.Op == "" {
		return dst, ErrMissingOp
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return dst, err
	}
	return append(dst, raw...), nil
}
