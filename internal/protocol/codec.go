package protocol

import (
	"fmt"
	"io"
)

// Encode serializes m as the payload for version v: the 4-byte code
// followed by the arguments of the schema that applies at v.
func Encode(m Message, v Version) ([]byte, error) {
	code := m.Code()
	s, ok := Resolve(code, v)
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrUnsupported, code, v)
	}
	buf := make([]byte, 0, 4+16)
	buf = append(buf, code...)
	buf, err := pack(buf, s.fields, s.args(m))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", code, err)
	}
	if len(buf) > MaxMessageLength {
		return nil, fmt.Errorf("encode %s: %w: %d bytes (max %d)", code, ErrTooLarge, len(buf), MaxMessageLength)
	}
	return buf, nil
}

// Decode parses a frame payload at version v. It checks bounds and shape
// only; whether the message is legal in the current session state is the
// caller's concern.
func Decode(payload []byte, v Version) (Message, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: %d byte payload has no code", ErrTruncated, len(payload))
	}
	code := Code(payload[:4])
	s, ok := Resolve(code, v)
	if !ok {
		return nil, fmt.Errorf("%w: %q at %s", ErrUnknownCode, string(code), v)
	}
	m := s.newMsg()
	if err := unpack(payload[4:], s.fields, s.args(m)); err != nil {
		return nil, fmt.Errorf("decode %s: %w", code, err)
	}
	return m, nil
}

// WriteMessage encodes m for version v and writes it as one frame.
func WriteMessage(w io.Writer, m Message, v Version) error {
	payload, err := Encode(m, v)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadMessage reads one frame from r and decodes it at version v.
func ReadMessage(r io.Reader, v Version) (Message, error) {
	payload, err := ReadFrame(r, MaxMessageLength)
	if err != nil {
		return nil, err
	}
	return Decode(payload, v)
}
