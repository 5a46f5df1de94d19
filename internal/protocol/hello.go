package protocol

import (
	"fmt"
	"io"
)

var (
	helloFields     = mustParseFormat("%2i%2i")
	helloBackFields = mustParseFormat("%2i%2i%s")
)

// Hello is the Primary's greeting. It is the only message without a code;
// its first field is the fixed-size protocol name.
type Hello struct {
	ProtocolName string
	Version      Version
}

// HelloBack is the Secondary's reply carrying its screen name.
type HelloBack struct {
	ProtocolName string
	Version      Version
	Name         string
}

// IsProtocolName reports whether name is one of the accepted greeting names.
func IsProtocolName(name string) bool {
	return name == BarrierProtocolName || name == SynergyProtocolName
}

func checkProtocolName(name string) error {
	if len(name) != ProtocolNameSize || !IsProtocolName(name) {
		return fmt.Errorf("%w: %q", ErrBadProtocolName, name)
	}
	return nil
}

// protocolNamePrefix splits the fixed-size name off a greeting payload.
func protocolNamePrefix(payload []byte) (string, []byte, error) {
	if len(payload) < ProtocolNameSize {
		return "", nil, fmt.Errorf("%w: greeting of %d bytes", ErrBadProtocolName, len(payload))
	}
	name := string(payload[:ProtocolNameSize])
	if err := checkProtocolName(name); err != nil {
		return "", nil, err
	}
	return name, payload[ProtocolNameSize:], nil
}

// EncodeHello serializes h as a greeting payload.
func EncodeHello(h Hello) ([]byte, error) {
	if err := checkProtocolName(h.ProtocolName); err != nil {
		return nil, err
	}
	buf := append([]byte(nil), h.ProtocolName...)
	return pack(buf, helloFields, []any{&h.Version.Major, &h.Version.Minor})
}

// DecodeHello parses a greeting payload. The protocol name is validated
// before any other field is looked at.
func DecodeHello(payload []byte) (Hello, error) {
	name, rest, err := protocolNamePrefix(payload)
	if err != nil {
		return Hello{}, err
	}
	h := Hello{ProtocolName: name}
	if err := unpack(rest, helloFields, []any{&h.Version.Major, &h.Version.Minor}); err != nil {
		return Hello{}, fmt.Errorf("decode hello: %w", err)
	}
	return h, nil
}

// EncodeHelloBack serializes h as a greeting reply payload.
func EncodeHelloBack(h HelloBack) ([]byte, error) {
	if err := checkProtocolName(h.ProtocolName); err != nil {
		return nil, err
	}
	buf := append([]byte(nil), h.ProtocolName...)
	buf, err := pack(buf, helloBackFields, []any{&h.Version.Major, &h.Version.Minor, &h.Name})
	if err != nil {
		return nil, err
	}
	if len(buf) > MaxHelloLength {
		return nil, fmt.Errorf("%w: hello back of %d bytes (max %d)", ErrTooLarge, len(buf), MaxHelloLength)
	}
	return buf, nil
}

// DecodeHelloBack parses a greeting reply payload.
func DecodeHelloBack(payload []byte) (HelloBack, error) {
	name, rest, err := protocolNamePrefix(payload)
	if err != nil {
		return HelloBack{}, err
	}
	h := HelloBack{ProtocolName: name}
	if err := unpack(rest, helloBackFields, []any{&h.Version.Major, &h.Version.Minor, &h.Name}); err != nil {
		return HelloBack{}, fmt.Errorf("decode hello back: %w", err)
	}
	return h, nil
}

// WriteHello writes h as one frame.
func WriteHello(w io.Writer, h Hello) error {
	payload, err := EncodeHello(h)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadHello reads a greeting frame, bounded by MaxHelloLength.
func ReadHello(r io.Reader) (Hello, error) {
	payload, err := ReadFrame(r, MaxHelloLength)
	if err != nil {
		return Hello{}, err
	}
	return DecodeHello(payload)
}

// WriteHelloBack writes h as one frame.
func WriteHelloBack(w io.Writer, h HelloBack) error {
	payload, err := EncodeHelloBack(h)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadHelloBack reads a greeting reply frame, bounded by MaxHelloLength.
func ReadHelloBack(r io.Reader) (HelloBack, error) {
	payload, err := ReadFrame(r, MaxHelloLength)
	if err != nil {
		return HelloBack{}, err
	}
	return DecodeHelloBack(payload)
}
