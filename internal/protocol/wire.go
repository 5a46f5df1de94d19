package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrTooLarge        = errors.New("declared length exceeds maximum")
	ErrTruncated       = errors.New("message truncated")
	ErrUnknownCode     = errors.New("unknown message code")
	ErrBadProtocolName = errors.New("bad protocol name")
	ErrUnsupported     = errors.New("message not supported at negotiated version")
	errBadFormat       = errors.New("bad format directive")
)

// fieldKind is one directive of a format string.
type fieldKind struct {
	verb  byte // 'i' integer, 's' string, 'I' list of integers
	width int  // integer or list element width in bytes; 0 for strings
}

// parseFormat splits a format such as "%2i%2i%s%4I" into directives.
func parseFormat(format string) ([]fieldKind, error) {
	var out []fieldKind
	for i := 0; i < len(format); {
		if format[i] != '%' {
			return nil, fmt.Errorf("%w: %q at offset %d", errBadFormat, format, i)
		}
		i++
		width := 0
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			width = width*10 + int(format[i]-'0')
			i++
		}
		if i >= len(format) {
			return nil, fmt.Errorf("%w: %q ends early", errBadFormat, format)
		}
		verb := format[i]
		i++
		switch verb {
		case 'i', 'I':
			if width != 1 && width != 2 && width != 4 {
				return nil, fmt.Errorf("%w: width %d in %q", errBadFormat, width, format)
			}
		case 's':
			if width != 0 {
				return nil, fmt.Errorf("%w: fixed-size strings are greeting-only", errBadFormat)
			}
		default:
			return nil, fmt.Errorf("%w: verb %q in %q", errBadFormat, verb, format)
		}
		out = append(out, fieldKind{verb: verb, width: width})
	}
	return out, nil
}

func mustParseFormat(format string) []fieldKind {
	f, err := parseFormat(format)
	if err != nil {
		panic(err)
	}
	return f
}

// --- Encoding ---

// pack appends args to buf according to fields. Each arg is a pointer whose
// element type matches the directive width.
func pack(buf []byte, fields []fieldKind, args []any) ([]byte, error) {
	if len(fields) != len(args) {
		return nil, fmt.Errorf("%w: %d directives, %d args", errBadFormat, len(fields), len(args))
	}
	for i, f := range fields {
		var err error
		switch f.verb {
		case 'i':
			var v uint32
			v, err = intArg(args[i], f.width)
			if err == nil {
				buf = appendInt(buf, v, f.width)
			}
		case 's':
			var b []byte
			switch p := args[i].(type) {
			case *string:
				b = []byte(*p)
			case *[]byte:
				b = *p
			default:
				err = fmt.Errorf("%w: %T for %%s", errBadFormat, args[i])
			}
			if err == nil {
				if len(b) > MaxStringLength {
					return nil, fmt.Errorf("%w: string of %d bytes (max %d)", ErrTooLarge, len(b), MaxStringLength)
				}
				buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
				buf = append(buf, b...)
			}
		case 'I':
			buf, err = appendList(buf, args[i], f.width)
		}
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func intArg(arg any, width int) (uint32, error) {
	switch p := arg.(type) {
	case *uint8:
		if width == 1 {
			return uint32(*p), nil
		}
	case *bool:
		if width == 1 {
			if *p {
				return 1, nil
			}
			return 0, nil
		}
	case *uint16:
		if width == 2 {
			return uint32(*p), nil
		}
	case *int16:
		if width == 2 {
			return uint32(uint16(*p)), nil
		}
	case *uint32:
		if width == 4 {
			return *p, nil
		}
	case *int32:
		if width == 4 {
			return uint32(*p), nil
		}
	}
	return 0, fmt.Errorf("%w: %T for %%%di", errBadFormat, arg, width)
}

func appendInt(buf []byte, v uint32, width int) []byte {
	switch width {
	case 1:
		return append(buf, byte(v))
	case 2:
		return binary.BigEndian.AppendUint16(buf, uint16(v))
	default:
		return binary.BigEndian.AppendUint32(buf, v)
	}
}

func appendList(buf []byte, arg any, width int) ([]byte, error) {
	var vals []uint32
	ok := false
	switch p := arg.(type) {
	case *[]uint8:
		ok = width == 1
		for _, v := range *p {
			vals = append(vals, uint32(v))
		}
	case *[]uint16:
		ok = width == 2
		for _, v := range *p {
			vals = append(vals, uint32(v))
		}
	case *[]uint32:
		ok = width == 4
		vals = *p
	}
	if !ok {
		return nil, fmt.Errorf("%w: %T for %%%dI", errBadFormat, arg, width)
	}
	if len(vals) > MaxListLength {
		return nil, fmt.Errorf("%w: list of %d entries (max %d)", ErrTooLarge, len(vals), MaxListLength)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(vals)))
	for _, v := range vals {
		buf = appendInt(buf, v, width)
	}
	return buf, nil
}

// --- Decoding ---

// unpack decodes data into args according to fields. Declared lengths are
// checked against the protocol maximums before anything is allocated, so an
// oversized declaration reports ErrTooLarge even when the bytes are missing.
// Trailing bytes after the last field are ignored.
func unpack(data []byte, fields []fieldKind, args []any) error {
	if len(fields) != len(args) {
		return fmt.Errorf("%w: %d directives, %d args", errBadFormat, len(fields), len(args))
	}
	off := 0
	for i, f := range fields {
		switch f.verb {
		case 'i':
			if len(data)-off < f.width {
				return fmt.Errorf("%w: need %d bytes for field %d, have %d", ErrTruncated, f.width, i+1, len(data)-off)
			}
			v := readInt(data[off:], f.width)
			off += f.width
			if err := setInt(args[i], v, f.width); err != nil {
				return err
			}

		case 's':
			if len(data)-off < 4 {
				return fmt.Errorf("%w: string length of field %d", ErrTruncated, i+1)
			}
			n := binary.BigEndian.Uint32(data[off:])
			off += 4
			if n > MaxStringLength {
				return fmt.Errorf("%w: string of %d bytes (max %d)", ErrTooLarge, n, MaxStringLength)
			}
			if uint64(len(data)-off) < uint64(n) {
				return fmt.Errorf("%w: string of %d bytes, have %d", ErrTruncated, n, len(data)-off)
			}
			b := data[off : off+int(n)]
			off += int(n)
			switch p := args[i].(type) {
			case *string:
				*p = string(b)
			case *[]byte:
				*p = append([]byte(nil), b...)
			default:
				return fmt.Errorf("%w: %T for %%s", errBadFormat, args[i])
			}

		case 'I':
			if len(data)-off < 4 {
				return fmt.Errorf("%w: list length of field %d", ErrTruncated, i+1)
			}
			n := binary.BigEndian.Uint32(data[off:])
			off += 4
			if n > MaxListLength {
				return fmt.Errorf("%w: list of %d entries (max %d)", ErrTooLarge, n, MaxListLength)
			}
			need := uint64(n) * uint64(f.width)
			if uint64(len(data)-off) < need {
				return fmt.Errorf("%w: list of %d entries, have %d bytes", ErrTruncated, n, len(data)-off)
			}
			if err := setList(args[i], data[off:off+int(need)], int(n), f.width); err != nil {
				return err
			}
			off += int(need)
		}
	}
	return nil
}

func readInt(b []byte, width int) uint32 {
	switch width {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(binary.BigEndian.Uint16(b))
	default:
		return binary.BigEndian.Uint32(b)
	}
}

func setInt(arg any, v uint32, width int) error {
	switch p := arg.(type) {
	case *uint8:
		if width == 1 {
			*p = uint8(v)
			return nil
		}
	case *bool:
		if width == 1 {
			*p = v != 0
			return nil
		}
	case *uint16:
		if width == 2 {
			*p = uint16(v)
			return nil
		}
	case *int16:
		if width == 2 {
			*p = int16(uint16(v))
			return nil
		}
	case *uint32:
		if width == 4 {
			*p = v
			return nil
		}
	case *int32:
		if width == 4 {
			*p = int32(v)
			return nil
		}
	}
	return fmt.Errorf("%w: %T for %%%di", errBadFormat, arg, width)
}

func setList(arg any, b []byte, n, width int) error {
	switch p := arg.(type) {
	case *[]uint8:
		if width == 1 {
			*p = append([]uint8(nil), b...)
			return nil
		}
	case *[]uint16:
		if width == 2 {
			if n == 0 {
				*p = nil
				return nil
			}
			out := make([]uint16, n)
			for i := range out {
				out[i] = binary.BigEndian.Uint16(b[i*2:])
			}
			*p = out
			return nil
		}
	case *[]uint32:
		if width == 4 {
			if n == 0 {
				*p = nil
				return nil
			}
			out := make([]uint32, n)
			for i := range out {
				out[i] = binary.BigEndian.Uint32(b[i*4:])
			}
			*p = out
			return nil
		}
	}
	return fmt.Errorf("%w: %T for %%%dI", errBadFormat, arg, width)
}

// --- Framing ---

// ReadFrame reads one length-prefixed frame from r and returns its payload.
// A declared length above max fails with ErrTooLarge before the body is read.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(header[:])
	if uint64(n) > uint64(max) {
		return nil, fmt.Errorf("%w: frame of %d bytes (max %d)", ErrTooLarge, n, max)
	}

	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: frame body: %v", ErrTruncated, err)
			}
			return nil, err
		}
	}
	return payload, nil
}

// WriteFrame writes payload to w behind its 4-byte length prefix.
// The frame is assembled first so it reaches w in a single Write.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxMessageLength {
		return fmt.Errorf("%w: frame of %d bytes (max %d)", ErrTooLarge, len(payload), MaxMessageLength)
	}
	frame := make([]byte, FrameHeaderSize, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)
	_, err := w.Write(frame)
	return err
}
