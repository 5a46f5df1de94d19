package clipboard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// Format identifies one representation of clipboard content.
type Format uint32

const (
	FormatText Format = iota
	FormatHTML
	FormatBitmap
)

// NumFormats bounds the format count a marshalled clipboard may declare.
const NumFormats = 3

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatHTML:
		return "html"
	case FormatBitmap:
		return "bitmap"
	}
	return fmt.Sprintf("format(%d)", uint32(f))
}

// Item is the content of one format.
type Item struct {
	Format Format
	Data   []byte
}

var ErrMalformed = errors.New("malformed clipboard data")

// Marshal encodes items as [4B count] then per item [4B format][4B size][data].
// Items are written in format order.
func Marshal(items []Item) []byte {
	sorted := append([]Item(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Format < sorted[j].Format })

	size := 4
	for _, it := range sorted {
		size += 8 + len(it.Data)
	}
	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(sorted)))
	for _, it := range sorted {
		buf = binary.BigEndian.AppendUint32(buf, uint32(it.Format))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(it.Data)))
		buf = append(buf, it.Data...)
	}
	return buf
}

// Unmarshal decodes the output of Marshal. Unknown formats are skipped;
// every declared size is checked against the remaining input.
func Unmarshal(b []byte) ([]Item, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}
	count := binary.BigEndian.Uint32(b)
	b = b[4:]
	if count > NumFormats*4 {
		return nil, fmt.Errorf("%w: %d formats", ErrMalformed, count)
	}

	var items []Item
	for i := uint32(0); i < count; i++ {
		if len(b) < 8 {
			return nil, fmt.Errorf("%w: truncated format header", ErrMalformed)
		}
		format := Format(binary.BigEndian.Uint32(b))
		size := binary.BigEndian.Uint32(b[4:])
		b = b[8:]
		if uint64(size) > uint64(len(b)) {
			return nil, fmt.Errorf("%w: format %s declares %d bytes, %d remain", ErrMalformed, format, size, len(b))
		}
		if format < NumFormats {
			items = append(items, Item{Format: format, Data: append([]byte(nil), b[:size]...)})
		}
		b = b[size:]
	}
	return items, nil
}
