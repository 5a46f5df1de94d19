package clipboard

import (
	"fmt"
	"strconv"

	"github.com/chronologos/kvmlink/internal/protocol"
)

// streamingSince is the first version whose peers reassemble chunked
// transfers. Older peers expect one DCLP per clipboard.
var streamingSince = protocol.V(1, 6)

// Chunks splits data into the DCLP messages that carry it at version v.
// From 1.6 on that is a start chunk with the decimal size, data chunks of
// at most protocol.ClipboardChunkSize bytes, and an empty end chunk.
func Chunks(id uint8, seq uint32, data []byte, v protocol.Version) ([]*protocol.ClipboardData, error) {
	if len(data) > protocol.MaxStringLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrOverflow, len(data))
	}
	if v.Less(streamingSince) {
		return []*protocol.ClipboardData{
			{ID: id, Seq: seq, Mark: protocol.MarkSingle, Data: data},
		}, nil
	}

	out := make([]*protocol.ClipboardData, 0, 2+(len(data)+protocol.ClipboardChunkSize-1)/protocol.ClipboardChunkSize)
	out = append(out, &protocol.ClipboardData{
		ID: id, Seq: seq, Mark: protocol.MarkStart,
		Data: []byte(strconv.Itoa(len(data))),
	})
	for off := 0; off < len(data); off += protocol.ClipboardChunkSize {
		end := min(off+protocol.ClipboardChunkSize, len(data))
		out = append(out, &protocol.ClipboardData{
			ID: id, Seq: seq, Mark: protocol.MarkChunk, Data: data[off:end],
		})
	}
	out = append(out, &protocol.ClipboardData{ID: id, Seq: seq, Mark: protocol.MarkEnd})
	return out, nil
}
