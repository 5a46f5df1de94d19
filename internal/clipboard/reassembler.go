// Package clipboard moves clipboard contents across a session: it splits
// outgoing data into DCLP chunks, reassembles incoming chunks, and
// marshals the per-format payload a transfer carries.
package clipboard

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/chronologos/kvmlink/internal/protocol"
)

var (
	ErrTransfer     = errors.New("clipboard transfer failed")
	ErrOutOfOrder   = fmt.Errorf("%w: chunk out of order", ErrTransfer)
	ErrOverflow     = fmt.Errorf("%w: transfer exceeds limit", ErrTransfer)
	ErrSizeMismatch = fmt.Errorf("%w: size does not match declared size", ErrTransfer)
	ErrBadMark      = fmt.Errorf("%w: unknown mark", ErrTransfer)
	ErrBadID        = fmt.Errorf("%w: unknown clipboard id", ErrTransfer)
)

// State is the position of one clipboard in the chunk protocol.
type State uint8

const (
	Idle State = iota
	Started
	InProgress
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Started:
		return "started"
	case InProgress:
		return "in-progress"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Result reports what one chunk did. Data is set only when State is
// Finished. Finished and Failed are reported once; the clipboard is back
// to Idle afterwards.
type Result struct {
	State State
	Data  []byte
}

type transfer struct {
	state    State
	declared int // -1 when the start chunk carried data instead of a size
	buf      []byte
}

// Reassembler rebuilds clipboard transfers from DCLP chunks, one state
// machine per clipboard id. Not safe for concurrent use.
type Reassembler struct {
	limit     int
	transfers [protocol.NumClipboards]transfer
}

// NewReassembler creates a reassembler bounding each transfer to limit
// bytes. A non-positive limit uses protocol.MaxStringLength.
func NewReassembler(limit int) *Reassembler {
	if limit <= 0 {
		limit = protocol.MaxStringLength
	}
	return &Reassembler{limit: limit}
}

// State returns the current state of clipboard id.
func (r *Reassembler) State(id uint8) State {
	if int(id) >= len(r.transfers) {
		return Idle
	}
	return r.transfers[id].state
}

// Reset discards every partial transfer.
func (r *Reassembler) Reset() {
	for i := range r.transfers {
		r.transfers[i] = transfer{}
	}
}

// Add applies one chunk. Errors wrap ErrTransfer; they discard the
// partial buffer for that clipboard and never affect the session.
//
// A start or single chunk arriving mid-transfer abandons the partial
// transfer and begins again.
func (r *Reassembler) Add(id, mark uint8, data []byte) (Result, error) {
	if int(id) >= len(r.transfers) {
		return Result{State: Failed}, fmt.Errorf("%w %d", ErrBadID, id)
	}
	t := &r.transfers[id]

	switch mark {
	case protocol.MarkSingle:
		*t = transfer{}
		if len(data) > r.limit {
			return r.fail(t, fmt.Errorf("%w: %d bytes", ErrOverflow, len(data)))
		}
		return Result{State: Finished, Data: append([]byte(nil), data...)}, nil

	case protocol.MarkStart:
		*t = transfer{state: Started, declared: -1}
		if n, ok := parseSize(data); ok {
			if n > r.limit {
				return r.fail(t, fmt.Errorf("%w: declared %d bytes", ErrOverflow, n))
			}
			t.declared = n
			t.buf = make([]byte, 0, n)
			return Result{State: Started}, nil
		}
		if err := r.append(t, data); err != nil {
			return r.fail(t, err)
		}
		return Result{State: Started}, nil

	case protocol.MarkChunk:
		if t.state != Started && t.state != InProgress {
			return r.fail(t, fmt.Errorf("%w: chunk while %s", ErrOutOfOrder, t.state))
		}
		if err := r.append(t, data); err != nil {
			return r.fail(t, err)
		}
		t.state = InProgress
		return Result{State: InProgress}, nil

	case protocol.MarkEnd:
		if t.state != Started && t.state != InProgress {
			return r.fail(t, fmt.Errorf("%w: end while %s", ErrOutOfOrder, t.state))
		}
		if err := r.append(t, data); err != nil {
			return r.fail(t, err)
		}
		if t.declared >= 0 && len(t.buf) != t.declared {
			return r.fail(t, fmt.Errorf("%w: got %d, declared %d", ErrSizeMismatch, len(t.buf), t.declared))
		}
		out := t.buf
		*t = transfer{}
		return Result{State: Finished, Data: out}, nil
	}
	return r.fail(t, fmt.Errorf("%w %d", ErrBadMark, mark))
}

func (r *Reassembler) append(t *transfer, data []byte) error {
	if len(t.buf)+len(data) > r.limit {
		return fmt.Errorf("%w: %d bytes", ErrOverflow, len(t.buf)+len(data))
	}
	t.buf = append(t.buf, data...)
	return nil
}

func (r *Reassembler) fail(t *transfer, err error) (Result, error) {
	*t = transfer{}
	return Result{State: Failed}, err
}

// parseSize reads a start chunk's payload as a decimal byte count.
func parseSize(data []byte) (int, bool) {
	if len(data) == 0 || len(data) > 10 {
		return 0, false
	}
	for _, c := range data {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false
	}
	return n, true
}
