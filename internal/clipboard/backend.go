package clipboard

import (
	"sync"

	"github.com/chronologos/kvmlink/internal/protocol"
)

// Backend is the local clipboard a session reads from and writes into.
type Backend interface {
	// Formats lists the formats clipboard id currently holds.
	Formats(id uint8) []Format
	Data(id uint8, f Format) ([]byte, bool)
	// SetData replaces the full content of clipboard id.
	SetData(id uint8, items []Item) error
}

// Snapshot collects every format of clipboard id.
func Snapshot(b Backend, id uint8) []Item {
	var items []Item
	for _, f := range b.Formats(id) {
		if data, ok := b.Data(id, f); ok {
			items = append(items, Item{Format: f, Data: data})
		}
	}
	return items
}

// Memory is an in-process Backend. OnChange, when set, is called after
// every SetData with the id that changed.
type Memory struct {
	OnChange func(id uint8)

	mu     sync.Mutex
	boards [protocol.NumClipboards]map[Format][]byte
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Formats(id uint8) []Format {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(id) >= len(m.boards) {
		return nil
	}
	var out []Format
	for f := Format(0); f < NumFormats; f++ {
		if _, ok := m.boards[id][f]; ok {
			out = append(out, f)
		}
	}
	return out
}

func (m *Memory) Data(id uint8, f Format) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(id) >= len(m.boards) {
		return nil, false
	}
	data, ok := m.boards[id][f]
	return data, ok
}

func (m *Memory) SetData(id uint8, items []Item) error {
	if int(id) >= len(m.boards) {
		return ErrBadID
	}
	board := make(map[Format][]byte, len(items))
	for _, it := range items {
		board[it.Format] = append([]byte(nil), it.Data...)
	}

	m.mu.Lock()
	m.boards[id] = board
	m.mu.Unlock()

	if m.OnChange != nil {
		m.OnChange(id)
	}
	return nil
}
