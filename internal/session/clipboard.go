package session

import (
	"fmt"

	"github.com/chronologos/kvmlink/internal/clipboard"
	"github.com/chronologos/kvmlink/internal/protocol"
)

func errBadClipboard(id uint8) error {
	return fmt.Errorf("%w %d", clipboard.ErrBadID, id)
}

// receiveClipboard feeds one chunk to the reassembler and stores a
// completed transfer. Transfer errors are logged and never end the session.
// A completed buffer that is not a marshalled format table is kept as text.
func (s *Session) receiveClipboard(m *protocol.ClipboardData) {
	res, err := s.reasm.Add(m.ID, m.Mark, m.Data)
	if err != nil {
		s.log.Warn("clipboard transfer", "id", m.ID, "mark", m.Mark, "err", err)
		s.cfg.Metrics.ClipboardTransfer("error", 0)
		return
	}
	if res.State != clipboard.Finished {
		return
	}

	items, err := clipboard.Unmarshal(res.Data)
	if err != nil {
		// Not a format table: store the bytes as plain text.
		s.log.Debug("clipboard content is not marshalled, storing as text", "id", m.ID, "err", err)
		items = []clipboard.Item{{Format: clipboard.FormatText, Data: res.Data}}
	}
	if err := s.cfg.Clipboard.SetData(m.ID, items); err != nil {
		s.log.Warn("store clipboard", "id", m.ID, "err", err)
		s.cfg.Metrics.ClipboardTransfer("error", 0)
		return
	}
	if s.cfg.Role == Secondary {
		s.owned[m.ID] = false
		s.dirty[m.ID] = false
	}
	s.cfg.Metrics.ClipboardTransfer("ok", len(res.Data))
	s.log.Debug("clipboard received", "id", m.ID, "bytes", len(res.Data), "formats", len(items))
}

// flushClipboards sends every clipboard this Secondary owns that changed
// since the last leave, tagged with the current entry sequence.
func (s *Session) flushClipboards() error {
	for i := range s.owned {
		if !s.owned[i] || !s.dirty[i] {
			continue
		}
		s.dirty[i] = false
		if err := s.sendClipboard(uint8(i), s.entrySeq); err != nil {
			return err
		}
	}
	return nil
}

// sendClipboard writes CCLP followed by the chunked content of id.
func (s *Session) sendClipboard(id uint8, seq uint32) error {
	if !s.sharing {
		s.log.Debug("clipboard sharing disabled", "id", id)
		return nil
	}
	data := clipboard.Marshal(clipboard.Snapshot(s.cfg.Clipboard, id))
	if s.shareLimit > 0 && len(data) > s.shareLimit {
		s.log.Warn("clipboard over size limit", "id", id, "bytes", len(data), "limit", s.shareLimit)
		return nil
	}
	chunks, err := clipboard.Chunks(id, seq, data, s.version)
	if err != nil {
		s.log.Warn("clipboard not sent", "id", id, "err", err)
		return nil
	}

	if err := s.send(&protocol.ClipboardGrab{ID: id, Seq: seq}); err != nil {
		return err
	}
	for _, c := range chunks {
		if err := s.send(c); err != nil {
			return err
		}
	}
	return nil
}
