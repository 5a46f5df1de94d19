package session

import (
	"github.com/chronologos/kvmlink/internal/protocol"
)

// The methods below queue outgoing messages on the session goroutine.
// They block until the message is written, fail with ErrClosed once the
// session has ended, and with protocol.ErrUnsupported when the negotiated
// version has no such message.

func (s *Session) primary(fn func() error) error {
	if s.cfg.Role != Primary {
		return ErrWrongRole
	}
	return s.do(fn)
}

func (s *Session) secondary(fn func() error) error {
	if s.cfg.Role != Secondary {
		return ErrWrongRole
	}
	return s.do(fn)
}

// Enter moves the cursor onto the Secondary's screen. seq becomes the
// entry sequence Secondary clipboard messages must carry.
func (s *Session) Enter(x, y int16, seq uint32, mask uint16) error {
	return s.primary(func() error {
		s.entrySeq = seq
		return s.send(&protocol.Enter{X: x, Y: y, Seq: seq, Mask: mask})
	})
}

func (s *Session) Leave() error {
	return s.primary(func() error {
		return s.send(&protocol.Leave{})
	})
}

// KeyDown sends a key press. A non-empty lang is carried only when the
// peer understands DKDL.
func (s *Session) KeyDown(id, mask, button uint16, lang string) error {
	return s.primary(func() error {
		if lang != "" && s.version.AtLeast(langSince) {
			return s.send(&protocol.KeyDownLang{ID: id, Mask: mask, Button: button, Lang: lang})
		}
		return s.send(&protocol.KeyDown{ID: id, Mask: mask, Button: button})
	})
}

func (s *Session) KeyRepeat(id, mask, count, button uint16, lang string) error {
	return s.primary(func() error {
		return s.send(&protocol.KeyRepeat{ID: id, Mask: mask, Count: count, Button: button, Lang: lang})
	})
}

func (s *Session) KeyUp(id, mask, button uint16) error {
	return s.primary(func() error {
		return s.send(&protocol.KeyUp{ID: id, Mask: mask, Button: button})
	})
}

func (s *Session) MouseDown(button uint8) error {
	return s.primary(func() error {
		return s.send(&protocol.MouseDown{Button: button})
	})
}

func (s *Session) MouseUp(button uint8) error {
	return s.primary(func() error {
		return s.send(&protocol.MouseUp{Button: button})
	})
}

func (s *Session) MouseMove(x, y int16) error {
	return s.primary(func() error {
		return s.send(&protocol.MouseMove{X: x, Y: y})
	})
}

func (s *Session) MouseRelativeMove(dx, dy int16) error {
	return s.primary(func() error {
		return s.send(&protocol.MouseRelMove{DX: dx, DY: dy})
	})
}

func (s *Session) MouseWheel(xDelta, yDelta int16) error {
	return s.primary(func() error {
		return s.send(&protocol.MouseWheel{XDelta: xDelta, YDelta: yDelta})
	})
}

func (s *Session) ScreenSaver(active bool) error {
	return s.primary(func() error {
		return s.send(&protocol.ScreenSaver{Active: active})
	})
}

func (s *Session) SecureInput(app string) error {
	return s.primary(func() error {
		return s.send(&protocol.SecureInput{App: app})
	})
}

func (s *Session) Languages(langs string) error {
	return s.primary(func() error {
		return s.send(&protocol.LanguageSync{Languages: langs})
	})
}

// SetOptions sends opts and applies them locally.
func (s *Session) SetOptions(opts protocol.Options) error {
	return s.primary(func() error {
		if err := s.send(protocol.NewSetOptions(opts)); err != nil {
			return err
		}
		s.applyOptions(opts)
		return nil
	})
}

func (s *Session) ResetOptions() error {
	return s.primary(func() error {
		if err := s.send(&protocol.ResetOptions{}); err != nil {
			return err
		}
		s.resetOptions()
		return nil
	})
}

func (s *Session) QueryInfo() error {
	return s.primary(func() error {
		return s.send(&protocol.QueryInfo{})
	})
}

// SendInfo reports the Secondary's current screen geometry unprompted.
func (s *Session) SendInfo() error {
	return s.secondary(s.sendInfo)
}

// GrabClipboard announces that the local clipboard id changed. A Primary
// sends the grab and the content right away; a Secondary records it and
// sends both on the next leave.
func (s *Session) GrabClipboard(id uint8) error {
	if int(id) >= protocol.NumClipboards {
		return errBadClipboard(id)
	}
	return s.do(func() error {
		if s.cfg.Role == Primary {
			return s.sendClipboard(id, 0)
		}
		s.owned[id] = true
		s.dirty[id] = true
		return nil
	})
}
