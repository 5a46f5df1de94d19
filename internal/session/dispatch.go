package session

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/chronologos/kvmlink/internal/handshake"
	"github.com/chronologos/kvmlink/internal/protocol"
	"github.com/chronologos/kvmlink/internal/registry"
)

var (
	errUnexpected   = errors.New("unexpected message")
	errPeerReported = errors.New("peer reported a protocol violation")
	errBadOptions   = errors.New("malformed option list")
)

func violationKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrTooLarge):
		return "too-large"
	case errors.Is(err, protocol.ErrTruncated):
		return "truncated"
	case errors.Is(err, protocol.ErrUnknownCode):
		return "unknown-code"
	case errors.Is(err, protocol.ErrBadProtocolName), errors.Is(err, handshake.ErrNameMismatch):
		return "protocol-name"
	case errors.Is(err, errUnexpected):
		return "unexpected-message"
	case errors.Is(err, errBadOptions):
		return "bad-options"
	case errors.Is(err, errPeerReported):
		return "peer-reported"
	}
	return "malformed"
}

// inbound is the direction of messages this side may receive.
func (s *Session) inbound() protocol.Direction {
	if s.cfg.Role == Primary {
		return protocol.SecondaryToPrimary
	}
	return protocol.PrimaryToSecondary
}

// dispatch decodes one frame and applies it. A non-nil error ends the session.
func (s *Session) dispatch(payload []byte) error {
	msg, err := protocol.Decode(payload, s.version)
	if err != nil {
		return violation("%w", err)
	}
	code := msg.Code()
	s.cfg.Metrics.MessageReceived(string(code))
	s.mu.Lock()
	s.status.Received++
	s.mu.Unlock()

	schema, _ := protocol.Resolve(code, s.version)
	if schema.Deprecated {
		s.log.Debug("ignoring deprecated message", "code", string(code))
		return nil
	}
	if schema.Direction&s.inbound() == 0 {
		return violation("%w: %s received by %s", errUnexpected, code, s.cfg.Role)
	}

	if s.cfg.Role == Primary {
		return s.handlePrimary(msg)
	}
	return s.handleSecondary(msg)
}

func (s *Session) handlePrimary(msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.Noop:

	case *protocol.KeepAlive:
		s.keepAlive.Received()
		s.publishMissed()

	case *protocol.Info:
		info := ClientInfo{X: m.X, Y: m.Y, W: m.W, H: m.H, MouseX: m.MX, MouseY: m.MY}
		s.mu.Lock()
		s.status.Info = &info
		s.mu.Unlock()
		s.log.Debug("screen info", "x", m.X, "y", m.Y, "w", m.W, "h", m.H)
		return s.send(&protocol.InfoAck{})

	case *protocol.ClipboardGrab:
		if m.Seq != s.entrySeq {
			s.log.Debug("dropping stale clipboard grab", "id", m.ID, "seq", m.Seq, "entry_seq", s.entrySeq)
			return nil
		}
		s.log.Debug("clipboard grabbed by secondary", "id", m.ID)

	case *protocol.ClipboardData:
		if m.Seq != s.entrySeq {
			s.log.Debug("dropping stale clipboard data", "id", m.ID, "seq", m.Seq, "entry_seq", s.entrySeq)
			return nil
		}
		s.receiveClipboard(m)

	case *protocol.Bad:
		return closeWith(ProtocolViolation, errPeerReported, nil)
	}
	return nil
}

func (s *Session) handleSecondary(msg protocol.Message) error {
	in := s.cfg.Input
	switch m := msg.(type) {
	case *protocol.Close:
		return closeWith(PeerClosed, errors.New("primary closed the session"), nil)

	case *protocol.Enter:
		s.entrySeq = m.Seq
		in.Enter(m.X, m.Y, m.Seq, m.Mask)

	case *protocol.Leave:
		in.Leave()
		return s.flushClipboards()

	case *protocol.ClipboardGrab:
		if int(m.ID) < protocol.NumClipboards {
			s.owned[m.ID] = false
			s.dirty[m.ID] = false
		}

	case *protocol.ClipboardData:
		s.receiveClipboard(m)

	case *protocol.ScreenSaver:
		in.ScreenSaver(m.Active)

	case *protocol.ResetOptions:
		s.resetOptions()
		in.ResetOptions()

	case *protocol.SetOptions:
		opts, err := m.Options()
		if err != nil {
			return violation("%w: %v", errBadOptions, err)
		}
		s.applyOptions(opts)
		in.SetOptions(opts)

	case *protocol.InfoAck:
		s.log.Debug("screen info acknowledged")

	case *protocol.QueryInfo:
		return s.sendInfo()

	case *protocol.KeepAlive:
		s.keepAlive.Received()
		s.publishMissed()
		return s.send(&protocol.KeepAlive{})

	case *protocol.KeyDownLang:
		in.KeyDown(m.ID, m.Mask, m.Button, m.Lang)
	case *protocol.KeyDown:
		in.KeyDown(m.ID, m.Mask, m.Button, "")
	case *protocol.KeyRepeat:
		in.KeyRepeat(m.ID, m.Mask, m.Count, m.Button, m.Lang)
	case *protocol.KeyUp:
		in.KeyUp(m.ID, m.Mask, m.Button)
	case *protocol.MouseDown:
		in.MouseDown(m.Button)
	case *protocol.MouseUp:
		in.MouseUp(m.Button)
	case *protocol.MouseMove:
		in.MouseMove(m.X, m.Y)
	case *protocol.MouseRelMove:
		in.MouseRelativeMove(m.DX, m.DY)
	case *protocol.MouseWheel:
		in.MouseWheel(m.XDelta, m.YDelta)
	case *protocol.SecureInput:
		in.SecureInput(m.App)
	case *protocol.LanguageSync:
		in.Languages(m.Languages)

	case *protocol.Incompatible:
		return closeWith(Incompatible, fmt.Errorf("%w: primary speaks %d.%d", handshake.ErrIncompatible, m.Major, m.Minor), nil)
	case *protocol.Busy:
		return closeWith(Busy, registry.ErrScreenBusy, nil)
	case *protocol.Unknown:
		return closeWith(UnknownName, registry.ErrUnknownScreen, nil)
	case *protocol.Bad:
		return closeWith(ProtocolViolation, errPeerReported, nil)
	}
	return nil
}

func (s *Session) sendInfo() error {
	info := s.cfg.ScreenInfo()
	return s.send(&protocol.Info{
		X: info.X, Y: info.Y,
		W: info.W, H: info.H,
		MX: info.MouseX, MY: info.MouseY,
	})
}

// applyOptions replaces the option table with opts and applies the
// settings it names.
func (s *Session) applyOptions(opts protocol.Options) {
	s.setOptionTable(slices.Clone(opts))

	if ms, ok := opts.Get(protocol.OptionHeartbeat); ok && s.keepAlives {
		s.keepAlive.SetRate(time.Duration(ms) * time.Millisecond)
	}
	if v, ok := opts.Get(protocol.OptionClipboardSharing); ok {
		s.sharing = v != 0
	}
	if kib, ok := opts.Get(protocol.OptionClipboardSharingSize); ok {
		s.shareLimit = int(kib) * 1024
	}
}

// setOptionTable must be given a slice nothing else holds.
func (s *Session) setOptionTable(opts protocol.Options) {
	s.mu.Lock()
	s.status.Options = opts
	s.mu.Unlock()
}

func (s *Session) resetOptions() {
	s.setOptionTable(nil)
	s.sharing = true
	s.shareLimit = 0
	if s.keepAlives && s.keepAlive.Rate() != s.cfg.KeepAliveRate {
		s.keepAlive.SetRate(s.cfg.KeepAliveRate)
	}
}
