package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/chronologos/kvmlink/internal/protocol"
)

// Role is the side of the connection a session plays.
type Role uint8

const (
	Primary Role = iota
	Secondary
)

func (r Role) String() string {
	if r == Primary {
		return "primary"
	}
	return "secondary"
}

// State is the lifecycle position of a session.
type State uint8

const (
	Connecting State = iota
	AwaitingHello
	AwaitingHelloBack
	Negotiating
	Active
	Closing
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case AwaitingHello:
		return "awaiting-hello"
	case AwaitingHelloBack:
		return "awaiting-hello-back"
	case Negotiating:
		return "negotiating"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// CloseReason classifies why a session ended.
type CloseReason uint8

const (
	PeerClosed CloseReason = iota
	ProtocolViolation
	Incompatible
	Busy
	UnknownName
	Unresponsive
	LocalClose
	Cancelled
	TransportError
)

func (r CloseReason) String() string {
	switch r {
	case PeerClosed:
		return "peer-closed"
	case ProtocolViolation:
		return "protocol-violation"
	case Incompatible:
		return "incompatible"
	case Busy:
		return "busy"
	case UnknownName:
		return "unknown-name"
	case Unresponsive:
		return "unresponsive"
	case LocalClose:
		return "local-close"
	case Cancelled:
		return "cancelled"
	case TransportError:
		return "transport"
	}
	return fmt.Sprintf("reason(%d)", uint8(r))
}

// Retryable reports whether a Secondary should reconnect after a close
// with this reason.
func (r CloseReason) Retryable() bool {
	switch r {
	case PeerClosed, Unresponsive, TransportError:
		return true
	}
	return false
}

// failure reports whether the reason passes through the Failed state.
func (r CloseReason) failure() bool {
	switch r {
	case ProtocolViolation, Incompatible, Busy, UnknownName:
		return true
	}
	return false
}

// CloseError is returned by Run when a session ends.
type CloseError struct {
	Reason CloseReason
	Err    error

	// reply is written to the peer before the transport closes.
	reply protocol.Message
}

func (e *CloseError) Error() string {
	if e.Err == nil {
		return "session closed: " + e.Reason.String()
	}
	return fmt.Sprintf("session closed: %s: %v", e.Reason, e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

// Reason extracts the close reason from an error returned by Run.
func Reason(err error) (CloseReason, bool) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Reason, true
	}
	return 0, false
}

func closeWith(reason CloseReason, err error, reply protocol.Message) *CloseError {
	return &CloseError{Reason: reason, Err: err, reply: reply}
}

// violation ends the session with EBAD.
func violation(format string, args ...any) *CloseError {
	return closeWith(ProtocolViolation, fmt.Errorf(format, args...), &protocol.Bad{})
}

var (
	ErrClosed    = errors.New("session closed")
	ErrWrongRole = errors.New("operation not valid for this role")
)

// ClientInfo is the Secondary's screen geometry as last reported by DINF.
type ClientInfo struct {
	X, Y   int16
	W, H   uint16
	MouseX int16
	MouseY int16
}

// Status is a point-in-time view of a session for other goroutines.
type Status struct {
	ID       string
	Role     Role
	State    State
	Version  protocol.Version
	Screen   string
	Remote   string
	Since    time.Time
	Info     *ClientInfo
	Missed   int
	// Options is the option table currently in force. Never mutated.
	Options  protocol.Options
	Received uint64
	Sent     uint64
}
