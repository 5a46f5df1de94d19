// Package handshake holds the greeting rules both peers apply before a
// session becomes active: protocol name checks and version negotiation.
package handshake

import (
	"errors"
	"fmt"

	"github.com/chronologos/kvmlink/internal/protocol"
)

var (
	ErrIncompatible = errors.New("incompatible protocol version")
	ErrNameMismatch = errors.New("protocol name mismatch")
)

// Negotiate returns the version a session runs at: the shared major and
// the smaller of the two minors. Differing majors cannot interoperate.
func Negotiate(local, peer protocol.Version) (protocol.Version, error) {
	if local.Major != peer.Major {
		return protocol.Version{}, fmt.Errorf("%w: local %s, peer %s", ErrIncompatible, local, peer)
	}
	return protocol.V(local.Major, min(local.Minor, peer.Minor)), nil
}

// Incompatible builds the EICV message a Primary sends after a failed
// negotiation. It always carries the Primary's own version.
func Incompatible(local protocol.Version) *protocol.Incompatible {
	return &protocol.Incompatible{Major: local.Major, Minor: local.Minor}
}

// AcceptHelloBack is the Primary's check of a decoded greeting reply
// against the greeting it sent. The protocol name is compared before the
// version is looked at.
func AcceptHelloBack(sent protocol.Hello, back protocol.HelloBack) (protocol.Version, error) {
	if back.ProtocolName != sent.ProtocolName {
		return protocol.Version{}, fmt.Errorf("%w: sent %q, got %q", ErrNameMismatch, sent.ProtocolName, back.ProtocolName)
	}
	return Negotiate(sent.Version, back.Version)
}

// Reply builds the Secondary's answer to a greeting. The reply always
// carries the Secondary's own version and echoes the greeting's protocol
// name; the returned error reports whether the versions can interoperate.
func Reply(hello protocol.Hello, local protocol.Version, screen string) (protocol.HelloBack, protocol.Version, error) {
	back := protocol.HelloBack{
		ProtocolName: hello.ProtocolName,
		Version:      local,
		Name:         screen,
	}
	v, err := Negotiate(local, hello.Version)
	return back, v, err
}
