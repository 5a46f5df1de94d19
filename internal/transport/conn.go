// Package transport carries the protocol's byte stream between a Primary
// and a Secondary: plain TCP, TLS over TCP, or a single QUIC stream.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"
)

// Mode selects the transport.
type Mode int

const (
	ModeTCP Mode = iota
	ModeTLS
	ModeQUIC
	// ModeDual listens on QUIC and TLS over TCP on the same port. It is a
	// listen-only mode; dialers pick one of the two.
	ModeDual
)

func (m Mode) String() string {
	switch m {
	case ModeTCP:
		return "tcp"
	case ModeTLS:
		return "tls"
	case ModeQUIC:
		return "quic"
	case ModeDual:
		return "dual"
	default:
		return "unknown"
	}
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{ModeTCP, ModeTLS, ModeQUIC, ModeDual} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown transport %q (want tcp, tls, quic or dual)", s)
}

// Conn is an ordered, reliable byte stream. Every transport returns one;
// net.Conn satisfies it as well.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

// Listener accepts transport connections.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Port() int
	Close() error
}

// Config configures both listeners and dialers.
type Config struct {
	Mode Mode

	// Certificate is the server certificate for TLS, QUIC and dual modes.
	// Nil generates an ephemeral self-signed one.
	Certificate *tls.Certificate

	// TrustedFingerprints pins the server certificate on the dialing side.
	// Empty accepts any certificate.
	TrustedFingerprints []string

	// HandshakeTimeout bounds the TLS/QUIC handshake (default 10s).
	HandshakeTimeout time.Duration
}

const defaultHandshakeTimeout = 10 * time.Second

func (c Config) handshakeTimeout() time.Duration {
	if c.HandshakeTimeout > 0 {
		return c.HandshakeTimeout
	}
	return defaultHandshakeTimeout
}

func (c Config) certificate() (tls.Certificate, error) {
	if c.Certificate != nil {
		return *c.Certificate, nil
	}
	cert, err := NewScreenCertificate("", 0)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate TLS cert: %w", err)
	}
	return cert, nil
}

// Listen binds addr ("host:port", port 0 for any) with the configured mode.
func Listen(addr string, cfg Config) (Listener, error) {
	if cfg.Mode == ModeTCP {
		ln, err := listenTCP(addr, nil, cfg)
		if err != nil {
			return nil, err
		}
		return ln, nil
	}

	cert, err := cfg.certificate()
	if err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeTLS:
		ln, err := listenTCP(addr, listenerTLS(cert), cfg)
		if err != nil {
			return nil, err
		}
		return ln, nil
	case ModeQUIC:
		ln, err := listenQUIC(addr, cert, cfg)
		if err != nil {
			return nil, err
		}
		return ln, nil
	case ModeDual:
		ln, err := listenDual(addr, cert, cfg)
		if err != nil {
			return nil, err
		}
		return ln, nil
	}
	return nil, fmt.Errorf("listen: unsupported mode %s", cfg.Mode)
}

// Dial connects to addr with the configured mode.
func Dial(ctx context.Context, addr string, cfg Config) (Conn, error) {
	switch cfg.Mode {
	case ModeTCP:
		return dialTCP(ctx, addr, nil)
	case ModeTLS:
		return dialTCP(ctx, addr, dialerTLS(cfg.TrustedFingerprints))
	case ModeQUIC:
		return dialQUIC(ctx, addr, cfg)
	}
	return nil, fmt.Errorf("dial: unsupported mode %s", cfg.Mode)
}
