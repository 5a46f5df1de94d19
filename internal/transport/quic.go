package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

func quicConfig(cfg Config) *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout: cfg.handshakeTimeout(),
		MaxIdleTimeout:       30 * time.Second,
		InitialPacketSize:    1200, // Tailscale MTU is 1280; default 1350 gets dropped
	}
}

// streamConn carries the session over one bidirectional QUIC stream.
// The listening side opens the stream; since the Primary speaks first,
// the stream becomes visible to the dialer with the greeting.
type streamConn struct {
	qconn  *quic.Conn
	stream *quic.Stream
	tr     *quic.Transport // dialer only; owns the UDP socket

	closeOnce sync.Once
}

func (c *streamConn) Read(p []byte) (int, error)         { return c.stream.Read(p) }
func (c *streamConn) Write(p []byte) (int, error)        { return c.stream.Write(p) }
func (c *streamConn) SetReadDeadline(t time.Time) error  { return c.stream.SetReadDeadline(t) }
func (c *streamConn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }
func (c *streamConn) RemoteAddr() net.Addr               { return c.qconn.RemoteAddr() }

// Close tears down the stream, the QUIC connection and, on the dialing
// side, the UDP transport. Blocked reads return.
func (c *streamConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.stream.CancelRead(0)
		c.stream.Close()
		err = c.qconn.CloseWithError(0, "closed")
		if c.tr != nil {
			c.tr.Close()
		}
	})
	return err
}

type quicListener struct {
	tr   *quic.Transport
	ln   *quic.Listener
	port int
}

func listenQUIC(addr string, cert tls.Certificate, cfg Config) (*quicListener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen UDP: %w", err)
	}

	tr := &quic.Transport{Conn: udpConn}
	ln, err := tr.Listen(listenerTLS(cert), quicConfig(cfg))
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("QUIC listen: %w", err)
	}

	return &quicListener{
		tr:   tr,
		ln:   ln,
		port: udpConn.LocalAddr().(*net.UDPAddr).Port,
	}, nil
}

func (l *quicListener) Addr() net.Addr { return l.ln.Addr() }

// Port returns the UDP port the listener is bound to.
func (l *quicListener) Port() int { return l.port }

// Accept waits for a QUIC connection and opens its session stream.
func (l *quicListener) Accept(ctx context.Context) (Conn, error) {
	qconn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("accept QUIC connection: %w", err)
	}

	stream, err := qconn.OpenStreamSync(ctx)
	if err != nil {
		qconn.CloseWithError(1, "open stream failed")
		return nil, fmt.Errorf("open session stream: %w", err)
	}
	return &streamConn{qconn: qconn, stream: stream}, nil
}

// Close shuts down the listener and its UDP socket, which also ends every
// accepted connection.
func (l *quicListener) Close() error {
	err := l.ln.Close()
	l.tr.Close()
	return err
}

// dialQUIC connects and waits for the listener's session stream. The
// stream arrives with the first bytes the listener writes, so ctx bounds
// both the handshake and that first write.
func dialQUIC(ctx context.Context, addr string, cfg Config) (Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}

	// Use a fresh UDP socket for the client
	udpConn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("listen UDP: %w", err)
	}

	tr := &quic.Transport{Conn: udpConn}
	qconn, err := tr.Dial(ctx, udpAddr, dialerTLS(cfg.TrustedFingerprints), quicConfig(cfg))
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("QUIC dial: %w", err)
	}

	stream, err := qconn.AcceptStream(ctx)
	if err != nil {
		qconn.CloseWithError(1, "no session stream")
		tr.Close()
		return nil, fmt.Errorf("accept session stream: %w", err)
	}
	return &streamConn{qconn: qconn, stream: stream, tr: tr}, nil
}
