package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// tcpListener accepts plain TCP or, with a TLS config, TLS-over-TCP
// connections.
type tcpListener struct {
	ln      net.Listener
	tlsConf *tls.Config
	timeout time.Duration
}

func listenTCP(addr string, tlsConf *tls.Config, cfg Config) (*tcpListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("TCP listen: %w", err)
	}
	return &tcpListener{ln: ln, tlsConf: tlsConf, timeout: cfg.handshakeTimeout()}, nil
}

func (l *tcpListener) Addr() net.Addr { return l.ln.Addr() }

// Port returns the TCP port the listener is bound to.
func (l *tcpListener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

// Accept waits for a new connection. For TLS the handshake completes
// before Accept returns.
func (l *tcpListener) Accept(ctx context.Context) (Conn, error) {
	// Use a channel so we can respect context cancellation
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("accept TCP connection: %w", res.err)
		}
		setNoDelay(res.conn)
		if l.tlsConf == nil {
			return res.conn, nil
		}
		tlsConn := tls.Server(res.conn, l.tlsConf)
		hctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()
		if err := tlsConn.HandshakeContext(hctx); err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("TLS handshake with %s: %w", res.conn.RemoteAddr(), err)
		}
		return tlsConn, nil
	case <-ctx.Done():
		// The goroutine may still be blocked on l.ln.Accept(). It will
		// unblock when the listener is closed by the caller. If it
		// accepted a connection before that, close it so it doesn't leak.
		go func() {
			res := <-ch
			if res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close shuts down the TCP listener.
func (l *tcpListener) Close() error {
	return l.ln.Close()
}

// dialTCP connects over TCP, wrapping the connection in TLS when tlsConf
// is set.
func dialTCP(ctx context.Context, addr string, tlsConf *tls.Config) (Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("TCP dial %s: %w", addr, err)
	}
	setNoDelay(raw)
	if tlsConf == nil {
		return raw, nil
	}

	tlsConn := tls.Client(raw, tlsConf)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("TLS handshake with %s: %w", addr, err)
	}
	return tlsConn, nil
}

// Input events are small and latency-bound.
func setNoDelay(c net.Conn) {
	if tc, ok := c.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
}
