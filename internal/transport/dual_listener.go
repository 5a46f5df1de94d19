package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/quic-go/quic-go"
)

// dualListener accepts connections from both QUIC (UDP) and TLS-over-TCP
// listeners on the same port number. Accept returns whichever connection
// arrives first.
type dualListener struct {
	quic *quicListener
	tcp  *tcpListener
	port int

	// connCh receives connections from both accept loops.
	connCh chan acceptRes
	// cancel stops both accept loops on Close.
	cancel context.CancelFunc
}

type acceptRes struct {
	conn Conn
	err  error
}

// listenDual binds QUIC first (so port 0 picks a port), then TCP on the
// same port number. Both share one certificate.
func listenDual(addr string, cert tls.Certificate, cfg Config) (*dualListener, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("listen address %q: %w", addr, err)
	}

	ql, err := listenQUIC(addr, cert, cfg)
	if err != nil {
		return nil, err
	}

	// UDP and TCP ports don't conflict.
	tl, err := listenTCP(net.JoinHostPort(host, strconv.Itoa(ql.Port())), listenerTLS(cert), cfg)
	if err != nil {
		ql.Close()
		return nil, fmt.Errorf("TCP listen on port %d: %w", ql.Port(), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	dl := &dualListener{
		quic:   ql,
		tcp:    tl,
		port:   ql.Port(),
		connCh: make(chan acceptRes, 4),
		cancel: cancel,
	}

	go dl.acceptLoop(ctx, ql)
	go dl.acceptLoop(ctx, tl)

	return dl, nil
}

// acceptLoop feeds connCh until ctx ends or the listener fails. A failed
// TLS handshake from one peer is reported but does not stop the loop.
func (dl *dualListener) acceptLoop(ctx context.Context, ln Listener) {
	for {
		conn, err := ln.Accept(ctx)
		select {
		case dl.connCh <- acceptRes{conn: conn, err: err}:
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil && (ctx.Err() != nil || isClosed(err)) {
			return
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, quic.ErrServerClosed)
}

// Accept returns the next connection from either transport.
func (dl *dualListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case res := <-dl.connCh:
		return res.conn, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (dl *dualListener) Addr() net.Addr { return dl.tcp.Addr() }

// Port returns the port number both listeners are bound to.
func (dl *dualListener) Port() int {
	return dl.port
}

// Close shuts down both listeners.
func (dl *dualListener) Close() error {
	dl.cancel()
	tcpErr := dl.tcp.Close()
	quicErr := dl.quic.Close()
	if quicErr != nil {
		return quicErr
	}
	return tcpErr
}
