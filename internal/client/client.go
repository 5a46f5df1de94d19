// Package client runs the Secondary side: it dials the Primary, runs a
// session and reconnects when the connection is lost.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chronologos/kvmlink/internal/session"
	"github.com/chronologos/kvmlink/internal/transport"
)

const (
	defaultReconnectDelay = 1 * time.Second
	defaultDialTimeout    = 10 * time.Second
)

var errClosed = errors.New("client closed")

// Config holds client configuration.
type Config struct {
	// Server is the Primary's "host:port".
	Server    string
	Transport transport.Config

	// Session is the template for every connection. Role and Remote are
	// set by the client.
	Session session.Config

	ReconnectDelay time.Duration
	DialTimeout    time.Duration

	Logger *slog.Logger

	// OnSession is called before each session starts, once per connection.
	OnSession func(*session.Session)
}

// Client keeps one Secondary session alive at a time.
type Client struct {
	cfg  Config
	base *slog.Logger
	log  *slog.Logger
	dial func(ctx context.Context) (transport.Conn, error)

	mu      sync.Mutex
	current *session.Session
	cancel  context.CancelCauseFunc
	closed  bool
}

// New creates a client with the given config.
func New(cfg Config) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Client{
		cfg:  cfg,
		base: logger,
		log:  logger.With("component", "client", "server", cfg.Server),
	}
	c.dial = func(ctx context.Context) (transport.Conn, error) {
		return transport.Dial(ctx, cfg.Server, cfg.Transport)
	}
	return c
}

// Run connects to the Primary and serves sessions until one ends for a
// reason that retrying cannot fix (incompatible version, busy or unknown
// screen name, protocol violation), ctx is cancelled, or Close is called.
// Lost connections and unresponsive peers are retried after the reconnect
// delay. Returns nil after Close.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.cancel = cancel
	c.mu.Unlock()

	err := c.loop(ctx)
	if errors.Is(context.Cause(ctx), errClosed) {
		return nil
	}
	return err
}

func (c *Client) loop(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
		conn, err := c.dial(dialCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("connect failed, retrying", "err", err, "attempt", attempt, "delay", c.cfg.ReconnectDelay)
			if err := c.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		cfg := c.cfg.Session
		cfg.Role = session.Secondary
		cfg.Remote = conn.RemoteAddr().String()
		if cfg.Logger == nil {
			cfg.Logger = c.base
		}
		sess := session.New(conn, cfg)
		if c.cfg.OnSession != nil {
			c.cfg.OnSession(sess)
		}
		c.setCurrent(sess)
		err = sess.Run(ctx)
		c.setCurrent(nil)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		reason, ok := session.Reason(err)
		if !ok || !reason.Retryable() {
			c.log.Error("session ended", "reason", reason.String(), "err", err)
			return err
		}
		c.log.Info("connection lost, reconnecting", "reason", reason.String(), "delay", c.cfg.ReconnectDelay)
		attempt = 0
		if err := c.sleep(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) sleep(ctx context.Context) error {
	select {
	case <-time.After(c.cfg.ReconnectDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) setCurrent(s *session.Session) {
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
}

// Session returns the live session, or nil between connections.
func (c *Client) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Close stops Run and the current session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.cancel != nil {
		c.cancel(errClosed)
	}
	return nil
}
