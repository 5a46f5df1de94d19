// Package server runs the Primary side: it accepts transport connections,
// runs one session per connection and tracks which Secondary screen each
// session serves.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/chronologos/kvmlink/internal/registry"
	"github.com/chronologos/kvmlink/internal/session"
	"github.com/chronologos/kvmlink/internal/transport"
)

// Config configures a Server.
type Config struct {
	// Session is the template for every accepted session. Role, Screens,
	// Remote and Logger are set by the server.
	Session session.Config

	// Screens lists the Secondary names allowed to connect. Empty
	// accepts any name.
	Screens []string

	Logger *slog.Logger

	// OnSession is called from the session's goroutine before the
	// handshake starts. Input sources use it to get hold of sessions.
	OnSession func(*session.Session)
}

// Server accepts Secondaries on one listener.
type Server struct {
	cfg     Config
	ln      transport.Listener
	base    *slog.Logger
	log     *slog.Logger
	screens *registry.Registry[*session.Session]
	started time.Time

	mu       sync.Mutex
	sessions map[string]*session.Session // by session id
	closing  bool
	wg       sync.WaitGroup
}

// New creates a server on ln. The server owns ln and closes it when Serve
// returns.
func New(ln transport.Listener, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:      cfg,
		ln:       ln,
		base:     logger,
		log:      logger.With("component", "server"),
		screens:  registry.New[*session.Session](cfg.Screens...),
		started:  time.Now(),
		sessions: make(map[string]*session.Session),
	}
}

// Serve accepts connections until ctx is cancelled or the listener fails,
// then closes every session and waits for them to finish.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("listening", "addr", s.ln.Addr().String(), "screens", s.cfg.Screens)
	defer s.wg.Wait()
	defer s.closeAll()
	defer s.ln.Close()

	for {
		conn, err := s.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) || errors.Is(err, quic.ErrServerClosed) {
				return err
			}
			// Accept errors are often transient (failed TLS handshake).
			s.log.Warn("accept error", "err", err)
			continue
		}
		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn transport.Conn) {
	defer s.wg.Done()

	remote := conn.RemoteAddr().String()
	cfg := s.cfg.Session
	cfg.Role = session.Primary
	cfg.Screens = s.screens
	cfg.Remote = remote
	cfg.Logger = s.base.With("remote", remote)
	sess := session.New(conn, cfg)

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	if s.closing {
		sess.Close()
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.ID())
		s.mu.Unlock()
	}()

	if s.cfg.OnSession != nil {
		s.cfg.OnSession(sess)
	}

	err := sess.Run(ctx)
	reason, _ := session.Reason(err)
	s.log.Debug("connection finished", "session_id", sess.ID(), "reason", reason.String())
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for _, sess := range s.sessions {
		sess.Close()
	}
}

// Screen returns the session currently serving name.
func (s *Server) Screen(name string) (*session.Session, bool) {
	return s.screens.Lookup(name)
}

// Sessions returns the status of every live session, handshaking ones
// included.
func (s *Server) Sessions() []session.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.Status, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Status())
	}
	return out
}

// Addr is the listener address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }
