// Package session runs one protocol connection from greeting to close.
//
// A Session owns its connection exclusively. Run performs the handshake and
// then drives a single select loop that consumes decoded frames, the
// keep-alive timer and queued outgoing actions, so all protocol state is
// touched by one goroutine only.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/chronologos/kvmlink/internal/clipboard"
	"github.com/chronologos/kvmlink/internal/input"
	"github.com/chronologos/kvmlink/internal/keepalive"
	"github.com/chronologos/kvmlink/internal/metrics"
	"github.com/chronologos/kvmlink/internal/protocol"
)

const (
	defaultHandshakeTimeout = 15 * time.Second
	writeTimeout            = 10 * time.Second
	flushTimeout            = time.Second // final error message before close
	frameQueue              = 8
)

var (
	keepAliveSince = protocol.V(1, 3)
	langSince      = protocol.V(1, 8)
)

// Conn is the byte stream a session runs over. net.Conn and the
// transport package's connections satisfy it.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Screens is the Primary's registry of screen names. Claim fails with
// registry.ErrUnknownScreen or registry.ErrScreenBusy.
type Screens interface {
	Claim(name string, s *Session) error
	Release(name string, s *Session)
}

// Config holds session configuration.
type Config struct {
	Role Role

	// Version is the local protocol version (default protocol.Local).
	Version protocol.Version

	// ProtocolName is the greeting name a Primary sends (default "Barrier").
	ProtocolName string

	// Name is the screen name a Secondary announces.
	Name string

	// KeepAliveRate is the keep-alive interval. Zero disables keep-alives.
	KeepAliveRate        time.Duration
	KeepAlivesUntilDeath int

	// Options is the table a Primary sends after the handshake.
	Options protocol.Options

	Screens    Screens           // Primary only; nil accepts every name
	Input      input.Injector    // Secondary only
	Clipboard  clipboard.Backend // default: in-memory
	ScreenInfo func() ClientInfo // Secondary only

	Remote           string
	HandshakeTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer

	// OnStateChange is called from the session goroutine on every transition.
	OnStateChange func(from, to State)
}

type frameEvent struct {
	payload []byte
	err     error
}

type action struct {
	fn  func() error
	res chan error
}

// Session is one protocol connection.
type Session struct {
	cfg    Config
	id     string
	conn   Conn
	log    *slog.Logger
	tracer trace.Tracer

	actions   chan action
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	startedAt time.Time

	// Owned by the Run goroutine.
	state      State
	version    protocol.Version
	screen     string
	claimed    bool
	active     bool
	entrySeq   uint32
	keepAlive  *keepalive.Monitor
	keepAlives bool
	reasm      *clipboard.Reassembler
	owned      [protocol.NumClipboards]bool
	dirty      [protocol.NumClipboards]bool
	sharing    bool
	shareLimit int

	mu     sync.Mutex
	status Status
}

// New creates a session over conn but does not start it. Call Run() to begin.
func New(conn Conn, cfg Config) *Session {
	if cfg.Version.IsZero() {
		cfg.Version = protocol.Local
	}
	if cfg.ProtocolName == "" {
		cfg.ProtocolName = protocol.BarrierProtocolName
	}
	if cfg.KeepAlivesUntilDeath <= 0 {
		cfg.KeepAlivesUntilDeath = protocol.KeepAlivesUntilDeath
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.Clipboard == nil {
		cfg.Clipboard = clipboard.NewMemory()
	}
	if cfg.Input == nil {
		cfg.Input = input.NewLogger(cfg.Logger, slog.LevelDebug)
	}
	if cfg.ScreenInfo == nil {
		cfg.ScreenInfo = func() ClientInfo { return ClientInfo{} }
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/chronologos/kvmlink/internal/session")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	id := uuid.NewString()
	s := &Session{
		cfg:       cfg,
		id:        id,
		conn:      conn,
		log:       logger.With("component", "session", "session_id", id, "role", cfg.Role.String()),
		tracer:    cfg.Tracer,
		actions:   make(chan action),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		keepAlive: keepalive.New(cfg.KeepAliveRate, cfg.KeepAlivesUntilDeath),
		reasm:     clipboard.NewReassembler(protocol.MaxStringLength),
		sharing:   true,
		startedAt: time.Now(),
	}
	s.status = Status{ID: id, Role: cfg.Role, Remote: cfg.Remote, Since: s.startedAt}
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// Status returns a snapshot safe to read from any goroutine.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run performs the handshake and serves the connection until it closes.
// The returned error is always a *CloseError.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	// Unblock any pending read or write once the caller gives up.
	stopAfter := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stopAfter()

	if err := s.handshake(ctx); err != nil {
		return s.terminate(ctx, err)
	}
	return s.loop(ctx)
}

// Close ends the session. An active Primary says goodbye with CBYE first.
// Close does not wait for Run to return.
func (s *Session) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *Session) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Session) loop(ctx context.Context) error {
	frames := make(chan frameEvent, frameQueue)
	go s.readFrames(frames)

	if s.keepAlives {
		s.keepAlive.Start()
	}
	if err := s.activate(); err != nil {
		return s.terminate(ctx, err)
	}

	for {
		select {
		case ev := <-frames:
			err := ev.err
			if err == nil {
				err = s.dispatch(ev.payload)
			}
			if err != nil {
				return s.terminate(ctx, err)
			}

		case <-s.keepAlive.Timer():
			if err := s.onKeepAliveTick(); err != nil {
				return s.terminate(ctx, err)
			}

		case a := <-s.actions:
			err := a.fn()
			a.res <- err
			var ce *CloseError
			if errors.As(err, &ce) {
				return s.terminate(ctx, ce)
			}

		case <-s.stop:
			return s.terminate(ctx, s.goodbye())

		case <-ctx.Done():
			return s.terminate(ctx, ctx.Err())
		}
	}
}

// readFrames reads raw frames and hands them to the loop. Exits on the
// first read error, which is delivered as the final event.
func (s *Session) readFrames(ch chan<- frameEvent) {
	for {
		payload, err := protocol.ReadFrame(s.conn, protocol.MaxMessageLength)
		select {
		case ch <- frameEvent{payload: payload, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) goodbye() error {
	if s.cfg.Role == Primary {
		if err := s.send(&protocol.Close{}); err != nil {
			return err
		}
	}
	return closeWith(LocalClose, nil, nil)
}

func (s *Session) publishMissed() {
	s.mu.Lock()
	s.status.Missed = s.keepAlive.Missed()
	s.mu.Unlock()
}

func (s *Session) onKeepAliveTick() error {
	if s.cfg.Role == Primary {
		if err := s.send(&protocol.KeepAlive{}); err != nil {
			return err
		}
	}
	expired := s.keepAlive.Tick()
	s.publishMissed()
	if expired {
		s.cfg.Metrics.KeepAliveTimeout()
		return closeWith(Unresponsive, fmt.Errorf("no keep-alive for %d intervals of %s", s.keepAlive.Missed(), s.keepAlive.Rate()), nil)
	}
	return nil
}

// send encodes m at the negotiated version and writes it. Encoding
// failures are returned as-is and leave the session running; write
// failures end it.
func (s *Session) send(m protocol.Message) error {
	payload, err := protocol.Encode(m, s.version)
	if err != nil {
		if errors.Is(err, protocol.ErrUnsupported) {
			s.log.Warn("message not supported by peer", "code", string(m.Code()), "version", s.version.String())
		}
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := protocol.WriteFrame(s.conn, payload); err != nil {
		return closeWith(TransportError, fmt.Errorf("write %s: %w", m.Code(), err), nil)
	}
	s.cfg.Metrics.MessageSent(string(m.Code()))
	s.mu.Lock()
	s.status.Sent++
	s.mu.Unlock()
	return nil
}

// do runs fn on the session goroutine and returns its result.
func (s *Session) do(fn func() error) error {
	a := action{fn: fn, res: make(chan error, 1)}
	select {
	case s.actions <- a:
	case <-s.done:
		return ErrClosed
	}
	select {
	case err := <-a.res:
		return err
	case <-s.done:
		select {
		case err := <-a.res:
			return err
		default:
			return ErrClosed
		}
	}
}

func (s *Session) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.mu.Lock()
	s.status.State = to
	s.mu.Unlock()
	s.log.Debug("state", "from", from.String(), "to", to.String())
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(from, to)
	}
}

// classify turns whatever stopped the session into a CloseError.
func (s *Session) classify(ctx context.Context, err error) *CloseError {
	var ce *CloseError
	if errors.As(err, &ce) && !ce.Reason.Retryable() {
		return ce
	}
	if s.stopped() {
		return closeWith(LocalClose, nil, nil)
	}
	if ctx.Err() != nil {
		return closeWith(Cancelled, context.Cause(ctx), nil)
	}
	if ce != nil {
		return ce
	}
	switch {
	case errors.Is(err, protocol.ErrTooLarge), errors.Is(err, protocol.ErrTruncated):
		return closeWith(ProtocolViolation, err, &protocol.Bad{})
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return closeWith(PeerClosed, err, nil)
	case errors.Is(err, os.ErrDeadlineExceeded):
		return closeWith(Unresponsive, err, nil)
	}
	return closeWith(TransportError, err, nil)
}

// terminate is the single exit path: it records the outcome, flushes the
// error message if any, closes the connection and releases the screen name.
func (s *Session) terminate(ctx context.Context, err error) error {
	ce := s.classify(ctx, err)

	if ce.Reason.failure() {
		s.setState(Failed)
	}
	if ce.Reason == ProtocolViolation {
		s.cfg.Metrics.Violation(violationKind(ce.Err))
	}
	s.setState(Closing)
	s.keepAlive.Stop()

	if ce.reply != nil {
		v := s.version
		if v.IsZero() {
			v = s.cfg.Version
		}
		s.conn.SetWriteDeadline(time.Now().Add(flushTimeout))
		if err := protocol.WriteMessage(s.conn, ce.reply, v); err != nil {
			s.log.Debug("flush close message", "code", string(ce.reply.Code()), "err", err)
		} else {
			s.cfg.Metrics.MessageSent(string(ce.reply.Code()))
		}
	}
	s.conn.Close()
	s.reasm.Reset()

	if s.claimed {
		s.cfg.Screens.Release(s.screen, s)
		s.claimed = false
	}
	if s.active {
		s.cfg.Metrics.SessionActive(false)
		s.active = false
	}
	s.setState(Closed)
	s.cfg.Metrics.SessionClosed(ce.Reason.String())

	level := slog.LevelInfo
	if ce.Reason.failure() {
		level = slog.LevelWarn
	}
	s.log.Log(context.Background(), level, "session closed", "reason", ce.Reason.String(), "err", ce.Err)
	return ce
}
