package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chronologos/kvmlink/internal/handshake"
	"github.com/chronologos/kvmlink/internal/protocol"
	"github.com/chronologos/kvmlink/internal/registry"
)

// handshake exchanges greetings and leaves the session Active on success.
func (s *Session) handshake(ctx context.Context) (err error) {
	kind := trace.SpanKindServer
	if s.cfg.Role == Secondary {
		kind = trace.SpanKindClient
	}
	_, span := s.tracer.Start(ctx, "kvmlink.handshake",
		trace.WithSpanKind(kind),
		trace.WithAttributes(
			attribute.String("kvmlink.session_id", s.id),
			attribute.String("kvmlink.role", s.cfg.Role.String()),
			attribute.String("kvmlink.local_version", s.cfg.Version.String()),
		),
	)
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "failed"
			if r, ok := Reason(err); ok {
				result = r.String()
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.String("kvmlink.version", s.version.String()),
				attribute.String("kvmlink.screen", s.screen),
			)
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		s.cfg.Metrics.Handshake(result, time.Since(start))
	}()

	// Close unblocks the greeting reads; after the handshake the loop
	// watches the stop channel itself.
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-s.stop:
			s.conn.Close()
		case <-finished:
		}
	}()

	s.conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	if s.cfg.Role == Primary {
		err = s.greet()
	} else {
		err = s.answer()
	}
	if err != nil {
		return err
	}
	s.conn.SetReadDeadline(time.Time{})

	s.keepAlives = s.version.AtLeast(keepAliveSince) && s.keepAlive.Enabled()
	s.active = true
	s.cfg.Metrics.SessionActive(true)
	s.mu.Lock()
	s.status.Version = s.version
	s.status.Screen = s.screen
	s.mu.Unlock()
	s.log = s.log.With("screen", s.screen, "version", s.version.String())
	s.setState(Active)
	s.log.Info("session active")
	return nil
}

// greet is the Primary side: send Hello, wait for HelloBack, admit the screen.
func (s *Session) greet() error {
	hello := protocol.Hello{ProtocolName: s.cfg.ProtocolName, Version: s.cfg.Version}
	s.setState(Connecting)
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := protocol.WriteHello(s.conn, hello); err != nil {
		return closeWith(TransportError, fmt.Errorf("write hello: %w", err), nil)
	}

	s.setState(AwaitingHelloBack)
	payload, err := protocol.ReadFrame(s.conn, protocol.MaxHelloLength)
	if err != nil {
		return err
	}

	s.setState(Negotiating)
	back, err := protocol.DecodeHelloBack(payload)
	if err != nil {
		return violation("hello back: %w", err)
	}
	s.screen = back.Name

	v, err := handshake.AcceptHelloBack(hello, back)
	switch {
	case errors.Is(err, handshake.ErrNameMismatch):
		return violation("hello back: %w", err)
	case err != nil:
		return closeWith(Incompatible, err, handshake.Incompatible(s.cfg.Version))
	}

	if s.cfg.Screens != nil {
		if err := s.cfg.Screens.Claim(back.Name, s); err != nil {
			if errors.Is(err, registry.ErrScreenBusy) {
				return closeWith(Busy, err, &protocol.Busy{})
			}
			return closeWith(UnknownName, err, &protocol.Unknown{})
		}
		s.claimed = true
	}
	s.version = v
	return nil
}

// answer is the Secondary side: wait for Hello, reply with our name.
func (s *Session) answer() error {
	s.setState(AwaitingHello)
	payload, err := protocol.ReadFrame(s.conn, protocol.MaxHelloLength)
	if err != nil {
		return err
	}

	s.setState(Negotiating)
	hello, err := protocol.DecodeHello(payload)
	if err != nil {
		return violation("hello: %w", err)
	}

	back, v, negErr := handshake.Reply(hello, s.cfg.Version, s.cfg.Name)
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := protocol.WriteHelloBack(s.conn, back); err != nil {
		return closeWith(TransportError, fmt.Errorf("write hello back: %w", err), nil)
	}
	if negErr != nil {
		// The Primary answers with EICV; nothing more to say here.
		return closeWith(Incompatible, negErr, nil)
	}
	s.screen = s.cfg.Name
	s.version = v
	return nil
}

// activate runs the Primary's post-handshake setup.
func (s *Session) activate() error {
	if s.cfg.Role != Primary {
		return nil
	}
	if err := s.send(&protocol.ResetOptions{}); err != nil {
		return err
	}
	if len(s.cfg.Options) > 0 {
		if err := s.send(protocol.NewSetOptions(s.cfg.Options)); err != nil {
			return err
		}
		s.applyOptions(s.cfg.Options)
	}
	return s.send(&protocol.QueryInfo{})
}
