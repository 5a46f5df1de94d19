package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chronologos/kvmlink/internal/metrics"
	"github.com/chronologos/kvmlink/internal/protocol"
	"github.com/chronologos/kvmlink/internal/session"
	"github.com/chronologos/kvmlink/internal/transport"
)

const testTimeout = 3 * time.Second

type fixture struct {
	srv    *Server
	addr   string
	reg    *prometheus.Registry
	cancel context.CancelFunc
	done   chan error
}

func startServer(t *testing.T, screens ...string) *fixture {
	t.Helper()
	ln, err := transport.Listen("127.0.0.1:0", transport.Config{Mode: transport.ModeTCP})
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	srv := New(ln, Config{
		Screens: screens,
		Session: session.Config{Metrics: metrics.New(metrics.WithRegistry(reg))},
	})

	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{
		srv:    srv,
		addr:   net.JoinHostPort("127.0.0.1", strconv.Itoa(ln.Port())),
		reg:    reg,
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() { f.done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-f.done
	})
	return f
}

// connect plays a Secondary through the greeting.
func (f *fixture) connect(t *testing.T, name string) transport.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	conn, err := transport.Dial(ctx, f.addr, transport.Config{Mode: transport.ModeTCP})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(testTimeout))

	hello, err := protocol.ReadHello(conn)
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if err := protocol.WriteHelloBack(conn, protocol.HelloBack{
		ProtocolName: hello.ProtocolName,
		Version:      protocol.Local,
		Name:         name,
	}); err != nil {
		t.Fatal(err)
	}
	return conn
}

func read(t *testing.T, conn transport.Conn) protocol.Message {
	t.Helper()
	m, err := protocol.ReadMessage(conn, protocol.Local)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func expectCode(t *testing.T, conn transport.Conn, code protocol.Code) {
	t.Helper()
	if m := read(t, conn); m.Code() != code {
		t.Fatalf("got %s, want %s", m.Code(), code)
	}
}

func expectEOF(t *testing.T, conn transport.Conn) {
	t.Helper()
	if _, err := protocol.ReadFrame(conn, protocol.MaxMessageLength); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerAcceptsScreen(t *testing.T) {
	f := startServer(t, "laptop")
	conn := f.connect(t, "laptop")
	expectCode(t, conn, protocol.CodeResetOptions)
	expectCode(t, conn, protocol.CodeQueryInfo)

	if err := protocol.WriteMessage(conn, &protocol.Info{W: 1920, H: 1080, MX: 5, MY: 6}, protocol.Local); err != nil {
		t.Fatal(err)
	}
	expectCode(t, conn, protocol.CodeInfoAck)

	sess, ok := f.srv.Screen("laptop")
	if !ok {
		t.Fatal("laptop not registered")
	}
	if err := sess.MouseMove(100, 200); err != nil {
		t.Fatal(err)
	}
	if mv, ok := read(t, conn).(*protocol.MouseMove); !ok || mv.X != 100 || mv.Y != 200 {
		t.Fatalf("got %#v", mv)
	}

	statuses := f.srv.Sessions()
	if len(statuses) != 1 || statuses[0].Screen != "laptop" || statuses[0].State != session.Active {
		t.Fatalf("sessions = %+v", statuses)
	}
	if statuses[0].Info == nil || statuses[0].Info.W != 1920 {
		t.Fatalf("info = %+v", statuses[0].Info)
	}
}

func TestServerRejectsBusyAndUnknown(t *testing.T) {
	f := startServer(t, "laptop")
	first := f.connect(t, "laptop")
	expectCode(t, first, protocol.CodeResetOptions)

	second := f.connect(t, "laptop")
	expectCode(t, second, protocol.CodeBusy)
	expectEOF(t, second)

	third := f.connect(t, "desktop")
	expectCode(t, third, protocol.CodeUnknown)
	expectEOF(t, third)

	if _, ok := f.srv.Screen("desktop"); ok {
		t.Fatal("unknown screen registered")
	}
}

func TestServerReleasesScreenOnDisconnect(t *testing.T) {
	f := startServer(t)
	conn := f.connect(t, "anything")
	expectCode(t, conn, protocol.CodeResetOptions)
	eventually(t, func() bool { _, ok := f.srv.Screen("anything"); return ok })

	conn.Close()
	eventually(t, func() bool { _, ok := f.srv.Screen("anything"); return !ok })
	eventually(t, func() bool { return len(f.srv.Sessions()) == 0 })

	again := f.connect(t, "anything")
	expectCode(t, again, protocol.CodeResetOptions)
}

func TestServerShutdownClosesSessions(t *testing.T) {
	f := startServer(t)
	conn := f.connect(t, "laptop")
	expectCode(t, conn, protocol.CodeResetOptions)
	expectCode(t, conn, protocol.CodeQueryInfo)

	f.cancel()
	select {
	case err := <-f.done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
		f.done <- err
	case <-time.After(testTimeout):
		t.Fatal("Serve did not return")
	}

	// Either CBYE or a bare close, depending on which exit path won.
	for {
		if _, err := protocol.ReadFrame(conn, protocol.MaxMessageLength); err != nil {
			break
		}
	}
}

func TestStatusHandler(t *testing.T) {
	f := startServer(t, "laptop")
	conn := f.connect(t, "laptop")
	expectCode(t, conn, protocol.CodeResetOptions)
	expectCode(t, conn, protocol.CodeQueryInfo)

	h := f.srv.Handler(f.reg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("healthz: %d %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	var sessions []sessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].Screen != "laptop" || sessions[0].State != "active" {
		t.Fatalf("sessions = %+v", sessions)
	}
	if sessions[0].Version != protocol.Local.String() {
		t.Fatalf("version = %q", sessions[0].Version)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/screens", nil))
	var screens []screenView
	if err := json.Unmarshal(rec.Body.Bytes(), &screens); err != nil {
		t.Fatal(err)
	}
	if len(screens) != 1 || screens[0].Name != "laptop" || screens[0].Session != sessions[0].ID {
		t.Fatalf("screens = %+v", screens)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "kvmlink_sessions_active 1") {
		t.Fatalf("metrics missing active session gauge:\n%s", rec.Body)
	}
}
