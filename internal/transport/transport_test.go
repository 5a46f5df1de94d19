package transport

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/chronologos/kvmlink/internal/protocol"
)

// connPair listens with cfg, dials with dialCfg and returns both ends.
// The listener writes a greeting first, as the Primary does, so QUIC
// streams become visible to the dialer.
func connPair(t *testing.T, cfg, dialCfg Config) (server, client Conn) {
	t.Helper()
	ln, err := Listen("127.0.0.1:0", cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	accepted := make(chan Conn, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			t.Errorf("accept: %v", err)
			close(accepted)
			return
		}
		if err := protocol.WriteHello(conn, protocol.Hello{ProtocolName: protocol.BarrierProtocolName, Version: protocol.Local}); err != nil {
			t.Errorf("write hello: %v", err)
		}
		accepted <- conn
	}()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(ln.Port()))
	client, err = Dial(ctx, addr, dialCfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	server, ok := <-accepted
	if !ok {
		t.FailNow()
	}
	t.Cleanup(func() { server.Close() })

	hello, err := protocol.ReadHello(client)
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Version != protocol.Local {
		t.Fatalf("hello version %s", hello.Version)
	}
	return server, client
}

func exchange(t *testing.T, server, client Conn) {
	t.Helper()
	back := protocol.HelloBack{ProtocolName: protocol.BarrierProtocolName, Version: protocol.Local, Name: "laptop"}
	if err := protocol.WriteHelloBack(client, back); err != nil {
		t.Fatal(err)
	}
	got, err := protocol.ReadHelloBack(server)
	if err != nil {
		t.Fatal(err)
	}
	if got != back {
		t.Fatalf("got %+v, want %+v", got, back)
	}

	if err := protocol.WriteMessage(server, &protocol.MouseMove{X: 10, Y: -4}, protocol.Local); err != nil {
		t.Fatal(err)
	}
	msg, err := protocol.ReadMessage(client, protocol.Local)
	if err != nil {
		t.Fatal(err)
	}
	if mv, ok := msg.(*protocol.MouseMove); !ok || mv.X != 10 || mv.Y != -4 {
		t.Fatalf("got %#v", msg)
	}
}

func TestTCPRoundTrip(t *testing.T) {
	server, client := connPair(t, Config{Mode: ModeTCP}, Config{Mode: ModeTCP})
	exchange(t, server, client)
}

func TestTLSRoundTrip(t *testing.T) {
	server, client := connPair(t, Config{Mode: ModeTLS}, Config{Mode: ModeTLS})
	exchange(t, server, client)
}

func TestQUICRoundTrip(t *testing.T) {
	server, client := connPair(t, Config{Mode: ModeQUIC}, Config{Mode: ModeQUIC})
	exchange(t, server, client)
	if _, ok := client.(*streamConn); !ok {
		t.Fatalf("expected QUIC stream conn, got %T", client)
	}
}

func TestLoadCombinedPEM(t *testing.T) {
	cert, err := NewScreenCertificate("desk", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	key, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey)
	if err != nil {
		t.Fatal(err)
	}
	var buf []byte
	buf = append(buf, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: key})...)
	buf = append(buf, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})...)
	path := filepath.Join(t.TempDir(), "kvmlink.pem")
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadCertificate(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if CertificateFingerprint(loaded) != CertificateFingerprint(cert) {
		t.Fatal("loaded certificate differs")
	}
	leaf, err := x509.ParseCertificate(loaded.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	if leaf.Subject.CommonName != "desk" {
		t.Fatalf("common name %q", leaf.Subject.CommonName)
	}
}

func TestTLSPinnedFingerprint(t *testing.T) {
	cert, err := NewScreenCertificate("test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	fp := strings.ToLower(CertificateFingerprint(cert))
	server, client := connPair(t,
		Config{Mode: ModeTLS, Certificate: &cert},
		Config{Mode: ModeTLS, TrustedFingerprints: []string{"not-a-fingerprint", fp}})
	exchange(t, server, client)
}

func TestTLSUntrustedFingerprint(t *testing.T) {
	cert, err := NewScreenCertificate("test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	other, err := NewScreenCertificate("test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	ln, err := Listen("127.0.0.1:0", Config{Mode: ModeTLS, Certificate: &cert})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		if conn, err := ln.Accept(ctx); err == nil {
			conn.Close()
		}
	}()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(ln.Port()))
	_, err = Dial(ctx, addr, Config{Mode: ModeTLS, TrustedFingerprints: []string{CertificateFingerprint(other)}})
	if !errors.Is(err, ErrUntrustedCertificate) {
		t.Fatalf("expected ErrUntrustedCertificate, got %v", err)
	}
}

func TestQUICUntrustedFingerprint(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", Config{Mode: ModeQUIC})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	other, err := NewScreenCertificate("test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go ln.Accept(ctx)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(ln.Port()))
	if _, err := Dial(ctx, addr, Config{Mode: ModeQUIC, TrustedFingerprints: []string{CertificateFingerprint(other)}}); err == nil {
		t.Fatal("expected dial to fail")
	}
}

func TestCloseUnblocksReader(t *testing.T) {
	for _, mode := range []Mode{ModeTCP, ModeTLS, ModeQUIC} {
		t.Run(mode.String(), func(t *testing.T) {
			server, client := connPair(t, Config{Mode: mode}, Config{Mode: mode})
			done := make(chan error, 1)
			go func() {
				_, err := protocol.ReadFrame(server, protocol.MaxMessageLength)
				done <- err
			}()
			time.Sleep(20 * time.Millisecond)
			server.Close()
			select {
			case err := <-done:
				if err == nil {
					t.Fatal("expected read error after close")
				}
			case <-time.After(2 * time.Second):
				t.Fatal("read did not unblock")
			}
			client.Close()
		})
	}
}

func TestPeerCloseIsEOF(t *testing.T) {
	server, client := connPair(t, Config{Mode: ModeTCP}, Config{Mode: ModeTCP})
	client.Close()
	if _, err := protocol.ReadFrame(server, protocol.MaxMessageLength); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadDeadline(t *testing.T) {
	server, _ := connPair(t, Config{Mode: ModeTCP}, Config{Mode: ModeTCP})
	server.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	_, err := protocol.ReadFrame(server, protocol.MaxMessageLength)
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestAcceptHonorsContext(t *testing.T) {
	for _, mode := range []Mode{ModeTCP, ModeQUIC, ModeDual} {
		t.Run(mode.String(), func(t *testing.T) {
			ln, err := Listen("127.0.0.1:0", Config{Mode: mode})
			if err != nil {
				t.Fatal(err)
			}
			defer ln.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			if _, err := ln.Accept(ctx); err == nil {
				t.Fatal("expected accept to fail")
			}
		})
	}
}

func TestDialUnsupportedMode(t *testing.T) {
	if _, err := Dial(context.Background(), "127.0.0.1:1", Config{Mode: ModeDual}); err == nil {
		t.Fatal("expected error dialing dual mode")
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeTCP, ModeTLS, ModeQUIC, ModeDual} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Fatalf("ParseMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMode("udp"); err == nil {
		t.Fatal("expected error")
	}
}

func TestFingerprintFormat(t *testing.T) {
	fp := Fingerprint([]byte("certificate"))
	parts := strings.Split(fp, ":")
	if len(parts) != 32 {
		t.Fatalf("got %d groups in %q", len(parts), fp)
	}
	for _, p := range parts {
		if len(p) != 2 || strings.ToUpper(p) != p {
			t.Fatalf("bad group %q in %q", p, fp)
		}
	}
	if _, err := ParseFingerprint(fp); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseFingerprint("AB:CD"); err == nil {
		t.Fatal("expected short fingerprint to be rejected")
	}
}

func TestVerifyFingerprintNoCertificate(t *testing.T) {
	verify := VerifyFingerprint([]string{Fingerprint([]byte("x"))})
	if err := verify(nil, nil); !errors.Is(err, ErrUntrustedCertificate) {
		t.Fatalf("expected ErrUntrustedCertificate, got %v", err)
	}
	if err := verify([][]byte{[]byte("x")}, nil); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
}
