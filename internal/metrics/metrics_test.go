package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SessionActive(true)
	m.Handshake("ok", time.Second)
	m.MessageReceived("CALV")
	m.MessageSent("CALV")
	m.Violation("unknown-code")
	m.KeepAliveTimeout()
	m.ClipboardTransfer("ok", 10)
	m.SessionClosed("peer-closed")
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg))

	m.SessionActive(true)
	m.SessionActive(true)
	m.SessionActive(false)
	if got := gaugeValue(t, m.sessionsActive); got != 1 {
		t.Fatalf("sessions_active = %v, want 1", got)
	}

	m.MessageReceived("DMMV")
	m.MessageReceived("DMMV")
	m.MessageSent("CINN")
	if got := counterValue(t, m.messagesReceived.WithLabelValues("DMMV")); got != 2 {
		t.Fatalf("messages_received_total{DMMV} = %v, want 2", got)
	}
	if got := counterValue(t, m.messagesSent.WithLabelValues("CINN")); got != 1 {
		t.Fatalf("messages_sent_total{CINN} = %v, want 1", got)
	}

	m.ClipboardTransfer("ok", 11)
	m.ClipboardTransfer("error", 0)
	if got := counterValue(t, m.clipboardBytes); got != 11 {
		t.Fatalf("clipboard_bytes_total = %v, want 11", got)
	}
	if got := counterValue(t, m.clipboardTransfers.WithLabelValues("error")); got != 1 {
		t.Fatalf("clipboard_transfers_total{error} = %v, want 1", got)
	}

	m.KeepAliveTimeout()
	if got := counterValue(t, m.keepAliveTimeouts); got != 1 {
		t.Fatalf("keepalive_timeouts_total = %v, want 1", got)
	}
}

func TestNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg), WithNamespace("test"))
	m.SessionClosed("unresponsive")

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "test_session_closes_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected test_session_closes_total to be registered")
	}
}
