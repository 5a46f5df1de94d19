// Package metrics exposes Prometheus collectors for protocol sessions.
//
// Every method is safe on a nil *Metrics so components can run without
// instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "kvmlink").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for handshake duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the handshake duration buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "kvmlink",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the session collectors.
type Metrics struct {
	sessionsActive     prometheus.Gauge
	handshakes         *prometheus.CounterVec
	handshakeDuration  prometheus.Histogram
	messagesReceived   *prometheus.CounterVec
	messagesSent       *prometheus.CounterVec
	violations         *prometheus.CounterVec
	keepAliveTimeouts  prometheus.Counter
	clipboardTransfers *prometheus.CounterVec
	clipboardBytes     prometheus.Counter
	closes             *prometheus.CounterVec
}

// New registers the collectors with the configured registry.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)
	ns, labels := config.Namespace, config.ConstLabels

	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "sessions_active",
			Help:        "Number of sessions past the handshake and not yet closed",
			ConstLabels: labels,
		}),

		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "handshakes_total",
			Help:        "Handshakes by result",
			ConstLabels: labels,
		}, []string{"result"}),

		handshakeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "handshake_duration_seconds",
			Help:        "Time from connect to active or failed",
			ConstLabels: labels,
			Buckets:     config.Buckets,
		}),

		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "messages_received_total",
			Help:        "Decoded messages received by code",
			ConstLabels: labels,
		}, []string{"code"}),

		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "messages_sent_total",
			Help:        "Messages written by code",
			ConstLabels: labels,
		}, []string{"code"}),

		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "protocol_violations_total",
			Help:        "Sessions failed by a protocol violation, by kind",
			ConstLabels: labels,
		}, []string{"reason"}),

		keepAliveTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "keepalive_timeouts_total",
			Help:        "Sessions closed because the peer stopped answering keep-alives",
			ConstLabels: labels,
		}),

		clipboardTransfers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "clipboard_transfers_total",
			Help:        "Clipboard transfers by result",
			ConstLabels: labels,
		}, []string{"result"}),

		clipboardBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "clipboard_bytes_total",
			Help:        "Bytes of clipboard data delivered to the local clipboard",
			ConstLabels: labels,
		}),

		closes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "session_closes_total",
			Help:        "Session closes by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
	}
}

// SessionActive moves the active-session gauge by +1 or -1.
func (m *Metrics) SessionActive(up bool) {
	if m == nil {
		return
	}
	if up {
		m.sessionsActive.Inc()
	} else {
		m.sessionsActive.Dec()
	}
}

// Handshake records a finished handshake attempt.
func (m *Metrics) Handshake(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(result).Inc()
	m.handshakeDuration.Observe(d.Seconds())
}

func (m *Metrics) MessageReceived(code string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(code).Inc()
}

func (m *Metrics) MessageSent(code string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(code).Inc()
}

func (m *Metrics) Violation(reason string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(reason).Inc()
}

func (m *Metrics) KeepAliveTimeout() {
	if m == nil {
		return
	}
	m.keepAliveTimeouts.Inc()
}

// ClipboardTransfer records one transfer outcome; n counts delivered bytes.
func (m *Metrics) ClipboardTransfer(result string, n int) {
	if m == nil {
		return
	}
	m.clipboardTransfers.WithLabelValues(result).Inc()
	if n > 0 {
		m.clipboardBytes.Add(float64(n))
	}
}

func (m *Metrics) SessionClosed(reason string) {
	if m == nil {
		return
	}
	m.closes.WithLabelValues(reason).Inc()
}
