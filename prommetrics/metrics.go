// Package prommetrics exposes tinytls.TransportMetrics to Prometheus.
package prommetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tinytls/tinytls"
)

// Config specifies an optional config for NewHandler.
type Config struct {
	// Namespace is a parameter attached to all Prometheus metrics registered in NewHandler.
	Namespace string

	// Subsystem is a parameter attached to all Prometheus metrics registered in NewHandler.
	Subsystem string
}

// NewHandler creates a metrics handler for a tinytls.TlsTransport. The
// returned func is meant to be invoked periodically (e.g. from a
// housekeeping job) with a fresh TlsTransport.Metrics() snapshot; it exposes
// the result to the given prometheus.Registerer.
func NewHandler(
	registerer prometheus.Registerer,
	config ...*Config,
) func(metrics tinytls.TransportMetrics) {
	c := &Config{}
	if config != nil {
		c = config[0]
	}

	bytesSent := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "bytes_sent",
		Help:      "Total number of ciphertext bytes sent by the transport.",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})
	bytesReceived := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "bytes_received",
		Help:      "Total number of plaintext bytes received by the transport.",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})
	handshakes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "handshakes_completed",
		Help:      "Total number of completed TLS handshakes.",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})
	backlogBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "backlog_bytes",
		Help:      "Bytes of plaintext currently queued awaiting encryption.",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})
	backlogEntries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "backlog_entries",
		Help:      "Number of operations currently queued in the transport backlog.",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})
	state := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "pipe_state",
		Help:      "Current TlsPipe state (0=unwrapped, 1=handshaking, 2=wrapped, 3=shutting_down).",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})

	registerer.MustRegister(
		bytesSent,
		bytesReceived,
		handshakes,
		backlogBytes,
		backlogEntries,
		state,
	)

	return func(metrics tinytls.TransportMetrics) {
		bytesSent.Set(float64(metrics.BytesSent))
		bytesReceived.Set(float64(metrics.BytesReceived))
		handshakes.Set(float64(metrics.HandshakeCount))
		backlogBytes.Set(float64(metrics.BacklogBytes))
		backlogEntries.Set(float64(metrics.BacklogEntries))
		state.Set(float64(metrics.CurrentState))
	}
}
