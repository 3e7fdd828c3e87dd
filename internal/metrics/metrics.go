// ABOUTME: Prometheus instrumentation for encoding sessions
// ABOUTME: Implements the encoder metrics hook and worker connection gauges
// Package metrics exposes Prometheus collectors for the encoder worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mp3rec"

// Metrics holds every collector on a private registry
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted   prometheus.Counter
	sessionsFinished  *prometheus.CounterVec
	sessionDuration   prometheus.Histogram
	outputBytes       prometheus.Histogram
	framesEncoded     prometheus.Counter
	samplesEncoded    prometheus.Counter
	failures          *prometheus.CounterVec
	activeConnections prometheus.Gauge
	connectionsTotal  prometheus.Counter
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Encoding sessions started",
		}),
		sessionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Encoding sessions finished by outcome",
		}, []string{"outcome"}),
		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time from start to blob",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		}),
		outputBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "output_bytes",
			Help:      "Size of encoded MP3 blobs",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
		}),
		framesEncoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_encoded_total",
			Help:      "PCM frames handed to the codec",
		}),
		samplesEncoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_encoded_total",
			Help:      "PCM samples handed to the codec",
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Encoder failures by reason",
		}, []string{"reason"}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Connected recorder clients",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Recorder clients accepted",
		}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SessionStarted() {
	m.sessionsStarted.Inc()
}

func (m *Metrics) SessionFinished(outcome string, bytes int, elapsed time.Duration) {
	m.sessionsFinished.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		m.outputBytes.Observe(float64(bytes))
		m.sessionDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) FrameEncoded(samples int) {
	m.framesEncoded.Inc()
	m.samplesEncoded.Add(float64(samples))
}

func (m *Metrics) Failure(reason string) {
	m.failures.WithLabelValues(reason).Inc()
}

// ConnectionOpened tracks a new client
func (m *Metrics) ConnectionOpened() {
	m.connectionsTotal.Inc()
	m.activeConnections.Inc()
}

// ConnectionClosed tracks a departed client
func (m *Metrics) ConnectionClosed() {
	m.activeConnections.Dec()
}
