// Package metrics exposes Prometheus collectors for the chat server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery results.
const (
	DeliveryOK     = "ok"
	DeliveryClosed = "closed"
	DeliverySlow   = "slow_consumer"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// ActiveConnections tracks open WebSocket connections.
	ActiveConnections prometheus.Gauge

	// IngestCounter counts ingest attempts.
	// Labels: source (websocket|http), result (ok|validation|not_found|persistence|error)
	IngestCounter *prometheus.CounterVec

	// IngestDuration measures validate+persist+broadcast latency in seconds.
	IngestDuration prometheus.Histogram

	// DeliveryCounter counts per-connection broadcast deliveries.
	// Labels: result (ok|closed|slow_consumer)
	DeliveryCounter *prometheus.CounterVec

	// MalformedFrames counts inbound frames rejected before ingestion.
	MalformedFrames prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "chatroom_active_connections",
			Help: "Number of open WebSocket connections",
		}),
		IngestCounter: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatroom_ingest_total",
			Help: "Total number of message ingest attempts by source and result",
		}, []string{"source", "result"}),
		IngestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatroom_ingest_duration_seconds",
			Help:    "Duration of message ingestion in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		DeliveryCounter: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatroom_deliveries_total",
			Help: "Total number of per-connection broadcast deliveries by result",
		}, []string{"result"}),
		MalformedFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "chatroom_malformed_frames_total",
			Help: "Total number of inbound frames rejected as malformed",
		}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.ActiveConnections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.ActiveConnections.Dec()
	}
}

func (m *Metrics) Ingested(source, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.IngestCounter.WithLabelValues(source, result).Inc()
	m.IngestDuration.Observe(took.Seconds())
}

func (m *Metrics) Delivered(result string) {
	if m != nil {
		m.DeliveryCounter.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Malformed() {
	if m != nil {
		m.MalformedFrames.Inc()
	}
}
