package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Rejection reasons used as the "reason" label.
const (
	ReasonInvalidMessage = "invalid_message"
	ReasonInvalidShape   = "invalid_shape"
)

// Metrics are the bridge collectors. A nil *Metrics records nothing.
type Metrics struct {
	received  prometheus.Counter
	rejected  *prometheus.CounterVec
	written   prometheus.Counter
	failed    prometheus.Counter
	latency   prometheus.Histogram
	lastWrite prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_messages_received_total",
			Help: "MQTT messages delivered to the listener.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_messages_rejected_total",
			Help: "Messages dropped before ingest, by reason.",
		}, []string{"reason"}),
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_records_written_total",
			Help: "Records successfully written to InfluxDB.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_ingest_failures_total",
			Help: "Decoded readings that could not be flattened or written.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_write_latency_seconds",
			Help:    "Duration of the blocking InfluxDB write per record.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		lastWrite: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_last_write_timestamp_seconds",
			Help: "Unix time of the last successful write.",
		}),
	}
	reg.MustRegister(m.received, m.rejected, m.written, m.failed, m.latency, m.lastWrite)
	return m
}

func (m *Metrics) MessageReceived() {
	if m != nil {
		m.received.Inc()
	}
}

func (m *Metrics) MessageRejected(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IngestFailed() {
	if m != nil {
		m.failed.Inc()
	}
}

// ObserveWrite records one write attempt.
func (m *Metrics) ObserveWrite(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.latency.Observe(d.Seconds())
	if err == nil {
		m.written.Inc()
		m.lastWrite.SetToCurrentTime()
	}
}
