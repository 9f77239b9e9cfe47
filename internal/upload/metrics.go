package upload

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records ingest outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	uploads  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    prometheus.Counter
}

// NewMetrics creates the upload collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uploads_total",
			Help: "Upload requests by terminal state (completed, rejected, store_failed, orphaned).",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upload_duration_seconds",
			Help:    "Time spent ingesting an upload, by terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"outcome"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upload_bytes_total",
			Help: "Bytes written to the object store by uploads that reached the stored state.",
		}),
	}
	reg.MustRegister(m.uploads, m.duration, m.bytes)
	return m
}

func (m *Metrics) observe(state State, started time.Time) {
	if m == nil {
		return
	}
	outcome := string(state)
	m.uploads.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
}

func (m *Metrics) addBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.Add(float64(n))
}
