package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	fetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camstream",
			Subsystem: "fetch",
			Name:      "total",
			Help:      "Snapshot fetches from the camera by result.",
		},
		[]string{"result"},
	)
	fetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "camstream",
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Snapshot fetch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	frameBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "camstream",
			Subsystem: "frame",
			Name:      "bytes",
			Help:      "Size of the cached frame.",
		},
	)
	frameUpdated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "camstream",
			Subsystem: "frame",
			Name:      "updated_timestamp_seconds",
			Help:      "Unix time of the last cache update.",
		},
	)
	sessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "camstream",
			Subsystem: "stream",
			Name:      "sessions_active",
			Help:      "Client stream sessions currently open.",
		},
		[]string{"transport"},
	)
	chunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camstream",
			Subsystem: "stream",
			Name:      "chunks_total",
			Help:      "Frames written to clients.",
		},
		[]string{"transport"},
	)
)

// RegisterMetrics registers all collectors with the default registry.
// Safe to call repeatedly; the Record helpers call it themselves.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(fetchTotal, fetchDuration, frameBytes, frameUpdated, sessionsActive, chunksTotal)
	})
}

// RecordFetch counts one snapshot attempt by result and observes its duration.
func RecordFetch(ok bool, duration time.Duration) {
	RegisterMetrics()
	result := "ok"
	if !ok {
		result = "error"
	}
	fetchTotal.WithLabelValues(result).Inc()
	fetchDuration.Observe(duration.Seconds())
}

// RecordFrame sets the cached frame size and update time.
func RecordFrame(size int, at time.Time) {
	RegisterMetrics()
	frameBytes.Set(float64(size))
	frameUpdated.Set(float64(at.UnixNano()) / 1e9)
}

// SessionOpened increments the open-session gauge for transport.
func SessionOpened(transport string) {
	RegisterMetrics()
	sessionsActive.WithLabelValues(transport).Inc()
}

// SessionClosed decrements the open-session gauge for transport.
func SessionClosed(transport string) {
	RegisterMetrics()
	sessionsActive.WithLabelValues(transport).Dec()
}

// RecordChunk counts one frame written to a client.
func RecordChunk(transport string) {
	RegisterMetrics()
	chunksTotal.WithLabelValues(transport).Inc()
}
