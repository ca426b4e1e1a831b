// Package metrics provides the Prometheus instrumentation wired into Envoy.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters and histograms Envoy reports. Every method
// handles a nil receiver gracefully so callers can pass NullMetrics() to
// disable instrumentation at zero cost.
type Metrics struct {
	ChunksUploaded   prometheus.Counter
	ChunksDownloaded prometheus.Counter
	LockWaitSeconds  prometheus.Histogram
}

// NewMetrics creates and registers Envoy's metrics. Pass a nil Registerer to
// build the metrics without registering them (tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChunksUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spare_chunks_uploaded_total",
			Help: "Total chunks uploaded to the object store.",
		}),
		ChunksDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spare_chunks_downloaded_total",
			Help: "Total chunks downloaded from the object store.",
		}),
		LockWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spare_lock_wait_seconds",
			Help:    "Time spent waiting to acquire the bucket lock.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.ChunksUploaded, m.ChunksDownloaded, m.LockWaitSeconds)
	}

	return m
}

// NullMetrics returns nil, which acts as a no-op metrics collector.
func NullMetrics() *Metrics { return nil }

func (m *Metrics) RecordChunkUploaded() {
	if m == nil {
		return
	}
	m.ChunksUploaded.Inc()
}

func (m *Metrics) RecordChunkDownloaded() {
	if m == nil {
		return
	}
	m.ChunksDownloaded.Inc()
}

func (m *Metrics) ObserveLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.LockWaitSeconds.Observe(seconds)
}
