package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for door verification.
type Metrics struct {
	Scans          *prometheus.CounterVec
	ScanLatency    prometheus.Histogram
	StaleClock     prometheus.Counter
	NonceReleases  prometheus.Counter
	AuditFallbacks prometheus.Counter
}

var (
	once     sync.Once
	instance *Metrics
)

func New() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			Scans: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "ghostpass_scans_total",
				Help: "Door scans by decision and reason",
			}, []string{"decision", "reason"}),
			ScanLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "ghostpass_scan_latency_seconds",
				Help:    "End-to-end verification latency including the audit append",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.4, 0.8, 1.6},
			}),
			StaleClock: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ghostpass_scan_stale_clock_total",
				Help: "Scans of tokens issued in the future beyond the skew tolerance",
			}),
			NonceReleases: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ghostpass_scan_nonce_releases_total",
				Help: "Consumed nonces released because the scan ended in NO",
			}),
			AuditFallbacks: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ghostpass_scan_audit_best_effort_total",
				Help: "Scan events appended on a detached context after the budget ran out",
			}),
		}
	})
	return instance
}

func (m *Metrics) IncScan(decision, reason string) {
	m.Scans.WithLabelValues(decision, reason).Inc()
}

func (m *Metrics) ObserveScan(start time.Time) {
	m.ScanLatency.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncStaleClock() {
	m.StaleClock.Inc()
}

func (m *Metrics) IncNonceRelease() {
	m.NonceReleases.Inc()
}

func (m *Metrics) IncAuditFallback() {
	m.AuditFallbacks.Inc()
}
