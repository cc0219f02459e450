package ops

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for ops event export.
type Metrics struct {
	Exported    prometheus.Counter
	Dropped     *prometheus.CounterVec
	CircuitOpen prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the singleton Metrics instance with ops export metrics registered.
// Safe to call multiple times; metrics are only registered once.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			Exported: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ghostpass_ops_events_exported_total",
				Help: "Shift and scan events produced to the operational log topic",
			}),
			Dropped: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "ghostpass_ops_events_dropped_total",
				Help: "Operational events dropped before reaching Kafka, by reason",
			}, []string{"reason"}),
			CircuitOpen: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "ghostpass_ops_export_circuit_open",
				Help: "Export circuit breaker state (0=closed, 1=open)",
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitOpen.Set(1)
	} else {
		m.CircuitOpen.Set(0)
	}
}
