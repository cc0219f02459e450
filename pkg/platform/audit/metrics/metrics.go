package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit publisher.
type Metrics struct {
	EventsAppended  *prometheus.CounterVec
	AppendDuration  prometheus.Histogram
	AppendRetries   prometheus.Counter
	AppendFailures  prometheus.Counter
	TimestampClamps prometheus.Counter
}

var (
	once     sync.Once
	instance *Metrics
)

// New returns the process-wide audit metrics, registering them on first use.
func New() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			EventsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "ghostpass_audit_events_appended_total",
				Help: "Audit events durably appended, by category and action",
			}, []string{"category", "action"}),
			AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "ghostpass_audit_append_duration_seconds",
				Help:    "Time taken to append an audit event including retries",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			}),
			AppendRetries: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ghostpass_audit_append_retries_total",
				Help: "Audit append attempts retried after a transient store error",
			}),
			AppendFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ghostpass_audit_append_failures_total",
				Help: "Audit appends that failed after exhausting retries",
			}),
			TimestampClamps: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ghostpass_audit_timestamp_clamps_total",
				Help: "Events whose timestamp was advanced to keep per-station order monotonic",
			}),
		}
	})
	return instance
}
