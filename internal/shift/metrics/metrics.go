package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Transitions        *prometheus.CounterVec
	TransitionDuration prometheus.Histogram
	Conflicts          prometheus.Counter
}

var (
	once     sync.Once
	instance *Metrics
)

func New() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "ghostpass_shift_transitions_total",
				Help: "Station shift transitions, by audit action",
			}, []string{"action"}),
			TransitionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "ghostpass_shift_transition_duration_seconds",
				Help:    "Duration of shift start, switch and end including audit append",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			}),
			Conflicts: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ghostpass_shift_conflicts_total",
				Help: "Shift requests rejected because the station state changed or the operator was already active",
			}),
		}
	})
	return instance
}

func (m *Metrics) IncTransition(action string) {
	m.Transitions.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveTransition(start time.Time) {
	m.TransitionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncConflict() {
	m.Conflicts.Inc()
}
