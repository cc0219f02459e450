package request

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EndpointLatency *prometheus.HistogramVec
}

var (
	once     sync.Once
	instance *Metrics
)

func NewMetrics() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "ghostpass_endpoint_latency_seconds",
				Help:    "Latency of HTTP routes in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"route"}),
		}
	})
	return instance
}

func (m *Metrics) ObserveEndpointLatency(route string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(route).Observe(durationSeconds)
}
