package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for token minting.
type Metrics struct {
	TokensMinted *prometheus.CounterVec
	MintFailures *prometheus.CounterVec
	MintLatency  prometheus.Histogram
	Revocations  prometheus.Counter
	Rotations    *prometheus.CounterVec
}

var (
	once     sync.Once
	instance *Metrics
)

// New returns the process-wide token metrics, registering them on first use.
func New() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			TokensMinted: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "ghostpass_tokens_minted_total",
				Help: "Tokens minted, by mode and whether the balance gate forced a lock",
			}, []string{"mode", "state"}),
			MintFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "ghostpass_token_mint_failures_total",
				Help: "Mint calls that returned an error, by error code",
			}, []string{"code"}),
			MintLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "ghostpass_token_mint_latency_seconds",
				Help:    "Latency of mint including balance read and sealing",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			}),
			Revocations: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ghostpass_token_revocations_total",
				Help: "Subject key epoch bumps",
			}),
			Rotations: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "ghostpass_token_display_rotations_total",
				Help: "Bearer display re-mints, by trigger",
			}, []string{"trigger"}),
		}
	})
	return instance
}

func (m *Metrics) IncMinted(mode string, locked bool) {
	state := "active"
	if locked {
		state = "locked"
	}
	m.TokensMinted.WithLabelValues(mode, state).Inc()
}

func (m *Metrics) IncMintFailure(code string) {
	m.MintFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveMintLatency(seconds float64) {
	m.MintLatency.Observe(seconds)
}

func (m *Metrics) IncRevocation() {
	m.Revocations.Inc()
}

func (m *Metrics) IncRotation(trigger string) {
	m.Rotations.WithLabelValues(trigger).Inc()
}
