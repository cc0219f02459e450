// Package metrics exposes process-level gauges shared by the platform adapters.
package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dbOpenConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ghostpass_db_open_connections",
		Help: "Open connections in the Postgres pool",
	})
	dbInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ghostpass_db_in_use_connections",
		Help: "Postgres connections currently in use",
	})
	dbWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ghostpass_db_wait_count",
		Help: "Cumulative number of connections waited for",
	})
	dbWaitSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ghostpass_db_wait_seconds",
		Help: "Cumulative time spent waiting for a connection",
	})
	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ghostpass_build_info",
		Help: "Build metadata, always 1",
	}, []string{"version", "environment"})
)

// RecordBuildInfo publishes the running version.
func RecordBuildInfo(version, environment string) {
	buildInfo.WithLabelValues(version, environment).Set(1)
}

// RecordDBStats copies pool statistics into the gauges.
func RecordDBStats(stats sql.DBStats) {
	dbOpenConns.Set(float64(stats.OpenConnections))
	dbInUse.Set(float64(stats.InUse))
	dbWaitCount.Set(float64(stats.WaitCount))
	dbWaitSeconds.Set(stats.WaitDuration.Seconds())
}

// RunDBStats records stats from source every interval until ctx is done.
func RunDBStats(ctx context.Context, interval time.Duration, source func() sql.DBStats) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RecordDBStats(source())
		}
	}
}
