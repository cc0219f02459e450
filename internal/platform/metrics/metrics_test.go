package metrics

import (
	"database/sql"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDBStats(t *testing.T) {
	RecordDBStats(sql.DBStats{OpenConnections: 4, InUse: 3, WaitCount: 7, WaitDuration: 2 * time.Second})

	assert.Equal(t, 4.0, testutil.ToFloat64(dbOpenConns))
	assert.Equal(t, 3.0, testutil.ToFloat64(dbInUse))
	assert.Equal(t, 7.0, testutil.ToFloat64(dbWaitCount))
	assert.Equal(t, 2.0, testutil.ToFloat64(dbWaitSeconds))
}

func TestRecordBuildInfo(t *testing.T) {
	RecordBuildInfo("v1", "test")
	assert.Equal(t, 1.0, testutil.ToFloat64(buildInfo.WithLabelValues("v1", "test")))
}
