package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"sentraguard/internal/shutdown"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCycle(250 * time.Millisecond)
	m.IndicatorRaised("authentication_attack", "emergency")
	m.AlertStored()
	m.AlertStored()
	m.PersistenceFailed("alert")
	m.DetectorFailed("network-watchdog")
	m.AutoResponse("shutdown")
	m.ShutdownState(shutdown.StatePartialShutdown)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanCycles))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AlertsStored))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Indicators.WithLabelValues("authentication_attack", "emergency")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistenceFailures.WithLabelValues("alert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetectorFailures.WithLabelValues("network-watchdog")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ShutdownStates.WithLabelValues("partial_shutdown")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ShutdownStates.WithLabelValues("operational")))

	m.ShutdownState(shutdown.StateOperational)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ShutdownStates.WithLabelValues("partial_shutdown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ShutdownStates.WithLabelValues("operational")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCycle(time.Second)
		m.AlertStored()
		m.PersistenceFailed("alert")
		m.ShutdownState(shutdown.StateOperational)
	})
}
