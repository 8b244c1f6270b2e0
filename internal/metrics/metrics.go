package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sentraguard/internal/shutdown"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	ScanCycles          prometheus.Counter
	CycleDuration       prometheus.Histogram
	Indicators          *prometheus.CounterVec
	AlertsStored        prometheus.Counter
	PersistenceFailures *prometheus.CounterVec
	DetectorFailures    *prometheus.CounterVec
	AutoResponses       *prometheus.CounterVec
	ShutdownStates      *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScanCycles: f.NewCounter(prometheus.CounterOpts{
			Name: "sentraguard_scan_cycles_total",
			Help: "Total number of completed scan cycles",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentraguard_scan_cycle_duration_seconds",
			Help:    "Wall time of a scan cycle",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Indicators: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentraguard_indicators_total",
			Help: "Threat indicators raised by detectors",
		}, []string{"type", "severity"}),
		AlertsStored: f.NewCounter(prometheus.CounterOpts{
			Name: "sentraguard_alerts_stored_total",
			Help: "Alerts persisted by the threat processor",
		}),
		PersistenceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentraguard_persistence_failures_total",
			Help: "Failed writes of alerts, notifications and emergency events",
		}, []string{"operation"}),
		DetectorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentraguard_detector_failures_total",
			Help: "Detector runs that failed or timed out",
		}, []string{"detector"}),
		AutoResponses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentraguard_auto_responses_total",
			Help: "Automatic responses by outcome",
		}, []string{"outcome"}),
		ShutdownStates: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentraguard_shutdown_state",
			Help: "1 for the current operating state",
		}, []string{"state"}),
	}
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.ScanCycles.Inc()
	m.CycleDuration.Observe(d.Seconds())
}

func (m *Metrics) IndicatorRaised(threat, severity string) {
	if m == nil {
		return
	}
	m.Indicators.WithLabelValues(threat, severity).Inc()
}

func (m *Metrics) AlertStored() {
	if m == nil {
		return
	}
	m.AlertsStored.Inc()
}

func (m *Metrics) PersistenceFailed(operation string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) DetectorFailed(detector string) {
	if m == nil {
		return
	}
	m.DetectorFailures.WithLabelValues(detector).Inc()
}

func (m *Metrics) AutoResponse(outcome string) {
	if m == nil {
		return
	}
	m.AutoResponses.WithLabelValues(outcome).Inc()
}

// ShutdownState implements shutdown.Observer.
func (m *Metrics) ShutdownState(state shutdown.State) {
	if m == nil {
		return
	}
	for _, s := range []shutdown.State{shutdown.StateOperational, shutdown.StatePartialShutdown, shutdown.StateCompleteShutdown} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ShutdownStates.WithLabelValues(string(s)).Set(v)
	}
}
