package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pitchwatch"

// Metrics holds every collector the service exports, registered on its own
// registry so tests can build as many instances as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Scans            *prometheus.CounterVec // result: ok | partial | fatal
	ScanDuration     prometheus.Histogram
	UpstreamRequests *prometheus.CounterVec // endpoint, outcome
	FixturesScanned  *prometheus.CounterVec // outcome
	AlertsRaised     *prometheus.CounterVec // rule, severity
	FixturesTracked  prometheus.Gauge
	SchedulerState   *prometheus.GaugeVec // state
	CooldownActive   prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Completed scans by result.",
		}, []string{"result"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a full scan.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Provider requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		FixturesScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fixtures_scanned_total",
			Help:      "Per-fixture scan attempts by outcome.",
		}, []string{"outcome"}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by rule and severity.",
		}, []string{"rule", "severity"}),
		FixturesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fixtures_tracked",
			Help:      "Fixtures currently held in the state store.",
		}),
		SchedulerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_state",
			Help:      "1 for the scheduler's current state, 0 otherwise.",
		}, []string{"state"}),
		CooldownActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_cooldown_active",
			Help:      "1 while upstream calls are suspended after a 429.",
		}),
	}
	m.Registry.MustRegister(
		m.Scans, m.ScanDuration, m.UpstreamRequests, m.FixturesScanned,
		m.AlertsRaised, m.FixturesTracked, m.SchedulerState, m.CooldownActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveUpstream matches the upstream client's request hook.
func (m *Metrics) ObserveUpstream(endpoint, outcome string) {
	m.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
}

// SetSchedulerState marks state as current and clears the others.
func (m *Metrics) SetSchedulerState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.SchedulerState.WithLabelValues(s).Set(v)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
