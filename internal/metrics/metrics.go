package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scan outcomes used as the "outcome" label.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

// Metrics groups the collectors the scanner reports to. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal       *prometheus.CounterVec
	ProviderDuration prometheus.Histogram
	InFlight         prometheus.Gauge
	PersistFailures  prometheus.Counter
	HistoryItems     prometheus.Gauge
}

// New builds the collectors on a private registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_scans_total",
				Help: "Scan submissions by outcome",
			},
			[]string{"outcome"},
		),
		ProviderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_provider_request_duration_seconds",
				Help:    "Duration of analysis provider calls",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
			},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_scan_in_flight",
				Help: "1 while a scan is being analyzed",
			},
		),
		PersistFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_history_persist_failures_total",
				Help: "Failed writes of the history or stats slot",
			},
		),
		HistoryItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_history_items",
				Help: "Items currently held in scan history",
			},
		),
	}
	reg.MustRegister(
		m.ScansTotal,
		m.ProviderDuration,
		m.InFlight,
		m.PersistFailures,
		m.HistoryItems,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ScanOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveProvider(d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderDuration.Observe(d.Seconds())
}

func (m *Metrics) SetInFlight(on bool) {
	if m == nil {
		return
	}
	if on {
		m.InFlight.Set(1)
		return
	}
	m.InFlight.Set(0)
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) SetHistoryItems(n int) {
	if m == nil {
		return
	}
	m.HistoryItems.Set(float64(n))
}
