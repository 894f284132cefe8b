// Package observability provides Prometheus metrics for the bot.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the bot exports. Each instance owns its
// registry so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// Cycle metrics
	CyclesTotal   prometheus.Counter
	CycleDuration prometheus.Histogram
	PairErrors    *prometheus.CounterVec

	// Detection metrics
	Decisions    *prometheus.CounterVec
	QuoteFailure *prometheus.CounterVec

	// Execution metrics
	Trades   *prometheus.CounterVec
	Attempts *prometheus.HistogramVec

	// Control metrics
	Running prometheus.Gauge
}

// NewMetrics creates and registers all collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dexarb"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CyclesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Completed passes over all pairs",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one pass over all pairs",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PairErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "pair_errors_total",
			Help:      "Pair processing failures caught by the scheduler",
		}, []string{"pair"}),

		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "decisions_total",
			Help:      "Detector decisions by direction",
		}, []string{"direction"}),
		QuoteFailure: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "quote_failures_total",
			Help:      "Unavailable quotes by venue",
		}, []string{"venue"}),

		Trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "trades_total",
			Help:      "Executed legs by venue and terminal status",
		}, []string{"venue", "status"}),
		Attempts: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "attempts",
			Help:      "Top-level attempts used per leg",
			Buckets:   []float64{1, 2, 3, 5},
		}, []string{"venue"}),

		Running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running",
			Help:      "1 while the trading loop runs",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// QuoteFailed records an unavailable quote.
func (m *Metrics) QuoteFailed(venue string) { m.QuoteFailure.WithLabelValues(venue).Inc() }

// Decision records a detector decision.
func (m *Metrics) Decision(direction string) { m.Decisions.WithLabelValues(direction).Inc() }

// TradeResult records the terminal status of a leg.
func (m *Metrics) TradeResult(venue, status string) { m.Trades.WithLabelValues(venue, status).Inc() }

// RecordAttempts records how many attempts a leg used.
func (m *Metrics) RecordAttempts(venue string, n int) {
	m.Attempts.WithLabelValues(venue).Observe(float64(n))
}

// CycleCompleted records one pass.
func (m *Metrics) CycleCompleted(d time.Duration) {
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// PairError records a failed pair.
func (m *Metrics) PairError(pair string) { m.PairErrors.WithLabelValues(pair).Inc() }

// SetRunning sets the running gauge.
func (m *Metrics) SetRunning(running bool) {
	if running {
		m.Running.Set(1)
		return
	}
	m.Running.Set(0)
}
