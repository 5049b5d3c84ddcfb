// Package metrics exposes Prometheus instrumentation for the schedule
// generation service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private
// registry, so tests can build as many instances as they like without
// duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal       prometheus.Counter
	RunErrorsTotal  prometheus.Counter
	ShiftsGenerated prometheus.Counter
	UnfilledSlots   prometheus.Counter
	WarningsTotal   prometheus.Counter
	BudgetRatio     prometheus.Gauge
	RunDuration     prometheus.Histogram
}

// New builds a Metrics instance with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffing_schedule_runs_total",
			Help: "Number of schedule generation runs.",
		}),
		RunErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffing_schedule_run_errors_total",
			Help: "Number of schedule generation requests rejected as invalid.",
		}),
		ShiftsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffing_shifts_generated_total",
			Help: "Total shifts produced across all runs.",
		}),
		UnfilledSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffing_unfilled_slots_total",
			Help: "Total demand slots no employee could take.",
		}),
		WarningsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffing_schedule_warnings_total",
			Help: "Total warnings emitted across all runs.",
		}),
		BudgetRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "staffing_schedule_budget_ratio",
			Help: "Cost-to-budget ratio of the most recent run.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "staffing_schedule_run_duration_seconds",
			Help:    "Wall time per schedule generation run.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	registry.MustRegister(m.RunsTotal, m.RunErrorsTotal, m.ShiftsGenerated, m.UnfilledSlots, m.WarningsTotal, m.BudgetRatio, m.RunDuration)
	return m
}

// ObserveRun records one completed generation run.
func (m *Metrics) ObserveRun(started time.Time, shiftCount, unfilledCount, warningCount int, budgetRatio float64) {
	m.RunsTotal.Inc()
	m.ShiftsGenerated.Add(float64(shiftCount))
	m.UnfilledSlots.Add(float64(unfilledCount))
	m.WarningsTotal.Add(float64(warningCount))
	m.BudgetRatio.Set(budgetRatio)
	m.RunDuration.Observe(time.Since(started).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
