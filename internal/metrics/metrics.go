// Package metrics exposes the engine's Prometheus collectors on a private
// registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the engine updates. A nil *Metrics is valid
// and records nothing, so components can take it unconditionally.
type Metrics struct {
	reg *prometheus.Registry

	Ticks            *prometheus.CounterVec
	TickFailures     *prometheus.CounterVec
	SnapshotLatency  *prometheus.HistogramVec
	Evaluations      *prometheus.CounterVec
	Coefficient      *prometheus.GaugeVec
	Rejections       *prometheus.CounterVec
	CyclesPlaced     *prometheus.CounterVec
	OrdersPlaced     *prometheus.CounterVec
	OrdersFinished   *prometheus.CounterVec
	BacklogSize      *prometheus.GaugeVec
	PendingWrites    *prometheus.GaugeVec
	VenueErrors      *prometheus.CounterVec
	PollsRateLimited *prometheus.CounterVec
}

// New builds the collectors and registers them together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_ticks_total", Help: "Scheduler ticks run per cycle",
		}, []string{"cycle"}),
		TickFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_tick_failures_total", Help: "Ticks aborted by a failing step",
		}, []string{"cycle", "step"}),
		SnapshotLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arb_snapshot_latency_seconds",
			Help:    "Time to gather a full market snapshot",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"cycle"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_evaluations_total", Help: "Directions evaluated by outcome",
		}, []string{"cycle", "direction", "profitable"}),
		Coefficient: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arb_coefficient", Help: "Last top-of-book coefficient per direction",
		}, []string{"cycle", "direction"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_clamp_rejections_total", Help: "Sized cycles rejected by the clamp",
		}, []string{"cycle", "reason"}),
		CyclesPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_cycles_placed_total", Help: "Cycle groups placed by outcome",
		}, []string{"cycle", "outcome"}),
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_orders_placed_total", Help: "Legs placed by venue and result status",
		}, []string{"venue", "status"}),
		OrdersFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_orders_finished_total", Help: "Legs reaching a terminal status",
		}, []string{"venue", "status"}),
		BacklogSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arb_backlog_orders", Help: "Open legs held by the engine",
		}, []string{"cycle", "status"}),
		PendingWrites: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arb_pending_writes", Help: "Order rows waiting to be persisted",
		}, []string{"cycle"}),
		VenueErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_venue_errors_total", Help: "Venue call failures by operation",
		}, []string{"venue", "op"}),
		PollsRateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_polls_rate_limited_total", Help: "Status polls skipped by the rate limiter",
		}, []string{"venue"}),
	}
	m.reg.MustRegister(
		m.Ticks, m.TickFailures, m.SnapshotLatency, m.Evaluations, m.Coefficient,
		m.Rejections, m.CyclesPlaced, m.OrdersPlaced, m.OrdersFinished,
		m.BacklogSize, m.PendingWrites, m.VenueErrors, m.PollsRateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Tick counts one scheduler tick.
func (m *Metrics) Tick(cycle string) {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues(cycle).Inc()
}

// TickFailed counts a tick aborted at step.
func (m *Metrics) TickFailed(cycle, step string) {
	if m == nil {
		return
	}
	m.TickFailures.WithLabelValues(cycle, step).Inc()
}

// ObserveSnapshot records how long a snapshot took.
func (m *Metrics) ObserveSnapshot(cycle string, d time.Duration) {
	if m == nil {
		return
	}
	m.SnapshotLatency.WithLabelValues(cycle).Observe(d.Seconds())
}

// ObserveEvaluation records one direction's top-of-book coefficient.
func (m *Metrics) ObserveEvaluation(cycle, direction string, coefficient float64, profitable bool) {
	if m == nil {
		return
	}
	p := "false"
	if profitable {
		p = "true"
	}
	m.Evaluations.WithLabelValues(cycle, direction, p).Inc()
	m.Coefficient.WithLabelValues(cycle, direction).Set(coefficient)
}

// Rejected counts a clamp rejection.
func (m *Metrics) Rejected(cycle, reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(cycle, reason).Inc()
}

// CyclePlaced counts a placed group and its legs.
func (m *Metrics) CyclePlaced(cycle, outcome string) {
	if m == nil {
		return
	}
	m.CyclesPlaced.WithLabelValues(cycle, outcome).Inc()
}

// OrderPlaced counts one placement attempt's resulting status.
func (m *Metrics) OrderPlaced(venue, status string) {
	if m == nil {
		return
	}
	m.OrdersPlaced.WithLabelValues(venue, status).Inc()
}

// OrderFinished counts a leg reaching FILLED or CANCELED.
func (m *Metrics) OrderFinished(venue, status string) {
	if m == nil {
		return
	}
	m.OrdersFinished.WithLabelValues(venue, status).Inc()
}

// SetBacklog publishes the live and plan backlog sizes.
func (m *Metrics) SetBacklog(cycle string, live, plan, pending int) {
	if m == nil {
		return
	}
	m.BacklogSize.WithLabelValues(cycle, "NEW").Set(float64(live))
	m.BacklogSize.WithLabelValues(cycle, "PLAN").Set(float64(plan))
	m.PendingWrites.WithLabelValues(cycle).Set(float64(pending))
}

// VenueError counts a failed venue call.
func (m *Metrics) VenueError(venue, op string) {
	if m == nil {
		return
	}
	m.VenueErrors.WithLabelValues(venue, op).Inc()
}

// PollRateLimited counts a status poll skipped by the limiter.
func (m *Metrics) PollRateLimited(venue string) {
	if m == nil {
		return
	}
	m.PollsRateLimited.WithLabelValues(venue).Inc()
}
