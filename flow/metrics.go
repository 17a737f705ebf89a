package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible metrics for run execution.
//
// Metrics exposed (all namespaced "flowline_"):
//
//   - inflight_runs (gauge): runs currently executing.
//   - runs_total (counter): finished runs, labeled by status
//     (completed/failed).
//   - steps_total (counter): agent executions, labeled by state and
//     status (success/error/timeout).
//   - step_latency_ms (histogram): agent execution duration in
//     milliseconds, labeled by state and status.
//   - run_duration_ms (histogram): total run duration in milliseconds,
//     labeled by status.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := flow.NewMetrics(registry)
//	exec, err := flow.NewExecutor(g, flow.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// All methods are safe for concurrent use and safe on a nil receiver, so
// the executor can call them unconditionally.
type Metrics struct {
	inflightRuns prometheus.Gauge
	runsTotal    *prometheus.CounterVec
	stepsTotal   *prometheus.CounterVec
	stepLatency  *prometheus.HistogramVec
	runDuration  *prometheus.HistogramVec
}

// NewMetrics creates and registers all run execution metrics with the
// provided registry. Pass nil to use the default global registerer; a
// private registry is recommended for isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	m := &Metrics{}

	m.inflightRuns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowline",
		Name:      "inflight_runs",
		Help:      "Number of workflow runs currently executing",
	})

	m.runsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowline",
		Name:      "runs_total",
		Help:      "Total finished workflow runs by final status",
	}, []string{"status"}) // status: completed, failed

	m.stepsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowline",
		Name:      "steps_total",
		Help:      "Total agent executions by state and outcome",
	}, []string{"state", "status"}) // status: success, error, timeout

	m.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowline",
		Name:      "step_latency_ms",
		Help:      "Agent execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
	}, []string{"state", "status"})

	m.runDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowline",
		Name:      "run_duration_ms",
		Help:      "Total run duration in milliseconds by final status",
		Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 60000, 300000},
	}, []string{"status"})

	return m
}

// RunStarted increments the inflight gauge.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.inflightRuns.Inc()
}

// RunFinished decrements the inflight gauge and records the run outcome
// and duration.
func (m *Metrics) RunFinished(status Status, duration time.Duration) {
	if m == nil {
		return
	}
	m.inflightRuns.Dec()
	m.runsTotal.WithLabelValues(status.String()).Inc()
	m.runDuration.WithLabelValues(status.String()).Observe(float64(duration.Milliseconds()))
}

// StepObserved records one agent execution with its outcome
// ("success", "error", "timeout") and latency.
func (m *Metrics) StepObserved(state, status string, latency time.Duration) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(state, status).Inc()
	m.stepLatency.WithLabelValues(state, status).Observe(float64(latency.Milliseconds()))
}
