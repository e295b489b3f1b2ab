// Package telemetry exposes prometheus instrumentation for orchestration
// runs and their model/tool activity.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	runs         *prometheus.CounterVec
	runSeconds   *prometheus.HistogramVec
	modelCalls   *prometheus.CounterVec
	modelSeconds prometheus.Histogram
	toolCalls    *prometheus.CounterVec
	toolSeconds  *prometheus.HistogramVec
}

// New registers the metric set on reg. Pass prometheus.DefaultRegisterer in
// the composition root; tests use a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parsec_runs_total",
			Help: "Completed orchestration runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		runSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parsec_run_duration_seconds",
			Help:    "Wall time of orchestration runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		modelCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parsec_model_calls_total",
			Help: "Model completion calls by outcome.",
		}, []string{"outcome"}),
		modelSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "parsec_model_call_duration_seconds",
			Help:    "Latency of model completion calls.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parsec_tool_dispatches_total",
			Help: "Tool dispatches by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parsec_tool_dispatch_duration_seconds",
			Help:    "Latency of tool dispatches.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"tool"}),
	}
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

func (m *Metrics) ObserveRun(mode string, ok bool, d time.Duration) {
	m.runs.WithLabelValues(mode, outcome(ok)).Inc()
	m.runSeconds.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) ObserveModelCall(ok bool, d time.Duration) {
	m.modelCalls.WithLabelValues(outcome(ok)).Inc()
	m.modelSeconds.Observe(d.Seconds())
}

func (m *Metrics) ObserveToolDispatch(tool string, ok bool, d time.Duration) {
	m.toolCalls.WithLabelValues(tool, outcome(ok)).Inc()
	m.toolSeconds.WithLabelValues(tool).Observe(d.Seconds())
}
