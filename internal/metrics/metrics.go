package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by the engine components.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	Renders           *prometheus.CounterVec
	RenderDuration    *prometheus.HistogramVec
	DisplayWait       prometheus.Histogram
	DisplayInUse      prometheus.Gauge
	Models            prometheus.Gauge
}

// New creates the collectors and registers them on reg.
// Use a private registry in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadloop_executions_total",
				Help: "Modeling code executions by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cadloop_execution_duration_seconds",
				Help:    "Duration of sandboxed modeling code executions",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"op"},
		),
		Renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadloop_renders_total",
				Help: "Render requests by view kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		RenderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cadloop_render_duration_seconds",
				Help:    "Duration of render requests",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"kind"},
		),
		DisplayWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cadloop_display_wait_seconds",
				Help:    "Time spent waiting for the shared offscreen display",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		),
		DisplayInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cadloop_display_in_use",
				Help: "1 while a rasterization holds the shared display",
			},
		),
		Models: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cadloop_models",
				Help: "Number of models in the session store",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.Executions, m.ExecutionDuration,
			m.Renders, m.RenderDuration,
			m.DisplayWait, m.DisplayInUse,
			m.Models,
		)
	}
	return m
}

// Outcome maps an error kind to a label value; "" means ok.
func Outcome(kind string) string {
	if kind == "" {
		return "ok"
	}
	return kind
}

// ObserveExecution records one sandbox run.
func (m *Metrics) ObserveExecution(op, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(op, Outcome(kind)).Inc()
	m.ExecutionDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveRender records one render request.
func (m *Metrics) ObserveRender(kind, errKind string, d time.Duration) {
	if m == nil {
		return
	}
	m.Renders.WithLabelValues(kind, Outcome(errKind)).Inc()
	m.RenderDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveDisplayWait records time spent acquiring the display.
func (m *Metrics) ObserveDisplayWait(d time.Duration) {
	if m == nil {
		return
	}
	m.DisplayWait.Observe(d.Seconds())
}

// SetDisplayInUse flips the in-use gauge.
func (m *Metrics) SetDisplayInUse(inUse bool) {
	if m == nil {
		return
	}
	if inUse {
		m.DisplayInUse.Set(1)
		return
	}
	m.DisplayInUse.Set(0)
}

// SetModels records the store size.
func (m *Metrics) SetModels(n int) {
	if m == nil {
		return
	}
	m.Models.Set(float64(n))
}
