// Package telemetry exports lifecycle activity as Prometheus metrics.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vk/conflux/internal/binding"
	"github.com/vk/conflux/internal/lifecycle"
	"github.com/vk/conflux/internal/service"
)

const namespace = "conflux"

// GathererCapability is the capability under which the application binds its
// prometheus.Gatherer for services that expose metrics.
const GathererCapability service.Capability = "metrics.gatherer"

// Metrics is a lifecycle listener recording every unit transition. Each
// instance owns its collectors; register them with Register before use.
type Metrics struct {
	transitions  *prometheus.CounterVec
	failures     *prometheus.CounterVec
	hookDuration *prometheus.HistogramVec
	phases       *prometheus.CounterVec
	capabilities prometheus.Gauge
}

var (
	_ lifecycle.Listener           = (*Metrics)(nil)
	_ lifecycle.TransitionListener = (*Metrics)(nil)
)

// New creates the collectors.
func New() *Metrics {
	return &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "unit",
			Name:      "transitions_total",
			Help:      "Unit state transitions by service kind and target state.",
		}, []string{"kind", "state"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "unit",
			Name:      "hook_failures_total",
			Help:      "Failed lifecycle hooks by service kind and hook.",
		}, []string{"kind", "hook"}),
		hookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "unit",
			Name:      "hook_duration_seconds",
			Help:      "Duration of lifecycle hooks by service kind and hook.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"kind", "hook"}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "phases_total",
			Help:      "Application lifecycle phases reached.",
		}, []string{"phase"}),
		capabilities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "published_capabilities",
			Help:      "Capabilities published during the last configure phase.",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.transitions, m.failures, m.hookDuration, m.phases, m.capabilities}
}

func (m *Metrics) Configured(_ context.Context, reg *binding.Registry) {
	m.phases.WithLabelValues("configured").Inc()
	m.capabilities.Set(float64(len(reg.Entries())))
}

func (m *Metrics) Started(context.Context) { m.phases.WithLabelValues("started").Inc() }

func (m *Metrics) Stopping(context.Context) { m.phases.WithLabelValues("stopping").Inc() }

func (m *Metrics) Closing(context.Context) { m.phases.WithLabelValues("closing").Inc() }

// Transition records t.
func (m *Metrics) Transition(_ context.Context, t lifecycle.Transition) {
	m.transitions.WithLabelValues(t.Kind, t.To.String()).Inc()
	if t.Hook == "" {
		return
	}
	m.hookDuration.WithLabelValues(t.Kind, t.Hook).Observe(t.Duration.Seconds())
	if t.Err != nil {
		m.failures.WithLabelValues(t.Kind, t.Hook).Inc()
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
