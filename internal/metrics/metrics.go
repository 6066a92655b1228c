// Package metrics exposes booth activity as Prometheus collectors.
package metrics

import (
	"time"

	"pibooth/pkg/plugin"
	"pibooth/pkg/state"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors implements fsm.Observer and plugin.Observer.
type Collectors struct {
	dispatches   *prometheus.CounterVec
	failures     *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	tickDuration prometheus.Histogram
	current      *prometheus.GaugeVec
	ticks        prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pibooth_hook_dispatches_total",
				Help: "Hook dispatches, labelled by hook",
			},
			[]string{"hook"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pibooth_plugin_failures_total",
				Help: "Plugin hook failures, labelled by plugin and hook",
			},
			[]string{"plugin", "hook"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pibooth_state_transitions_total",
				Help: "State transitions, labelled by source and target",
			},
			[]string{"from", "to"},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pibooth_tick_duration_seconds",
				Help:    "Duration of state machine ticks",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		current: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pibooth_current_state",
				Help: "1 for the active state, 0 for the others",
			},
			[]string{"state"},
		),
		ticks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pibooth_ticks_total",
				Help: "State machine ticks",
			},
		),
	}

	for _, col := range []prometheus.Collector{c.dispatches, c.failures, c.transitions, c.tickDuration, c.current, c.ticks} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// HookDispatched counts a dispatch that reached at least one plugin.
func (c *Collectors) HookDispatched(hookName string, called int) {
	if called == 0 {
		return
	}
	c.dispatches.WithLabelValues(hookName).Inc()
}

// PluginFailed counts a plugin failure.
func (c *Collectors) PluginFailed(failure *plugin.PluginError) {
	c.failures.WithLabelValues(failure.Plugin, failure.Hook).Inc()
}

// Transitioned counts a transition and moves the current state gauge.
func (c *Collectors) Transitioned(from, to state.Name, _ string) {
	if from != "" {
		c.current.WithLabelValues(string(from)).Set(0)
	}
	c.current.WithLabelValues(string(to)).Set(1)
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// TickCompleted observes a tick duration.
func (c *Collectors) TickCompleted(_ state.Name, d time.Duration) {
	c.ticks.Inc()
	c.tickDuration.Observe(d.Seconds())
}
