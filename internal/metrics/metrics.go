// Package metrics exposes Prometheus collectors for the render pipeline,
// the memory store and provider calls. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agent_context"

// Metrics groups the collectors. Build one with New.
type Metrics struct {
	renders       *prometheus.CounterVec
	renderTokens  *prometheus.HistogramVec
	evictions     *prometheus.CounterVec
	overBudget    prometheus.Counter
	memoryOps     *prometheus.CounterVec
	dedups        *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "renders_total",
				Help:      "Total number of context renders",
			},
			[]string{"format", "phase"},
		),
		renderTokens: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_tokens",
				Help:      "Token count of rendered context after budget enforcement",
				Buckets:   prometheus.ExponentialBuckets(64, 2, 12),
			},
			[]string{"format"},
		),
		evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_evictions_total",
				Help:      "Section entries evicted by the budget manager",
			},
			[]string{"section"},
		),
		overBudget: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "over_budget_renders_total",
				Help:      "Renders whose required content exceeded the token budget",
			},
		),
		memoryOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "memory_operations_total",
				Help:      "Memory store operations by kind and outcome",
			},
			[]string{"op", "result"},
		),
		dedups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "memory_dedup_total",
				Help:      "Writes treated as duplicates by the dedup cache",
			},
			[]string{"policy"},
		),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Provider calls by kind and outcome",
			},
			[]string{"kind", "result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.renders, m.renderTokens, m.evictions, m.overBudget,
			m.memoryOps, m.dedups, m.providerCalls)
	}
	return m
}

// ObserveRender records one completed render.
func (m *Metrics) ObserveRender(format, phase string, tokens int, overBudget bool) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(format, phase).Inc()
	m.renderTokens.WithLabelValues(format).Observe(float64(tokens))
	if overBudget {
		m.overBudget.Inc()
	}
}

// Evicted records entries dropped from section.
func (m *Metrics) Evicted(section string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.evictions.WithLabelValues(section).Add(float64(n))
}

// MemoryOp records a memory store call. err decides the result label.
func (m *Metrics) MemoryOp(op string, err error) {
	if m == nil {
		return
	}
	m.memoryOps.WithLabelValues(op, result(err)).Inc()
}

// Dedup records a write absorbed by the dedup cache.
func (m *Metrics) Dedup(policy string) {
	if m == nil {
		return
	}
	m.dedups.WithLabelValues(policy).Inc()
}

// ProviderCall records a generate or stream call.
func (m *Metrics) ProviderCall(kind string, err error) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(kind, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
