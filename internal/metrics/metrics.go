// Package metrics exposes Prometheus counters for leases, transitions and
// notification drains. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "turnkeeper"

type Metrics struct {
	reg *prometheus.Registry

	leaseAcquired  *prometheus.CounterVec
	leaseContended *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	engineErrors   *prometheus.CounterVec
	processed      *prometheus.CounterVec
	failures       *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, plus the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		leaseAcquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "lease_acquired_total", Help: "Leases acquired, by scope.",
		}, []string{"scope"}),
		leaseContended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "lease_contended_total", Help: "Lease attempts skipped because another holder had it.",
		}, []string{"scope"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "game_transitions_total", Help: "Game lifecycle events.",
		}, []string{"event"}),
		engineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "engine_errors_total", Help: "Engine failures, by boardgame.",
		}, []string{"boardgame"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_processed_total", Help: "Notifications marked processed.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notification_failures_total", Help: "Notifications left pending after an error.",
		}, []string{"kind"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "task_duration_seconds", Help: "Duration of scheduled task runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
	}
	reg.MustRegister(
		m.leaseAcquired, m.leaseContended, m.transitions, m.engineErrors,
		m.processed, m.failures, m.taskDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) LeaseAcquired(scope string) {
	if m != nil {
		m.leaseAcquired.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) LeaseContended(scope string) {
	if m != nil {
		m.leaseContended.WithLabelValues(scope).Inc()
	}
}

// Transition counts one lifecycle event (started, moved, dropped, ended...).
func (m *Metrics) Transition(event string) {
	if m != nil {
		m.transitions.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) EngineError(boardgame string) {
	if m != nil {
		m.engineErrors.WithLabelValues(boardgame).Inc()
	}
}

func (m *Metrics) Processed(kind string, n int) {
	if m != nil && n > 0 {
		m.processed.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) Failed(kind string) {
	if m != nil {
		m.failures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveTask(task string, d time.Duration) {
	if m != nil {
		m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
	}
}
