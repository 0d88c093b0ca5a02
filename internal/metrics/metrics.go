// Package metrics exports controller activity to Prometheus. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dns_failover"

type Metrics struct {
	Registry *prometheus.Registry

	probes       *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	writes       *prometheus.CounterVec
	activeSide   *prometheus.GaugeVec
	failures     *prometheus.GaugeVec
	recoveries   *prometheus.GaugeVec
	tickDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		probes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Health probes by group, mode and result.",
		}, []string{"group", "mode", "result"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "State machine transitions by group and destination side.",
		}, []string{"group", "to"}),
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_writes_total",
			Help:      "DNS record writes by group, action and result.",
		}, []string{"group", "action", "result"}),
		activeSide: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_active",
			Help:      "1 while the group's backup target is live.",
		}, []string{"group"}),
		failures: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Consecutive all-unhealthy ticks while primary is active.",
		}, []string{"group"}),
		recoveries: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_recoveries",
			Help:      "Consecutive healthy primary ticks while backup is active.",
		}, []string{"group"}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time to evaluate every group once.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

func result(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

func (m *Metrics) ObserveProbe(group, mode string, healthy bool) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(group, mode, result(healthy)).Inc()
}

func (m *Metrics) ObserveTransition(group, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(group, to).Inc()
}

func (m *Metrics) ObserveWrite(group, action string, err error) {
	if m == nil {
		return
	}
	res := "ok"
	if err != nil {
		res = "error"
	}
	m.writes.WithLabelValues(group, action, res).Inc()
}

// SetState publishes the group's state machine position.
func (m *Metrics) SetState(group string, backupActive bool, failures, recoveries int) {
	if m == nil {
		return
	}
	v := 0.0
	if backupActive {
		v = 1
	}
	m.activeSide.WithLabelValues(group).Set(v)
	m.failures.WithLabelValues(group).Set(float64(failures))
	m.recoveries.WithLabelValues(group).Set(float64(recoveries))
}

func (m *Metrics) ObserveTick(seconds float64) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(seconds)
}
