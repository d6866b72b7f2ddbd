// Package metrics provides the Prometheus collectors of the workflow engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wfm"

// Outcome labels.
const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeSuccess  = "success"
)

// Metrics groups the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	transitionValidations *prometheus.CounterVec
	reorders              *prometheus.CounterVec
	reorderDuration       prometheus.Histogram
	lockWait              prometheus.Histogram
	repairs               *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitionValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transition_validations_total",
			Help:      "Transition legality checks by outcome.",
		}, []string{"outcome"}),
		reorders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_reorders_total",
			Help:      "Step reorder operations by outcome.",
		}, []string{"outcome"}),
		reorderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_reorder_duration_seconds",
			Help:      "Duration of the two-phase step reorder, lock wait excluded.",
			Buckets:   prometheus.DefBuckets,
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_lock_wait_seconds",
			Help:      "Time spent waiting for the per-workflow lock.",
			Buckets:   prometheus.DefBuckets,
		}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_order_repairs_total",
			Help:      "Step order reconciliations by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.transitionValidations, m.reorders, m.reorderDuration, m.lockWait, m.repairs)

	return m
}

func (m *Metrics) TransitionValidated(outcome string) {
	if m == nil {
		return
	}

	m.transitionValidations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Reordered(outcome string, took time.Duration) {
	if m == nil {
		return
	}

	m.reorders.WithLabelValues(outcome).Inc()
	m.reorderDuration.Observe(took.Seconds())
}

func (m *Metrics) LockWaited(took time.Duration) {
	if m == nil {
		return
	}

	m.lockWait.Observe(took.Seconds())
}

func (m *Metrics) Repaired(outcome string) {
	if m == nil {
		return
	}

	m.repairs.WithLabelValues(outcome).Inc()
}
