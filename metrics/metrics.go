// Package metrics exposes Prometheus instruments for the settlement engine.
//
// A Recorder is nil-safe: services built without metrics simply skip
// recording.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "settlement"

type Recorder struct {
	OrdersCreated       prometheus.Counter
	OrderTransitions    *prometheus.CounterVec
	SchedulingConflicts prometheus.Counter
	AdjustmentsAdded    *prometheus.CounterVec
	SettlementsSaved    prometheus.Counter
	OperationErrors     *prometheus.CounterVec
	CandidateDuration   prometheus.Histogram
}

// New registers all instruments on reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration on the default registry.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		OrdersCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders created.",
		}),
		OrderTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions by target status.",
		}, []string{"status"}),
		SchedulingConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduling_conflicts_total",
			Help:      "Order writes rejected because the caregiver was already booked.",
		}),
		AdjustmentsAdded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adjustments_added_total",
			Help:      "Order adjustments by type.",
		}, []string{"type"}),
		SettlementsSaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "salary_settlements_saved_total",
			Help:      "Monthly salary settlements created or updated.",
		}),
		OperationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed operations by operation and error code.",
		}, []string{"operation", "code"}),
		CandidateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_computation_seconds",
			Help:      "Time to compute a month's settlement candidates.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (r *Recorder) OrderCreated() {
	if r != nil {
		r.OrdersCreated.Inc()
	}
}

func (r *Recorder) Transition(status string) {
	if r != nil {
		r.OrderTransitions.WithLabelValues(status).Inc()
	}
}

func (r *Recorder) Conflict() {
	if r != nil {
		r.SchedulingConflicts.Inc()
	}
}

func (r *Recorder) Adjustment(kind string) {
	if r != nil {
		r.AdjustmentsAdded.WithLabelValues(kind).Inc()
	}
}

func (r *Recorder) SettlementSaved() {
	if r != nil {
		r.SettlementsSaved.Inc()
	}
}

func (r *Recorder) Error(operation, code string) {
	if r != nil {
		r.OperationErrors.WithLabelValues(operation, code).Inc()
	}
}

// ObserveCandidates records how long a candidate computation took.
func (r *Recorder) ObserveCandidates(start time.Time) {
	if r != nil {
		r.CandidateDuration.Observe(time.Since(start).Seconds())
	}
}
