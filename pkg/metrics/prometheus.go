package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signals       *prometheus.CounterVec
	subscriptions *prometheus.CounterVec
	pipsConsumed  prometheus.Counter
	assignments   *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signals: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "savanna_signal_operations_total",
				Help: "Signal ledger operations by kind",
			},
			[]string{"op"},
		),
		subscriptions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "savanna_subscription_transitions_total",
				Help: "Subscription state transitions",
			},
			[]string{"transition"},
		),
		pipsConsumed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "savanna_pips_consumed_total",
				Help: "Pips consumed across per-pip subscriptions",
			},
		),
		assignments: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "savanna_group_assignments_total",
				Help: "Delivery group assignment attempts by result",
			},
			[]string{"result"},
		),
		deliveries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "savanna_deliveries_total",
				Help: "Per-recipient notification outcomes",
			},
			[]string{"channel", "result"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "savanna_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "savanna_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordSignal(op string) {
	r.signals.WithLabelValues(op).Inc()
}

func (r *Recorder) RecordSubscription(transition string) {
	r.subscriptions.WithLabelValues(transition).Inc()
}

func (r *Recorder) RecordPipsConsumed(n int64) {
	r.pipsConsumed.Add(float64(n))
}

func (r *Recorder) RecordGroupAssignment(result string) {
	r.assignments.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordDelivery(channel, result string) {
	r.deliveries.WithLabelValues(channel, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything. Used where no registry is wanted, e.g. tests.
type Nop struct{}

func (Nop) RecordSignal(string) {}
func (Nop) RecordSubscription(string) {}
func (Nop) RecordPipsConsumed(int64) {}
func (Nop) RecordGroupAssignment(string) {}
func (Nop) RecordDelivery(string, string) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}
