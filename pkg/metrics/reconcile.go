package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics tracks the outcome of reconciliation passes. The pass
// summary (attempted/succeeded/failed) is the only externally visible result
// of the reconciler, so it is exported per order and per pass.
type ReconcileMetrics struct {
	passDuration prometheus.Histogram
	orders       *prometheus.CounterVec
	passes       prometheus.Counter
}

// NewReconcileMetrics registers the reconciliation metrics on the provided registerer.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	passDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_pass_duration_seconds",
		Help:    "Duration of full reconciliation passes in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_orders_total",
		Help: "Orders processed by reconciliation passes, by outcome.",
	}, []string{"outcome"})
	passes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_passes_total",
		Help: "Completed reconciliation passes.",
	})
	reg.MustRegister(passDuration, orders, passes)
	return &ReconcileMetrics{
		passDuration: passDuration,
		orders:       orders,
		passes:       passes,
	}
}

// ObservePass records a completed pass with its duration and per-order outcomes.
func (m *ReconcileMetrics) ObservePass(duration time.Duration, succeeded, failed int) {
	if m == nil || m.passDuration == nil {
		return
	}
	m.passDuration.Observe(duration.Seconds())
	m.orders.WithLabelValues("succeeded").Add(float64(succeeded))
	m.orders.WithLabelValues("failed").Add(float64(failed))
	m.passes.Inc()
}
