package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ReconcileRequests,
		ReconcileDuration,
	)
}

var (
	// Count of reconcile attempts grouped by channel and bounded result.
	// channel: webhook|redirect|poll
	// result: completed|failed|pending|noop|not_found|gateway_error|local_error
	ReconcileRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconcile_requests_total",
			Help: "Count of reconcile attempts by channel and result.",
		},
		[]string{"channel", "result"},
	)

	// Latency of the full reconcile path (including the gateway status query).
	ReconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_reconcile_duration_seconds",
			Help:    "Duration of payment reconciliation in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"channel"},
	)
)

func IncReconcile(channel, result string) {
	ReconcileRequests.WithLabelValues(norm(channel), norm(result)).Inc()
}
