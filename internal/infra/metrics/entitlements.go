package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		entitlementsIssued,
		entitlementNotify,
		downloadsTotal,
	)
}

var (
	entitlementsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlements_issued_total",
			Help: "License keys issued for completed purchases.",
		},
	)

	// status: sent|error|skipped
	entitlementNotify = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_notify_total",
			Help: "Entitlement notifications by delivery status.",
		},
		[]string{"status"},
	)

	// result: ok|expired|forbidden|not_found|invalid
	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downloads_total",
			Help: "Download gate decisions by result.",
		},
		[]string{"result"},
	)
)

func IncEntitlementIssued()     { entitlementsIssued.Inc() }
func IncNotify(status string)   { entitlementNotify.WithLabelValues(norm(status)).Inc() }
func IncDownload(result string) { downloadsTotal.WithLabelValues(norm(result)).Inc() }
