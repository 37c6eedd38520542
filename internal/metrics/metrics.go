package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ResetIssuanceTotal counts issuance requests. outcome is accepted or error;
	// unknown identifiers and throttled requests count as accepted.
	ResetIssuanceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reset_issuance_total",
			Help: "Total number of password reset issuance requests.",
		},
		[]string{"channel", "outcome"},
	)

	// ResetRedemptionTotal counts redemption attempts. outcome is one of
	// success, invalid, weak_password, error.
	ResetRedemptionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reset_redemption_total",
			Help: "Total number of password reset redemption attempts.",
		},
		[]string{"channel", "outcome"},
	)

	// ResetDeliveryTotal only moves for existing accounts, so the registry must
	// only be served on the internal metrics listener.
	ResetDeliveryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reset_delivery_total",
			Help: "Total number of reset secret deliveries.",
		},
		[]string{"channel", "result"},
	)
)

// MustRegister registers every collector with the default registry.
// Call it once from main.
func MustRegister() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		ResetIssuanceTotal,
		ResetRedemptionTotal,
		ResetDeliveryTotal,
	)
}
