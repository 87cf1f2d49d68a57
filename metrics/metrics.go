// Package metrics holds the Prometheus collectors for the payment pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeRetry   = "retry"
	OutcomeSkipped = "skipped"
)

var (
	// Connection metrics
	RPCFailoversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solpay_rpc_failovers_total",
			Help: "Total number of times the active RPC endpoint changed after a failure",
		},
		[]string{"network"},
	)

	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solpay_retry_attempts_total",
			Help: "Total number of retried operation attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Payment metrics
	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solpay_payments_total",
			Help: "Total number of payment attempts by currency and outcome",
		},
		[]string{"currency", "outcome"},
	)

	SubscriptionsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solpay_subscriptions_recorded_total",
			Help: "Total number of subscriptions persisted by tier",
		},
		[]string{"tier"},
	)

	// Remote collaborators (payment backend, minter)
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solpay_backend_requests_total",
			Help: "Total number of requests to remote backends by outcome",
		},
		[]string{"backend", "outcome"},
	)
)

// RecordFailover records a switch away from a failing endpoint
func RecordFailover(network string) {
	RPCFailoversTotal.WithLabelValues(network).Inc()
}

// RecordRetry records one attempt made by the retrier
func RecordRetry(outcome string) {
	RetryAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordPayment records the final outcome of a payment
func RecordPayment(currency string, success bool) {
	PaymentsTotal.WithLabelValues(currency, outcome(success)).Inc()
}

// RecordSubscription records a persisted entitlement
func RecordSubscription(tier string) {
	SubscriptionsRecordedTotal.WithLabelValues(tier).Inc()
}

// RecordBackendRequest records a call to a remote backend
func RecordBackendRequest(backend string, success bool) {
	BackendRequestsTotal.WithLabelValues(backend, outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
