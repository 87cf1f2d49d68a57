package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordFailover(t *testing.T) {
	before := testutil.ToFloat64(RPCFailoversTotal.WithLabelValues("devnet"))
	RecordFailover("devnet")
	assert.Equal(t, before+1, testutil.ToFloat64(RPCFailoversTotal.WithLabelValues("devnet")))
}

func TestRecordPaymentOutcomes(t *testing.T) {
	ok := PaymentsTotal.WithLabelValues("SOL", OutcomeSuccess)
	failed := PaymentsTotal.WithLabelValues("SOL", OutcomeFailure)
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	RecordPayment("SOL", true)
	RecordPayment("SOL", false)
	RecordPayment("SOL", false)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, failedBefore+2, testutil.ToFloat64(failed))
}

func TestRecordBackendRequest(t *testing.T) {
	c := BackendRequestsTotal.WithLabelValues("minter", OutcomeFailure)
	before := testutil.ToFloat64(c)
	RecordBackendRequest("minter", false)
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestRecordRetryAndSubscription(t *testing.T) {
	// Should not panic
	RecordRetry(OutcomeRetry)
	RecordSubscription("pro")
}
