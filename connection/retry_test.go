package connection_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psm-labs/solpay/connection"
	"github.com/psm-labs/solpay/network"
	"github.com/psm-labs/solpay/test/mocks/chain"
)

func newRetrier(t *testing.T, cluster *chain.Cluster, endpoints ...string) *connection.Retrier {
	t.Helper()
	m := connection.NewManager(testEnv(network.Devnet, endpoints...), connection.WithDialer(cluster.Dial))
	return connection.NewRetrier(m, connection.WithBaseDelay(time.Millisecond))
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	cluster := chain.NewCluster("https://a")
	r := newRetrier(t, cluster, "https://a")

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context, ledger connection.Ledger) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryReturnsLastFailureUnchanged(t *testing.T) {
	cluster := chain.NewCluster("https://a")
	r := newRetrier(t, cluster, "https://a")

	calls := 0
	var last error
	err := r.Do(context.Background(), func(ctx context.Context, ledger connection.Ledger) error {
		calls++
		last = fmt.Errorf("rpc said no (%d)", calls)
		return last
	})
	assert.Equal(t, connection.DefaultMaxAttempts, calls)
	assert.Same(t, last, err)
}

func TestRetryRotatesOnNetworkFailure(t *testing.T) {
	cluster := chain.NewCluster("https://a", "https://b")
	r := newRetrier(t, cluster, "https://a", "https://b")

	var seen []string
	err := r.Do(context.Background(), func(ctx context.Context, ledger connection.Ledger) error {
		seen = append(seen, ledger.Endpoint())
		if ledger.Endpoint() == "https://a" {
			return &connection.Error{Kind: connection.KindNetwork, Op: "getBalance", Endpoint: "https://a", Err: chain.ErrDown}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a", "https://b"}, seen)
	assert.Equal(t, 1, r.Manager().Index())
}

func TestRetryDoesNotRotateOnRPCFailure(t *testing.T) {
	cluster := chain.NewCluster("https://a", "https://b")
	r := newRetrier(t, cluster, "https://a", "https://b")

	var seen []string
	_ = r.Do(context.Background(), func(ctx context.Context, ledger connection.Ledger) error {
		seen = append(seen, ledger.Endpoint())
		return &connection.Error{Kind: connection.KindRPC, Op: "sendTransaction", Endpoint: ledger.Endpoint(), Err: errors.New("blockhash not found")}
	})
	assert.Equal(t, []string{"https://a", "https://a", "https://a"}, seen)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	cluster := chain.NewCluster("https://a")
	r := newRetrier(t, cluster, "https://a")

	cause := errors.New("rejected")
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context, ledger connection.Ledger) error {
		calls++
		return connection.Permanent(cause)
	})
	assert.Equal(t, 1, calls)
	assert.Same(t, cause, err)
}

func TestRetryHonoursMaxAttempts(t *testing.T) {
	cluster := chain.NewCluster("https://a")
	m := connection.NewManager(testEnv(network.Devnet, "https://a"), connection.WithDialer(cluster.Dial))
	r := connection.NewRetrier(m, connection.WithMaxAttempts(5), connection.WithBaseDelay(0))

	calls := 0
	_ = r.Do(context.Background(), func(ctx context.Context, ledger connection.Ledger) error {
		calls++
		return errors.New("nope")
	})
	assert.Equal(t, 5, calls)
}

func TestRetryGenericValue(t *testing.T) {
	cluster := chain.NewCluster("https://a")
	r := newRetrier(t, cluster, "https://a")

	attempts := 0
	v, err := connection.Retry(context.Background(), r, func(ctx context.Context, ledger connection.Ledger) (uint64, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
}

func TestRetryAllEndpointsDown(t *testing.T) {
	cluster := chain.NewCluster()
	r := newRetrier(t, cluster, "https://a", "https://b")

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context, ledger connection.Ledger) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Zero(t, calls)
}
