package connection_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psm-labs/solpay"
	"github.com/psm-labs/solpay/connection"
	"github.com/psm-labs/solpay/network"
	"github.com/psm-labs/solpay/test/mocks/chain"
)

func testEnv(name string, endpoints ...string) network.Environment {
	return network.Environment{Name: name, Endpoints: endpoints}
}

func TestConnectSkipsFailingEndpoints(t *testing.T) {
	cluster := chain.NewCluster("https://c")
	cluster.Dial("https://a")
	cluster.Dial("https://b")

	m := connection.NewManager(testEnv(network.Devnet, "https://a", "https://b", "https://c"),
		connection.WithDialer(cluster.Dial))

	ledger, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://c", ledger.Endpoint())
	assert.Equal(t, 2, m.Index())
	assert.Equal(t, "https://c", m.Endpoint())
	assert.Same(t, ledger, m.Current())
}

func TestConnectAllEndpointsDown(t *testing.T) {
	cluster := chain.NewCluster()
	m := connection.NewManager(testEnv(network.Devnet, "https://a", "https://b", "https://c"),
		connection.WithDialer(cluster.Dial))

	ledger, err := m.Connect(context.Background())
	require.Error(t, err)
	assert.Nil(t, ledger)
	assert.True(t, errors.Is(err, solpay.ErrAllEndpointsUnavailable))
	assert.Equal(t, []string{"https://a", "https://b", "https://c"}, cluster.Dials())
	assert.Nil(t, m.Current())

	var cerr *connection.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, connection.KindNetwork, cerr.Kind)
}

func TestConnectWrapsFromCurrentIndex(t *testing.T) {
	cluster := chain.NewCluster("https://a", "https://b", "https://c")
	m := connection.NewManager(testEnv(network.Devnet, "https://a", "https://b", "https://c"),
		connection.WithDialer(cluster.Dial))

	_, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, m.Index())

	cluster.Ledger("https://b").Down = true
	cluster.Ledger("https://c").Down = true

	ledger, err := m.Rotate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://a", ledger.Endpoint())
	assert.Equal(t, 0, m.Index())
	assert.Equal(t, []string{"https://a", "https://b", "https://c", "https://a"}, cluster.Dials())
}

func TestConnectNoEndpoints(t *testing.T) {
	m := connection.NewManager(testEnv(network.Testnet))
	_, err := m.Connect(context.Background())
	assert.True(t, errors.Is(err, solpay.ErrAllEndpointsUnavailable))
	assert.Empty(t, m.Endpoint())
}

func TestSwitchResetsIndex(t *testing.T) {
	cluster := chain.NewCluster("https://b", "https://x")
	m := connection.NewManager(testEnv(network.Devnet, "https://a", "https://b"),
		connection.WithDialer(cluster.Dial))

	_, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.Index())

	ledger, err := m.Switch(context.Background(), testEnv(network.MainnetBeta, "https://x", "https://y"))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Index())
	assert.Equal(t, "https://x", ledger.Endpoint())
	assert.Equal(t, network.MainnetBeta, m.Environment().Name)
}

func TestEnsureReusesCurrent(t *testing.T) {
	cluster := chain.NewCluster("https://a")
	m := connection.NewManager(testEnv(network.Devnet, "https://a"),
		connection.WithDialer(cluster.Dial), connection.WithProbeTimeout(time.Second))

	first, err := m.Ensure(context.Background())
	require.NoError(t, err)
	second, err := m.Ensure(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, cluster.Ledger("https://a").Calls("Probe"))
}
