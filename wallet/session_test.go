package wallet_test

import (
	"context"
	"errors"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psm-labs/solpay"
	"github.com/psm-labs/solpay/test/mocks/signer"
	"github.com/psm-labs/solpay/wallet"
)

func transferTx(t *testing.T, payer solana.PublicKey) *solana.Transaction {
	t.Helper()
	to := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000, payer, to).Build()},
		solana.Hash{7},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	return tx
}

func TestConnectNoProviders(t *testing.T) {
	s := wallet.NewSession()
	_, err := s.Connect(context.Background(), "")
	assert.True(t, errors.Is(err, solpay.ErrNoWalletFound))
	assert.False(t, s.Connected())
}

func TestConnectPrefersPhantom(t *testing.T) {
	backpack := signer.New(wallet.KindBackpack)
	phantom := signer.New(wallet.KindPhantom)
	s := wallet.NewSession(backpack, phantom)

	identity, err := s.Connect(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, phantom.PublicKey(), identity)
	assert.Equal(t, wallet.KindPhantom, s.Kind())

	infos := s.Available()
	require.Len(t, infos, 2)
	assert.Equal(t, "Phantom", infos[0].Name)
	assert.Equal(t, "Backpack", infos[1].Name)
}

func TestConnectByName(t *testing.T) {
	phantom := signer.New(wallet.KindPhantom)
	solflare := signer.New(wallet.KindSolflare)
	s := wallet.NewSession(phantom, solflare)

	identity, err := s.Connect(context.Background(), "Solflare")
	require.NoError(t, err)
	assert.Equal(t, solflare.PublicKey(), identity)

	_, err = s.Connect(context.Background(), "backpack")
	assert.True(t, errors.Is(err, solpay.ErrNoWalletFound))
}

func TestConnectSkipsUninstalled(t *testing.T) {
	phantom := signer.New(wallet.KindPhantom)
	phantom.Installed = false
	solflare := signer.New(wallet.KindSolflare)
	s := wallet.NewSession(phantom, solflare)

	_, err := s.Connect(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, wallet.KindSolflare, s.Kind())
}

func TestFailedConnectLeavesSessionEmpty(t *testing.T) {
	p := signer.New(wallet.KindPhantom)
	s := wallet.NewSession(p)
	_, err := s.Connect(context.Background(), "")
	require.NoError(t, err)

	p.ConnectErr = wallet.ErrRejected
	_, err = s.Connect(context.Background(), "")
	assert.True(t, errors.Is(err, solpay.ErrUserRejected))
	assert.False(t, s.Connected())

	_, err = s.Identity()
	assert.True(t, errors.Is(err, solpay.ErrNoWalletConnected))
}

func TestDisconnect(t *testing.T) {
	p := signer.New(wallet.KindPhantom)
	s := wallet.NewSession(p)
	_, err := s.Connect(context.Background(), "")
	require.NoError(t, err)

	s.Disconnect(context.Background())
	assert.False(t, s.Connected())
	assert.Equal(t, 1, p.Disconnects)

	// no-op when already disconnected
	s.Disconnect(context.Background())
	assert.Equal(t, 1, p.Disconnects)
}

func TestSign(t *testing.T) {
	p := signer.New(wallet.KindPhantom)
	s := wallet.NewSession(p)

	tx := transferTx(t, p.PublicKey())
	err := s.Sign(context.Background(), tx)
	assert.True(t, errors.Is(err, solpay.ErrNoWalletConnected))

	_, err = s.Connect(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, s.Sign(context.Background(), tx))
	require.Len(t, tx.Signatures, 1)
	assert.NoError(t, tx.VerifySignatures())
}

func TestSignRejected(t *testing.T) {
	p := signer.New(wallet.KindPhantom)
	p.Reject = true
	s := wallet.NewSession(p)
	_, err := s.Connect(context.Background(), "")
	require.NoError(t, err)

	err = s.Sign(context.Background(), transferTx(t, p.PublicKey()))
	assert.True(t, errors.Is(err, solpay.ErrUserRejected))
	assert.True(t, wallet.IsUserRejected(err))
}

func TestParseKind(t *testing.T) {
	k, err := wallet.ParseKind(" Backpack ")
	require.NoError(t, err)
	assert.Equal(t, wallet.KindBackpack, k)

	_, err = wallet.ParseKind("metamask")
	assert.Error(t, err)
}
