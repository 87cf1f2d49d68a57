// Package signer provides a scriptable wallet.Provider for tests.
package signer

import (
	"context"
	"sync"

	solana "github.com/gagliardetto/solana-go"

	"github.com/psm-labs/solpay/wallet"
)

// Provider signs with a random key and can be told to refuse.
type Provider struct {
	mu sync.Mutex

	KindValue   wallet.Kind
	Installed   bool
	Key         solana.PrivateKey
	ConnectErr  error
	Reject      bool
	SignErr     error
	SignCalls   int
	Disconnects int
	// Gate, when set, holds every signature request until it is closed.
	Gate chan struct{}
}

// New creates an installed provider of kind with a fresh key.
func New(kind wallet.Kind) *Provider {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		panic(err)
	}
	return &Provider{KindValue: kind, Installed: true, Key: key}
}

func (p *Provider) Kind() wallet.Kind { return p.KindValue }

func (p *Provider) Available() bool { return p.Installed }

func (p *Provider) PublicKey() solana.PublicKey { return p.Key.PublicKey() }

func (p *Provider) Connect(ctx context.Context) (solana.PublicKey, error) {
	if p.ConnectErr != nil {
		return solana.PublicKey{}, p.ConnectErr
	}
	return p.Key.PublicKey(), nil
}

func (p *Provider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Disconnects++
	return nil
}

func (p *Provider) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	p.mu.Lock()
	p.SignCalls++
	gate := p.Gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if p.Reject {
		return wallet.ErrRejected
	}
	if p.SignErr != nil {
		return p.SignErr
	}
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(p.Key.PublicKey()) {
			return &p.Key
		}
		return nil
	})
	return err
}

// Calls returns the number of sign requests seen.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.SignCalls
}

var _ wallet.Provider = (*Provider)(nil)
