package wallet

import (
	"context"
	"fmt"
	"os"
	"strings"

	solana "github.com/gagliardetto/solana-go"
)

// ConfirmFunc is asked before every signature. Returning false cancels the
// request with CodeUserRejected.
type ConfirmFunc func(ctx context.Context, tx *solana.Transaction) (bool, error)

// KeypairProvider signs with a local ed25519 key.
type KeypairProvider struct {
	privateKey solana.PrivateKey
	confirm    ConfirmFunc
	connected  bool
}

// NewKeypairProvider wraps privateKey. confirm may be nil.
func NewKeypairProvider(privateKey solana.PrivateKey, confirm ConfirmFunc) (*KeypairProvider, error) {
	if len(privateKey) != 64 {
		return nil, fmt.Errorf("private key must be 64 bytes, got %d", len(privateKey))
	}
	return &KeypairProvider{privateKey: privateKey, confirm: confirm}, nil
}

// LoadKeypair reads a key given either as base58 text or as a path to a
// solana-keygen JSON file.
func LoadKeypair(source string) (solana.PrivateKey, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("keypair source is empty")
	}
	if _, err := os.Stat(source); err == nil {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read keygen file %s: %w", source, err)
		}
		return key, nil
	}
	key, err := solana.PrivateKeyFromBase58(source)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

func (p *KeypairProvider) Kind() Kind {
	return KindKeypair
}

func (p *KeypairProvider) Available() bool {
	return len(p.privateKey) == 64
}

func (p *KeypairProvider) Connect(ctx context.Context) (solana.PublicKey, error) {
	p.connected = true
	return p.privateKey.PublicKey(), nil
}

func (p *KeypairProvider) Disconnect(ctx context.Context) error {
	p.connected = false
	return nil
}

func (p *KeypairProvider) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	if !p.connected {
		return &ProviderError{Code: 4100, Message: "provider is not connected"}
	}
	if p.confirm != nil {
		ok, err := p.confirm(ctx, tx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRejected
		}
	}
	return signTransactionWithPrivateKey(p.privateKey, tx)
}

func signTransactionWithPrivateKey(privateKey solana.PrivateKey, tx *solana.Transaction) error {
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	signature, err := privateKey.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}

	accountIndex, err := tx.GetAccountIndex(privateKey.PublicKey())
	if err != nil {
		return fmt.Errorf("failed to get account index: %w", err)
	}

	// Signatures must cover every required signer slot up to ours
	if len(tx.Signatures) <= int(accountIndex) {
		newSignatures := make([]solana.Signature, accountIndex+1)
		copy(newSignatures, tx.Signatures)
		tx.Signatures = newSignatures
	}
	tx.Signatures[accountIndex] = signature
	return nil
}
