package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/psm-labs/solpay"
)

// Session holds at most one connected provider and its identity. A failed
// connect or a disconnect leaves the session empty.
type Session struct {
	mu        sync.Mutex
	providers []Provider
	active    Provider
	identity  solana.PublicKey
	logger    zerolog.Logger
}

// NewSession creates a disconnected session over the installed providers.
func NewSession(providers ...Provider) *Session {
	return &Session{
		providers: providers,
		logger:    log.Logger.With().Str("component", "wallet").Logger(),
	}
}

// Available lists connectable providers in preference order.
func (s *Session) Available() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Info
	for _, p := range s.ordered() {
		out = append(out, Info{Name: p.Kind().DisplayName(), Kind: p.Kind(), Icon: p.Kind().Icon()})
	}
	return out
}

func (s *Session) ordered() []Provider {
	var out []Provider
	for _, kind := range preference {
		for _, p := range s.providers {
			if p.Kind() == kind && p.Available() {
				out = append(out, p)
			}
		}
	}
	return out
}

// Connect connects the named provider, or the first available one when name
// is empty.
func (s *Session) Connect(ctx context.Context, name string) (solana.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	available := s.ordered()
	if len(available) == 0 {
		return solana.PublicKey{}, solpay.NewPaymentError(solpay.ErrCodeNoWalletFound,
			"No Solana wallet found. Please install Phantom, Solflare, or Backpack.", nil)
	}

	provider := available[0]
	if strings.TrimSpace(name) != "" {
		provider = nil
		for _, p := range available {
			if strings.EqualFold(string(p.Kind()), strings.TrimSpace(name)) {
				provider = p
				break
			}
		}
		if provider == nil {
			return solana.PublicKey{}, solpay.NewPaymentError(solpay.ErrCodeNoWalletFound,
				fmt.Sprintf("Wallet %s not found", name), nil)
		}
	}

	identity, err := provider.Connect(ctx)
	if err != nil {
		s.active = nil
		s.identity = solana.PublicKey{}
		if IsUserRejected(err) {
			return solana.PublicKey{}, solpay.WrapPaymentError(solpay.ErrCodeUserRejected, err, "connection rejected by user")
		}
		return solana.PublicKey{}, fmt.Errorf("failed to connect %s: %w", provider.Kind().DisplayName(), err)
	}

	s.active = provider
	s.identity = identity
	s.logger.Info().
		Str("wallet", provider.Kind().DisplayName()).
		Str("identity", identity.String()).
		Msg("wallet connected")
	return identity, nil
}

// Disconnect releases the provider. Provider errors are ignored; the
// session always ends empty.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return
	}
	if err := s.active.Disconnect(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("provider disconnect failed")
	}
	s.active = nil
	s.identity = solana.PublicKey{}
}

// Connected reports whether a provider is connected.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Identity returns the connected public key.
func (s *Session) Identity() (solana.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return solana.PublicKey{}, solpay.NewPaymentError(solpay.ErrCodeNoWalletConnected, "Wallet not connected", nil)
	}
	return s.identity, nil
}

// Kind returns the connected provider kind, or "".
func (s *Session) Kind() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.Kind()
}

// Sign asks the connected provider to sign tx. Cancellation becomes a
// UserRejected payment error.
func (s *Session) Sign(ctx context.Context, tx *solana.Transaction) error {
	s.mu.Lock()
	provider := s.active
	s.mu.Unlock()

	if provider == nil {
		return solpay.NewPaymentError(solpay.ErrCodeNoWalletConnected, "Wallet not connected", nil)
	}
	if err := provider.SignTransaction(ctx, tx); err != nil {
		if IsUserRejected(err) {
			return solpay.WrapPaymentError(solpay.ErrCodeUserRejected, err, "Transaction cancelled by user")
		}
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}
