// Package wallet holds the connected signing identity. Providers are
// external capabilities; this package only discovers, connects and asks
// them to sign.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	solana "github.com/gagliardetto/solana-go"
)

// Kind identifies a wallet provider family.
type Kind string

const (
	KindPhantom  Kind = "phantom"
	KindSolflare Kind = "solflare"
	KindBackpack Kind = "backpack"
	KindKeypair  Kind = "keypair"
)

// preference is the order used when no provider is named.
var preference = []Kind{KindPhantom, KindSolflare, KindBackpack, KindKeypair}

// ParseKind maps a display or config name to a Kind.
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range preference {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown wallet: %s", name)
}

// DisplayName returns the human name of the provider family.
func (k Kind) DisplayName() string {
	switch k {
	case KindPhantom:
		return "Phantom"
	case KindSolflare:
		return "Solflare"
	case KindBackpack:
		return "Backpack"
	case KindKeypair:
		return "Keypair"
	}
	return string(k)
}

// Icon returns the provider logo URL shown in wallet pickers.
func (k Kind) Icon() string {
	switch k {
	case KindPhantom:
		return "https://phantom.app/img/logo.png"
	case KindSolflare:
		return "https://solflare.com/favicon.ico"
	case KindBackpack:
		return "https://backpack.app/favicon.ico"
	}
	return ""
}

// Provider is a signing capability.
type Provider interface {
	Kind() Kind
	// Available reports whether the provider can be connected right now.
	Available() bool
	Connect(ctx context.Context) (solana.PublicKey, error)
	Disconnect(ctx context.Context) error
	// SignTransaction adds the provider's signature to tx in place.
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// CodeUserRejected is the provider error code for a cancelled request.
const CodeUserRejected = 4001

// ProviderError is an error reported by a wallet provider.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// ErrRejected is the canonical cancellation error.
var ErrRejected = &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}

// IsUserRejected reports whether err is a provider cancellation.
func IsUserRejected(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == CodeUserRejected
}

// Info describes an available provider.
type Info struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	Icon string `json:"icon,omitempty"`
}
