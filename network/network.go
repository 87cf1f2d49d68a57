// Package network defines the closed set of Solana environments a payment can
// settle on, and the selector holding the active one.
package network

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go/rpc"
)

// Environment names
const (
	MainnetBeta = "mainnet-beta"
	Devnet      = "devnet"
	Testnet     = "testnet"
)

// Stable token mints
const (
	USDCMainnetAddress = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDCDevnetAddress  = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
)

// PublicNodeMainnetRPC is a keyless public mainnet endpoint used as failover.
const PublicNodeMainnetRPC = "https://solana-rpc.publicnode.com"

// DefaultExplorerURL is the block explorer used for every environment.
const DefaultExplorerURL = "https://solscan.io"

// Environment is an immutable chain environment definition.
type Environment struct {
	Name string
	// StableMint is the base58 mint address of the stable token.
	StableMint     string
	StableDecimals uint8
	// Endpoints are tried in order by the connection manager.
	Endpoints []string
	// ExplorerURL may carry a query such as "?cluster=devnet".
	ExplorerURL string
	// FaucetEnabled allows airdrop requests.
	FaucetEnabled bool
}

var environments = map[string]Environment{
	MainnetBeta: {
		Name:           MainnetBeta,
		StableMint:     USDCMainnetAddress,
		StableDecimals: 6,
		Endpoints:      []string{rpc.MainNetBeta_RPC, PublicNodeMainnetRPC},
		ExplorerURL:    DefaultExplorerURL,
	},
	Devnet: {
		Name:           Devnet,
		StableMint:     USDCDevnetAddress,
		StableDecimals: 6,
		Endpoints:      []string{rpc.DevNet_RPC},
		ExplorerURL:    DefaultExplorerURL + "?cluster=devnet",
		FaucetEnabled:  true,
	},
	Testnet: {
		Name:           Testnet,
		StableMint:     USDCDevnetAddress,
		StableDecimals: 6,
		Endpoints:      []string{rpc.TestNet_RPC},
		ExplorerURL:    DefaultExplorerURL + "?cluster=testnet",
	},
}

// Names returns the supported environment names.
func Names() []string {
	return []string{MainnetBeta, Devnet, Testnet}
}

// IsValid reports whether name is a supported environment.
func IsValid(name string) bool {
	_, ok := environments[name]
	return ok
}

// Lookup returns a copy of the named environment.
func Lookup(name string) (Environment, error) {
	env, ok := environments[name]
	if !ok {
		return Environment{}, fmt.Errorf("invalid network: %s (use %s)", name, strings.Join(Names(), ", "))
	}
	env.Endpoints = append([]string(nil), env.Endpoints...)
	return env, nil
}

// WithEndpoints returns a copy of env using the given endpoint list.
// An empty list keeps the defaults.
func (e Environment) WithEndpoints(endpoints []string) Environment {
	if len(endpoints) == 0 {
		return e
	}
	e.Endpoints = append([]string(nil), endpoints...)
	return e
}

// TxURL returns the explorer link for a transaction signature.
func (e Environment) TxURL(signature string) string {
	return e.explorerLink("tx", signature)
}

// TokenURL returns the explorer link for a token mint.
func (e Environment) TokenURL(mint string) string {
	return e.explorerLink("token", mint)
}

func (e Environment) explorerLink(kind, id string) string {
	base := e.ExplorerURL
	if base == "" {
		base = DefaultExplorerURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), kind, id)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + kind + "/" + id
	return u.String()
}

// Selector holds the active environment. Overrides replace the endpoint
// lists of individual environments.
type Selector struct {
	mu        sync.RWMutex
	active    string
	overrides map[string][]string
}

// NewSelector creates a selector with name active.
func NewSelector(name string, overrides map[string][]string) (*Selector, error) {
	if !IsValid(name) {
		return nil, fmt.Errorf("invalid network: %s", name)
	}
	s := &Selector{active: name, overrides: make(map[string][]string)}
	for k, v := range overrides {
		if !IsValid(k) {
			return nil, fmt.Errorf("endpoint override for unknown network: %s", k)
		}
		s.overrides[k] = append([]string(nil), v...)
	}
	return s, nil
}

// Select makes name the active environment.
func (s *Selector) Select(name string) (Environment, error) {
	env, err := s.resolve(name)
	if err != nil {
		return Environment{}, err
	}
	s.mu.Lock()
	s.active = name
	s.mu.Unlock()
	return env, nil
}

// Active returns the active environment with overrides applied.
func (s *Selector) Active() Environment {
	s.mu.RLock()
	name := s.active
	s.mu.RUnlock()
	env, _ := s.resolve(name)
	return env
}

func (s *Selector) resolve(name string) (Environment, error) {
	env, err := Lookup(name)
	if err != nil {
		return Environment{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return env.WithEndpoints(s.overrides[name]), nil
}
