// Package solpay holds the subscription domain: tiers, fee splits, payment
// references, payment request links and the typed payment errors.
package solpay

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Currency identifies the asset a payment is settled in.
type Currency string

const (
	// CurrencySOL is the chain's native currency, measured in lamports.
	CurrencySOL Currency = "SOL"
	// CurrencyUSDC is the stable token, transferred through associated token accounts.
	CurrencyUSDC Currency = "USDC"
)

// LamportsPerSOL is the number of indivisible native units in one SOL.
const LamportsPerSOL uint64 = 1_000_000_000

// DefaultStableDecimals is the decimal precision of the stable token mint.
const DefaultStableDecimals uint8 = 6

// ParseCurrency maps user input ("sol", "USDC") to a Currency.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(s))) {
	case CurrencySOL:
		return CurrencySOL, nil
	case CurrencyUSDC:
		return CurrencyUSDC, nil
	}
	return "", fmt.Errorf("unsupported currency: %q", s)
}

// TierID is the catalog key of a subscription tier.
type TierID string

const (
	TierBasic   TierID = "basic"
	TierPro     TierID = "pro"
	TierCreator TierID = "creator"
)

// Tier is one immutable catalog entry.
type Tier struct {
	ID           TierID   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	PriceNative  float64  `json:"priceSOL" yaml:"priceSOL"`
	PriceStable  float64  `json:"priceUSDC" yaml:"priceUSDC"`
	DurationDays int      `json:"durationDays" yaml:"durationDays"`
	Features     []string `json:"features" yaml:"features"`
}

// Price returns the tier price in whole units of the given currency.
func (t Tier) Price(currency Currency) (float64, error) {
	switch currency {
	case CurrencySOL:
		return t.PriceNative, nil
	case CurrencyUSDC:
		return t.PriceStable, nil
	}
	return 0, fmt.Errorf("unsupported currency: %q", currency)
}

// Duration returns the entitlement window granted by the tier.
func (t Tier) Duration() time.Duration {
	return time.Duration(t.DurationDays) * 24 * time.Hour
}

// Catalog is the set of purchasable tiers, loaded once at startup.
type Catalog map[TierID]Tier

// DefaultCatalog returns the built-in tier set.
func DefaultCatalog() Catalog {
	return Catalog{
		TierBasic: {
			ID:           TierBasic,
			Name:         "Basic",
			PriceNative:  0.05,
			PriceStable:  9.99,
			DurationDays: 30,
			Features:     []string{"HD Streaming", "Basic Library", "Mobile Access"},
		},
		TierPro: {
			ID:           TierPro,
			Name:         "Pro",
			PriceNative:  0.1,
			PriceStable:  19.99,
			DurationDays: 30,
			Features:     []string{"4K Streaming", "Full Library", "Download", "No Ads"},
		},
		TierCreator: {
			ID:           TierCreator,
			Name:         "Creator",
			PriceNative:  0.25,
			PriceStable:  49.99,
			DurationDays: 30,
			Features:     []string{"Unlimited Upload", "Monetization", "Analytics", "Priority Support"},
		},
	}
}

// Lookup returns the tier for id or an UnknownTier error.
func (c Catalog) Lookup(id TierID) (Tier, error) {
	tier, ok := c[id]
	if !ok {
		return Tier{}, NewPaymentError(ErrCodeUnknownTier, fmt.Sprintf("invalid tier: %s", id), nil)
	}
	return tier, nil
}

// IDs returns the catalog keys in a stable order.
func (c Catalog) IDs() []TierID {
	ids := make([]TierID, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Validate checks that every tier has positive prices and duration.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("catalog is empty")
	}
	for id, tier := range c {
		if tier.ID != id {
			return fmt.Errorf("tier %s: id mismatch (%s)", id, tier.ID)
		}
		if tier.PriceNative <= 0 || tier.PriceStable <= 0 {
			return fmt.Errorf("tier %s: prices must be positive", id)
		}
		if tier.DurationDays <= 0 {
			return fmt.Errorf("tier %s: duration must be positive", id)
		}
	}
	return nil
}

// Subscription is the persisted entitlement produced by one confirmed payment.
// Only NFTMint may change after creation.
type Subscription struct {
	Tier         TierID    `json:"tier"`
	Wallet       string    `json:"wallet"`
	Signature    string    `json:"signature"`
	Amount       float64   `json:"amount"`
	Currency     Currency  `json:"currency"`
	StartedAt    time.Time `json:"startedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	DurationDays int       `json:"durationDays"`
	NFTMint      string    `json:"nftMint,omitempty"`
}

// NewSubscription derives the entitlement window from the tier.
func NewSubscription(tier Tier, wallet, signature string, amount float64, currency Currency, now time.Time) Subscription {
	return Subscription{
		Tier:         tier.ID,
		Wallet:       wallet,
		Signature:    signature,
		Amount:       amount,
		Currency:     currency,
		StartedAt:    now,
		ExpiresAt:    now.Add(tier.Duration()),
		DurationDays: tier.DurationDays,
	}
}

// ActiveAt reports whether the entitlement covers t.
func (s Subscription) ActiveAt(t time.Time) bool {
	return t.Before(s.ExpiresAt)
}

// SubscriptionStatus is derived on every read and never stored.
type SubscriptionStatus struct {
	Active       bool          `json:"active"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Expired      *Subscription `json:"expired,omitempty"`
}

// BalanceResult is the structured outcome of a balance preflight.
type BalanceResult struct {
	Sufficient bool     `json:"sufficient"`
	Available  float64  `json:"available"`
	Required   float64  `json:"required"`
	Currency   Currency `json:"currency"`
	Err        error    `json:"-"`
}

// PaymentResult is returned for every confirmed payment.
type PaymentResult struct {
	Signature    string       `json:"signature"`
	Tier         TierID       `json:"tier"`
	Amount       float64      `json:"amount"`
	Currency     Currency     `json:"currency"`
	Fee          float64      `json:"fee"`
	Explorer     string       `json:"explorer"`
	Reference    string       `json:"reference"`
	Subscription Subscription `json:"subscription"`
}
