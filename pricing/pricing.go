// Package pricing formats tier prices for display, with an optional USD
// estimate for native prices.
package pricing

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/psm-labs/solpay"
	solpayhttp "github.com/psm-labs/solpay/http"
)

const (
	coinID    = "solana"
	quoteFiat = "usd"
)

// PriceSource is the spot price API.
type PriceSource interface {
	SimplePrice(ctx context.Context, ids []string, vsCurrencies []string) (map[string]map[string]float64, error)
}

// Oracle looks up the native currency's USD price.
type Oracle struct {
	source PriceSource
	logger zerolog.Logger
}

// NewOracle creates an oracle over source.
func NewOracle(source PriceSource) *Oracle {
	return &Oracle{
		source: source,
		logger: log.With().Str("component", "pricing").Logger(),
	}
}

// NewCoinGeckoOracle creates an oracle backed by the CoinGecko API at url.
func NewCoinGeckoOracle(url string) (*Oracle, error) {
	client, err := solpayhttp.NewPriceClient(solpayhttp.Config{URL: url})
	if err != nil {
		return nil, err
	}
	return NewOracle(client), nil
}

// SpotPrice returns the USD price of one SOL. Any failure reports false.
func (o *Oracle) SpotPrice(ctx context.Context) (float64, bool) {
	if o == nil || o.source == nil {
		return 0, false
	}
	prices, err := o.source.SimplePrice(ctx, []string{coinID}, []string{quoteFiat})
	if err != nil {
		o.logger.Debug().Err(err).Msg("spot price unavailable")
		return 0, false
	}
	price, ok := prices[coinID][quoteFiat]
	if !ok || price <= 0 {
		return 0, false
	}
	return price, true
}

// Prices is the display form of a tier's price.
type Prices struct {
	SOL string `json:"sol"`
	// SOLUSD is empty when no spot price is available.
	SOLUSD   string `json:"solUSD,omitempty"`
	USDC     string `json:"usdc"`
	Duration string `json:"duration"`
}

// FormatPrices renders tier's prices. The oracle may be nil.
func FormatPrices(ctx context.Context, oracle *Oracle, tier solpay.Tier) Prices {
	return FormatCatalog(ctx, oracle, []solpay.Tier{tier})[0]
}

// FormatCatalog renders every tier from a single spot price lookup.
func FormatCatalog(ctx context.Context, oracle *Oracle, tiers []solpay.Tier) []Prices {
	usd, ok := oracle.SpotPrice(ctx)
	out := make([]Prices, len(tiers))
	for i, tier := range tiers {
		out[i] = formatTier(tier, usd, ok)
	}
	return out
}

func formatTier(tier solpay.Tier, usd float64, haveUSD bool) Prices {
	p := Prices{
		SOL:      formatAmount(tier.PriceNative) + " SOL",
		USDC:     "$" + formatAmount(tier.PriceStable) + " USDC",
		Duration: fmt.Sprintf("%d days", tier.DurationDays),
	}
	if haveUSD {
		p.SOLUSD = fmt.Sprintf("~$%.2f", tier.PriceNative*usd)
	}
	return p
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
