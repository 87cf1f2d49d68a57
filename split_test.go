package solpay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAmountScenarios(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		currency Currency
		total    uint64
		fee      uint64
		merchant uint64
	}{
		{"basic in SOL", 0.05, CurrencySOL, 50_000_000, 500_000, 49_500_000},
		{"pro in USDC", 19.99, CurrencyUSDC, 19_990_000, 199_900, 19_790_100},
		{"basic in USDC", 9.99, CurrencyUSDC, 9_990_000, 99_900, 9_890_100},
		{"creator in SOL", 0.25, CurrencySOL, 250_000_000, 2_500_000, 247_500_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scale, err := UnitsPerWhole(tt.currency, DefaultStableDecimals)
			require.NoError(t, err)

			split, err := SplitAmount(tt.price, scale, 0.01)
			require.NoError(t, err)
			assert.Equal(t, tt.total, split.Total)
			assert.Equal(t, tt.fee, split.Fee)
			assert.Equal(t, tt.merchant, split.Merchant)
		})
	}
}

func TestSplitAmountSumsForEveryTier(t *testing.T) {
	for id, tier := range DefaultCatalog() {
		for _, currency := range []Currency{CurrencySOL, CurrencyUSDC} {
			price, err := tier.Price(currency)
			require.NoError(t, err)
			scale, err := UnitsPerWhole(currency, DefaultStableDecimals)
			require.NoError(t, err)

			split, err := SplitAmount(price, scale, 0.01)
			if err != nil {
				t.Fatalf("%s/%s: %v", id, currency, err)
			}
			if split.Merchant+split.Fee != split.Total {
				t.Errorf("%s/%s: %d + %d != %d", id, currency, split.Merchant, split.Fee, split.Total)
			}
			if split.Fee == 0 || split.Fee >= split.Total {
				t.Errorf("%s/%s: fee %d out of range", id, currency, split.Fee)
			}
		}
	}
}

func TestSplitAmountRejects(t *testing.T) {
	tests := []struct {
		name    string
		price   float64
		scale   uint64
		percent float64
	}{
		{"zero price", 0, LamportsPerSOL, 0.01},
		{"negative price", -1, LamportsPerSOL, 0.01},
		{"zero scale", 1, 0, 0.01},
		{"zero percent", 1, LamportsPerSOL, 0},
		{"whole percent", 1, LamportsPerSOL, 1},
		{"fee rounds to zero", 0.000001, 1_000_000, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SplitAmount(tt.price, tt.scale, tt.percent)
			assert.Error(t, err)
		})
	}
}

func TestUnitsPerWhole(t *testing.T) {
	scale, err := UnitsPerWhole(CurrencyUSDC, 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), scale)

	_, err = UnitsPerWhole("BTC", 6)
	assert.Error(t, err)
}

func TestFeeWhole(t *testing.T) {
	split := FeeSplit{Total: 50_000_000, Fee: 500_000, Merchant: 49_500_000, Scale: LamportsPerSOL}
	assert.Equal(t, 0.0005, split.FeeWhole())
	assert.Equal(t, 0.0, ToWhole(10, 0))
}
