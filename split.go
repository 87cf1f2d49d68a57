package solpay

import (
	"fmt"
	"math"
)

// FeeSplit apportions one payment between the merchant and the platform.
// Merchant + Fee == Total always holds for values produced by SplitAmount.
type FeeSplit struct {
	Total    uint64
	Fee      uint64
	Merchant uint64
	Scale    uint64
}

// UnitsPerWhole returns the indivisible-unit scale for a currency.
func UnitsPerWhole(currency Currency, stableDecimals uint8) (uint64, error) {
	switch currency {
	case CurrencySOL:
		return LamportsPerSOL, nil
	case CurrencyUSDC:
		return uint64(math.Pow10(int(stableDecimals))), nil
	}
	return 0, fmt.Errorf("unsupported currency: %q", currency)
}

// SplitAmount converts a whole-unit price into base units and derives the fee
// by rounding the already-rounded total, then the merchant share by subtraction.
func SplitAmount(price float64, scale uint64, feePercent float64) (FeeSplit, error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return FeeSplit{}, fmt.Errorf("price must be positive, got %v", price)
	}
	if scale == 0 {
		return FeeSplit{}, fmt.Errorf("scale must be positive")
	}
	if feePercent <= 0 || feePercent >= 1 {
		return FeeSplit{}, fmt.Errorf("fee percent must be in (0, 1), got %v", feePercent)
	}

	totalF := math.Round(price * float64(scale))
	if totalF > math.MaxUint64/2 {
		return FeeSplit{}, fmt.Errorf("amount %v overflows base units", price)
	}
	total := uint64(totalF)
	fee := uint64(math.Round(float64(total) * feePercent))

	split := FeeSplit{
		Total:    total,
		Fee:      fee,
		Merchant: total - fee,
		Scale:    scale,
	}
	if err := split.Validate(); err != nil {
		return FeeSplit{}, err
	}
	return split, nil
}

// Validate rejects apportionments that cannot be submitted.
func (s FeeSplit) Validate() error {
	if s.Total == 0 {
		return fmt.Errorf("total rounds to zero base units")
	}
	if s.Fee == 0 {
		return fmt.Errorf("fee rounds to zero base units (total %d)", s.Total)
	}
	if s.Fee >= s.Total || s.Merchant == 0 {
		return fmt.Errorf("fee %d leaves nothing for the merchant (total %d)", s.Fee, s.Total)
	}
	if s.Merchant+s.Fee != s.Total {
		return fmt.Errorf("split %d+%d does not sum to %d", s.Merchant, s.Fee, s.Total)
	}
	return nil
}

// FeeWhole returns the fee in whole currency units, for display.
func (s FeeSplit) FeeWhole() float64 {
	return ToWhole(s.Fee, s.Scale)
}

// ToWhole converts base units to whole currency units.
func ToWhole(units, scale uint64) float64 {
	if scale == 0 {
		return 0
	}
	return float64(units) / float64(scale)
}
