package solpay

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogLookup(t *testing.T) {
	catalog := DefaultCatalog()
	require.NoError(t, catalog.Validate())

	tier, err := catalog.Lookup(TierPro)
	require.NoError(t, err)
	assert.Equal(t, 0.1, tier.PriceNative)
	assert.Equal(t, 19.99, tier.PriceStable)

	_, err = catalog.Lookup("platinum")
	assert.True(t, errors.Is(err, ErrUnknownTier))

	assert.Equal(t, []TierID{TierBasic, TierCreator, TierPro}, catalog.IDs())
}

func TestCatalogValidate(t *testing.T) {
	assert.Error(t, Catalog{}.Validate())
	assert.Error(t, Catalog{"a": {ID: "b", PriceNative: 1, PriceStable: 1, DurationDays: 1}}.Validate())
	assert.Error(t, Catalog{"a": {ID: "a", PriceNative: 0, PriceStable: 1, DurationDays: 1}}.Validate())
	assert.Error(t, Catalog{"a": {ID: "a", PriceNative: 1, PriceStable: 1, DurationDays: 0}}.Validate())
}

func TestParseCurrency(t *testing.T) {
	for _, in := range []string{"sol", "SOL", " Sol "} {
		c, err := ParseCurrency(in)
		require.NoError(t, err)
		assert.Equal(t, CurrencySOL, c)
	}
	c, err := ParseCurrency("usdc")
	require.NoError(t, err)
	assert.Equal(t, CurrencyUSDC, c)

	_, err = ParseCurrency("btc")
	assert.Error(t, err)
}

func TestNewSubscriptionExpiry(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := NewSubscription(DefaultCatalog()[TierBasic], "wallet", "sig", 0.05, CurrencySOL, start)

	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), sub.ExpiresAt)
	assert.Equal(t, 30*24*time.Hour, sub.ExpiresAt.Sub(sub.StartedAt))
	assert.Equal(t, 30, sub.DurationDays)

	assert.True(t, sub.ActiveAt(sub.ExpiresAt.Add(-time.Millisecond)))
	assert.False(t, sub.ActiveAt(sub.ExpiresAt))
}

func TestPaymentErrorIs(t *testing.T) {
	err := fmt.Errorf("pay: %w", WrapPaymentError(ErrCodeUserRejected, errors.New("4001"), "Transaction cancelled by user"))

	assert.True(t, errors.Is(err, ErrUserRejected))
	assert.False(t, errors.Is(err, ErrSubmissionFailure))
	assert.Equal(t, ErrCodeUserRejected, CodeOf(err))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.Equal(t, "user_rejected: Transaction cancelled by user", errors.Unwrap(err).Error())

	var pe *PaymentError
	require.True(t, errors.As(err, &pe))
	assert.EqualError(t, pe.Unwrap(), "4001")
}

func TestInsufficientBalanceError(t *testing.T) {
	err := NewInsufficientBalanceError(0.02, 0.06, CurrencySOL)

	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.Equal(t, 0.02, err.Details["available"])
	assert.Equal(t, 0.06, err.Details["required"])
	assert.Equal(t, "SOL", err.Details["currency"])
	assert.Contains(t, err.Error(), "have 0.0200")
	assert.Equal(t, ErrCodeNoWalletFound, ErrNoWalletFound.Error())
}
