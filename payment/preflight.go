package payment

import (
	"context"

	solana "github.com/gagliardetto/solana-go"

	"github.com/psm-labs/solpay"
	"github.com/psm-labs/solpay/connection"
)

// NativeFeeBuffer is added to native prices to cover network fees.
const NativeFeeBuffer = 0.01

// CheckSufficiency reports whether the connected wallet can afford tier in
// currency. It never fails; problems are carried in the result.
func (e *Engine) CheckSufficiency(ctx context.Context, sess *Session, tierID solpay.TierID, currency solpay.Currency) solpay.BalanceResult {
	identity, err := sess.Wallet.Identity()
	if err != nil {
		return solpay.BalanceResult{Currency: currency, Err: err}
	}
	tier, err := e.catalog.Lookup(tierID)
	if err != nil {
		return solpay.BalanceResult{Currency: currency, Err: err}
	}

	switch currency {
	case solpay.CurrencySOL:
		return e.checkNative(ctx, sess, identity, tier)
	case solpay.CurrencyUSDC:
		return e.checkStable(ctx, sess, identity, tier)
	}
	return solpay.BalanceResult{Currency: currency, Err: solpay.NewPaymentError(solpay.ErrCodeUnknownTier, "unsupported currency: "+string(currency), nil)}
}

func (e *Engine) checkNative(ctx context.Context, sess *Session, owner solana.PublicKey, tier solpay.Tier) solpay.BalanceResult {
	required := tier.PriceNative + NativeFeeBuffer
	lamports, err := connection.Retry(ctx, sess.Retrier, func(ctx context.Context, conn connection.Ledger) (uint64, error) {
		return conn.GetBalance(ctx, owner)
	})
	if err != nil {
		return solpay.BalanceResult{Required: required, Currency: solpay.CurrencySOL, Err: err}
	}

	available := solpay.ToWhole(lamports, solpay.LamportsPerSOL)
	return solpay.BalanceResult{
		Sufficient: available >= required,
		Available:  available,
		Required:   required,
		Currency:   solpay.CurrencySOL,
	}
}

// checkStable treats any failure to read the token account as a zero balance.
func (e *Engine) checkStable(ctx context.Context, sess *Session, owner solana.PublicKey, tier solpay.Tier) solpay.BalanceResult {
	required := tier.PriceStable
	result := solpay.BalanceResult{Required: required, Currency: solpay.CurrencyUSDC}

	mint, err := solana.PublicKeyFromBase58(sess.Environment().StableMint)
	if err != nil {
		return result
	}
	holding, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return result
	}

	balance, err := connection.Retry(ctx, sess.Retrier, func(ctx context.Context, conn connection.Ledger) (connection.TokenBalance, error) {
		bal, err := conn.GetTokenBalance(ctx, holding)
		if connection.KindOf(err) == connection.KindNotFound {
			return bal, connection.Permanent(err)
		}
		return bal, err
	})
	if err != nil {
		e.logger.Debug().Err(err).Str("holding", holding.String()).Msg("stable balance unavailable, treating as zero")
		return result
	}

	result.Available = balance.Whole()
	result.Sufficient = result.Available >= required
	return result
}
