// Package stdlib gates net/http handlers behind an active membership.
package stdlib

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/psm-labs/solpay"
	"github.com/psm-labs/solpay/ledger"
)

// WalletHeader names the wallet whose membership gates a request.
const WalletHeader = "X-Wallet"

type contextKey struct{}

// MembershipChecker resolves a wallet's membership.
type MembershipChecker interface {
	CheckMembership(ctx context.Context, wallet string) ledger.MembershipResult
}

// PaymentLinker renders a payment link for a tier.
type PaymentLinker interface {
	PaymentURL(tier solpay.TierID, currency solpay.Currency, stableMint string, now time.Time) (string, error)
}

// MembershipMiddlewareOptions configures RequireMembership.
type MembershipMiddlewareOptions struct {
	Tiers      []solpay.TierID
	Linker     PaymentLinker
	StableMint string
	OfferTier  solpay.TierID
}

// Options is the type for the options of RequireMembership.
type Options func(*MembershipMiddlewareOptions)

// WithTiers restricts the gate to the given tiers.
func WithTiers(tiers ...solpay.TierID) Options {
	return func(options *MembershipMiddlewareOptions) {
		options.Tiers = append(options.Tiers, tiers...)
	}
}

// WithPaymentLink adds payment links for offer to 402 responses.
func WithPaymentLink(linker PaymentLinker, stableMint string, offer solpay.TierID) Options {
	return func(options *MembershipMiddlewareOptions) {
		options.Linker = linker
		options.StableMint = stableMint
		options.OfferTier = offer
	}
}

// RequireMembership is the net/http counterpart of the gin membership gate.
// The wallet is read from the X-Wallet header or the wallet query parameter.
func RequireMembership(checker MembershipChecker, opts ...Options) func(http.Handler) http.Handler {
	options := &MembershipMiddlewareOptions{OfferTier: solpay.TierBasic}
	for _, opt := range opts {
		opt(options)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wallet := strings.TrimSpace(r.Header.Get(WalletHeader))
			if wallet == "" {
				wallet = strings.TrimSpace(r.URL.Query().Get("wallet"))
			}
			if wallet == "" {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{
					"error": WalletHeader + " header or wallet query parameter is required",
				})
				return
			}

			result := checker.CheckMembership(r.Context(), wallet)
			if result.HasMembership && tierAccepted(options.Tiers, result.Tier) {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, result)))
				return
			}

			if result.Error != nil {
				log.Warn().Err(result.Error).Str("wallet", wallet).Msg("membership check failed")
			}
			body := map[string]interface{}{
				"error": "active membership required",
				"tiers": options.Tiers,
			}
			if result.HasMembership {
				body["error"] = "membership tier not accepted: " + result.Tier
			}
			if options.Linker != nil {
				links := map[string]string{}
				for _, currency := range []solpay.Currency{solpay.CurrencySOL, solpay.CurrencyUSDC} {
					if link, err := options.Linker.PaymentURL(options.OfferTier, currency, options.StableMint, time.Now()); err == nil {
						links[string(currency)] = link
					}
				}
				body["paymentURLs"] = links
			}
			writeJSON(w, http.StatusPaymentRequired, body)
		})
	}
}

// MembershipFromContext returns the membership checked by RequireMembership.
func MembershipFromContext(ctx context.Context) (ledger.MembershipResult, bool) {
	result, ok := ctx.Value(contextKey{}).(ledger.MembershipResult)
	return result, ok
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func tierAccepted(accepted []solpay.TierID, tier string) bool {
	if len(accepted) == 0 {
		return true
	}
	for _, t := range accepted {
		if string(t) == tier {
			return true
		}
	}
	return false
}
