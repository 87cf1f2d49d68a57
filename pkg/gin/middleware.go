// Package gin exposes subscription state over HTTP: a membership gate for
// protected routes and the status API served by "solpay serve".
package gin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/psm-labs/solpay"
	solpayhttp "github.com/psm-labs/solpay/http"
	"github.com/psm-labs/solpay/ledger"
	"github.com/psm-labs/solpay/logging"
)

// WalletHeader names the wallet whose membership gates a request.
const WalletHeader = "X-Wallet"

// membershipKey is the gin context key holding the checked membership.
const membershipKey = "solpay.membership"

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
	// Tiers accepted by the gate; empty accepts any tier.
	Tiers      []solpay.TierID
	Linker     PaymentLinker
	StableMint string
	// OfferTier is the tier advertised in the 402 response.
	OfferTier solpay.TierID
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

// RequestID propagates X-Request-ID into the request context, generating
// one when the client sent none.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, id := logging.WithRequestID(c.Request.Context(), c.GetHeader(solpayhttp.RequestIDHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(solpayhttp.RequestIDHeader, id)
		c.Next()
	}
}

// RequireMembership lets a request through only when the wallet named in
// the X-Wallet header or the wallet query parameter holds a membership.
func RequireMembership(checker MembershipChecker, opts ...Options) gin.HandlerFunc {
	options := &MembershipMiddlewareOptions{OfferTier: solpay.TierBasic}
	for _, opt := range opts {
		opt(options)
	}

	return func(c *gin.Context) {
		wallet := strings.TrimSpace(c.GetHeader(WalletHeader))
		if wallet == "" {
			wallet = strings.TrimSpace(c.Query("wallet"))
		}
		if wallet == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": WalletHeader + " header or wallet query parameter is required",
			})
			return
		}

		result := checker.CheckMembership(c.Request.Context(), wallet)
		if result.HasMembership && tierAccepted(options.Tiers, result.Tier) {
			c.Set(membershipKey, result)
			c.Next()
			return
		}

		logger := log.With().Str("wallet", wallet).Logger()
		if result.Error != nil {
			logger.Warn().Err(result.Error).Msg("membership check failed")
		}

		body := gin.H{
			"error": "active membership required",
			"tiers": options.Tiers,
		}
		if result.HasMembership {
			body["error"] = "membership tier not accepted: " + result.Tier
		}
		if options.Linker != nil {
			links := gin.H{}
			for _, currency := range []solpay.Currency{solpay.CurrencySOL, solpay.CurrencyUSDC} {
				link, err := options.Linker.PaymentURL(options.OfferTier, currency, options.StableMint, time.Now())
				if err != nil {
					logger.Warn().Err(err).Str("currency", string(currency)).Msg("failed to build payment link")
					continue
				}
				links[string(currency)] = link
			}
			body["paymentURLs"] = links
		}
		c.AbortWithStatusJSON(http.StatusPaymentRequired, body)
	}
}

// Membership returns the membership checked by RequireMembership.
func Membership(c *gin.Context) (ledger.MembershipResult, bool) {
	v, ok := c.Get(membershipKey)
	if !ok {
		return ledger.MembershipResult{}, false
	}
	result, ok := v.(ledger.MembershipResult)
	return result, ok
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
