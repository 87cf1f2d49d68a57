package gin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psm-labs/solpay"
	"github.com/psm-labs/solpay/network"
	"github.com/psm-labs/solpay/pricing"
)

// Subscriptions is the local entitlement state read by the status API.
type Subscriptions interface {
	MembershipChecker
	CurrentSubscription() solpay.SubscriptionStatus
	History() []solpay.Subscription
}

// StatusAPI holds the dependencies of the status routes. Oracle may be nil.
type StatusAPI struct {
	Subscriptions Subscriptions
	Links         PaymentLinker
	Catalog       solpay.Catalog
	Oracle        *pricing.Oracle
	// Environment returns the active chain environment.
	Environment func() network.Environment
	// Endpoint returns the RPC endpoint in use, if connected.
	Endpoint func() string
	Now      func() time.Time
}

type tierView struct {
	solpay.Tier
	Prices pricing.Prices `json:"prices"`
}

// NewRouter builds the status API.
func NewRouter(api StatusAPI) *gin.Engine {
	if api.Now == nil {
		api.Now = time.Now
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())

	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if api.Environment != nil {
			body["network"] = api.Environment().Name
		}
		if api.Endpoint != nil {
			body["endpoint"] = api.Endpoint()
		}
		c.JSON(http.StatusOK, body)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/subscription", func(c *gin.Context) {
		c.JSON(http.StatusOK, api.Subscriptions.CurrentSubscription())
	})

	v1.GET("/history", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subscriptions": api.Subscriptions.History()})
	})

	v1.GET("/membership/:wallet", func(c *gin.Context) {
		c.JSON(http.StatusOK, api.Subscriptions.CheckMembership(c.Request.Context(), c.Param("wallet")))
	})

	v1.GET("/tiers", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		ids := api.Catalog.IDs()
		tiers := make([]solpay.Tier, 0, len(ids))
		for _, id := range ids {
			tiers = append(tiers, api.Catalog[id])
		}
		prices := pricing.FormatCatalog(ctx, api.Oracle, tiers)
		views := make([]tierView, 0, len(tiers))
		for i, tier := range tiers {
			views = append(views, tierView{Tier: tier, Prices: prices[i]})
		}
		c.JSON(http.StatusOK, gin.H{"tiers": views})
	})

	v1.GET("/payurl", func(c *gin.Context) {
		currency, err := solpay.ParseCurrency(c.DefaultQuery("currency", string(solpay.CurrencySOL)))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tier := solpay.TierID(c.DefaultQuery("tier", string(solpay.TierBasic)))
		link, err := api.Links.PaymentURL(tier, currency, mintOf(api), api.Now())
		if err != nil {
			status := http.StatusInternalServerError
			if solpay.CodeOf(err) == solpay.ErrCodeUnknownTier {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": link, "tier": tier, "currency": currency})
	})

	v1.GET("/access", RequireMembership(api.Subscriptions, WithPaymentLink(api.Links, mintOf(api), solpay.TierBasic)), func(c *gin.Context) {
		membership, _ := Membership(c)
		c.JSON(http.StatusOK, gin.H{"access": "granted", "membership": membership})
	})

	return r
}

func mintOf(api StatusAPI) string {
	if api.Environment == nil {
		return ""
	}
	return api.Environment().StableMint
}
