package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// DefaultPriceURL is the public CoinGecko API.
const DefaultPriceURL = "https://api.coingecko.com"

// PriceClient reads spot prices from a CoinGecko compatible API.
type PriceClient struct {
	c *jsonClient
}

// NewPriceClient creates a price client. An empty URL uses DefaultPriceURL.
func NewPriceClient(config Config) (*PriceClient, error) {
	if strings.TrimSpace(config.URL) == "" {
		config.URL = DefaultPriceURL
	}
	c, err := newJSONClient("price", config)
	if err != nil {
		return nil, err
	}
	return &PriceClient{c: c}, nil
}

// SimplePrice returns prices keyed by coin id, then by quote currency.
func (p *PriceClient) SimplePrice(ctx context.Context, ids []string, vsCurrencies []string) (map[string]map[string]float64, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", strings.Join(vsCurrencies, ","))

	out := map[string]map[string]float64{}
	if err := p.c.do(ctx, http.MethodGet, "/api/v3/simple/price?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
