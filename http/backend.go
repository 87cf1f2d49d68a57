package http

import (
	"context"
	"net/http"
	"net/url"

	"github.com/psm-labs/solpay"
)

// MembershipStatus is a remote view of a wallet's membership.
type MembershipStatus struct {
	HasMembership bool   `json:"hasMembership"`
	Tier          string `json:"tier,omitempty"`
	NFTMint       string `json:"nftMint,omitempty"`
}

// BackendClient talks to the payment-ledger backend.
type BackendClient struct {
	c *jsonClient
}

// NewBackendClient creates a backend client for config.URL.
func NewBackendClient(config Config) (*BackendClient, error) {
	c, err := newJSONClient("backend", config)
	if err != nil {
		return nil, err
	}
	return &BackendClient{c: c}, nil
}

// URL returns the backend base URL.
func (b *BackendClient) URL() string {
	return b.c.url
}

// RecordPayment posts a confirmed subscription.
func (b *BackendClient) RecordPayment(ctx context.Context, sub solpay.Subscription) error {
	return b.c.do(ctx, http.MethodPost, "/api/v1/payments/record", sub, nil)
}

// CheckNFT asks the backend whether wallet holds a membership.
func (b *BackendClient) CheckNFT(ctx context.Context, wallet string) (*MembershipStatus, error) {
	var out MembershipStatus
	path := "/api/v1/nft/check?wallet=" + url.QueryEscape(wallet)
	if err := b.c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
