package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// VerifyPaymentRequest asks the minter to check a payment on chain.
type VerifyPaymentRequest struct {
	Signature string `json:"signature"`
	Tier      string `json:"tier"`
}

// VerifyPaymentResponse is the minter's verdict.
type VerifyPaymentResponse struct {
	Verified bool   `json:"verified"`
	Error    string `json:"error,omitempty"`
}

// MintRequest asks the minter to issue a membership NFT.
type MintRequest struct {
	RecipientWallet  string `json:"recipientWallet"`
	Tier             string `json:"tier"`
	PaymentSignature string `json:"paymentSignature"`
}

// MintResponse describes an issued NFT.
type MintResponse struct {
	Success  bool            `json:"success"`
	NFTMint  string          `json:"nftMint,omitempty"`
	Tier     string          `json:"tier,omitempty"`
	Explorer string          `json:"explorer,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// MinterClient talks to the NFT minting service.
type MinterClient struct {
	c *jsonClient
}

// NewMinterClient creates a minter client for config.URL.
func NewMinterClient(config Config) (*MinterClient, error) {
	c, err := newJSONClient("minter", config)
	if err != nil {
		return nil, err
	}
	return &MinterClient{c: c}, nil
}

// URL returns the minter base URL.
func (m *MinterClient) URL() string {
	return m.c.url
}

// VerifyPayment asks the minter to confirm the payment behind signature.
func (m *MinterClient) VerifyPayment(ctx context.Context, signature, tier string) (*VerifyPaymentResponse, error) {
	var out VerifyPaymentResponse
	if err := m.c.do(ctx, http.MethodPost, "/verify-payment", VerifyPaymentRequest{Signature: signature, Tier: tier}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mint issues the membership NFT. An unsuccessful response is an error.
func (m *MinterClient) Mint(ctx context.Context, req MintRequest) (*MintResponse, error) {
	var out MintResponse
	if err := m.c.do(ctx, http.MethodPost, "/mint", req, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "Minting failed"
		}
		return &out, fmt.Errorf("mint rejected: %s", msg)
	}
	return &out, nil
}

// CheckMembership asks the minter whether wallet holds a membership NFT.
func (m *MinterClient) CheckMembership(ctx context.Context, wallet string) (*MembershipStatus, error) {
	var out MembershipStatus
	path := "/check-membership?wallet=" + url.QueryEscape(wallet)
	if err := m.c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
