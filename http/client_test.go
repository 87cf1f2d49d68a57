package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/psm-labs/solpay"
	"github.com/psm-labs/solpay/logging"
)

func TestNewBackendClientRequiresURL(t *testing.T) {
	if _, err := NewBackendClient(Config{}); err == nil {
		t.Fatal("Expected error for empty URL")
	}

	client, err := NewBackendClient(Config{URL: "https://api.example.org/"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if client.URL() != "https://api.example.org" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.URL())
	}
	if client.c.httpClient.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %s", client.c.httpClient.Timeout)
	}
}

func TestBackendRecordPayment(t *testing.T) {
	var got solpay.Subscription
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/payments/record" {
			t.Errorf("Expected path /api/v1/payments/record, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Expected bearer auth, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get(RequestIDHeader) != "req-1" {
			t.Errorf("Expected request id req-1, got %q", r.Header.Get(RequestIDHeader))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client, err := NewBackendClient(Config{URL: server.URL, AuthProvider: BearerAuth("secret")})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tier, _ := solpay.DefaultCatalog().Lookup(solpay.TierPro)
	sub := solpay.NewSubscription(tier, "Wallet111", "Sig111", 0.1, solpay.CurrencySOL, now)

	ctx, _ := logging.WithRequestID(context.Background(), "req-1")
	if err := client.RecordPayment(ctx, sub); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.Signature != "Sig111" || got.Tier != solpay.TierPro {
		t.Errorf("Unexpected payload: %+v", got)
	}
	if !got.ExpiresAt.Equal(now.Add(30 * 24 * time.Hour)) {
		t.Errorf("Unexpected expiry: %s", got.ExpiresAt)
	}
}

func TestBackendRecordPaymentServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := NewBackendClient(Config{URL: server.URL})
	err := client.RecordPayment(context.Background(), solpay.Subscription{})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", statusErr.StatusCode)
	}
}

func TestBackendCheckNFTRetriesRateLimit(t *testing.T) {
	orig := rateLimitRetryBaseDelay
	rateLimitRetryBaseDelay = time.Millisecond
	defer func() { rateLimitRetryBaseDelay = orig }()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("wallet") != "W1" {
			t.Errorf("Expected wallet W1, got %s", r.URL.Query().Get("wallet"))
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(MembershipStatus{HasMembership: true, Tier: "pro"})
	}))
	defer server.Close()

	client, _ := NewBackendClient(Config{URL: server.URL})
	status, err := client.CheckNFT(context.Background(), "W1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !status.HasMembership || status.Tier != "pro" {
		t.Errorf("Unexpected status: %+v", status)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestPostIsNotRetriedOnRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, _ := NewBackendClient(Config{URL: server.URL})
	if err := client.RecordPayment(context.Background(), solpay.Subscription{}); err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestMinterFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify-payment":
			var req VerifyPaymentRequest
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(VerifyPaymentResponse{Verified: req.Signature == "good"})
		case "/mint":
			var req MintRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.RecipientWallet == "" {
				json.NewEncoder(w).Encode(MintResponse{Success: false, Error: "no recipient"})
				return
			}
			json.NewEncoder(w).Encode(MintResponse{Success: true, NFTMint: "Mint111", Tier: req.Tier})
		case "/check-membership":
			json.NewEncoder(w).Encode(MembershipStatus{HasMembership: true, NFTMint: "Mint111"})
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client, err := NewMinterClient(Config{URL: server.URL})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ctx := context.Background()

	verify, err := client.VerifyPayment(ctx, "good", "pro")
	if err != nil || !verify.Verified {
		t.Fatalf("Expected verified, got %+v, %v", verify, err)
	}

	mint, err := client.Mint(ctx, MintRequest{RecipientWallet: "W1", Tier: "pro", PaymentSignature: "good"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if mint.NFTMint != "Mint111" {
		t.Errorf("Expected Mint111, got %s", mint.NFTMint)
	}

	if _, err := client.Mint(ctx, MintRequest{Tier: "pro"}); err == nil {
		t.Error("Expected error for unsuccessful mint")
	}

	status, err := client.CheckMembership(ctx, "W1")
	if err != nil || status.NFTMint != "Mint111" {
		t.Errorf("Unexpected membership: %+v, %v", status, err)
	}
}
