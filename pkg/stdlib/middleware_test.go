package stdlib

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/psm-labs/solpay"
	"github.com/psm-labs/solpay/ledger"
)

type staticChecker map[string]ledger.MembershipResult

func (s staticChecker) CheckMembership(ctx context.Context, wallet string) ledger.MembershipResult {
	return s[wallet]
}

type linker struct{}

func (linker) PaymentURL(tier solpay.TierID, currency solpay.Currency, mint string, now time.Time) (string, error) {
	return "solana:m?tier=" + string(tier) + "&currency=" + string(currency), nil
}

func TestRequireMembership(t *testing.T) {
	checker := staticChecker{
		"basic-member": {HasMembership: true, Tier: "basic"},
		"pro-member":   {HasMembership: true, Tier: "pro"},
	}
	handler := RequireMembership(checker, WithTiers(solpay.TierPro), WithPaymentLink(linker{}, "mint", solpay.TierPro))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, ok := MembershipFromContext(r.Context())
			if !ok || result.Tier != "pro" {
				t.Errorf("membership not propagated: %+v", result)
			}
			w.WriteHeader(http.StatusOK)
		}),
	)

	tests := []struct {
		name   string
		wallet string
		query  string
		want   int
	}{
		{"no wallet", "", "", http.StatusBadRequest},
		{"accepted tier", "pro-member", "", http.StatusOK},
		{"accepted tier from query", "", "?wallet=pro-member", http.StatusOK},
		{"tier not accepted", "basic-member", "", http.StatusPaymentRequired},
		{"stranger", "stranger", "", http.StatusPaymentRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/premium"+tt.query, nil)
			if tt.wallet != "" {
				req.Header.Set(WalletHeader, tt.wallet)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if rec.Code != http.StatusPaymentRequired {
				return
			}
			var body struct {
				Error       string            `json:"error"`
				PaymentURLs map[string]string `json:"paymentURLs"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.PaymentURLs["USDC"] != "solana:m?tier=pro&currency=USDC" {
				t.Errorf("unexpected payment links: %v", body.PaymentURLs)
			}
		})
	}
}
