package solpay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRequestURL(t *testing.T) {
	tests := []struct {
		name string
		req  PaymentRequest
		want string
	}{
		{
			name: "native",
			req: PaymentRequest{
				Recipient: "Merchant111",
				Amount:    0.05,
				Label:     "Purple Squirrel Media",
				Message:   "Basic Subscription",
				Memo:      "sub_basic_1700000000000",
			},
			want: "solana:Merchant111?amount=0.05&label=Purple%20Squirrel%20Media&message=Basic%20Subscription&memo=sub_basic_1700000000000",
		},
		{
			name: "stable token",
			req: PaymentRequest{
				Recipient: "Merchant111",
				Amount:    19.99,
				Token:     "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			},
			want: "solana:Merchant111?amount=19.99&spl-token=EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		},
		{
			name: "escaped characters",
			req:  PaymentRequest{Recipient: "M", Amount: 1, Message: "a&b=c"},
			want: "solana:M?amount=1&message=a%26b%3Dc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.URL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaymentRequestURLValidation(t *testing.T) {
	_, err := PaymentRequest{Amount: 1}.URL()
	assert.Error(t, err)

	_, err = PaymentRequest{Recipient: "M"}.URL()
	assert.Error(t, err)
}
