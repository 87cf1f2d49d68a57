package solpay

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PaymentURLScheme is the URI scheme understood by Solana Pay wallets.
const PaymentURLScheme = "solana"

// PaymentRequest describes a transfer request rendered as a wallet URI,
// typically handed to an external QR code generator.
type PaymentRequest struct {
	Recipient string
	Amount    float64
	// Token is the stable token mint; empty for native transfers.
	Token   string
	Label   string
	Message string
	Memo    string
}

// URL encodes the request as
// solana:<recipient>?amount=<decimal>[&spl-token=<mint>]&label=..&message=..&memo=..
func (r PaymentRequest) URL() (string, error) {
	if r.Recipient == "" {
		return "", fmt.Errorf("payment recipient is required")
	}
	if r.Amount <= 0 {
		return "", fmt.Errorf("payment amount must be positive")
	}

	var b strings.Builder
	b.WriteString(PaymentURLScheme)
	b.WriteByte(':')
	b.WriteString(r.Recipient)
	b.WriteString("?amount=")
	b.WriteString(strconv.FormatFloat(r.Amount, 'f', -1, 64))

	params := []struct{ key, value string }{
		{"spl-token", r.Token},
		{"label", r.Label},
		{"message", r.Message},
		{"memo", r.Memo},
	}
	for _, p := range params {
		if p.value == "" {
			continue
		}
		b.WriteByte('&')
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(escapeComponent(p.value))
	}
	return b.String(), nil
}

// escapeComponent percent-encodes like encodeURIComponent (spaces as %20).
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
