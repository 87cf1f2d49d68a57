package solpay

import (
	"errors"
	"fmt"
)

// PaymentError represents a payment-specific error
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *PaymentError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Is matches any PaymentError carrying the same code, so callers can write
// errors.Is(err, solpay.ErrUserRejected).
func (e *PaymentError) Is(target error) bool {
	var pe *PaymentError
	if !errors.As(target, &pe) {
		return false
	}
	return pe.Code == e.Code
}

// Error codes
const (
	ErrCodeNoWalletFound           = "no_wallet_found"
	ErrCodeNoWalletConnected       = "no_wallet_connected"
	ErrCodeUnknownTier             = "unknown_tier"
	ErrCodeInsufficientBalance     = "insufficient_balance"
	ErrCodeAllEndpointsUnavailable = "all_endpoints_unavailable"
	ErrCodeUserRejected            = "user_rejected"
	ErrCodeSubmissionFailure       = "submission_failure"
	ErrCodeConfirmationTimeout     = "confirmation_timeout"
	ErrCodeBackendUnavailable      = "backend_unavailable"
)

// Sentinels for errors.Is comparisons.
var (
	ErrNoWalletFound           = &PaymentError{Code: ErrCodeNoWalletFound}
	ErrNoWalletConnected       = &PaymentError{Code: ErrCodeNoWalletConnected}
	ErrUnknownTier             = &PaymentError{Code: ErrCodeUnknownTier}
	ErrInsufficientBalance     = &PaymentError{Code: ErrCodeInsufficientBalance}
	ErrAllEndpointsUnavailable = &PaymentError{Code: ErrCodeAllEndpointsUnavailable}
	ErrUserRejected            = &PaymentError{Code: ErrCodeUserRejected}
	ErrSubmissionFailure       = &PaymentError{Code: ErrCodeSubmissionFailure}
	ErrConfirmationTimeout     = &PaymentError{Code: ErrCodeConfirmationTimeout}
	ErrBackendUnavailable      = &PaymentError{Code: ErrCodeBackendUnavailable}
)

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WrapPaymentError creates a payment error that keeps cause in its chain.
func WrapPaymentError(code string, cause error, message string) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// NewInsufficientBalanceError reports a failed preflight with the amounts involved.
func NewInsufficientBalanceError(available, required float64, currency Currency) *PaymentError {
	return NewPaymentError(
		ErrCodeInsufficientBalance,
		fmt.Sprintf("insufficient %s balance: have %.4f, need %v", currency, available, required),
		map[string]interface{}{
			"available": available,
			"required":  required,
			"currency":  string(currency),
		},
	)
}

// CodeOf returns the PaymentError code in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
