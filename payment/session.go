// Package payment builds, signs, submits and confirms split subscription
// payments, and runs the balance preflight that guards them.
package payment

import (
	"github.com/psm-labs/solpay/connection"
	"github.com/psm-labs/solpay/network"
	"github.com/psm-labs/solpay/wallet"
)

// Session bundles the live connection and the wallet for one user. It is
// passed explicitly to every operation.
type Session struct {
	Retrier *connection.Retrier
	Wallet  *wallet.Session
}

// NewSession creates a session over an existing retrier and wallet.
func NewSession(retrier *connection.Retrier, w *wallet.Session) *Session {
	return &Session{Retrier: retrier, Wallet: w}
}

// Environment returns the active chain environment.
func (s *Session) Environment() network.Environment {
	return s.Retrier.Manager().Environment()
}
