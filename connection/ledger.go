// Package connection owns the live RPC handle: it probes endpoints, fails
// over between them, and retries fallible operations with linear backoff.
package connection

import (
	"context"
	"time"

	solana "github.com/gagliardetto/solana-go"
)

// Ledger is the RPC capability consumed by the payment pipeline. Every
// method returns errors classified as *Error so retry policy can dispatch on
// ErrorKind.
type Ledger interface {
	// Endpoint returns the URL this ledger is bound to.
	Endpoint() string
	// Probe is a lightweight liveness check (latest finality checkpoint).
	Probe(ctx context.Context) error
	GetBalance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	GetTokenBalance(ctx context.Context, holding solana.PublicKey) (TokenBalance, error)
	// AccountExists reports whether an account has been created on chain.
	AccountExists(ctx context.Context, address solana.PublicKey) (bool, error)
	// GetMintDecimals reads the decimals field of an SPL mint.
	GetMintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
	LatestCheckpoint(ctx context.Context) (Checkpoint, error)
	SendSignedBatch(ctx context.Context, raw []byte, opts SendOptions) (solana.Signature, error)
	SignatureStatus(ctx context.Context, sig solana.Signature) (*TxStatus, error)
	BlockHeight(ctx context.Context) (uint64, error)
	GetTransaction(ctx context.Context, sig solana.Signature) (*TxInfo, error)
	RequestFaucetCredit(ctx context.Context, owner solana.PublicKey, lamports uint64) (solana.Signature, error)
}

// Dialer creates a Ledger bound to one endpoint.
type Dialer func(endpoint string) Ledger

// Checkpoint is a recent blockhash plus the height by which a transaction
// referencing it must land.
type Checkpoint struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// TokenBalance is the balance of one token holding account.
type TokenBalance struct {
	Amount   uint64
	Decimals uint8
}

// Whole returns the balance in whole token units.
func (b TokenBalance) Whole() float64 {
	scale := 1.0
	for i := uint8(0); i < b.Decimals; i++ {
		scale *= 10
	}
	return float64(b.Amount) / scale
}

// SendOptions controls transaction submission.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment Commitment
}

// Commitment is a durability level.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// TxStatus is the cluster's view of a submitted signature.
type TxStatus struct {
	Slot       uint64
	Commitment Commitment
	// Err is the on-chain failure, nil when the transaction succeeded.
	Err interface{}
}

// Reached reports whether the status satisfies at least level c.
func (s *TxStatus) Reached(c Commitment) bool {
	if s == nil {
		return false
	}
	return commitmentRank(s.Commitment) >= commitmentRank(c)
}

func commitmentRank(c Commitment) int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	}
	return 0
}

// TxInfo summarises a confirmed transaction.
type TxInfo struct {
	Slot      uint64
	BlockTime *time.Time
	Fee       uint64
	// Err is the on-chain failure, nil when the transaction succeeded.
	Err interface{}
}
