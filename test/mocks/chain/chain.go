// Package chain provides an in-memory connection.Ledger for tests.
package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"

	"github.com/psm-labs/solpay/connection"
)

// ErrDown is returned by every call on an unreachable ledger.
var ErrDown = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

// Ledger is a scriptable fake chain bound to one endpoint.
type Ledger struct {
	mu sync.Mutex

	URL  string
	Down bool

	Lamports      map[solana.PublicKey]uint64
	Tokens        map[solana.PublicKey]connection.TokenBalance
	TokenErr      error
	Accounts      map[solana.PublicKey]bool
	Decimals      uint8
	Blockhash     solana.Hash
	LastValid     uint64
	Height        uint64
	HeightStep    uint64
	PendingPolls  int
	OnChainErr    interface{}
	SendErrs      []error
	LostResponses int
	Sent          [][]byte
	Statuses      map[solana.Signature]*connection.TxStatus
	Transactions  map[solana.Signature]*connection.TxInfo
	FaucetCredits []uint64

	calls map[string]int
}

// NewLedger creates a healthy ledger with a block height ceiling far ahead.
func NewLedger(url string) *Ledger {
	return &Ledger{
		URL:          url,
		Lamports:     make(map[solana.PublicKey]uint64),
		Tokens:       make(map[solana.PublicKey]connection.TokenBalance),
		Accounts:     make(map[solana.PublicKey]bool),
		Decimals:     6,
		Blockhash:    solana.Hash{1, 2, 3},
		LastValid:    1_000,
		Height:       100,
		Statuses:     make(map[solana.Signature]*connection.TxStatus),
		Transactions: make(map[solana.Signature]*connection.TxInfo),
		calls:        make(map[string]int),
	}
}

// Calls returns how many times method was invoked.
func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

// SentCount returns the number of raw batches accepted.
func (l *Ledger) SentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Sent)
}

func (l *Ledger) enter(method string) error {
	l.calls[method]++
	if l.Down {
		return &connection.Error{Kind: connection.KindNetwork, Op: method, Endpoint: l.URL, Err: ErrDown}
	}
	return nil
}

func (l *Ledger) Endpoint() string { return l.URL }

func (l *Ledger) Probe(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enter("Probe")
}

func (l *Ledger) GetBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("GetBalance"); err != nil {
		return 0, err
	}
	return l.Lamports[owner], nil
}

func (l *Ledger) GetTokenBalance(ctx context.Context, holding solana.PublicKey) (connection.TokenBalance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("GetTokenBalance"); err != nil {
		return connection.TokenBalance{}, err
	}
	if l.TokenErr != nil {
		return connection.TokenBalance{}, l.TokenErr
	}
	bal, ok := l.Tokens[holding]
	if !ok {
		return connection.TokenBalance{}, &connection.Error{Kind: connection.KindNotFound, Op: "GetTokenBalance", Endpoint: l.URL, Err: fmt.Errorf("account %s not found", holding)}
	}
	return bal, nil
}

func (l *Ledger) AccountExists(ctx context.Context, address solana.PublicKey) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("AccountExists"); err != nil {
		return false, err
	}
	return l.Accounts[address], nil
}

func (l *Ledger) GetMintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("GetMintDecimals"); err != nil {
		return 0, err
	}
	return l.Decimals, nil
}

func (l *Ledger) LatestCheckpoint(ctx context.Context) (connection.Checkpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("LatestCheckpoint"); err != nil {
		return connection.Checkpoint{}, err
	}
	return connection.Checkpoint{Blockhash: l.Blockhash, LastValidBlockHeight: l.LastValid}, nil
}

// SendSignedBatch pops the next scripted error, if any. Accepted batches
// land with a status that becomes visible after PendingPolls status calls.
// While LostResponses is positive the batch lands but the caller sees a
// timeout.
func (l *Ledger) SendSignedBatch(ctx context.Context, raw []byte, opts connection.SendOptions) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("SendSignedBatch"); err != nil {
		return solana.Signature{}, err
	}
	if len(l.SendErrs) > 0 {
		err := l.SendErrs[0]
		l.SendErrs = l.SendErrs[1:]
		if err != nil {
			return solana.Signature{}, err
		}
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("decode transaction: %w", err)
	}
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, errors.New("transaction is not signed")
	}
	sig := tx.Signatures[0]
	l.Sent = append(l.Sent, raw)
	l.Statuses[sig] = &connection.TxStatus{Slot: l.Height, Commitment: connection.CommitmentConfirmed, Err: l.OnChainErr}
	l.Transactions[sig] = &connection.TxInfo{Slot: l.Height, Fee: 5000, Err: l.OnChainErr}
	if l.LostResponses > 0 {
		l.LostResponses--
		return solana.Signature{}, &connection.Error{Kind: connection.KindTimeout, Op: "SendSignedBatch", Endpoint: l.URL, Err: context.DeadlineExceeded}
	}
	return sig, nil
}

func (l *Ledger) SignatureStatus(ctx context.Context, sig solana.Signature) (*connection.TxStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("SignatureStatus"); err != nil {
		return nil, err
	}
	if l.PendingPolls > 0 {
		l.PendingPolls--
		return nil, nil
	}
	return l.Statuses[sig], nil
}

func (l *Ledger) BlockHeight(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("BlockHeight"); err != nil {
		return 0, err
	}
	l.Height += l.HeightStep
	return l.Height, nil
}

func (l *Ledger) GetTransaction(ctx context.Context, sig solana.Signature) (*connection.TxInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("GetTransaction"); err != nil {
		return nil, err
	}
	return l.Transactions[sig], nil
}

func (l *Ledger) RequestFaucetCredit(ctx context.Context, owner solana.PublicKey, lamports uint64) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("RequestFaucetCredit"); err != nil {
		return solana.Signature{}, err
	}
	l.FaucetCredits = append(l.FaucetCredits, lamports)
	l.Lamports[owner] += lamports
	return solana.Signature{9, 9, 9}, nil
}

// Cluster maps endpoints to fake ledgers. Unknown endpoints are down.
type Cluster struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger
	dials   []string
}

// NewCluster creates a cluster with one healthy ledger per endpoint.
func NewCluster(endpoints ...string) *Cluster {
	c := &Cluster{ledgers: make(map[string]*Ledger)}
	for _, ep := range endpoints {
		c.ledgers[ep] = NewLedger(ep)
	}
	return c
}

// Ledger returns the fake bound to endpoint.
func (c *Cluster) Ledger(endpoint string) *Ledger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledgers[endpoint]
}

// Dial implements connection.Dialer.
func (c *Cluster) Dial(endpoint string) connection.Ledger {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dials = append(c.dials, endpoint)
	if l, ok := c.ledgers[endpoint]; ok {
		return l
	}
	down := NewLedger(endpoint)
	down.Down = true
	c.ledgers[endpoint] = down
	return down
}

// Dials returns the endpoints dialed so far, in order.
func (c *Cluster) Dials() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.dials...)
}

var _ connection.Ledger = (*Ledger)(nil)
