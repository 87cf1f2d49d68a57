package connection

import (
	"context"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// rpcLedger implements Ledger over a solana-go JSON-RPC client.
type rpcLedger struct {
	endpoint string
	client   *rpc.Client
}

// Dial returns a Ledger talking JSON-RPC to endpoint. No I/O happens until
// the first call.
func Dial(endpoint string) Ledger {
	return &rpcLedger{endpoint: endpoint, client: rpc.New(endpoint)}
}

var _ Dialer = Dial

func (l *rpcLedger) Endpoint() string {
	return l.endpoint
}

func (l *rpcLedger) Probe(ctx context.Context) error {
	_, err := l.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	return wrap("getLatestBlockhash", l.endpoint, err)
}

func (l *rpcLedger) GetBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	out, err := l.client.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, wrap("getBalance", l.endpoint, err)
	}
	return out.Value, nil
}

func (l *rpcLedger) GetTokenBalance(ctx context.Context, holding solana.PublicKey) (TokenBalance, error) {
	out, err := l.client.GetTokenAccountBalance(ctx, holding, rpc.CommitmentConfirmed)
	if err != nil {
		return TokenBalance{}, wrap("getTokenAccountBalance", l.endpoint, err)
	}
	if out == nil || out.Value == nil {
		return TokenBalance{}, wrap("getTokenAccountBalance", l.endpoint, rpc.ErrNotFound)
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return TokenBalance{}, fmt.Errorf("invalid token amount %q: %w", out.Value.Amount, err)
	}
	return TokenBalance{Amount: amount, Decimals: out.Value.Decimals}, nil
}

func (l *rpcLedger) AccountExists(ctx context.Context, address solana.PublicKey) (bool, error) {
	out, err := l.client.GetAccountInfo(ctx, address)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return false, nil
		}
		return false, wrap("getAccountInfo", l.endpoint, err)
	}
	return out != nil && out.Value != nil, nil
}

func (l *rpcLedger) GetMintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	out, err := l.client.GetAccountInfo(ctx, mint)
	if err != nil {
		return 0, wrap("getAccountInfo", l.endpoint, err)
	}
	if out == nil || out.Value == nil {
		return 0, wrap("getAccountInfo", l.endpoint, rpc.ErrNotFound)
	}

	var mintData token.Mint
	if err := bin.NewBinDecoder(out.Value.Data.GetBinary()).Decode(&mintData); err != nil {
		return 0, fmt.Errorf("failed to decode mint %s: %w", mint, err)
	}
	return mintData.Decimals, nil
}

func (l *rpcLedger) LatestCheckpoint(ctx context.Context) (Checkpoint, error) {
	out, err := l.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return Checkpoint{}, wrap("getLatestBlockhash", l.endpoint, err)
	}
	return Checkpoint{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

func (l *rpcLedger) SendSignedBatch(ctx context.Context, raw []byte, opts SendOptions) (solana.Signature, error) {
	sig, err := l.client.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: rpcCommitment(opts.PreflightCommitment),
	})
	if err != nil {
		return solana.Signature{}, wrap("sendTransaction", l.endpoint, err)
	}
	return sig, nil
}

func (l *rpcLedger) SignatureStatus(ctx context.Context, sig solana.Signature) (*TxStatus, error) {
	out, err := l.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, wrap("getSignatureStatuses", l.endpoint, err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}
	st := out.Value[0]
	return &TxStatus{
		Slot:       st.Slot,
		Commitment: Commitment(st.ConfirmationStatus),
		Err:        st.Err,
	}, nil
}

func (l *rpcLedger) BlockHeight(ctx context.Context) (uint64, error) {
	height, err := l.client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, wrap("getBlockHeight", l.endpoint, err)
	}
	return height, nil
}

func (l *rpcLedger) GetTransaction(ctx context.Context, sig solana.Signature) (*TxInfo, error) {
	maxVersion := uint64(0)
	out, err := l.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, wrap("getTransaction", l.endpoint, err)
	}
	if out == nil {
		return nil, nil
	}
	info := &TxInfo{Slot: out.Slot}
	if out.BlockTime != nil {
		t := out.BlockTime.Time()
		info.BlockTime = &t
	}
	if out.Meta != nil {
		info.Fee = out.Meta.Fee
		info.Err = out.Meta.Err
	}
	return info, nil
}

func (l *rpcLedger) RequestFaucetCredit(ctx context.Context, owner solana.PublicKey, lamports uint64) (solana.Signature, error) {
	sig, err := l.client.RequestAirdrop(ctx, owner, lamports, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Signature{}, wrap("requestAirdrop", l.endpoint, err)
	}
	return sig, nil
}

func rpcCommitment(c Commitment) rpc.CommitmentType {
	switch c {
	case CommitmentProcessed:
		return rpc.CommitmentProcessed
	case CommitmentFinalized:
		return rpc.CommitmentFinalized
	}
	return rpc.CommitmentConfirmed
}
