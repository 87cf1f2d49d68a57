package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/psm-labs/solpay"
	"github.com/psm-labs/solpay/connection"
	"github.com/psm-labs/solpay/ledger"
	"github.com/psm-labs/solpay/metrics"
)

const (
	// DefaultFeePercent is the platform share of every payment.
	DefaultFeePercent = 0.01
	// DefaultConfirmPollInterval is the wait between signature status polls.
	DefaultConfirmPollInterval = 2 * time.Second
	// DefaultFeeWallet receives the platform fee.
	DefaultFeeWallet = "DjaRzzZi94Mq9zJvi23QbB5yRbCSRFENTDDeWicPVxcu"
	// DefaultLabel is the payee label shown by wallets.
	DefaultLabel = "Purple Squirrel Media"
)

// Recorder turns a confirmed payment into a subscription.
type Recorder interface {
	RecordPayment(ctx context.Context, rec ledger.Record) (solpay.Subscription, error)
}

// Config holds the payee and tuning parameters of an Engine.
type Config struct {
	MerchantWallet solana.PublicKey
	FeeWallet      solana.PublicKey
	// FeePercent is a fraction in (0, 1).
	FeePercent float64
	// PriorityFee is the compute unit price in micro-lamports; 0 disables it.
	PriorityFee         uint64
	ConfirmPollInterval time.Duration
	Catalog             solpay.Catalog
	Label               string
}

// Engine executes subscription payments.
type Engine struct {
	config   Config
	catalog  solpay.Catalog
	recorder Recorder
	// inflight collapses concurrent purchases of the same tier by one wallet.
	inflight singleflight.Group
	logger   zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine. The merchant wallet is required.
func NewEngine(config Config, recorder Recorder, opts ...Option) (*Engine, error) {
	if config.MerchantWallet.IsZero() {
		return nil, fmt.Errorf("merchant wallet is required")
	}
	if config.FeeWallet.IsZero() {
		config.FeeWallet = solana.MustPublicKeyFromBase58(DefaultFeeWallet)
	}
	if config.FeePercent == 0 {
		config.FeePercent = DefaultFeePercent
	}
	if config.FeePercent < 0 || config.FeePercent >= 1 {
		return nil, fmt.Errorf("fee percent must be in (0, 1), got %v", config.FeePercent)
	}
	if config.ConfirmPollInterval <= 0 {
		config.ConfirmPollInterval = DefaultConfirmPollInterval
	}
	if config.Catalog == nil {
		config.Catalog = solpay.DefaultCatalog()
	}
	if config.Label == "" {
		config.Label = DefaultLabel
	}

	e := &Engine{
		config:   config,
		catalog:  config.Catalog,
		recorder: recorder,
		logger:   log.With().Str("component", "payment").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Catalog returns the tiers the engine sells.
func (e *Engine) Catalog() solpay.Catalog {
	return e.catalog
}

// intent is one purchase in progress.
type intent struct {
	tier      solpay.Tier
	currency  solpay.Currency
	split     solpay.FeeSplit
	reference string
}

// PayWithWallet buys tierID with currency from the session's wallet and
// records the subscription once the transfer is confirmed.
func (e *Engine) PayWithWallet(ctx context.Context, sess *Session, tierID solpay.TierID, currency solpay.Currency) (*solpay.PaymentResult, error) {
	tier, err := e.catalog.Lookup(tierID)
	if err != nil {
		return nil, err
	}
	payer, err := sess.Wallet.Identity()
	if err != nil {
		return nil, err
	}
	if _, err := tier.Price(currency); err != nil {
		return nil, err
	}

	// Only overlapping calls share a result; a later call always pays again.
	key := payer.String() + "|" + string(tierID) + "|" + string(currency)
	ch := e.inflight.DoChan(key, func() (interface{}, error) {
		res, err := e.pay(ctx, sess, payer, tier, currency)
		if solpay.CodeOf(err) != solpay.ErrCodeUserRejected {
			metrics.RecordPayment(string(currency), err == nil)
		}
		return res, err
	})

	select {
	case out := <-ch:
		if out.Err != nil {
			return nil, out.Err
		}
		if out.Shared {
			e.logger.Debug().
				Str("wallet", payer.String()).
				Str("tier", string(tierID)).
				Msg("joined in-flight payment")
		}
		return out.Val.(*solpay.PaymentResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) pay(ctx context.Context, sess *Session, payer solana.PublicKey, tier solpay.Tier, currency solpay.Currency) (*solpay.PaymentResult, error) {
	logger := e.logger.With().
		Str("tier", string(tier.ID)).
		Str("currency", string(currency)).
		Str("wallet", payer.String()).
		Logger()

	balance := e.CheckSufficiency(ctx, sess, tier.ID, currency)
	if balance.Err != nil {
		return nil, balance.Err
	}
	if !balance.Sufficient {
		return nil, solpay.NewInsufficientBalanceError(balance.Available, balance.Required, currency)
	}

	env := sess.Environment()
	r := recipients{payer: payer, merchant: e.config.MerchantWallet, fee: e.config.FeeWallet}

	var mint solana.PublicKey
	decimals := env.StableDecimals
	if currency == solpay.CurrencyUSDC {
		var err error
		mint, err = solana.PublicKeyFromBase58(env.StableMint)
		if err != nil {
			return nil, fmt.Errorf("invalid stable mint %q: %w", env.StableMint, err)
		}
		decimals = e.stableDecimals(ctx, sess, mint, decimals)
	}

	in, err := e.newIntent(tier, currency, decimals)
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("reference", in.reference).Logger()

	ixs, err := e.instructions(ctx, sess, r, in, mint, decimals)
	if err != nil {
		return nil, err
	}

	checkpoint, err := connection.Retry(ctx, sess.Retrier, func(ctx context.Context, conn connection.Ledger) (connection.Checkpoint, error) {
		return conn.LatestCheckpoint(ctx)
	})
	if err != nil {
		return nil, wrapSubmission(err, "failed to fetch latest blockhash")
	}

	tx, err := solana.NewTransaction(ixs, checkpoint.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	if err := sess.Wallet.Sign(ctx, tx); err != nil {
		if errors.Is(err, solpay.ErrUserRejected) {
			logger.Info().Msg("payment cancelled by user")
		}
		return nil, err
	}
	if len(tx.Signatures) == 0 {
		return nil, solpay.NewPaymentError(solpay.ErrCodeSubmissionFailure, "wallet returned an unsigned transaction", nil)
	}
	signature := tx.Signatures[0]
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	logger = logger.With().Str("signature", signature.String()).Logger()

	if err := e.submit(ctx, sess, raw, signature, checkpoint, logger); err != nil {
		return nil, err
	}
	logger.Info().Float64("amount", in.price()).Msg("payment confirmed")

	sub, err := e.recorder.RecordPayment(ctx, ledger.Record{
		Signature: signature.String(),
		Tier:      tier.ID,
		Amount:    in.price(),
		Currency:  currency,
		Wallet:    payer.String(),
	})
	if err != nil {
		return nil, err
	}

	return &solpay.PaymentResult{
		Signature:    signature.String(),
		Tier:         tier.ID,
		Amount:       in.price(),
		Currency:     currency,
		Fee:          in.split.FeeWhole(),
		Explorer:     env.TxURL(signature.String()),
		Reference:    in.reference,
		Subscription: sub,
	}, nil
}

// stableDecimals reads the mint's decimals, falling back to the environment
// default when the mint cannot be read.
func (e *Engine) stableDecimals(ctx context.Context, sess *Session, mint solana.PublicKey, fallback uint8) uint8 {
	decimals, err := connection.Retry(ctx, sess.Retrier, func(ctx context.Context, conn connection.Ledger) (uint8, error) {
		return conn.GetMintDecimals(ctx, mint)
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("mint", mint.String()).Msg("failed to read mint decimals, using default")
		return fallback
	}
	return decimals
}

func (e *Engine) newIntent(tier solpay.Tier, currency solpay.Currency, decimals uint8) (intent, error) {
	price, err := tier.Price(currency)
	if err != nil {
		return intent{}, err
	}
	scale, err := solpay.UnitsPerWhole(currency, decimals)
	if err != nil {
		return intent{}, err
	}
	split, err := solpay.SplitAmount(price, scale, e.config.FeePercent)
	if err != nil {
		return intent{}, fmt.Errorf("invalid fee split: %w", err)
	}
	reference, err := solpay.GenerateReference()
	if err != nil {
		return intent{}, err
	}
	return intent{tier: tier, currency: currency, split: split, reference: reference}, nil
}

func (in intent) price() float64 {
	p, _ := in.tier.Price(in.currency)
	return p
}

func (e *Engine) instructions(ctx context.Context, sess *Session, r recipients, in intent, mint solana.PublicKey, decimals uint8) ([]solana.Instruction, error) {
	var ixs []solana.Instruction
	priority, err := priorityFeeInstruction(e.config.PriorityFee)
	if err != nil {
		return nil, err
	}
	if priority != nil {
		ixs = append(ixs, priority)
	}

	switch in.currency {
	case solpay.CurrencySOL:
		ixs = append(ixs, nativeInstructions(r, in.split)...)
	case solpay.CurrencyUSDC:
		transfers, err := stableInstructions(ctx, sess.Retrier, r, mint, decimals, in.split)
		if err != nil {
			return nil, wrapSubmission(err, "failed to prepare token transfer")
		}
		ixs = append(ixs, transfers...)
	}

	return append(ixs, memoInstruction(in.reference)), nil
}

// submit sends the signed bytes and waits for confirmation. Every attempt
// after the first checks whether the known signature already landed and
// skips resubmission when it has.
func (e *Engine) submit(ctx context.Context, sess *Session, raw []byte, signature solana.Signature, checkpoint connection.Checkpoint, logger zerolog.Logger) error {
	attempt := 0
	err := sess.Retrier.Do(ctx, func(ctx context.Context, conn connection.Ledger) error {
		attempt++
		if attempt > 1 {
			status, err := conn.SignatureStatus(ctx, signature)
			if err != nil {
				return err
			}
			if status != nil {
				logger.Info().Int("attempt", attempt).Msg("signature already landed, skipping resubmission")
				return e.confirm(ctx, conn, signature, checkpoint, status)
			}
		}

		if _, err := conn.SendSignedBatch(ctx, raw, connection.SendOptions{
			SkipPreflight:       false,
			PreflightCommitment: connection.CommitmentConfirmed,
		}); err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Str("endpoint", conn.Endpoint()).Msg("failed to submit transaction")
			return err
		}
		return e.confirm(ctx, conn, signature, checkpoint, nil)
	})
	if err != nil {
		return wrapSubmission(err, "failed to submit transaction")
	}
	return nil
}

// confirm polls the signature until it is confirmed or the block height
// passes the checkpoint's ceiling.
func (e *Engine) confirm(ctx context.Context, conn connection.Ledger, signature solana.Signature, checkpoint connection.Checkpoint, status *connection.TxStatus) error {
	for {
		if status == nil {
			var err error
			status, err = conn.SignatureStatus(ctx, signature)
			if err != nil {
				return err
			}
		}
		if status != nil && status.Err != nil {
			return connection.Permanent(solpay.NewPaymentError(
				solpay.ErrCodeSubmissionFailure,
				fmt.Sprintf("transaction failed on chain: %v", status.Err),
				map[string]interface{}{"signature": signature.String()},
			))
		}
		if status.Reached(connection.CommitmentConfirmed) {
			return nil
		}

		height, err := conn.BlockHeight(ctx)
		if err != nil {
			return err
		}
		if height > checkpoint.LastValidBlockHeight {
			return connection.Permanent(solpay.NewPaymentError(
				solpay.ErrCodeConfirmationTimeout,
				"transaction was not confirmed before its blockhash expired",
				map[string]interface{}{
					"signature":            signature.String(),
					"lastValidBlockHeight": checkpoint.LastValidBlockHeight,
				},
			))
		}

		status = nil
		select {
		case <-ctx.Done():
			return connection.Permanent(ctx.Err())
		case <-time.After(e.config.ConfirmPollInterval):
		}
	}
}

// wrapSubmission keeps payment errors as they are and wraps anything else.
func wrapSubmission(err error, message string) error {
	if solpay.CodeOf(err) != "" {
		return err
	}
	return solpay.WrapPaymentError(solpay.ErrCodeSubmissionFailure, err, fmt.Sprintf("%s: %v", message, err))
}

// VerifyResult reports what the cluster knows about a signature.
type VerifyResult struct {
	Confirmed bool       `json:"confirmed"`
	Slot      uint64     `json:"slot,omitempty"`
	BlockTime *time.Time `json:"blockTime,omitempty"`
	Fee       uint64     `json:"fee,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// VerifyPayment looks up a transaction at confirmed commitment. An unknown
// signature is reported as unconfirmed.
func (e *Engine) VerifyPayment(ctx context.Context, sess *Session, signature string) (VerifyResult, error) {
	sig, err := solana.SignatureFromBase58(strings.TrimSpace(signature))
	if err != nil {
		return VerifyResult{}, fmt.Errorf("invalid signature %q: %w", signature, err)
	}
	info, err := connection.Retry(ctx, sess.Retrier, func(ctx context.Context, conn connection.Ledger) (*connection.TxInfo, error) {
		info, err := conn.GetTransaction(ctx, sig)
		if connection.KindOf(err) == connection.KindNotFound {
			return nil, nil
		}
		return info, err
	})
	if err != nil {
		return VerifyResult{}, err
	}
	if info == nil {
		return VerifyResult{Confirmed: false}, nil
	}
	result := VerifyResult{
		Confirmed: info.Err == nil,
		Slot:      info.Slot,
		BlockTime: info.BlockTime,
		Fee:       info.Fee,
	}
	if info.Err != nil {
		result.Error = fmt.Sprintf("%v", info.Err)
	}
	return result, nil
}

// RequestAirdrop credits the connected wallet with sol from the faucet.
// Only environments with a faucet accept it.
func (e *Engine) RequestAirdrop(ctx context.Context, sess *Session, sol float64) (string, error) {
	env := sess.Environment()
	if !env.FaucetEnabled {
		return "", fmt.Errorf("airdrop only available on devnet (active network: %s)", env.Name)
	}
	if sol <= 0 {
		return "", fmt.Errorf("airdrop amount must be positive, got %v", sol)
	}
	owner, err := sess.Wallet.Identity()
	if err != nil {
		return "", err
	}
	lamports := uint64(sol * float64(solpay.LamportsPerSOL))
	sig, err := connection.Retry(ctx, sess.Retrier, func(ctx context.Context, conn connection.Ledger) (solana.Signature, error) {
		return conn.RequestFaucetCredit(ctx, owner, lamports)
	})
	if err != nil {
		return "", err
	}
	e.logger.Info().Str("wallet", owner.String()).Uint64("lamports", lamports).Str("signature", sig.String()).Msg("airdrop requested")
	return sig.String(), nil
}

// PaymentURL renders a wallet payment link for tierID paid to the merchant.
func (e *Engine) PaymentURL(tierID solpay.TierID, currency solpay.Currency, stableMint string, now time.Time) (string, error) {
	tier, err := e.catalog.Lookup(tierID)
	if err != nil {
		return "", err
	}
	price, err := tier.Price(currency)
	if err != nil {
		return "", err
	}
	req := solpay.PaymentRequest{
		Recipient: e.config.MerchantWallet.String(),
		Amount:    price,
		Label:     e.config.Label,
		Message:   tier.Name + " Subscription",
		Memo:      fmt.Sprintf("sub_%s_%d", tier.ID, now.UnixMilli()),
	}
	if currency == solpay.CurrencyUSDC {
		req.Token = stableMint
	}
	return req.URL()
}
