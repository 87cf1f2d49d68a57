// Package ledger records confirmed payments as subscriptions, locally and
// with the optional remote backend and NFT minter.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/psm-labs/solpay"
	solpayhttp "github.com/psm-labs/solpay/http"
	"github.com/psm-labs/solpay/metrics"
)

// Backend is the remote payment-ledger service.
type Backend interface {
	RecordPayment(ctx context.Context, sub solpay.Subscription) error
	CheckNFT(ctx context.Context, wallet string) (*solpayhttp.MembershipStatus, error)
}

// Minter is the remote NFT minting service.
type Minter interface {
	VerifyPayment(ctx context.Context, signature, tier string) (*solpayhttp.VerifyPaymentResponse, error)
	Mint(ctx context.Context, req solpayhttp.MintRequest) (*solpayhttp.MintResponse, error)
	CheckMembership(ctx context.Context, wallet string) (*solpayhttp.MembershipStatus, error)
}

// Record is a confirmed payment to be turned into a subscription.
type Record struct {
	Signature string
	Tier      solpay.TierID
	Amount    float64
	Currency  solpay.Currency
	Wallet    string
}

// Membership source values
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// MembershipResult merges local and remote membership views.
type MembershipResult struct {
	HasMembership bool                 `json:"hasMembership"`
	Tier          string               `json:"tier,omitempty"`
	NFTMint       string               `json:"nftMint,omitempty"`
	Source        string               `json:"source,omitempty"`
	Error         *solpay.PaymentError `json:"error,omitempty"`
}

// Ledger owns the entitlement state. Backend and minter are optional.
type Ledger struct {
	store   Store
	catalog solpay.Catalog
	backend Backend
	minter  Minter
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithBackend enables remote payment recording and NFT checks.
func WithBackend(b Backend) Option {
	return func(l *Ledger) {
		l.backend = b
	}
}

// WithMinter enables NFT issuance and on-chain membership checks.
func WithMinter(m Minter) Option {
	return func(l *Ledger) {
		l.minter = m
	}
}

// WithCatalog replaces the default tier catalog.
func WithCatalog(c solpay.Catalog) Option {
	return func(l *Ledger) {
		l.catalog = c
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLogger sets the ledger logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates a ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		catalog: solpay.DefaultCatalog(),
		now:     time.Now,
		logger:  log.Logger.With().Str("component", "ledger").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordPayment persists the subscription bought by rec, then notifies the
// backend and requests an NFT. Only an unknown tier is an error; remote and
// storage failures are logged.
func (l *Ledger) RecordPayment(ctx context.Context, rec Record) (solpay.Subscription, error) {
	tier, err := l.catalog.Lookup(rec.Tier)
	if err != nil {
		return solpay.Subscription{}, err
	}

	sub := solpay.NewSubscription(tier, rec.Wallet, rec.Signature, rec.Amount, rec.Currency, l.now().UTC())
	logger := l.logger.With().
		Str("signature", rec.Signature).
		Str("tier", string(rec.Tier)).
		Str("wallet", rec.Wallet).
		Logger()

	if err := l.store.Save(sub); err != nil {
		logger.Error().Err(err).Msg("failed to persist subscription")
	} else {
		metrics.RecordSubscription(string(rec.Tier))
	}

	if l.backend != nil {
		if err := l.backend.RecordPayment(ctx, sub); err != nil {
			logger.Warn().Err(err).Msg("failed to record payment to backend")
		}
	}

	if l.minter != nil {
		if mint, err := l.mint(ctx, sub); err != nil {
			logger.Warn().Err(err).Msg("membership NFT not issued")
		} else {
			sub.NFTMint = mint
			if err := l.store.AttachNFT(sub.Signature, mint); err != nil {
				logger.Error().Err(err).Msg("failed to persist NFT mint")
			}
			logger.Info().Str("nft_mint", mint).Msg("membership NFT issued")
		}
	}

	return sub, nil
}

func (l *Ledger) mint(ctx context.Context, sub solpay.Subscription) (string, error) {
	verify, err := l.minter.VerifyPayment(ctx, sub.Signature, string(sub.Tier))
	if err != nil {
		return "", fmt.Errorf("verify payment: %w", err)
	}
	if !verify.Verified {
		reason := verify.Error
		if reason == "" {
			reason = "Payment verification failed"
		}
		return "", fmt.Errorf("verify payment: %s", reason)
	}

	out, err := l.minter.Mint(ctx, solpayhttp.MintRequest{
		RecipientWallet:  sub.Wallet,
		Tier:             string(sub.Tier),
		PaymentSignature: sub.Signature,
	})
	if err != nil {
		return "", err
	}
	if out.NFTMint == "" {
		return "", fmt.Errorf("minter returned no mint address")
	}
	return out.NFTMint, nil
}

// CurrentSubscription derives the status of the current slot. Unreadable
// state counts as no subscription.
func (l *Ledger) CurrentSubscription() solpay.SubscriptionStatus {
	sub, err := l.store.Current()
	if err != nil {
		l.logger.Debug().Err(err).Msg("unreadable current subscription")
		return solpay.SubscriptionStatus{}
	}
	if sub == nil {
		return solpay.SubscriptionStatus{}
	}
	if sub.ActiveAt(l.now()) {
		return solpay.SubscriptionStatus{Active: true, Subscription: sub}
	}
	return solpay.SubscriptionStatus{Expired: sub}
}

// IsActive reports whether the current subscription has not expired.
func (l *Ledger) IsActive() bool {
	return l.CurrentSubscription().Active
}

// History returns stored subscriptions, newest first. Unreadable state is
// an empty history.
func (l *Ledger) History() []solpay.Subscription {
	history, err := l.store.History()
	if err != nil {
		l.logger.Debug().Err(err).Msg("unreadable subscription history")
		return nil
	}
	return history
}

// CheckMembership answers from the local subscription when it is active and
// belongs to wallet; otherwise it asks the backend and the minter
// concurrently and merges their answers.
func (l *Ledger) CheckMembership(ctx context.Context, wallet string) MembershipResult {
	if wallet == "" {
		return MembershipResult{Error: solpay.NewPaymentError(solpay.ErrCodeNoWalletConnected, "No wallet address provided", nil)}
	}

	if status := l.CurrentSubscription(); status.Active && status.Subscription.Wallet == wallet {
		return MembershipResult{HasMembership: true, Tier: string(status.Subscription.Tier), Source: SourceLocal}
	}

	if l.backend == nil && l.minter == nil {
		return MembershipResult{}
	}

	var (
		g          errgroup.Group
		mu         sync.Mutex
		failures   []error
		api, chain *solpayhttp.MembershipStatus
	)
	fail := func(err error) {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	}
	if l.backend != nil {
		g.Go(func() error {
			status, err := l.backend.CheckNFT(ctx, wallet)
			if err != nil {
				fail(fmt.Errorf("backend: %w", err))
				return nil
			}
			api = status
			return nil
		})
	}
	if l.minter != nil {
		g.Go(func() error {
			status, err := l.minter.CheckMembership(ctx, wallet)
			if err != nil {
				fail(fmt.Errorf("minter: %w", err))
				return nil
			}
			chain = status
			return nil
		})
	}
	_ = g.Wait()

	result := mergeMembership(api, chain)
	if api == nil && chain == nil && len(failures) > 0 {
		l.logger.Warn().Errs("errors", failures).Str("wallet", wallet).Msg("membership check failed")
		result.Error = solpay.WrapPaymentError(solpay.ErrCodeBackendUnavailable, failures[0], "membership services unavailable")
	}
	return result
}

func mergeMembership(api, chain *solpayhttp.MembershipStatus) MembershipResult {
	result := MembershipResult{Source: SourceRemote}
	if api != nil {
		result.HasMembership = api.HasMembership
		result.Tier = api.Tier
	}
	if chain != nil {
		result.HasMembership = result.HasMembership || chain.HasMembership
		if result.Tier == "" {
			result.Tier = chain.Tier
		}
		result.NFTMint = chain.NFTMint
	}
	return result
}

var nftImages = map[solpay.TierID]string{
	solpay.TierBasic:   "https://purplesquirrel.media/nft/basic.png",
	solpay.TierPro:     "https://purplesquirrel.media/nft/pro.png",
	solpay.TierCreator: "https://purplesquirrel.media/nft/creator.png",
}

// NFTImage returns the membership artwork for tier, defaulting to basic.
func NFTImage(tier solpay.TierID) string {
	if img, ok := nftImages[tier]; ok {
		return img
	}
	return nftImages[solpay.TierBasic]
}
