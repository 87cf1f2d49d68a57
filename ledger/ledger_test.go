package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psm-labs/solpay"
	solpayhttp "github.com/psm-labs/solpay/http"
)

type mockBackend struct {
	mu       sync.Mutex
	recorded []solpay.Subscription
	err      error
	status   *solpayhttp.MembershipStatus
	checkErr error
}

func (m *mockBackend) RecordPayment(ctx context.Context, sub solpay.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, sub)
	return m.err
}

func (m *mockBackend) CheckNFT(ctx context.Context, wallet string) (*solpayhttp.MembershipStatus, error) {
	return m.status, m.checkErr
}

type mockMinter struct {
	verified bool
	mintErr  error
	mint     string
	minted   []solpayhttp.MintRequest
	status   *solpayhttp.MembershipStatus
	checkErr error
}

func (m *mockMinter) VerifyPayment(ctx context.Context, signature, tier string) (*solpayhttp.VerifyPaymentResponse, error) {
	return &solpayhttp.VerifyPaymentResponse{Verified: m.verified}, nil
}

func (m *mockMinter) Mint(ctx context.Context, req solpayhttp.MintRequest) (*solpayhttp.MintResponse, error) {
	m.minted = append(m.minted, req)
	if m.mintErr != nil {
		return nil, m.mintErr
	}
	return &solpayhttp.MintResponse{Success: true, NFTMint: m.mint, Tier: req.Tier}, nil
}

func (m *mockMinter) CheckMembership(ctx context.Context, wallet string) (*solpayhttp.MembershipStatus, error) {
	return m.status, m.checkErr
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestRecordPaymentExpiry(t *testing.T) {
	now := t0
	l := New(NewMemoryStore(), WithClock(fixedClock(&now)))

	sub, err := l.RecordPayment(context.Background(), Record{
		Signature: "sig", Tier: solpay.TierPro, Amount: 19.99, Currency: solpay.CurrencyUSDC, Wallet: "W1",
	})
	require.NoError(t, err)

	want := solpay.Subscription{
		Tier:         solpay.TierPro,
		Wallet:       "W1",
		Signature:    "sig",
		Amount:       19.99,
		Currency:     solpay.CurrencyUSDC,
		StartedAt:    t0,
		ExpiresAt:    t0.Add(30 * 24 * time.Hour),
		DurationDays: 30,
	}
	if diff := cmp.Diff(want, sub); diff != "" {
		t.Errorf("subscription mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2_592_000_000, int(sub.ExpiresAt.Sub(sub.StartedAt).Milliseconds()))
}

func TestRecordPaymentUnknownTier(t *testing.T) {
	l := New(NewMemoryStore())
	_, err := l.RecordPayment(context.Background(), Record{Tier: "gold"})
	assert.True(t, errors.Is(err, solpay.ErrUnknownTier))
	assert.Empty(t, l.History())
}

func TestRecordPaymentBackendFailureIsNotFatal(t *testing.T) {
	backend := &mockBackend{err: errors.New("down")}
	l := New(NewMemoryStore(), WithBackend(backend))

	sub, err := l.RecordPayment(context.Background(), Record{Signature: "s1", Tier: solpay.TierBasic, Wallet: "W1"})
	require.NoError(t, err)
	require.Len(t, backend.recorded, 1)
	assert.Equal(t, sub, backend.recorded[0])
	assert.Len(t, l.History(), 1)
}

func TestRecordPaymentAttachesNFT(t *testing.T) {
	minter := &mockMinter{verified: true, mint: "Mint111"}
	store := NewMemoryStore()
	l := New(store, WithMinter(minter))

	sub, err := l.RecordPayment(context.Background(), Record{Signature: "s1", Tier: solpay.TierCreator, Wallet: "W1"})
	require.NoError(t, err)
	assert.Equal(t, "Mint111", sub.NFTMint)
	require.Len(t, minter.minted, 1)
	assert.Equal(t, solpayhttp.MintRequest{RecipientWallet: "W1", Tier: "creator", PaymentSignature: "s1"}, minter.minted[0])

	history := l.History()
	require.Len(t, history, 1)
	assert.Equal(t, "Mint111", history[0].NFTMint)
	assert.Equal(t, "Mint111", l.CurrentSubscription().Subscription.NFTMint)
}

func TestRecordPaymentUnverifiedSkipsMint(t *testing.T) {
	minter := &mockMinter{verified: false}
	l := New(NewMemoryStore(), WithMinter(minter))

	sub, err := l.RecordPayment(context.Background(), Record{Signature: "s1", Tier: solpay.TierBasic, Wallet: "W1"})
	require.NoError(t, err)
	assert.Empty(t, sub.NFTMint)
	assert.Empty(t, minter.minted)
}

func TestCurrentSubscriptionBoundary(t *testing.T) {
	now := t0
	l := New(NewMemoryStore(), WithClock(fixedClock(&now)))

	assert.Equal(t, solpay.SubscriptionStatus{}, l.CurrentSubscription())

	_, err := l.RecordPayment(context.Background(), Record{Signature: "s1", Tier: solpay.TierBasic, Wallet: "W1"})
	require.NoError(t, err)

	now = t0.Add(30*24*time.Hour - time.Millisecond)
	status := l.CurrentSubscription()
	assert.True(t, status.Active)
	assert.True(t, l.IsActive())

	now = t0.Add(30 * 24 * time.Hour)
	status = l.CurrentSubscription()
	assert.False(t, status.Active)
	require.NotNil(t, status.Expired)
	assert.Equal(t, "s1", status.Expired.Signature)
	assert.Nil(t, status.Subscription)
}

type brokenStore struct{ MemoryStore }

func (*brokenStore) Current() (*solpay.Subscription, error) { return nil, errors.New("malformed") }
func (*brokenStore) History() ([]solpay.Subscription, error) {
	return nil, errors.New("malformed")
}

func TestMalformedStateDegrades(t *testing.T) {
	l := New(&brokenStore{})
	assert.False(t, l.IsActive())
	assert.Empty(t, l.History())
}

func TestCheckMembershipLocalWins(t *testing.T) {
	backend := &mockBackend{checkErr: errors.New("should not be called")}
	now := t0
	l := New(NewMemoryStore(), WithBackend(backend), WithClock(fixedClock(&now)))
	_, err := l.RecordPayment(context.Background(), Record{Signature: "s1", Tier: solpay.TierPro, Wallet: "W1"})
	require.NoError(t, err)

	got := l.CheckMembership(context.Background(), "W1")
	assert.Equal(t, MembershipResult{HasMembership: true, Tier: "pro", Source: SourceLocal}, got)
}

func TestCheckMembershipMergesRemote(t *testing.T) {
	tests := []struct {
		name    string
		api     *solpayhttp.MembershipStatus
		apiErr  error
		chain   *solpayhttp.MembershipStatus
		want    MembershipResult
		wantErr bool
	}{
		{
			name:  "api only",
			api:   &solpayhttp.MembershipStatus{HasMembership: true, Tier: "pro"},
			chain: &solpayhttp.MembershipStatus{HasMembership: false},
			want:  MembershipResult{HasMembership: true, Tier: "pro", Source: SourceRemote},
		},
		{
			name:   "api down, chain holds nft",
			apiErr: errors.New("503"),
			chain:  &solpayhttp.MembershipStatus{HasMembership: true, Tier: "creator", NFTMint: "Mint9"},
			want:   MembershipResult{HasMembership: true, Tier: "creator", NFTMint: "Mint9", Source: SourceRemote},
		},
		{
			name:  "tier prefers api",
			api:   &solpayhttp.MembershipStatus{HasMembership: false, Tier: "basic"},
			chain: &solpayhttp.MembershipStatus{HasMembership: true, Tier: "pro", NFTMint: "M"},
			want:  MembershipResult{HasMembership: true, Tier: "basic", NFTMint: "M", Source: SourceRemote},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(NewMemoryStore(),
				WithBackend(&mockBackend{status: tt.api, checkErr: tt.apiErr}),
				WithMinter(&mockMinter{status: tt.chain}))
			got := l.CheckMembership(context.Background(), "W2")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckMembershipAllRemotesDown(t *testing.T) {
	l := New(NewMemoryStore(),
		WithBackend(&mockBackend{checkErr: errors.New("refused")}),
		WithMinter(&mockMinter{checkErr: errors.New("timeout")}))

	got := l.CheckMembership(context.Background(), "W2")
	assert.False(t, got.HasMembership)
	require.NotNil(t, got.Error)
	assert.True(t, errors.Is(got.Error, solpay.ErrBackendUnavailable))
}

func TestCheckMembershipNoRemotes(t *testing.T) {
	l := New(NewMemoryStore())
	assert.Equal(t, MembershipResult{}, l.CheckMembership(context.Background(), "W2"))

	got := l.CheckMembership(context.Background(), "")
	assert.False(t, got.HasMembership)
	assert.NotNil(t, got.Error)
}

func TestNFTImage(t *testing.T) {
	assert.Equal(t, "https://purplesquirrel.media/nft/pro.png", NFTImage(solpay.TierPro))
	assert.Equal(t, NFTImage(solpay.TierBasic), NFTImage("unknown"))
}
