package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/psm-labs/solpay"
	"github.com/psm-labs/solpay/metrics"
	"github.com/psm-labs/solpay/network"
)

// DefaultProbeTimeout bounds a single endpoint liveness probe.
const DefaultProbeTimeout = 10 * time.Second

// Manager owns the current Ledger for the active environment and fails over
// across its endpoint list.
type Manager struct {
	// connectMu serialises Connect so two callers never probe concurrently.
	connectMu sync.Mutex

	mu      sync.RWMutex
	env     network.Environment
	index   int
	current Ledger

	dial         Dialer
	probeTimeout time.Duration
	logger       zerolog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDialer replaces the solana-go dialer, mostly for tests.
func WithDialer(d Dialer) ManagerOption {
	return func(m *Manager) {
		m.dial = d
	}
}

// WithProbeTimeout sets the per-endpoint probe timeout.
func WithProbeTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a disconnected manager for env.
func NewManager(env network.Environment, opts ...ManagerOption) *Manager {
	m := &Manager{
		env:          env,
		dial:         Dial,
		probeTimeout: DefaultProbeTimeout,
		logger:       log.Logger.With().Str("component", "connection").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect probes the endpoints of the active environment starting at the
// current rotation index, visiting each at most once. The first healthy
// endpoint becomes current.
func (m *Manager) Connect(ctx context.Context) (Ledger, error) {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.RLock()
	env := m.env
	start := m.index
	m.mu.RUnlock()

	n := len(env.Endpoints)
	if n == 0 {
		return nil, solpay.NewPaymentError(solpay.ErrCodeAllEndpointsUnavailable,
			fmt.Sprintf("no endpoints configured for %s", env.Name), nil)
	}

	var lastErr error
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		endpoint := env.Endpoints[idx]
		ledger := m.dial(endpoint)

		if err := m.probe(ctx, ledger); err != nil {
			lastErr = err
			m.logger.Warn().
				Err(err).
				Str("network", env.Name).
				Str("endpoint", endpoint).
				Int("attempt", i+1).
				Msg("endpoint probe failed")
			if ctx.Err() != nil {
				break
			}
			continue
		}

		m.mu.Lock()
		m.index = idx
		m.current = ledger
		m.mu.Unlock()

		if i > 0 {
			metrics.RecordFailover(env.Name)
		}
		m.logger.Info().
			Str("network", env.Name).
			Str("endpoint", endpoint).
			Int("index", idx).
			Msg("connected")
		return ledger, nil
	}

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	return nil, solpay.WrapPaymentError(solpay.ErrCodeAllEndpointsUnavailable, lastErr,
		fmt.Sprintf("all %d %s endpoints failed", n, env.Name))
}

func (m *Manager) probe(ctx context.Context, ledger Ledger) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()
	return ledger.Probe(probeCtx)
}

// Ensure returns the current ledger, connecting first if there is none.
func (m *Manager) Ensure(ctx context.Context) (Ledger, error) {
	if current := m.Current(); current != nil {
		return current, nil
	}
	return m.Connect(ctx)
}

// Rotate advances to the next endpoint and reconnects.
func (m *Manager) Rotate(ctx context.Context) (Ledger, error) {
	m.mu.Lock()
	if n := len(m.env.Endpoints); n > 0 {
		m.index = (m.index + 1) % n
	}
	m.current = nil
	name := m.env.Name
	m.mu.Unlock()

	metrics.RecordFailover(name)
	return m.Connect(ctx)
}

// Switch activates env, resets the rotation index and reconnects.
func (m *Manager) Switch(ctx context.Context, env network.Environment) (Ledger, error) {
	m.mu.Lock()
	m.env = env
	m.index = 0
	m.current = nil
	m.mu.Unlock()

	m.logger.Info().Str("network", env.Name).Msg("switching network")
	return m.Connect(ctx)
}

// Current returns the connected ledger, or nil.
func (m *Manager) Current() Ledger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Index returns the rotation index of the current (or next) endpoint.
func (m *Manager) Index() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index
}

// Endpoint returns the URL at the rotation index.
func (m *Manager) Endpoint() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.env.Endpoints) == 0 {
		return ""
	}
	return m.env.Endpoints[m.index]
}

// Environment returns the active environment.
func (m *Manager) Environment() network.Environment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.env
}
